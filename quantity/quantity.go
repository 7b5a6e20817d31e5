// Package quantity parses the user-facing reclamation budget: either a
// byte count ("100MiB", "2G") or, with a trailing "I", an inode count
// ("12KI").
package quantity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Unit is the dimension a Quantity's value is measured in.
type Unit int

const (
	// Bytes measures a Quantity in bytes.
	Bytes Unit = iota
	// Inodes measures a Quantity in filesystem inodes.
	Inodes
)

func (u Unit) String() string {
	switch u {
	case Bytes:
		return "bytes"
	case Inodes:
		return "inodes"
	default:
		return "unknown"
	}
}

// Quantity is a budget expressed in either bytes or inodes.
type Quantity struct {
	Value uint64
	Unit  Unit
}

func (q Quantity) String() string {
	if q.Unit == Inodes {
		return fmt.Sprintf("%dI", q.Value)
	}
	return humanize.IBytes(q.Value)
}

// hasByteUnitLetter reports whether s contains a letter that only makes
// sense as part of a byte-size unit ("B" in "KB", "MiB", ...), as opposed
// to the bare "I" inode suffix or plain digits.
func hasByteUnitLetter(s string) bool {
	return strings.ContainsAny(s, "bB")
}

// Parse parses a quantity string such as "100MiB", "2G", or "12KI".
//
// A trailing uppercase "I" with no byte-unit letter elsewhere in the
// string selects the inode unit; the remainder is parsed as a
// decimal/SI count. Otherwise the unit is bytes, parsed with
// binary/SI-aware size parsing. A string containing both an "I" suffix
// and a byte-unit letter is rejected as ambiguous.
func Parse(s string) (Quantity, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Quantity{}, fmt.Errorf("quantity: empty value")
	}

	if strings.HasSuffix(trimmed, "I") {
		if hasByteUnitLetter(trimmed) {
			return Quantity{}, fmt.Errorf("quantity: ambiguous unit in %q", s)
		}
		numeric := strings.TrimSpace(strings.TrimSuffix(trimmed, "I"))
		value, err := parseCount(numeric)
		if err != nil {
			return Quantity{}, fmt.Errorf("quantity: parsing inode count %q: %w", numeric, err)
		}
		return Quantity{Value: value, Unit: Inodes}, nil
	}

	value, err := humanize.ParseBytes(trimmed)
	if err != nil {
		return Quantity{}, fmt.Errorf("quantity: parsing byte size %q: %w", s, err)
	}
	return Quantity{Value: value, Unit: Bytes}, nil
}

// parseCount parses a plain decimal/SI count (e.g. "12", "12K", "1.5M")
// with no byte connotation, reusing go-humanize's SI-suffix handling.
func parseCount(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty count")
	}
	// Pure integers skip the SI-suffix machinery entirely.
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	return humanize.ParseBytes(s)
}
