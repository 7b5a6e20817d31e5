// Package storepath models the identifiers and per-path metadata the
// garbage graph operates on: store paths (HASH-name[-version][.drv]) and
// the PathInfo records the store reports for valid ones.
package storepath

import (
	"fmt"
	"strings"

	"github.com/nix-community/go-nix/pkg/storepath"
)

// StorePath is the final path component of an entry in the store, e.g.
// "hash-name-version" or "hash-name.drv". Equality and hashing (as a map
// key) are by string content, so StorePath is safe to use directly as a
// map key.
type StorePath struct {
	name string
}

// Parse parses the final component of an absolute store path into a
// StorePath. It returns an error if name cannot be parsed as a store
// path at all (a "very invalid" path in the garbage-graph builder's
// terms).
func Parse(name string) (StorePath, error) {
	if _, err := storepath.FromString(name); err != nil {
		return StorePath{}, fmt.Errorf("storepath: parsing %q: %w", name, err)
	}
	return StorePath{name: name}, nil
}

// MustParse is like Parse but panics on error; useful in tests.
func MustParse(name string) StorePath {
	sp, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return sp
}

// String returns the store path's final path component.
func (p StorePath) String() string {
	return p.name
}

// IsZero reports whether p is the zero value.
func (p StorePath) IsZero() bool {
	return p.name == ""
}

// IsDerivation reports whether p names a build recipe (".drv") rather
// than an output.
func (p StorePath) IsDerivation() bool {
	return strings.HasSuffix(p.name, ".drv")
}

// PathInfo is what the store reports for a valid store path: its
// canonical serialized ("NAR") size and the set of store paths it
// directly references.
type PathInfo struct {
	Path       StorePath
	NarSize    uint64
	References map[StorePath]struct{}
}
