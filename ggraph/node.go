package ggraph

import (
	"strings"

	"github.com/nixcommunity/nix-gc/fsstat"
	"github.com/nixcommunity/nix-gc/storepath"
)

// LimitUnit selects which dimension a removal budget is measured
// against, and which of a node's two derived scores (inodes vs. size)
// is treated as "the thing we divide by" to normalize the other.
type LimitUnit int

const (
	// LimitBytes measures a removal budget against nar_size / on-disk
	// byte size.
	LimitBytes LimitUnit = iota
	// LimitInodes measures a removal budget against inode count.
	LimitInodes
)

// node is one record per dead store path in the graph. Lazy fields are
// computed at most once; the safety contract (one goroutine per node
// during parallel scoring) means no field here needs its own mutex.
type node struct {
	path    storepath.StorePath
	narSize uint64
	valid   bool // false iff the store had no usable PathInfo

	fsStatDone bool
	fsStat     fsstat.Aggregate

	substKnown bool
	subst      bool

	inheritedMaxAtime int64

	// out holds this node's outgoing edges (referrer -> referee,
	// output -> drv, drv -> output), one entry per edge; the same target
	// can appear more than once under different labels.
	out []edge
	// inDegree counts remaining incoming edges; 0 means the node is
	// currently a pseudo-root.
	inDegree int
	removed  bool
}

type edgeType int

const (
	edgeReference edgeType = iota
	edgeOutputDrv
	edgeDrvOutput
)

type edge struct {
	to    int
	label edgeType
}

func (n *node) isDrv() bool {
	return strings.HasSuffix(n.path.String(), ".drv")
}

// fsAggregate lazily stats the node's on-disk path, via statFn (normally
// fsstat.Stat against the absolute store path), caching the result.
func (n *node) fsAggregate(statFn func() (fsstat.Aggregate, error)) (fsstat.Aggregate, error) {
	if n.fsStatDone {
		return n.fsStat, nil
	}
	agg, err := statFn()
	if err != nil {
		return fsstat.Aggregate{}, err
	}
	n.fsStat = agg
	n.fsStatDone = true
	return agg, nil
}

// size is nar_size for valid nodes, on-disk size for invalid ones.
func (n *node) size(statFn func() (fsstat.Aggregate, error)) (uint64, error) {
	if n.valid {
		return n.narSize, nil
	}
	agg, err := n.fsAggregate(statFn)
	if err != nil {
		return 0, err
	}
	return agg.Size, nil
}

func (n *node) inodes(statFn func() (fsstat.Aggregate, error)) (uint64, error) {
	agg, err := n.fsAggregate(statFn)
	if err != nil {
		return 0, err
	}
	return agg.Inodes, nil
}

// effectiveMaxAtime combines the node's own filesystem atime with any
// atime inherited from referrers removed before it, per §4.7/§4.8.
func (n *node) effectiveMaxAtime(statFn func() (fsstat.Aggregate, error), inherit bool) (int64, error) {
	agg, err := n.fsAggregate(statFn)
	if err != nil {
		return 0, err
	}
	if !inherit {
		return agg.MaxAtime, nil
	}
	if n.inheritedMaxAtime > agg.MaxAtime {
		return n.inheritedMaxAtime, nil
	}
	return agg.MaxAtime, nil
}

// limitMeasurement is the quantity a removal budget is compared against.
func (n *node) limitMeasurement(statFn func() (fsstat.Aggregate, error), unit LimitUnit) (uint64, error) {
	if unit == LimitInodes {
		return n.inodes(statFn)
	}
	return n.size(statFn)
}
