package ggraph

import (
	"errors"
	"fmt"

	"github.com/nixcommunity/nix-gc/executor"
	"github.com/nixcommunity/nix-gc/storepath"
)

// RemovedNode is the result of removing a single node, carrying enough
// information for the orchestration layer to log and delete it without
// reaching back into the graph's internals.
type RemovedNode struct {
	Path             storepath.StorePath
	LimitMeasurement uint64
	NarSize          uint64
	Inodes           uint64
}

// removeHeapRoot implements §4.8's remove_heap_root.
func (g *Graph) removeHeapRoot() (RemovedNode, error) {
	if g.heap.Len() == 0 {
		return RemovedNode{}, ErrHeapEmpty
	}

	entry := popEntry(&g.heap)
	n := g.nodes[entry.idx]

	neighbours := make([]int, 0, len(n.out))
	seen := map[int]bool{}
	for _, e := range n.out {
		if !seen[e.to] {
			seen[e.to] = true
			neighbours = append(neighbours, e.to)
		}
	}

	n.removed = true
	delete(g.index, n.path)
	for _, e := range n.out {
		g.nodes[e.to].inDegree--
	}

	if g.flags.InheritAtime {
		atime, err := n.effectiveMaxAtime(g.statFn(n), g.flags.InheritAtime)
		if err != nil {
			return RemovedNode{}, err
		}
		for _, ni := range neighbours {
			ref := g.nodes[ni]
			if atime > ref.inheritedMaxAtime {
				ref.inheritedMaxAtime = atime
			}
		}
	}

	var newRoots []int
	for _, ni := range neighbours {
		if g.nodes[ni].inDegree == 0 && !g.nodes[ni].removed {
			newRoots = append(newRoots, ni)
		}
	}

	results, err := executor.Map(g.exec, newRoots, func(idx int) (scoredCandidate, error) {
		return g.scoreCandidate(idx)
	})
	if err != nil {
		return RemovedNode{}, err
	}
	for _, r := range results {
		if r.allow {
			pushEntry(&g.heap, heapEntry{score: r.score, idx: r.idx})
		}
	}

	narSize, err := n.size(g.statFn(n))
	if err != nil {
		return RemovedNode{}, err
	}
	inodes, err := n.inodes(g.statFn(n))
	if err != nil {
		return RemovedNode{}, err
	}
	limitMeasurement, err := n.limitMeasurement(g.statFn(n), g.unit)
	if err != nil {
		return RemovedNode{}, err
	}

	return RemovedNode{
		Path:             n.path,
		LimitMeasurement: limitMeasurement,
		NarSize:          narSize,
		Inodes:           inodes,
	}, nil
}

// correctHeapRootForLimitExcess implements §4.8's
// correct_heap_root_for_limit_excess.
func (g *Graph) correctHeapRootForLimitExcess(limit, limitRemoved uint64) error {
	if g.heap.Len() == 0 {
		return ErrHeapEmpty
	}
	if !g.weights.ExceedingLimit.enabled {
		return nil
	}

	remaining := int64(limit) - int64(limitRemoved)
	bound := g.heap.Len() + 1
	for i := 0; i < bound; i++ {
		root := g.heap[0]
		n := g.nodes[root.idx]
		m, err := n.limitMeasurement(g.statFn(n), g.unit)
		if err != nil {
			return err
		}
		if int64(m) <= remaining {
			return nil
		}

		// Recompute the node's base score fresh rather than building
		// on root.score, which may already carry a correction from an
		// earlier iteration (or an earlier call, for an entry that
		// never left the heap) — the increment must always be applied
		// to the same uncorrected baseline, matching a node's score
		// property being read fresh rather than accumulated.
		base, err := g.score(root.idx)
		if err != nil {
			return err
		}
		corrected := base + float64(int64(m)-remaining)*g.weights.ExceedingLimit.value/float64(limit)
		if corrected == root.score {
			return nil
		}

		g.log.Debugf("correcting score of %s from %v to %v", n.path, root.score, corrected)
		replaceRoot(&g.heap, heapEntry{score: corrected, idx: root.idx})
	}
	return fmt.Errorf("%w", ErrOvershootCorrectionExhausted)
}

// RemoveToLimit implements §4.8's remove_to_limit: accumulate removed
// nodes until limitRemoved >= limit, stopping early (without error) if
// the heap empties first.
func (g *Graph) RemoveToLimit(limit uint64) ([]RemovedNode, error) {
	var removed []RemovedNode
	var limitRemoved uint64

	for limitRemoved < limit {
		if g.weights.ExceedingLimit.enabled {
			if err := g.correctHeapRootForLimitExcess(limit, limitRemoved); err != nil {
				if errors.Is(err, ErrHeapEmpty) {
					break
				}
				return removed, err
			}
		}

		rn, err := g.removeHeapRoot()
		if err != nil {
			if errors.Is(err, ErrHeapEmpty) {
				g.log.Warn("ran out of zero-reference paths to remove")
				if remaining := g.NumNodes(); remaining > 0 {
					g.log.Warnf("%d remaining paths may have reference loops - use regular nix gc commands to remove these", remaining)
					if cycle := g.findCycle(); cycle != nil {
						g.log.Debugf("first encountered cycle: %v", cycle)
					}
				}
				break
			}
			return removed, err
		}

		limitRemoved += rn.LimitMeasurement
		removed = append(removed, rn)
	}

	return removed, nil
}

// findCycle runs a DFS over the remaining (non-removed) nodes looking
// for a cycle, for diagnostic purposes only (§4.8, S6). Returns nil if
// the remaining graph is acyclic.
func (g *Graph) findCycle() []storepath.StorePath {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make([]int, len(g.nodes))
	var stack []int
	var cyclePath []storepath.StorePath

	var visit func(idx int) bool
	visit = func(idx int) bool {
		color[idx] = grey
		stack = append(stack, idx)
		for _, e := range g.nodes[idx].out {
			if g.nodes[e.to].removed {
				continue
			}
			switch color[e.to] {
			case white:
				if visit(e.to) {
					return true
				}
			case grey:
				// Found a back edge; extract the cycle portion of
				// the DFS stack starting at e.to.
				start := 0
				for i, s := range stack {
					if s == e.to {
						start = i
						break
					}
				}
				for _, s := range stack[start:] {
					cyclePath = append(cyclePath, g.nodes[s].path)
				}
				cyclePath = append(cyclePath, g.nodes[e.to].path)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[idx] = black
		return false
	}

	for idx, n := range g.nodes {
		if n.removed || color[idx] != white {
			continue
		}
		if visit(idx) {
			return cyclePath
		}
	}
	return nil
}
