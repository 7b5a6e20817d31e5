// Package ggraph implements the garbage graph: a dependency DAG of
// dead store paths augmented with lazily-computed filesystem metadata,
// and the priority-queue-driven eviction engine built on top of it.
package ggraph

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/sirupsen/logrus"

	"github.com/nixcommunity/nix-gc/executor"
	"github.com/nixcommunity/nix-gc/fsstat"
	"github.com/nixcommunity/nix-gc/store"
	"github.com/nixcommunity/nix-gc/storepath"
)

// Graph is the augmented dependency graph of dead store paths plus the
// min-heap of currently removable (pseudo-root) candidates. Build it
// once per GC run with Build; drive eviction with RemoveToLimit.
type Graph struct {
	ctx     context.Context
	store   store.Adapter
	exec    *executor.Executor
	log     *logrus.Logger
	unit    LimitUnit
	weights Weights
	flags   Flags

	nodes []*node
	index map[storepath.StorePath]int
	heap  nodeHeap

	// VeryInvalidPaths holds dead-set entries whose name could not be
	// parsed as a StorePath at all (§3).
	VeryInvalidPaths []string
}

// Options configures Build.
type Options struct {
	Unit    LimitUnit
	Weights Weights
	Flags   Flags
	Exec    *executor.Executor
	Log     *logrus.Logger
}

func nopLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return l
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Build constructs the graph from the store's current dead-set,
// following §4.7 steps 1-9.
func Build(ctx context.Context, adapter store.Adapter, opts Options) (*Graph, error) {
	if err := opts.Flags.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		ctx:     ctx,
		store:   adapter,
		exec:    opts.Exec,
		log:     opts.Log,
		unit:    opts.Unit,
		weights: opts.Weights,
		flags:   opts.Flags,
		index:   map[storepath.StorePath]int{},
	}
	if g.exec == nil {
		g.exec = executor.Inline()
	}
	if g.log == nil {
		g.log = nopLogger()
	}

	if adapter.GCKeepDerivations() && adapter.GCKeepOutputs() {
		g.log.Warn("both keep-derivations and keep-outputs are enabled; this will likely not work very well due to reference loops")
	}

	g.log.Info("querying dead paths")
	dead, err := adapter.CollectDead(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting dead paths: %w", err)
	}

	parsed := make([]storepath.StorePath, 0, len(dead))
	for _, abs := range dead {
		sp, err := storepath.Parse(path.Base(abs))
		if err != nil {
			g.log.Warnf("ignoring dead-set entry with unparseable store path %q: %v", abs, err)
			g.VeryInvalidPaths = append(g.VeryInvalidPaths, abs)
			continue
		}
		parsed = append(parsed, sp)
	}

	g.log.Info("topologically sorting paths")
	sorted, err := adapter.TopoSortPaths(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("topologically sorting dead set: %w", err)
	}

	g.log.Info("building graph")
	type pendingRefs struct {
		idx  int
		refs map[storepath.StorePath]struct{}
	}
	var pending []pendingRefs

	for i := len(sorted) - 1; i >= 0; i-- {
		sp := sorted[i]
		info, err := adapter.QueryPathInfo(ctx, sp)
		if err != nil && !errors.Is(err, store.ErrPathInfoMissing) {
			return nil, fmt.Errorf("querying path info for %s: %w", sp, err)
		}
		var n *node
		if err != nil {
			n = &node{path: sp, valid: false}
		} else {
			n = &node{path: sp, valid: true, narSize: info.NarSize}
		}
		idx := len(g.nodes)
		g.nodes = append(g.nodes, n)
		g.index[sp] = idx
		if err == nil {
			pending = append(pending, pendingRefs{idx: idx, refs: info.References})
		}
	}

	for _, p := range pending {
		for ref := range p.refs {
			refIdx, ok := g.index[ref]
			if !ok {
				continue // references a path outside the dead set
			}
			if refIdx == p.idx {
				g.log.Debugf("omitting self-referencing edge from path %s", g.nodes[p.idx].path)
				continue
			}
			g.addEdge(p.idx, refIdx, edgeReference)
		}
	}

	if adapter.GCKeepDerivations() || adapter.GCKeepOutputs() {
		g.log.Info("populating output-drv or drv-output edges")
		for sp, idx := range g.index {
			n := g.nodes[idx]
			if !n.valid || !n.isDrv() {
				continue
			}
			outputs, err := adapter.QueryDerivationOutputs(ctx, sp)
			if errors.Is(err, store.ErrMissingRealisation) {
				continue // MissingRealisation tolerated (§7)
			}
			if err != nil {
				return nil, fmt.Errorf("querying outputs of %s: %w", sp, err)
			}
			for _, out := range outputs {
				outIdx, ok := g.index[out]
				if !ok {
					continue
				}
				if adapter.GCKeepDerivations() {
					g.addEdge(outIdx, idx, edgeOutputDrv)
				}
				if adapter.GCKeepOutputs() {
					g.addEdge(idx, outIdx, edgeDrvOutput)
				}
			}
		}
	}

	g.log.Debug("gathering nodes for heap")
	var pseudoRoots []int
	for idx, n := range g.nodes {
		if n.inDegree == 0 {
			pseudoRoots = append(pseudoRoots, idx)
		}
	}

	if g.weights.Substitutable.enabled {
		g.log.Info("bulk querying path substitutability")
		var validRoots []storepath.StorePath
		rootByPath := map[storepath.StorePath]int{}
		for _, idx := range pseudoRoots {
			n := g.nodes[idx]
			if n.valid {
				validRoots = append(validRoots, n.path)
				rootByPath[n.path] = idx
			}
		}
		substSet, err := adapter.QuerySubstitutablePaths(ctx, validRoots)
		if err != nil {
			return nil, fmt.Errorf("querying substitutable paths: %w", err)
		}
		for sp, idx := range rootByPath {
			_, ok := substSet[sp]
			g.nodes[idx].subst = ok
			g.nodes[idx].substKnown = true
		}
	}

	g.log.Info("constructing heap")
	results, err := executor.Map(g.exec, pseudoRoots, func(idx int) (scoredCandidate, error) {
		return g.scoreCandidate(idx)
	})
	if err != nil {
		return nil, fmt.Errorf("scoring pseudo-roots: %w", err)
	}
	for _, r := range results {
		if r.allow {
			pushEntry(&g.heap, heapEntry{score: r.score, idx: r.idx})
		}
	}

	return g, nil
}

func (g *Graph) addEdge(from, to int, label edgeType) {
	g.nodes[from].out = append(g.nodes[from].out, edge{to: to, label: label})
	g.nodes[to].inDegree++
}

func (g *Graph) statFn(n *node) func() (fsstat.Aggregate, error) {
	return func() (fsstat.Aggregate, error) {
		return fsstat.Stat(path.Join(g.store.NixStorePath(), n.path.String()))
	}
}

func (g *Graph) substitutable(n *node) (bool, error) {
	if n.substKnown {
		return n.subst, nil
	}
	set, err := g.store.QuerySubstitutablePaths(g.ctx, []storepath.StorePath{n.path})
	if err != nil {
		return false, err
	}
	_, ok := set[n.path]
	n.subst = ok
	n.substKnown = true
	return ok, nil
}

// inodesScore and sizeScore implement the unit-dependent normalization
// of §4.5's penalty table.
func (g *Graph) inodesScore(n *node) (float64, error) {
	inodes, err := n.inodes(g.statFn(n))
	if err != nil {
		return 0, err
	}
	if g.unit == LimitInodes {
		return float64(inodes), nil
	}
	size, err := n.size(g.statFn(n))
	if err != nil {
		return 0, err
	}
	return float64(inodes) / float64(size+1), nil
}

func (g *Graph) sizeScore(n *node) (float64, error) {
	size, err := n.size(g.statFn(n))
	if err != nil {
		return 0, err
	}
	if g.unit == LimitBytes {
		return float64(size), nil
	}
	inodes, err := n.inodes(g.statFn(n))
	if err != nil {
		return 0, err
	}
	return float64(size) / float64(inodes+1), nil
}

// score computes a node's current score per §4.5. Scores are computed
// at the moment a node becomes a candidate and snapshotted into the
// heap. The only later recomputation is the overshoot correction in
// correctHeapRootForLimitExcess, which recomputes the root's score and
// replaces its heap key with the corrected value.
func (g *Graph) score(idx int) (float64, error) {
	n := g.nodes[idx]
	atime, err := n.effectiveMaxAtime(g.statFn(n), g.flags.InheritAtime)
	if err != nil {
		return 0, err
	}
	s := float64(atime)

	if g.weights.Invalid.enabled && !n.valid {
		s -= g.weights.Invalid.value
	}
	if g.weights.Drv.enabled && n.isDrv() {
		s -= g.weights.Drv.value
	}
	if g.weights.Substitutable.enabled {
		subst, err := g.substitutable(n)
		if err != nil {
			return 0, err
		}
		if subst {
			s -= g.weights.Substitutable.value
		}
	}
	if g.weights.Inodes.enabled {
		is, err := g.inodesScore(n)
		if err != nil {
			return 0, err
		}
		s -= g.weights.Inodes.value * is
	}
	if g.weights.Size.enabled {
		ss, err := g.sizeScore(n)
		if err != nil {
			return 0, err
		}
		s -= g.weights.Size.value * ss
	}
	return s, nil
}

// scoredCandidate is the result of evaluating a node that just became
// a pseudo-root: either it passes collection filtering and carries a
// fresh score, or it doesn't and is skipped.
type scoredCandidate struct {
	idx   int
	score float64
	allow bool
}

func (g *Graph) scoreCandidate(idx int) (scoredCandidate, error) {
	n := g.nodes[idx]
	allow, err := g.collectionAllowed(n, func() (bool, error) { return g.substitutable(n) })
	if err != nil {
		return scoredCandidate{}, err
	}
	if !allow {
		return scoredCandidate{idx: idx}, nil
	}
	s, err := g.score(idx)
	if err != nil {
		return scoredCandidate{}, err
	}
	return scoredCandidate{idx: idx, score: s, allow: true}, nil
}

// NumNodes returns the count of nodes still present in the graph
// (neither removed nor tombstoned out).
func (g *Graph) NumNodes() int {
	n := 0
	for _, nd := range g.nodes {
		if !nd.removed {
			n++
		}
	}
	return n
}
