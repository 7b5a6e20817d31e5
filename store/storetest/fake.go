// Package storetest provides an in-memory store.Adapter for exercising
// the garbage graph and eviction engine without a real Nix store,
// mirroring the teacher's in-memory loopback filesystems used in its own
// tests.
package storetest

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/nixcommunity/nix-gc/storepath"
	"github.com/nixcommunity/nix-gc/store"
)

// Fake is an in-memory store.Adapter. Zero value is not usable; build
// one with New and populate it with AddValid / AddInvalid /
// SetDerivationOutputs.
type Fake struct {
	storeRoot      string
	keepDerivations bool
	keepOutputs     bool

	dead           []string // absolute paths, insertion order
	infos          map[storepath.StorePath]storepath.PathInfo
	invalid        map[storepath.StorePath]struct{}
	substitutable  map[storepath.StorePath]struct{}
	drvOutputs     map[storepath.StorePath][]storepath.StorePath

	Deleted []storepath.StorePath // records DeleteSpecific calls
}

// New returns an empty Fake rooted at storeRoot.
func New(storeRoot string) *Fake {
	return &Fake{
		storeRoot: storeRoot,
		infos:     map[storepath.StorePath]storepath.PathInfo{},
		invalid:   map[storepath.StorePath]struct{}{},
		substitutable: map[storepath.StorePath]struct{}{},
		drvOutputs:    map[storepath.StorePath][]storepath.StorePath{},
	}
}

// SetKeepDerivations sets the gc-keep-derivations config flag.
func (f *Fake) SetKeepDerivations(v bool) *Fake { f.keepDerivations = v; return f }

// SetKeepOutputs sets the gc-keep-outputs config flag.
func (f *Fake) SetKeepOutputs(v bool) *Fake { f.keepOutputs = v; return f }

// AddValid registers a dead path with a PathInfo, optionally referencing
// other (already- or later-registered) store paths.
func (f *Fake) AddValid(name string, narSize uint64, references ...string) storepath.StorePath {
	sp := storepath.MustParse(name)
	refs := map[storepath.StorePath]struct{}{}
	for _, r := range references {
		refs[storepath.MustParse(r)] = struct{}{}
	}
	f.infos[sp] = storepath.PathInfo{Path: sp, NarSize: narSize, References: refs}
	f.dead = append(f.dead, path.Join(f.storeRoot, name))
	return sp
}

// AddInvalid registers a dead path that is parseable but has no
// PathInfo.
func (f *Fake) AddInvalid(name string) storepath.StorePath {
	sp := storepath.MustParse(name)
	f.invalid[sp] = struct{}{}
	f.dead = append(f.dead, path.Join(f.storeRoot, name))
	return sp
}

// AddVeryInvalid registers a dead-set entry whose name cannot be parsed
// as a store path at all.
func (f *Fake) AddVeryInvalid(rawName string) {
	f.dead = append(f.dead, path.Join(f.storeRoot, rawName))
}

// MarkSubstitutable marks sp as substitutable from a configured binary
// cache.
func (f *Fake) MarkSubstitutable(sp storepath.StorePath) {
	f.substitutable[sp] = struct{}{}
}

// SetDerivationOutputs registers the output set for a derivation path,
// used when answering QueryDerivationOutputs.
func (f *Fake) SetDerivationOutputs(drv storepath.StorePath, outputs ...storepath.StorePath) {
	f.drvOutputs[drv] = outputs
}

func (f *Fake) NixStorePath() string      { return f.storeRoot }
func (f *Fake) GCKeepDerivations() bool   { return f.keepDerivations }
func (f *Fake) GCKeepOutputs() bool       { return f.keepOutputs }

func (f *Fake) CollectDead(ctx context.Context) ([]string, error) {
	out := make([]string, len(f.dead))
	copy(out, f.dead)
	return out, nil
}

func (f *Fake) DeleteSpecific(ctx context.Context, paths []storepath.StorePath) (uint64, error) {
	var freed uint64
	for _, p := range paths {
		f.Deleted = append(f.Deleted, p)
		if info, ok := f.infos[p]; ok {
			freed += info.NarSize
		}
	}
	return freed, nil
}

// TopoSortPaths performs a real topological sort (referrers first) over
// the registered reference graph restricted to paths, via repeated
// removal of paths with no remaining outgoing reference into the set
// (which yields referees first) followed by reversing that order, so
// tests can rely on genuine ordering semantics rather than a canned
// sequence.
func (f *Fake) TopoSortPaths(ctx context.Context, paths []storepath.StorePath) ([]storepath.StorePath, error) {
	set := map[storepath.StorePath]struct{}{}
	for _, p := range paths {
		set[p] = struct{}{}
	}

	outRemaining := map[storepath.StorePath]int{}
	for p := range set {
		info, ok := f.infos[p]
		if !ok {
			continue
		}
		for ref := range info.References {
			if _, ok := set[ref]; ok {
				outRemaining[p]++
			}
		}
	}

	var order []storepath.StorePath
	done := map[storepath.StorePath]bool{}
	for len(order) < len(set) {
		progressed := false
		// Stable order among ties: iterate the original input slice.
		for _, p := range paths {
			if done[p] || outRemaining[p] != 0 {
				continue
			}
			order = append(order, p)
			done[p] = true
			progressed = true
			for q := range set {
				if done[q] {
					continue
				}
				if qi, ok := f.infos[q]; ok {
					if _, refs := qi.References[p]; refs {
						outRemaining[q]--
					}
				}
			}
		}
		if !progressed {
			// Cycle among references (shouldn't happen for
			// REFERENCE-only graphs); append whatever remains in
			// input order.
			for _, p := range paths {
				if !done[p] {
					order = append(order, p)
					done[p] = true
				}
			}
			break
		}
	}

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

func (f *Fake) QueryPathInfo(ctx context.Context, path storepath.StorePath) (storepath.PathInfo, error) {
	if info, ok := f.infos[path]; ok {
		return info, nil
	}
	return storepath.PathInfo{}, fmt.Errorf("%w: %s", store.ErrPathInfoMissing, path)
}

func (f *Fake) QuerySubstitutablePaths(ctx context.Context, paths []storepath.StorePath) (map[storepath.StorePath]struct{}, error) {
	out := map[storepath.StorePath]struct{}{}
	for _, p := range paths {
		if _, ok := f.substitutable[p]; ok {
			out[p] = struct{}{}
		}
	}
	return out, nil
}

func (f *Fake) QueryDerivationOutputs(ctx context.Context, drv storepath.StorePath) ([]storepath.StorePath, error) {
	outs, ok := f.drvOutputs[drv]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrMissingRealisation, drv)
	}
	sorted := make([]storepath.StorePath, len(outs))
	copy(sorted, outs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	return sorted, nil
}

var _ store.Adapter = (*Fake)(nil)
