// Package store narrows the native store bindings (list-dead-paths,
// query-path-info, topological-sort, query-substitutable-paths,
// query-derivation-outputs, delete-specific-paths, and a handful of
// configuration flags) down to the façade the garbage graph actually
// consumes. The façade's internals — and whatever RPC or library the
// real implementation talks to — are a collaborator, not core logic.
package store

import (
	"context"
	"errors"

	"github.com/nixcommunity/nix-gc/storepath"
)

// ErrPathInfoMissing is returned by QueryPathInfo for a parseable store
// path that the store has no usable information for (an invalid path).
var ErrPathInfoMissing = errors.New("store: path info missing")

// ErrMissingRealisation is returned by QueryDerivationOutputs when the
// store cannot resolve one of a derivation's outputs. Callers treat it
// as "no outputs" rather than a fatal error.
var ErrMissingRealisation = errors.New("store: missing realisation")

// Adapter is the narrow façade over the store that the garbage graph
// and eviction engine depend on. A real implementation talks to the
// store's daemon or CLI; tests use an in-memory fake (see storetest.Fake).
type Adapter interface {
	// NixStorePath is the absolute filesystem root of the store, e.g.
	// "/nix/store".
	NixStorePath() string
	// GCKeepDerivations mirrors the store's keep-derivations setting.
	GCKeepDerivations() bool
	// GCKeepOutputs mirrors the store's keep-outputs setting.
	GCKeepOutputs() bool

	// CollectDead returns the absolute paths of every currently dead
	// (unreachable from any GC root) store path.
	CollectDead(ctx context.Context) ([]string, error)

	// DeleteSpecific deletes exactly the given store paths and reports
	// the total bytes freed. It is the only operation in this
	// interface that mutates the store.
	DeleteSpecific(ctx context.Context, paths []storepath.StorePath) (bytesFreed uint64, err error)

	// TopoSortPaths orders paths such that for every reference edge
	// a -> b within the set, a appears before b (referrers first).
	TopoSortPaths(ctx context.Context, paths []storepath.StorePath) ([]storepath.StorePath, error)

	// QueryPathInfo returns the PathInfo for path, or a wrapped
	// ErrPathInfoMissing if the path is invalid.
	QueryPathInfo(ctx context.Context, path storepath.StorePath) (storepath.PathInfo, error)

	// QuerySubstitutablePaths returns the subset of paths that a
	// configured binary cache could re-supply.
	QuerySubstitutablePaths(ctx context.Context, paths []storepath.StorePath) (map[storepath.StorePath]struct{}, error)

	// QueryDerivationOutputs returns the output store paths of drv. A
	// wrapped ErrMissingRealisation is tolerated by callers as "no
	// outputs".
	QueryDerivationOutputs(ctx context.Context, drv storepath.StorePath) ([]storepath.StorePath, error)
}
