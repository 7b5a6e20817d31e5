// Package gc wires configured weights and flags into a ggraph.Graph,
// drives selection to a budget, and hands the chosen paths off to the
// store for deletion (or prints them under dry-run). This is the
// orchestration layer of §4.9.
package gc

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/nixcommunity/nix-gc/executor"
	"github.com/nixcommunity/nix-gc/ggraph"
	"github.com/nixcommunity/nix-gc/quantity"
	"github.com/nixcommunity/nix-gc/store"
	"github.com/nixcommunity/nix-gc/storepath"
)

// ErrNegativeThreads rejects a negative --threads value at
// configuration time, per §7's ConfigError class.
var ErrNegativeThreads = errors.New("gc: threads must be >= 0")

// FriendlyWeights carries the six user-facing penalty strengths
// (1..10, 0 = disabled) before translation to internal floats (§4.5).
type FriendlyWeights struct {
	Invalid        int
	Drv            int
	Substitutable  int
	Inodes         int
	Size           int
	ExceedingLimit int
}

// Config is the fully-parsed configuration for one GC run, the
// orchestration-layer equivalent of the CLI flags in §6.
type Config struct {
	Limit   quantity.Quantity
	Weights FriendlyWeights
	Flags   ggraph.Flags
	Threads int
	DryRun  bool
	Log     *logrus.Logger
}

func (c Config) resolveWeights() ggraph.Weights {
	w := ggraph.Weights{}
	if v, ok := unfriendlyWeight(c.Weights.Invalid, defaultInvalidWeight); ok {
		w.Invalid = ggraph.On(v)
	}
	if v, ok := unfriendlyWeight(c.Weights.Drv, defaultDrvWeight); ok {
		w.Drv = ggraph.On(v)
	}
	if v, ok := unfriendlyWeight(c.Weights.Substitutable, defaultSubstWeight); ok {
		w.Substitutable = ggraph.On(v)
	}
	if v, ok := unfriendlyWeight(c.Weights.Inodes, defaultInodesWeight); ok {
		w.Inodes = ggraph.On(v)
	}
	if v, ok := unfriendlyWeight(c.Weights.Size, defaultSizeWeight); ok {
		w.Size = ggraph.On(v)
	}
	if v, ok := unfriendlyWeight(c.Weights.ExceedingLimit, defaultExceedingLimit); ok {
		w.ExceedingLimit = ggraph.On(v)
	}
	return w
}

// Result summarizes a completed run for callers that want more than
// log output (e.g. tests).
type Result struct {
	Selected         []ggraph.RemovedNode
	BytesFreed       uint64
	VeryInvalidPaths []string
}

// Run executes one GC pass against adapter: build the graph, select a
// removal set to cover cfg.Limit, and either print the selection
// (dry-run) or delete it via the store adapter.
func Run(ctx context.Context, adapter store.Adapter, cfg Config) (Result, error) {
	if cfg.Threads < 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrNegativeThreads, cfg.Threads)
	}
	if err := cfg.Flags.Validate(); err != nil {
		return Result{}, err
	}

	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}

	warnIfNoatime(adapter.NixStorePath(), log)

	var exec *executor.Executor
	if cfg.Threads == 0 {
		exec = executor.Inline()
	} else {
		exec = executor.Pool(cfg.Threads)
	}

	unit := ggraph.LimitBytes
	if cfg.Limit.Unit == quantity.Inodes {
		unit = ggraph.LimitInodes
	}

	graph, err := ggraph.Build(ctx, adapter, ggraph.Options{
		Unit:    unit,
		Weights: cfg.resolveWeights(),
		Flags:   cfg.Flags,
		Exec:    exec,
		Log:     log,
	})
	if err != nil {
		return Result{}, fmt.Errorf("building garbage graph: %w", err)
	}
	if n := len(graph.VeryInvalidPaths); n > 0 {
		log.Warnf("%d dead-set entries could not be parsed as store paths and were skipped", n)
	}

	log.Info("selecting store paths for removal")
	log.Debugf("using limit of %s", cfg.Limit)
	selected, err := graph.RemoveToLimit(cfg.Limit.Value)
	if err != nil {
		return Result{}, fmt.Errorf("selecting paths to remove: %w", err)
	}

	var totalNarSize, totalInodes uint64
	paths := make([]storepath.StorePath, 0, len(selected))
	for _, rn := range selected {
		totalNarSize += rn.NarSize
		totalInodes += rn.Inodes
		paths = append(paths, rn.Path)
	}

	maybeNot := ""
	if cfg.DryRun {
		maybeNot = "(not) "
	}
	log.WithFields(logrus.Fields{
		"count":    len(selected),
		"nar_size": humanize.IBytes(totalNarSize),
		"inodes":   totalInodes,
	}).Infof("%srequesting deletion of %d store paths, total nar_size %s, %d inodes",
		maybeNot, len(selected), humanize.IBytes(totalNarSize), totalInodes)

	if cfg.DryRun {
		for _, p := range paths {
			fmt.Println(path.Join(adapter.NixStorePath(), p.String()))
		}
		return Result{Selected: selected, VeryInvalidPaths: graph.VeryInvalidPaths}, nil
	}

	bytesFreed, err := adapter.DeleteSpecific(ctx, paths)
	if err != nil {
		return Result{Selected: selected, VeryInvalidPaths: graph.VeryInvalidPaths}, fmt.Errorf("deleting selected store paths: %w", err)
	}
	log.Infof("freed %s", humanize.IBytes(bytesFreed))

	return Result{Selected: selected, BytesFreed: bytesFreed, VeryInvalidPaths: graph.VeryInvalidPaths}, nil
}
