// Command nix-gc is a heuristic garbage collector for a Nix-like
// content-addressed store: given a reclamation budget, it selects
// which dead store paths to delete so as to preserve paths likely to
// be reused soon while preferring to evict paths that are cheap to
// recreate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nixcommunity/nix-gc/gc"
	"github.com/nixcommunity/nix-gc/ggraph"
	"github.com/nixcommunity/nix-gc/quantity"
	"github.com/nixcommunity/nix-gc/store"
)

const version = "0.1.0"

// penaltyFlag registers the three-way --penalize-X / --no-penalize-X /
// --penalize-X-weight N flag family described in §6, resolving to a
// friendly weight 0..10 after flag.Parse.
type penaltyFlag struct {
	name       string
	on, off    *bool
	weight     *int
	defaultOn  bool
}

func registerPenalty(name string, defaultOn bool) *penaltyFlag {
	p := &penaltyFlag{name: name, defaultOn: defaultOn}
	p.on = flag.Bool("penalize-"+name, false, fmt.Sprintf("penalize %s at friendly strength 5", name))
	p.off = flag.Bool("no-penalize-"+name, false, fmt.Sprintf("disable penalizing %s", name))
	p.weight = flag.Int("penalize-"+name+"-weight", 0, fmt.Sprintf("penalize %s at an explicit friendly strength 1..10", name))
	return p
}

func (p *penaltyFlag) resolve() int {
	if *p.weight != 0 {
		return *p.weight
	}
	if *p.off {
		return 0
	}
	if *p.on {
		return 5
	}
	if p.defaultOn {
		return 5
	}
	return 0
}

// classFlag registers the --no-X / --only-X pair for a collection
// class (§4.6).
type classFlag struct {
	no, only *bool
}

func registerClass(name string) *classFlag {
	return &classFlag{
		no:   flag.Bool("no-"+name, false, "exclude "+name+" paths from collection"),
		only: flag.Bool("only-"+name, false, "collect only "+name+" paths"),
	}
}

func (c *classFlag) resolve() ggraph.Inclusion {
	switch {
	case *c.only:
		return ggraph.Only
	case *c.no:
		return ggraph.Exclude
	default:
		return ggraph.Allow
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.CommandLine
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: nix-gc [flags] <limit>\n\n")
		fmt.Fprintf(os.Stderr, "limit is a Quantity: a byte size (100MiB, 2G) or an inode count (12KI).\n\n")
		fs.PrintDefaults()
	}

	invalidPenalty := registerPenalty("invalid", true)
	drvPenalty := registerPenalty("drvs", false)
	substPenalty := registerPenalty("substitutable", false)
	inodesPenalty := registerPenalty("inodes", false)
	sizePenalty := registerPenalty("size", false)
	exceedingPenalty := registerPenalty("exceeding-limit", false)

	invalidClass := registerClass("invalid")
	drvClass := registerClass("drvs")
	substClass := registerClass("substitutable")

	inheritAtime := flag.Bool("inherit-atime", false, "propagate a removed referrer's atime to its referees")
	noInheritAtime := flag.Bool("no-inherit-atime", false, "disable atime inheritance (default)")
	dryRun := flag.Bool("dry-run", false, "print the selection instead of deleting it")
	noDryRun := flag.Bool("no-dry-run", false, "delete the selection (default)")
	threads := flag.Int("threads", 0, "number of worker goroutines for parallel scoring; 0 runs inline")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	quiet := flag.Bool("quiet", false, "only log warnings and errors")
	showVersion := flag.Bool("version", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Println("nix-gc " + version)
		return 0
	}

	log := logrus.New()
	switch {
	case *verbose:
		log.SetLevel(logrus.DebugLevel)
	case *quiet:
		log.SetLevel(logrus.WarnLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	limit, err := quantity.Parse(fs.Arg(0))
	if err != nil {
		log.WithError(err).Error("invalid limit")
		return 2
	}

	flags := ggraph.Flags{
		Invalid:       invalidClass.resolve(),
		Drv:           drvClass.resolve(),
		Substitutable: substClass.resolve(),
		InheritAtime:  *inheritAtime && !*noInheritAtime,
	}

	cfg := gc.Config{
		Limit: limit,
		Weights: gc.FriendlyWeights{
			Invalid:        invalidPenalty.resolve(),
			Drv:            drvPenalty.resolve(),
			Substitutable:  substPenalty.resolve(),
			Inodes:         inodesPenalty.resolve(),
			Size:           sizePenalty.resolve(),
			ExceedingLimit: exceedingPenalty.resolve(),
		},
		Flags:   flags,
		Threads: *threads,
		DryRun:  *dryRun && !*noDryRun,
		Log:     log,
	}

	adapter := store.NewCLIAdapter()
	if _, err := gc.Run(context.Background(), adapter, cfg); err != nil {
		log.WithError(err).Error("nix-gc failed")
		return 1
	}
	return 0
}
