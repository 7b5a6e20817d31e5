package store

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/nixcommunity/nix-gc/storepath"
)

// CLIAdapter implements Adapter by shelling out to the nix-store binary.
// It is the "real" store collaborator referenced throughout the spec;
// its contract to the rest of the package is exactly the Adapter
// interface, and its own internals (argument shapes, output parsing)
// are not part of the core's concern.
type CLIAdapter struct {
	// Bin is the nix-store executable to invoke. Defaults to
	// "nix-store" (resolved via PATH) if empty.
	Bin string

	once            sync.Once
	storePath       string
	keepDerivations bool
	keepOutputs     bool
	configErr       error
}

// NewCLIAdapter returns a CLIAdapter that shells out to the nix-store
// binary found on PATH.
func NewCLIAdapter() *CLIAdapter {
	return &CLIAdapter{Bin: "nix-store"}
}

func (c *CLIAdapter) bin() string {
	if c.Bin == "" {
		return "nix-store"
	}
	return c.Bin
}

func (c *CLIAdapter) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", c.bin(), strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (c *CLIAdapter) loadConfig(ctx context.Context) {
	c.once.Do(func() {
		out, err := c.run(ctx, "--query", "--option", "store")
		if err == nil {
			c.storePath = strings.TrimSpace(string(out))
		}
		if c.storePath == "" {
			c.storePath = "/nix/store"
		}

		for flag, dst := range map[string]*bool{
			"keep-derivations": &c.keepDerivations,
			"keep-outputs":     &c.keepOutputs,
		} {
			out, err := c.run(ctx, "--query", "--option", flag, "false")
			if err != nil {
				continue
			}
			*dst = strings.TrimSpace(string(out)) == "true"
		}
	})
}

func (c *CLIAdapter) NixStorePath() string {
	c.loadConfig(context.Background())
	return c.storePath
}

func (c *CLIAdapter) GCKeepDerivations() bool {
	c.loadConfig(context.Background())
	return c.keepDerivations
}

func (c *CLIAdapter) GCKeepOutputs() bool {
	c.loadConfig(context.Background())
	return c.keepOutputs
}

func scanLines(b []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func (c *CLIAdapter) CollectDead(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "--gc", "--print-dead")
	if err != nil {
		return nil, fmt.Errorf("collecting dead paths: %w", err)
	}
	return scanLines(out), nil
}

func (c *CLIAdapter) DeleteSpecific(ctx context.Context, paths []storepath.StorePath) (uint64, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	storeRoot := c.NixStorePath()
	var before uint64
	for _, p := range paths {
		if out, err := c.run(ctx, "--query", "--size", path.Join(storeRoot, p.String())); err == nil {
			if v, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 64); err == nil {
				before += v
			}
		}
	}

	args := []string{"--delete"}
	for _, p := range paths {
		args = append(args, path.Join(storeRoot, p.String()))
	}
	if _, err := c.run(ctx, args...); err != nil {
		return 0, fmt.Errorf("deleting %d store paths: %w", len(paths), err)
	}
	return before, nil
}

// TopoSortPaths orders paths referrers-first. nix-store has no direct
// "topologically sort this arbitrary set" query, so the adapter derives
// the order itself from each path's reference set via Kahn's algorithm
// (emitting referees first, then reversing the result) — an
// implementation detail of this collaborator, not the core.
func (c *CLIAdapter) TopoSortPaths(ctx context.Context, paths []storepath.StorePath) ([]storepath.StorePath, error) {
	refs := make(map[storepath.StorePath]map[storepath.StorePath]struct{}, len(paths))
	set := make(map[storepath.StorePath]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	for _, p := range paths {
		info, err := c.QueryPathInfo(ctx, p)
		if err != nil {
			refs[p] = nil
			continue
		}
		refs[p] = info.References
	}

	outRemaining := make(map[storepath.StorePath]int, len(paths))
	for _, p := range paths {
		for ref := range refs[p] {
			if _, ok := set[ref]; ok {
				outRemaining[p]++
			}
		}
	}

	var order []storepath.StorePath
	done := make(map[storepath.StorePath]bool, len(paths))
	for len(order) < len(paths) {
		progressed := false
		for _, p := range paths {
			if done[p] || outRemaining[p] != 0 {
				continue
			}
			order = append(order, p)
			done[p] = true
			progressed = true
			for _, q := range paths {
				if done[q] {
					continue
				}
				if _, refs := refs[q][p]; refs {
					outRemaining[q]--
				}
			}
		}
		if !progressed {
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

func (c *CLIAdapter) QueryPathInfo(ctx context.Context, sp storepath.StorePath) (storepath.PathInfo, error) {
	abs := path.Join(c.NixStorePath(), sp.String())

	sizeOut, err := c.run(ctx, "--query", "--size", abs)
	if err != nil {
		return storepath.PathInfo{}, fmt.Errorf("%w: %s: %v", ErrPathInfoMissing, sp, err)
	}
	size, _ := strconv.ParseUint(strings.TrimSpace(string(sizeOut)), 10, 64)

	refsOut, err := c.run(ctx, "--query", "--references", abs)
	if err != nil {
		return storepath.PathInfo{}, fmt.Errorf("%w: %s: %v", ErrPathInfoMissing, sp, err)
	}

	refs := map[storepath.StorePath]struct{}{}
	for _, line := range scanLines(refsOut) {
		refSp, err := storepath.Parse(path.Base(line))
		if err != nil {
			continue
		}
		refs[refSp] = struct{}{}
	}

	return storepath.PathInfo{Path: sp, NarSize: size, References: refs}, nil
}

func (c *CLIAdapter) QuerySubstitutablePaths(ctx context.Context, paths []storepath.StorePath) (map[storepath.StorePath]struct{}, error) {
	if len(paths) == 0 {
		return map[storepath.StorePath]struct{}{}, nil
	}

	args := []string{"--query", "--substitutable-paths"}
	storeRoot := c.NixStorePath()
	for _, p := range paths {
		args = append(args, path.Join(storeRoot, p.String()))
	}

	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("querying substitutable paths: %w", err)
	}

	result := map[storepath.StorePath]struct{}{}
	for _, line := range scanLines(out) {
		sp, err := storepath.Parse(path.Base(line))
		if err != nil {
			continue
		}
		result[sp] = struct{}{}
	}
	return result, nil
}

func (c *CLIAdapter) QueryDerivationOutputs(ctx context.Context, drv storepath.StorePath) ([]storepath.StorePath, error) {
	abs := path.Join(c.NixStorePath(), drv.String())
	out, err := c.run(ctx, "--query", "--outputs", abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingRealisation, drv, err)
	}

	var outputs []storepath.StorePath
	for _, line := range scanLines(out) {
		sp, err := storepath.Parse(path.Base(line))
		if err != nil {
			continue
		}
		outputs = append(outputs, sp)
	}
	return outputs, nil
}

var _ Adapter = (*CLIAdapter)(nil)
