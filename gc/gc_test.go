package gc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/nixcommunity/nix-gc/gc"
	"github.com/nixcommunity/nix-gc/ggraph"
	"github.com/nixcommunity/nix-gc/quantity"
	"github.com/nixcommunity/nix-gc/store/storetest"
)

func touch(t *testing.T, root, name string, atime time.Time) {
	t.Helper()
	p := filepath.Join(root, name)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(p, atime, atime); err != nil {
		t.Fatal(err)
	}
}

func TestRunDryRunDoesNotDelete(t *testing.T) {
	root := t.TempDir()
	fake := storetest.New(root)
	p := storetest.Name(1, "p")
	fake.AddValid(p, 100)
	touch(t, root, p, time.Unix(10, 0))

	log, _ := logrustest.NewNullLogger()
	result, err := gc.Run(context.Background(), fake, gc.Config{
		Limit:  quantity.Quantity{Value: 50, Unit: quantity.Bytes},
		DryRun: true,
		Log:    log,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Selected) != 1 {
		t.Fatalf("Selected = %v, want 1 entry", result.Selected)
	}
	if len(fake.Deleted) != 0 {
		t.Errorf("Deleted = %v, want none under dry-run", fake.Deleted)
	}
}

func TestRunDeletesSelection(t *testing.T) {
	root := t.TempDir()
	fake := storetest.New(root)
	p := storetest.Name(1, "p")
	fake.AddValid(p, 100)
	touch(t, root, p, time.Unix(10, 0))

	log, _ := logrustest.NewNullLogger()
	result, err := gc.Run(context.Background(), fake, gc.Config{
		Limit:  quantity.Quantity{Value: 50, Unit: quantity.Bytes},
		DryRun: false,
		Log:    log,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.Deleted) != 1 || fake.Deleted[0].String() != p {
		t.Fatalf("Deleted = %v, want [%s]", fake.Deleted, p)
	}
	if result.BytesFreed != 100 {
		t.Errorf("BytesFreed = %d, want 100", result.BytesFreed)
	}
}

func TestRunRejectsNegativeThreads(t *testing.T) {
	root := t.TempDir()
	fake := storetest.New(root)
	log, _ := logrustest.NewNullLogger()
	_, err := gc.Run(context.Background(), fake, gc.Config{
		Limit:   quantity.Quantity{Value: 1, Unit: quantity.Bytes},
		Threads: -1,
		Log:     log,
	})
	if err == nil {
		t.Fatal("expected an error for negative threads")
	}
}

func TestRunRejectsAmbiguousOnlyFlags(t *testing.T) {
	root := t.TempDir()
	fake := storetest.New(root)
	log, _ := logrustest.NewNullLogger()
	_, err := gc.Run(context.Background(), fake, gc.Config{
		Limit: quantity.Quantity{Value: 1, Unit: quantity.Bytes},
		Flags: ggraph.Flags{Invalid: ggraph.Only, Drv: ggraph.Only},
		Log:   log,
	})
	if err == nil {
		t.Fatal("expected an error for two \"only\" class flags")
	}
}

func TestUnfriendlyWeightMapping(t *testing.T) {
	root := t.TempDir()
	fake := storetest.New(root)
	p := storetest.Name(1, "p")
	fake.MarkSubstitutable(fake.AddValid(p, 100))
	touch(t, root, p, time.Unix(10, 0))

	log, _ := logrustest.NewNullLogger()
	// Friendly weight 0 must disable the penalty entirely: with a
	// substitutable path and penalize-substitutable off, the run
	// should not error and should still select the path (the penalty
	// being disabled doesn't affect whether removal succeeds).
	result, err := gc.Run(context.Background(), fake, gc.Config{
		Limit:   quantity.Quantity{Value: 50, Unit: quantity.Bytes},
		DryRun:  true,
		Weights: gc.FriendlyWeights{Substitutable: 0},
		Log:     log,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Selected) != 1 {
		t.Fatalf("Selected = %v, want 1 entry", result.Selected)
	}
}

func TestRunLogsExpectedSummaryFields(t *testing.T) {
	root := t.TempDir()
	fake := storetest.New(root)
	p := storetest.Name(1, "p")
	fake.AddValid(p, 100)
	touch(t, root, p, time.Unix(10, 0))

	log, hook := logrustest.NewNullLogger()
	log.SetLevel(logrus.InfoLevel)
	_, err := gc.Run(context.Background(), fake, gc.Config{
		Limit:  quantity.Quantity{Value: 50, Unit: quantity.Bytes},
		DryRun: true,
		Log:    log,
	})
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Data["count"] == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a log entry with count=1, got entries: %+v", hook.AllEntries())
	}
}

func TestRunSurfacesVeryInvalidPaths(t *testing.T) {
	root := t.TempDir()
	fake := storetest.New(root)
	p := storetest.Name(1, "p")
	fake.AddValid(p, 100)
	touch(t, root, p, time.Unix(10, 0))
	fake.AddVeryInvalid("garbage")

	log, hook := logrustest.NewNullLogger()
	log.SetLevel(logrus.WarnLevel)
	result, err := gc.Run(context.Background(), fake, gc.Config{
		Limit:  quantity.Quantity{Value: 50, Unit: quantity.Bytes},
		DryRun: true,
		Log:    log,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.VeryInvalidPaths) != 1 {
		t.Fatalf("VeryInvalidPaths = %v, want 1 entry", result.VeryInvalidPaths)
	}

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a warning log entry, got: %+v", hook.AllEntries())
	}
}
