package fsstat

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStatSingleFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "file")
	if err := os.WriteFile(f, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	agg, err := Stat(f)
	if err != nil {
		t.Fatal(err)
	}
	if agg.Inodes != 1 {
		t.Errorf("Inodes = %d, want 1", agg.Inodes)
	}
	if agg.Size != 5 {
		t.Errorf("Size = %d, want 5", agg.Size)
	}
	if agg.MaxAtime == 0 {
		t.Errorf("MaxAtime = 0, want nonzero")
	}
}

func TestStatDirectoryAggregatesChildren(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a"), []byte("aa"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b"), []byte("bbb"), 0o644); err != nil {
		t.Fatal(err)
	}

	agg, err := Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	// root dir inode + sub dir inode + file "a" + file "b" = 4
	if agg.Inodes != 4 {
		t.Errorf("Inodes = %d, want 4", agg.Inodes)
	}
	if agg.Size != 5 {
		t.Errorf("Size = %d, want 5", agg.Size)
	}
}

func TestStatSymlinkNotFollowed(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, make([]byte, 1000), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	agg, err := Stat(link)
	if err != nil {
		t.Fatal(err)
	}
	if agg.Size == 1000 {
		t.Errorf("Size = %d, symlink was followed but shouldn't be", agg.Size)
	}
	if agg.Inodes != 1 {
		t.Errorf("Inodes = %d, want 1", agg.Inodes)
	}
}

func TestStatMissingPathReturnsError(t *testing.T) {
	dir := t.TempDir()
	_, err := Stat(filepath.Join(dir, "nonexistent"))
	if err == nil {
		t.Fatal("expected an error for a missing path")
	}
}

func TestStatDirAtimeExcludesDirItself(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(sub, old, old); err != nil {
		t.Fatal(err)
	}

	agg, err := Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	// The empty subdirectory has no entries to contribute an atime, and
	// its own (old, manually-set) atime must not leak into the result.
	if agg.MaxAtime != 0 {
		t.Errorf("MaxAtime = %d, want 0 (directory atimes are excluded)", agg.MaxAtime)
	}
}
