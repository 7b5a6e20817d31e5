// Package fsstat aggregates the on-disk footprint of a store path: the
// most recent access time across its contents, how many inodes it
// occupies, and its total byte size. The aggregator is pure with
// respect to the filesystem state at the moment of the call and safe to
// invoke concurrently on disjoint paths, mirroring the stat-gathering
// idiom in the teacher's loopback filesystem implementation
// (syscall.Stat_t, Lstat, never following symlinks).
package fsstat

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Aggregate is the (max_atime, inodes, size) triple the store's
// filesystem footprint is measured by.
type Aggregate struct {
	MaxAtime int64
	Inodes   uint64
	Size     uint64
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Stat computes the Aggregate for path.
//
// path is lstat'd; symlinks are never followed. If path itself cannot
// be stat'd due to a permission error, Stat degrades to Aggregate{0, 1,
// 0} rather than failing, matching the degrade-on-PermissionDenied rule
// for filesystem walks. A directory's own atime never contributes to
// MaxAtime, since walking the directory updates it; only its entries'
// atimes (recursively) do. The "+1" inode baseline for a directory
// accounts for the directory's own inode.
func Stat(path string) (Aggregate, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if os.IsPermission(err) {
			return Aggregate{Inodes: 1}, nil
		}
		return Aggregate{}, err
	}

	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		return statDir(path)
	}

	return Aggregate{
		MaxAtime: int64(st.Atim.Sec),
		Inodes:   1,
		Size:     uint64(st.Size),
	}, nil
}

// statDir folds over dir's immediate entries, recursing into
// subdirectories, and seeds the fold with Aggregate{0, 1, 0} so the
// directory's own inode is counted.
func statDir(dir string) (Aggregate, error) {
	agg := Aggregate{Inodes: 1}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			return Aggregate{Inodes: 1}, nil
		}
		return Aggregate{}, err
	}

	for _, entry := range entries {
		childAgg, err := statEntry(filepath.Join(dir, entry.Name()))
		if err != nil {
			// A permission error on one subtree degrades that
			// subtree only; everything else already folded in
			// stays intact.
			if os.IsPermission(err) {
				childAgg = Aggregate{Inodes: 1}
			} else {
				return Aggregate{}, err
			}
		}
		agg.MaxAtime = max64(agg.MaxAtime, childAgg.MaxAtime)
		agg.Inodes += childAgg.Inodes
		agg.Size += childAgg.Size
	}

	return agg, nil
}

// statEntry computes the (atime, inodes, size) triple for a single
// directory entry: files and symlinks contribute their own lstat'd
// atime and are never recursed into; subdirectories recurse and
// contribute no atime of their own.
func statEntry(path string) (Aggregate, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Aggregate{}, err
	}

	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		return statDir(path)
	}

	return Aggregate{
		MaxAtime: int64(st.Atim.Sec),
		Inodes:   1,
		Size:     uint64(st.Size),
	}, nil
}
