// Package delta reconciles the universe of files a sync's indices declare
// against what is already on disk, deciding which files an external
// transfer program still needs to fetch.
package delta

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/AOSC-Dev/aosc-mirror/internal/index"
)

// needed reports whether entry must be (re-)transferred: it is missing, or
// its on-disk size does not match what the index declared. A stat error
// other than "not found" is treated the same as "missing" - any reason the
// file can't be confirmed present means it gets re-fetched.
func needed(root string, entry index.FileEntry) bool {
	fi, err := os.Lstat(filepath.Join(root, entry.Path))
	if err != nil {
		return true
	}
	if entry.Size == index.UnknownSize {
		return false
	}
	return fi.Size() != entry.Size
}

// Scan partitions universe into parallelJobs contiguous chunks and checks
// each chunk concurrently for files missing or mismatched under root,
// mirroring the teacher's pool-gated concurrency idiom. The caller is
// expected to have already deduplicated and sorted universe; Scan preserves
// the input order in its result so downstream chunking for the transfer
// step stays deterministic.
func Scan(ctx context.Context, root string, universe []index.FileEntry, parallelJobs int) ([]index.FileEntry, error) {
	if parallelJobs < 1 {
		parallelJobs = 1
	}
	if len(universe) == 0 {
		return nil, nil
	}
	if parallelJobs > len(universe) {
		parallelJobs = len(universe)
	}

	chunkSize := (len(universe) + parallelJobs - 1) / parallelJobs
	results := make([][]index.FileEntry, parallelJobs)

	group, ctx := errgroup.WithContext(ctx)
	for w := 0; w < parallelJobs; w++ {
		w := w
		start := w * chunkSize
		end := start + chunkSize
		if end > len(universe) {
			end = len(universe)
		}
		if start >= end {
			continue
		}
		group.Go(func() error {
			var missing []index.FileEntry
			for _, entry := range universe[start:end] {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				if needed(root, entry) {
					missing = append(missing, entry)
				}
			}
			results[w] = missing
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var out []index.FileEntry
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
