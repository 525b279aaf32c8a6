package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Sweep removes stale dists-<N> snapshot directories other than the one
// just published, and pool files that are not referenced by the current
// universe (known). It mirrors the original's two-phase mark-and-sweep:
// snapshot directories first, then an unaccompanied-by-symlinks walk of
// pool/. Individual removal failures are counted and do not abort the
// sweep - a single locked or permission-denied file should not prevent
// cleaning up everything else.
func Sweep(root string, currentTimestamp int64, known map[string]struct{}) (removed int, err error) {
	entries, readErr := os.ReadDir(root)
	if readErr != nil {
		return 0, errors.Wrapf(readErr, "reading mirror root %s", root)
	}

	var errs []string

	currentName := fmt.Sprintf("dists-%d", currentTimestamp)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "dists-") {
			continue
		}
		if entry.Name() == currentName {
			continue
		}
		if _, err := strconv.ParseInt(strings.TrimPrefix(entry.Name(), "dists-"), 10, 64); err != nil {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, errors.Wrapf(err, "removing stale snapshot %s", path).Error())
			continue
		}
		removed++
	}

	poolRoot := filepath.Join(root, "pool")
	poolRemoved, poolErrs := sweepPool(poolRoot, known)
	removed += poolRemoved
	errs = append(errs, poolErrs...)

	tmpDir := filepath.Join(root, ".tmp")
	if _, statErr := os.Lstat(tmpDir); statErr == nil {
		if err := os.RemoveAll(tmpDir); err != nil {
			errs = append(errs, errors.Wrapf(err, "removing leftover staging directory %s", tmpDir).Error())
		}
	}

	if len(errs) > 0 {
		return removed, errors.New(strings.Join(errs, "; "))
	}
	return removed, nil
}

// sweepPool walks poolRoot without following symlinks and removes any
// regular file whose path is present in known neither relative to the
// mirror root ("pool/...") nor relative to poolRoot.
func sweepPool(poolRoot string, known map[string]struct{}) (removed int, errs []string) {
	if _, err := os.Lstat(poolRoot); err != nil {
		return 0, nil
	}

	err := filepath.Walk(poolRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			errs = append(errs, walkErr.Error())
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(poolRoot, path)
		if err != nil {
			errs = append(errs, err.Error())
			return nil
		}
		relSlash := filepath.ToSlash(rel)
		poolRel := "pool/" + relSlash
		if _, ok := known[poolRel]; ok {
			return nil
		}
		if _, ok := known[relSlash]; ok {
			return nil
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, errors.Wrapf(err, "removing orphaned pool file %s", path).Error())
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		errs = append(errs, err.Error())
	}
	return removed, errs
}
