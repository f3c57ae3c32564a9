// Package fsutil provides the atomic file replacement primitive the
// rewrite-based editors and the recent-files ledger rely on: write the
// complete new content to a temporary sibling, fsync, then rename over
// the original. The visible file is always either the old or the new
// complete version, never a partial write.
package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TempPrefix marks temporary siblings created during atomic writes so
// orphans from a crash can be recognized and removed.
const TempPrefix = ".tuckview-tmp-"

// WriteAtomic replaces the file at path with the content produced by
// write. On any failure the original file is left untouched and the
// temporary sibling is removed.
func WriteAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Carry over the original's permissions when it exists; CreateTemp
	// defaults to 0600.
	if fi, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpPath, fi.Mode().Perm())
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// RemoveOrphans deletes temporary siblings in dir left behind by a
// crash mid-write. Only entries bearing TempPrefix and older than
// maxAge are touched. Returns how many were removed.
func RemoveOrphans(dir string, maxAge time.Duration, logger *zap.Logger) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), TempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err == nil {
			removed++
			if logger != nil {
				logger.Info("removed orphaned temp file", zap.String("path", path))
			}
		}
	}
	return removed
}
