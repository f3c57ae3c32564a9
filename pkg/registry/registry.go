// Package registry tracks open data files. Each successfully opened
// file gets an opaque handle; every later operation names the file by
// that handle. Idle files are evicted in the background so a browsing
// session cannot accumulate file state without bound.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/errors"
	"github.com/tuckview/tuckview/pkg/fsutil"
	"github.com/tuckview/tuckview/pkg/recent"
)

// orphanMaxAge bounds how old a leftover temp file must be before the
// open-time sweep removes it.
const orphanMaxAge = time.Hour

// DataFile is one open file and its live adapter.
type DataFile struct {
	Handle   string
	Path     string
	Format   adapter.Format
	OpenedAt time.Time
	Adapter  adapter.Adapter

	// WriteMu serializes writers touching the underlying file.
	WriteMu sync.Mutex

	mu         sync.Mutex
	lastAccess time.Time
	pins       int
	closing    bool
}

// touch marks the file as recently used.
func (f *DataFile) touch(now time.Time) {
	f.mu.Lock()
	f.lastAccess = now
	f.mu.Unlock()
}

// Pin marks the file as busy so eviction leaves it alone. Callers must
// pair every Pin with an Unpin.
func (f *DataFile) Pin() {
	f.mu.Lock()
	f.pins++
	f.mu.Unlock()
}

// Unpin releases a Pin. When a close was deferred because the file was
// pinned, the last Unpin releases the adapter.
func (f *DataFile) Unpin() {
	f.mu.Lock()
	if f.pins > 0 {
		f.pins--
	}
	last := f.pins == 0 && f.closing
	f.lastAccess = time.Now()
	f.mu.Unlock()

	if last {
		_ = f.Adapter.Close()
	}
}

// markClosing flags the file for close and reports whether the caller
// may release the adapter now. With pins outstanding the last Unpin
// releases it instead.
func (f *DataFile) markClosing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closing = true
	return f.pins == 0
}

// tryRetire atomically checks idleness against the pin count so an
// eviction can never start while an operation holds a pin.
func (f *DataFile) tryRetire(cutoff time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pins > 0 || f.closing || !f.lastAccess.Before(cutoff) {
		return false
	}
	f.closing = true
	return true
}

// Config tunes the registry.
type Config struct {
	// SampleRows bounds schema inference for formats without declared
	// types.
	SampleRows int
	// EvictionTTL is how long a file may sit idle before its handle is
	// closed. Zero disables eviction.
	EvictionTTL time.Duration
	// DiscoverLimit caps how many entries Discover returns.
	DiscoverLimit int
}

// DiscoveredFile is one browsable file found in a directory.
type DiscoveredFile struct {
	Name    string         `json:"name"`
	Path    string         `json:"path"`
	Format  adapter.Format `json:"format"`
	Size    int64          `json:"size"`
	ModTime time.Time      `json:"mod_time"`
}

// Registry is the handle table.
type Registry struct {
	cfg    Config
	logger *zap.Logger
	recent *recent.Store

	mu    sync.Mutex
	files map[string]*DataFile

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New builds a registry. The recent store may be nil, in which case
// opens are simply not remembered.
func New(cfg Config, recentStore *recent.Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "registry")),
		recent: recentStore,
		files:  make(map[string]*DataFile),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.evictLoop()
	return r
}

// Open opens path through the adapter matching its extension and
// returns the new handle. Opening the same path twice yields two
// independent handles.
func (r *Registry) Open(path string) (*DataFile, error) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to canonicalize path")
	}

	// Reject unknown extensions before touching the filesystem. The
	// format follows the name the caller opened, not a symlink target.
	format, err := adapter.FormatForPath(canonical)
	if err != nil {
		return nil, err
	}

	// Resolve symlinks so aliases of one file share a canonical path in
	// the recent-files ledger. Best effort; a missing file fails below
	// with the adapter's own error.
	if resolved, rerr := filepath.EvalSymlinks(canonical); rerr == nil {
		canonical = resolved
	}

	// A crash during an earlier edit can leave temp siblings behind.
	if n := fsutil.RemoveOrphans(filepath.Dir(canonical), orphanMaxAge, r.logger); n > 0 {
		r.logger.Info("cleaned up orphaned temp files", zap.Int("count", n))
	}

	a, err := adapter.Open(canonical, adapter.Options{
		Logger:     r.logger,
		SampleRows: r.cfg.SampleRows,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	file := &DataFile{
		Handle:     uuid.NewString(),
		Path:       canonical,
		Format:     format,
		OpenedAt:   now,
		Adapter:    a,
		lastAccess: now,
	}

	r.mu.Lock()
	r.files[file.Handle] = file
	open := len(r.files)
	r.mu.Unlock()

	if r.recent != nil {
		if err := r.recent.Record(canonical, format); err != nil {
			// The ledger is advisory; a failed write must not fail the open.
			r.logger.Warn("failed to record recent file", zap.Error(err))
		}
	}

	r.logger.Info("opened file",
		zap.String("handle", file.Handle),
		zap.String("path", canonical),
		zap.String("format", string(format)),
		zap.Int("open_files", open))
	return file, nil
}

// Get resolves a handle, marking the file as recently used.
func (r *Registry) Get(handle string) (*DataFile, error) {
	r.mu.Lock()
	file, ok := r.files[handle]
	r.mu.Unlock()

	if !ok {
		return nil, errors.Newf(errors.ErrorTypeHandleNotFound, "no open file for handle %s", handle)
	}
	file.touch(time.Now())
	return file, nil
}

// Close releases a handle. The adapter is released immediately when no
// operation holds a pin, otherwise by the last Unpin, so an in-flight
// read or edit always finishes against a live adapter.
func (r *Registry) Close(handle string) error {
	r.mu.Lock()
	file, ok := r.files[handle]
	delete(r.files, handle)
	r.mu.Unlock()

	if !ok {
		return errors.Newf(errors.ErrorTypeHandleNotFound, "no open file for handle %s", handle)
	}

	var err error
	if file.markClosing() {
		err = file.Adapter.Close()
	}
	r.logger.Info("closed file", zap.String("handle", handle), zap.String("path", file.Path))
	return err
}

// Discover lists browsable files directly inside dir, sorted by name
// and capped at the configured limit. Unreadable directories and
// entries degrade to an empty result rather than an error.
func (r *Registry) Discover(dir string) []DiscoveredFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		r.logger.Debug("discover skipped unreadable directory",
			zap.String("dir", dir), zap.Error(err))
		return []DiscoveredFile{}
	}

	known := make(map[string]bool)
	for _, ext := range adapter.Extensions() {
		known[ext] = true
	}

	found := make([]DiscoveredFile, 0)
	for _, entry := range entries {
		if entry.IsDir() || !known[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		format, err := adapter.FormatForPath(path)
		if err != nil {
			continue
		}
		found = append(found, DiscoveredFile{
			Name:    entry.Name(),
			Path:    path,
			Format:  format,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	if r.cfg.DiscoverLimit > 0 && len(found) > r.cfg.DiscoverLimit {
		found = found[:r.cfg.DiscoverLimit]
	}
	return found
}

// OpenCount reports how many handles are live.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// Stop halts eviction and closes every open handle.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		<-r.done

		r.mu.Lock()
		files := make([]*DataFile, 0, len(r.files))
		for _, f := range r.files {
			files = append(files, f)
		}
		r.files = make(map[string]*DataFile)
		r.mu.Unlock()

		for _, f := range files {
			if err := f.Adapter.Close(); err != nil {
				r.logger.Warn("failed to close adapter",
					zap.String("path", f.Path), zap.Error(err))
			}
		}
		r.logger.Info("registry stopped", zap.Int("closed", len(files)))
	})
}

// evictLoop closes handles idle longer than the TTL.
func (r *Registry) evictLoop() {
	defer close(r.done)
	if r.cfg.EvictionTTL <= 0 {
		<-r.stop
		return
	}

	interval := r.cfg.EvictionTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.evictIdle(now)
		}
	}
}

func (r *Registry) evictIdle(now time.Time) {
	cutoff := now.Add(-r.cfg.EvictionTTL)

	r.mu.Lock()
	var victims []*DataFile
	for handle, f := range r.files {
		if f.tryRetire(cutoff) {
			victims = append(victims, f)
			delete(r.files, handle)
		}
	}
	r.mu.Unlock()

	for _, f := range victims {
		if err := f.Adapter.Close(); err != nil {
			r.logger.Warn("failed to close evicted adapter",
				zap.String("path", f.Path), zap.Error(err))
		}
		r.logger.Info("evicted idle file",
			zap.String("handle", f.Handle),
			zap.String("path", f.Path))
	}
}
