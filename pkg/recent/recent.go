// Package recent keeps the small crash-safe ledger of files the user
// opened last. The ledger is advisory: loading never fails, and a
// corrupt or missing ledger simply reads as empty.
package recent

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/errors"
	"github.com/tuckview/tuckview/pkg/fsutil"
)

// MaxEntries caps the ledger. Older entries fall off the end.
const MaxEntries = 20

// Entry is one remembered file.
type Entry struct {
	Path         string         `json:"path"`
	Format       adapter.Format `json:"format"`
	LastOpenedAt time.Time      `json:"last_opened_at"`
}

// Store persists the ledger to one JSON file, most recent first.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewStore loads the ledger at path, or starts empty when the file is
// missing or unreadable.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:   path,
		logger: logger.With(zap.String("component", "recent")),
		now:    time.Now,
	}
	s.entries = s.load()
	return s
}

// load reads the ledger from disk. Any failure degrades to an empty
// ledger so a damaged file never blocks startup.
func (s *Store) load() []Entry {
	data, err := os.ReadFile(s.path) //nolint:gosec
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read recent files ledger", zap.Error(err))
		}
		return nil
	}

	var entries []Entry
	if err := gojson.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("recent files ledger is corrupt, starting empty", zap.Error(err))
		return nil
	}
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	return entries
}

// canonicalize makes path absolute and resolves symlinks, so every
// alias of one file dedupes to a single ledger entry. Resolution is
// best effort; a path that no longer exists keeps its absolute form.
func canonicalize(path string) (string, error) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeIO, "failed to canonicalize path")
	}
	if resolved, err := filepath.EvalSymlinks(canonical); err == nil {
		return resolved, nil
	}
	return canonical, nil
}

// Record moves path to the front of the ledger, deduplicating by
// canonical path, and persists the result atomically.
func (s *Store) Record(path string, format adapter.Format) error {
	canonical, err := canonicalize(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Entry, 0, len(s.entries)+1)
	kept = append(kept, Entry{Path: canonical, Format: format, LastOpenedAt: s.now()})
	for _, e := range s.entries {
		if e.Path == canonical {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) > MaxEntries {
		kept = kept[:MaxEntries]
	}
	s.entries = kept

	return s.persist()
}

// Remove drops path from the ledger, reporting whether an entry was
// removed. Removing a path that is not remembered is not an error.
func (s *Store) Remove(path string) (bool, error) {
	canonical, err := canonicalize(path)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Path == canonical {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(s.entries) {
		return false, nil
	}
	s.entries = kept

	return true, s.persist()
}

// Entries returns the ledger, most recent first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// persist writes the ledger through a temp file and rename, so a crash
// mid-write leaves the previous ledger intact.
func (s *Store) persist() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.ErrorTypeIO, "failed to create ledger directory")
		}
	}

	err := fsutil.WriteAtomic(s.path, func(w io.Writer) error {
		enc := gojson.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s.entries)
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to persist recent files ledger")
	}
	return nil
}
