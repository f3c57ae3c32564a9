// Package browse is the façade over the whole table access layer: it
// owns the file registry, the page engine, the editor, and the
// recent-files ledger, and exposes the operations a frontend calls.
//
// Reads run on the caller's goroutine. Every edit is funneled through
// one background writer goroutine, so at most one file mutation is in
// flight at any time regardless of how many callers edit concurrently.
package browse

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/config"
	"github.com/tuckview/tuckview/pkg/cursor"
	"github.com/tuckview/tuckview/pkg/edit"
	"github.com/tuckview/tuckview/pkg/errors"
	"github.com/tuckview/tuckview/pkg/recent"
	"github.com/tuckview/tuckview/pkg/registry"
)

// editQueueDepth bounds how many edits may wait on the writer.
const editQueueDepth = 64

// FileInfo describes one open file to the frontend.
type FileInfo struct {
	Handle   string         `json:"handle"`
	Path     string         `json:"path"`
	Name     string         `json:"name"`
	Format   adapter.Format `json:"format"`
	Size     int64          `json:"size"`
	OpenedAt time.Time      `json:"opened_at"`
	Version  string         `json:"version"`
	Tables   []TableInfo    `json:"tables"`
}

// TableInfo is one table's name and current row count.
type TableInfo struct {
	Name     string `json:"name"`
	Comment  string `json:"comment,omitempty"`
	RowCount int    `json:"row_count"`
}

// EditRequest is one single-row patch.
type EditRequest struct {
	Handle  string                 `json:"handle"`
	Table   string                 `json:"table"`
	Key     interface{}            `json:"key"`
	Values  map[string]interface{} `json:"values"`
	Version string                 `json:"version"`
}

// EditResult carries the patched row and the file's new version token.
type EditResult struct {
	Row     adapter.Row `json:"row"`
	Version string      `json:"version"`
}

type editJob struct {
	req  EditRequest
	done chan editOutcome
}

type editOutcome struct {
	result *EditResult
	err    error
}

// Service wires the layer together.
type Service struct {
	cfg    config.BrowseConfig
	logger *zap.Logger

	registry *registry.Registry
	engine   *cursor.Engine
	editor   *edit.Editor
	recent   *recent.Store

	edits     chan editJob
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewService builds the service and starts its writer goroutine.
func NewService(cfg config.BrowseConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	recentStore := recent.NewStore(cfg.RecentFilesLocation(), logger)
	s := &Service{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "browse")),
		registry: registry.New(registry.Config{
			SampleRows:    cfg.SchemaSampleRows,
			EvictionTTL:   cfg.EvictionTTL,
			DiscoverLimit: cfg.DiscoverLimit,
		}, recentStore, logger),
		engine: cursor.NewEngine(cfg.MaxPageSize, logger),
		editor: edit.NewEditor(logger),
		recent: recentStore,
		edits:  make(chan editJob, editQueueDepth),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.writerLoop()
	return s
}

// OpenFile opens a data file and returns its handle and table list.
func (s *Service) OpenFile(path string) (*FileInfo, error) {
	file, err := s.registry.Open(path)
	if err != nil {
		return nil, err
	}
	file.Pin()
	defer file.Unpin()
	return s.fileInfo(file)
}

// CloseFile releases a handle.
func (s *Service) CloseFile(handle string) error {
	return s.registry.Close(handle)
}

// FileInfo describes an open handle, including its current version
// token and per-table row counts.
func (s *Service) FileInfo(handle string) (*FileInfo, error) {
	file, err := s.registry.Get(handle)
	if err != nil {
		return nil, err
	}
	file.Pin()
	defer file.Unpin()
	return s.fileInfo(file)
}

func (s *Service) fileInfo(file *registry.DataFile) (*FileInfo, error) {
	tables, err := s.tableInfos(file)
	if err != nil {
		return nil, err
	}
	sig, err := file.Adapter.Signature()
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Handle:   file.Handle,
		Path:     file.Path,
		Name:     filepath.Base(file.Path),
		Format:   file.Format,
		Size:     sig.Size,
		OpenedAt: file.OpenedAt,
		Version:  sig.Token(),
		Tables:   tables,
	}, nil
}

// ListTables lists the tables of an open file with row counts.
func (s *Service) ListTables(handle string) ([]TableInfo, error) {
	file, err := s.registry.Get(handle)
	if err != nil {
		return nil, err
	}
	file.Pin()
	defer file.Unpin()
	return s.tableInfos(file)
}

func (s *Service) tableInfos(file *registry.DataFile) ([]TableInfo, error) {
	names, err := file.Adapter.ListTables()
	if err != nil {
		return nil, err
	}

	infos := make([]TableInfo, 0, len(names))
	for _, name := range names {
		schema, err := file.Adapter.Schema(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, TableInfo{
			Name:     name,
			Comment:  schema.Comment,
			RowCount: schema.RowCount,
		})
	}
	return infos, nil
}

// GetSchema returns one table's schema.
func (s *Service) GetSchema(handle, table string) (*adapter.TableSchema, error) {
	file, err := s.registry.Get(handle)
	if err != nil {
		return nil, err
	}
	file.Pin()
	defer file.Unpin()
	return file.Adapter.Schema(table)
}

// GetPage reads one page of a table. The pin keeps a concurrent close
// or idle eviction from releasing the adapter mid-read.
func (s *Service) GetPage(handle, table string, offset, limit int, sortSpec *adapter.SortSpec) (*cursor.Page, error) {
	file, err := s.registry.Get(handle)
	if err != nil {
		return nil, err
	}
	file.Pin()
	defer file.Unpin()
	return s.engine.GetPage(file.Adapter, table, offset, limit, sortSpec)
}

// EditRow queues a single-row patch on the writer goroutine and waits
// for it. The context only abandons the wait; an edit that already
// started is not interrupted mid-write.
func (s *Service) EditRow(ctx context.Context, req EditRequest) (*EditResult, error) {
	job := editJob{req: req, done: make(chan editOutcome, 1)}

	select {
	case s.edits <- job:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeInternal, "edit abandoned before it was queued")
	case <-s.stop:
		return nil, errors.New(errors.ErrorTypeInternal, "service is shutting down")
	}

	select {
	case out := <-job.done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeInternal, "edit abandoned while queued")
	}
}

// writerLoop applies queued edits one at a time.
func (s *Service) writerLoop() {
	defer close(s.done)
	for {
		select {
		case job := <-s.edits:
			result, err := s.applyEdit(job.req)
			job.done <- editOutcome{result: result, err: err}
		case <-s.stop:
			// Drain what was already queued so no caller hangs.
			for {
				select {
				case job := <-s.edits:
					job.done <- editOutcome{err: errors.New(errors.ErrorTypeInternal, "service is shutting down")}
				default:
					return
				}
			}
		}
	}
}

func (s *Service) applyEdit(req EditRequest) (*EditResult, error) {
	file, err := s.registry.Get(req.Handle)
	if err != nil {
		return nil, err
	}

	file.Pin()
	defer file.Unpin()

	row, err := s.editor.Apply(file.Adapter, &file.WriteMu, req.Table, req.Key, req.Values, req.Version)
	if err != nil {
		return nil, err
	}

	sig, err := file.Adapter.Signature()
	if err != nil {
		return nil, err
	}
	return &EditResult{Row: row, Version: sig.Token()}, nil
}

// Discover lists browsable files directly inside dir.
func (s *Service) Discover(dir string) []registry.DiscoveredFile {
	return s.registry.Discover(dir)
}

// RecentFiles returns the ledger of recently opened files, most recent
// first.
func (s *Service) RecentFiles() []recent.Entry {
	return s.recent.Entries()
}

// ForgetRecentFile drops one path from the ledger, reporting whether an
// entry was removed.
func (s *Service) ForgetRecentFile(path string) (bool, error) {
	return s.recent.Remove(path)
}

// Close stops the writer goroutine and releases every open handle.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.registry.Stop()
		s.logger.Info("browse service closed")
	})
}
