package tuck

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/errors"
	"github.com/tuckview/tuckview/pkg/fsutil"
)

func init() {
	adapter.RegisterFormat(adapter.FormatTuck, []string{".bin"}, New)
}

// tuckAdapter exposes one tuck binary file through the uniform table
// access interface. The file's own directory serves as the row index.
type tuckAdapter struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	dir    *directory
	sig    adapter.Signature
}

// New opens a tuck binary file, parsing only the header and directory.
func New(path string, opts adapter.Options) (adapter.Adapter, error) {
	a := &tuckAdapter{
		path:   path,
		logger: opts.Logger.With(zap.String("format", "tuck"), zap.String("path", path)),
	}
	if err := a.load(); err != nil {
		return nil, err
	}
	a.logger.Debug("opened tuck file", zap.Int("tables", len(a.dir.Tables)))
	return a, nil
}

// load parses structural metadata and captures the file signature it
// describes. Row data is not touched.
func (a *tuckAdapter) load() error {
	sig, err := adapter.FileSignature(a.path)
	if err != nil {
		return err
	}

	f, err := os.Open(a.path) //nolint:gosec // G304: path was validated by the registry
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to open tuck file")
	}
	defer f.Close()

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCorruptFile, "failed to read tuck header")
	}
	if string(header[:4]) != headerMagic {
		return errors.New(errors.ErrorTypeCorruptFile, "bad magic, not a tuck file")
	}
	if v := binary.LittleEndian.Uint16(header[4:]); v != versionCur {
		return errors.Newf(errors.ErrorTypeCorruptFile, "unsupported tuck version %d", v)
	}

	dirOffset := int64(binary.LittleEndian.Uint64(header[8:]))
	if dirOffset < headerSize || dirOffset+4 > sig.Size {
		return errors.New(errors.ErrorTypeCorruptFile, "directory offset out of range")
	}

	footer := make([]byte, 4)
	if _, err := f.ReadAt(footer, sig.Size-4); err != nil || string(footer) != footerMagic {
		return errors.New(errors.ErrorTypeCorruptFile, "missing trailing magic, file truncated")
	}

	lenBuf := make([]byte, 4)
	if _, err := f.ReadAt(lenBuf, dirOffset); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCorruptFile, "failed to read directory length")
	}
	dirLen := int64(binary.LittleEndian.Uint32(lenBuf))
	if dirLen > maxDirectory || dirOffset+4+dirLen+4 != sig.Size {
		return errors.New(errors.ErrorTypeCorruptFile, "directory length inconsistent with file size")
	}

	dirJSON := make([]byte, dirLen)
	if _, err := f.ReadAt(dirJSON, dirOffset+4); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCorruptFile, "failed to read directory")
	}

	var dir directory
	if err := gojson.Unmarshal(dirJSON, &dir); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCorruptFile, "failed to parse directory")
	}

	a.dir = &dir
	a.sig = sig
	return nil
}

// refresh reloads structural metadata when the file changed on disk
// since it was last parsed.
func (a *tuckAdapter) refresh() error {
	current, err := adapter.FileSignature(a.path)
	if err != nil {
		return err
	}
	if current.Equal(a.sig) {
		return nil
	}
	a.logger.Info("file changed on disk, rebuilding index")
	return a.load()
}

func (a *tuckAdapter) Format() adapter.Format { return adapter.FormatTuck }

func (a *tuckAdapter) Path() string { return a.path }

// errClosed guards every access made after Close. A handle closed or
// evicted while a caller still holds the adapter must error, not panic.
func (a *tuckAdapter) errClosed() error {
	if a.closed {
		return errors.New(errors.ErrorTypeHandleNotFound, "file is no longer open")
	}
	return nil
}

func (a *tuckAdapter) ListTables() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.errClosed(); err != nil {
		return nil, err
	}
	if err := a.refresh(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(a.dir.Tables))
	for _, t := range a.dir.Tables {
		names = append(names, t.Name)
	}
	return names, nil
}

func (a *tuckAdapter) Schema(table string) (*adapter.TableSchema, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.errClosed(); err != nil {
		return nil, err
	}
	if err := a.refresh(); err != nil {
		return nil, err
	}

	entry, ok := a.dir.table(table)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeTableNotFound, "table %s not found", table)
	}

	columns := make([]adapter.ColumnDef, len(entry.Columns))
	copy(columns, entry.Columns)

	return &adapter.TableSchema{
		Name:     entry.Name,
		Comment:  entry.Comment,
		Columns:  columns,
		RowCount: len(entry.Rows),
	}, nil
}

func (a *tuckAdapter) ReadRows(table string, ordinals []int) ([]adapter.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.errClosed(); err != nil {
		return nil, err
	}
	if err := a.refresh(); err != nil {
		return nil, err
	}

	entry, ok := a.dir.table(table)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeTableNotFound, "table %s not found", table)
	}

	f, err := os.Open(a.path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to open tuck file")
	}
	defer f.Close()

	rows := make([]adapter.Row, 0, len(ordinals))
	for _, ord := range ordinals {
		if ord < 0 || ord >= len(entry.Rows) {
			return nil, errors.Newf(errors.ErrorTypeRowNotFound,
				"row ordinal %d out of range for table %s", ord, table)
		}
		row, err := a.readRecord(f, entry, entry.Rows[ord])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (a *tuckAdapter) readRecord(f *os.File, entry *tableEntry, loc locator) (adapter.Row, error) {
	buf := make([]byte, loc.Length)
	if _, err := f.ReadAt(buf, loc.Offset); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to read row record")
	}
	return decodeRow(entry.Columns, buf)
}

func (a *tuckAdapter) PatchRow(table string, pk interface{}, patch map[string]interface{}) (adapter.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.errClosed(); err != nil {
		return nil, err
	}
	if err := a.refresh(); err != nil {
		return nil, err
	}

	entry, ok := a.dir.table(table)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeTableNotFound, "table %s not found", table)
	}

	pkCol := ""
	for _, col := range entry.Columns {
		if col.PrimaryKey {
			pkCol = col.Name
		}
	}

	ordinal, oldRow, err := a.findByKey(entry, pkCol, pk)
	if err != nil {
		return nil, err
	}

	updated := make(adapter.Row, len(oldRow))
	for k, v := range oldRow {
		updated[k] = v
	}
	for k, v := range patch {
		if _, ok := updated[k]; !ok {
			return nil, errors.Newf(errors.ErrorTypeValidation, "unknown column %s", k)
		}
		updated[k] = v
	}

	record, err := encodeRow(entry.Columns, updated)
	if err != nil {
		return nil, err
	}

	loc := entry.Rows[ordinal]
	if int32(len(record)) == loc.Length {
		if err := a.patchInPlace(loc, record); err != nil {
			return nil, err
		}
	} else if err := a.rewrite(table, ordinal, updated); err != nil {
		return nil, err
	}

	// Locators and signature are stale after either write path.
	if err := a.load(); err != nil {
		return nil, err
	}
	return updated, nil
}

// patchInPlace overwrites one fixed-size row record where it sits.
func (a *tuckAdapter) patchInPlace(loc locator, record []byte) error {
	f, err := os.OpenFile(a.path, os.O_WRONLY, 0) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to open tuck file for write")
	}
	defer f.Close()

	if _, err := f.WriteAt(record, loc.Offset); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write row record")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to sync tuck file")
	}
	a.logger.Debug("patched row in place", zap.Int64("offset", loc.Offset))
	return nil
}

// rewrite rebuilds the whole file with one row replaced and renames it
// over the original.
func (a *tuckAdapter) rewrite(table string, ordinal int, updated adapter.Row) error {
	tables := make([]Table, 0, len(a.dir.Tables))

	f, err := os.Open(a.path) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to open tuck file")
	}
	defer f.Close()

	for i := range a.dir.Tables {
		entry := &a.dir.Tables[i]
		t := Table{
			Name:    entry.Name,
			Comment: entry.Comment,
			Columns: entry.Columns,
			Rows:    make([]adapter.Row, 0, len(entry.Rows)),
		}
		for ord, loc := range entry.Rows {
			if entry.Name == table && ord == ordinal {
				t.Rows = append(t.Rows, updated)
				continue
			}
			row, err := a.readRecord(f, entry, loc)
			if err != nil {
				return err
			}
			t.Rows = append(t.Rows, row)
		}
		tables = append(tables, t)
	}

	if err := fsutil.WriteAtomic(a.path, func(w io.Writer) error {
		return Write(w, tables)
	}); err != nil {
		if e, ok := err.(*errors.Error); ok {
			return e
		}
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to rewrite tuck file")
	}
	a.logger.Debug("rewrote tuck file", zap.String("table", table), zap.Int("ordinal", ordinal))
	return nil
}

// findByKey scans the table's records for the row whose primary key
// equals pk.
func (a *tuckAdapter) findByKey(entry *tableEntry, pkCol string, pk interface{}) (int, adapter.Row, error) {
	f, err := os.Open(a.path) //nolint:gosec
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to open tuck file")
	}
	defer f.Close()

	for ord, loc := range entry.Rows {
		row, err := a.readRecord(f, entry, loc)
		if err != nil {
			return 0, nil, err
		}
		if adapter.Compare(row[pkCol], pk) == 0 {
			return ord, row, nil
		}
	}

	return 0, nil, errors.Newf(errors.ErrorTypeRowNotFound,
		"no row in table %s with %s = %v", entry.Name, pkCol, pk)
}

func (a *tuckAdapter) Signature() (adapter.Signature, error) {
	return adapter.FileSignature(a.path)
}

func (a *tuckAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.dir = nil
	return nil
}
