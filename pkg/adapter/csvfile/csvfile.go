// Package csvfile implements the adapter for CSV files with a header
// row (.csv). The file models exactly one table named after the file.
// Open makes a single structural pass: it records the byte range of
// every record (csv.Reader's InputOffset, so quoted newlines are
// handled) and infers column types from a bounded sample of leading
// rows. Page reads then fetch only the requested records.
package csvfile

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/errors"
	"github.com/tuckview/tuckview/pkg/fsutil"
)

func init() {
	adapter.RegisterFormat(adapter.FormatCSV, []string{".csv"}, New)
}

type locator struct {
	offset int64
	length int64
}

type csvAdapter struct {
	path       string
	table      string
	logger     *zap.Logger
	sampleRows int

	mu      sync.Mutex
	closed  bool
	headers []string
	index   []locator
	schema  *adapter.TableSchema
	sig     adapter.Signature
}

// New opens a CSV file, recording record offsets and inferring column
// types from the first rows.
func New(path string, opts adapter.Options) (adapter.Adapter, error) {
	a := &csvAdapter{
		path:       path,
		table:      tableName(path),
		logger:     opts.Logger.With(zap.String("format", "csv"), zap.String("path", path)),
		sampleRows: opts.SampleRows,
	}
	if err := a.load(); err != nil {
		return nil, err
	}
	a.logger.Debug("opened csv file", zap.Int("rows", len(a.index)))
	return a, nil
}

func tableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// load makes the structural pass: header, per-record locators, and a
// type-inference sample.
func (a *csvAdapter) load() error {
	sig, err := adapter.FileSignature(a.path)
	if err != nil {
		return err
	}

	f, err := os.Open(a.path) //nolint:gosec // G304: path was validated by the registry
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to open csv file")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // tolerate ragged rows
	reader.ReuseRecord = true

	headers, err := reader.Read()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeCorruptFile, "failed to read csv header")
	}
	headers = append([]string(nil), headers...)

	var (
		index    []locator
		types    = make([]adapter.ColumnType, len(headers))
		typed    = make([]bool, len(headers))
		nullable = make([]bool, len(headers))
		prev     = reader.InputOffset()
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeCorruptFile, "failed to parse csv record").
				WithDetail("row", len(index))
		}

		cur := reader.InputOffset()
		if len(index) < a.sampleRows {
			observeRecord(record, types, typed, nullable)
		}
		index = append(index, locator{offset: prev, length: cur - prev})
		prev = cur
	}

	columns := make([]adapter.ColumnDef, 0, len(headers)+1)
	columns = append(columns, adapter.ColumnDef{
		Name: adapter.OrdinalColumn, Type: adapter.TypeInt, PrimaryKey: true,
	})
	for i, name := range headers {
		colType := adapter.TypeString
		if typed[i] {
			colType = types[i]
		}
		columns = append(columns, adapter.ColumnDef{
			Name: name, Type: colType, Nullable: nullable[i],
		})
	}

	a.headers = headers
	a.index = index
	a.schema = &adapter.TableSchema{
		Name:     a.table,
		Columns:  columns,
		RowCount: len(index),
	}
	a.sig = sig
	return nil
}

// observeRecord folds one sampled record into the running inference.
func observeRecord(record []string, types []adapter.ColumnType, typed, nullable []bool) {
	for i := range types {
		if i >= len(record) || strings.TrimSpace(record[i]) == "" {
			nullable[i] = true
			continue
		}
		t := adapter.InferScalarType(record[i])
		if !typed[i] {
			types[i] = t
			typed[i] = true
		} else {
			types[i] = adapter.WidenType(types[i], t)
		}
	}
}

// refresh rebuilds the index when the file changed on disk.
func (a *csvAdapter) refresh() error {
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

func (a *csvAdapter) Format() adapter.Format { return adapter.FormatCSV }

func (a *csvAdapter) Path() string { return a.path }

// errClosed guards every access made after Close. A handle closed or
// evicted while a caller still holds the adapter must error, not panic.
func (a *csvAdapter) errClosed() error {
	if a.closed {
		return errors.New(errors.ErrorTypeHandleNotFound, "file is no longer open")
	}
	return nil
}

func (a *csvAdapter) ListTables() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.errClosed(); err != nil {
		return nil, err
	}
	return []string{a.table}, nil
}

func (a *csvAdapter) Schema(table string) (*adapter.TableSchema, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.errClosed(); err != nil {
		return nil, err
	}
	if err := a.refresh(); err != nil {
		return nil, err
	}
	if table != a.table {
		return nil, errors.Newf(errors.ErrorTypeTableNotFound, "table %s not found", table)
	}

	out := *a.schema
	out.Columns = append([]adapter.ColumnDef(nil), a.schema.Columns...)
	return &out, nil
}

func (a *csvAdapter) ReadRows(table string, ordinals []int) ([]adapter.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.errClosed(); err != nil {
		return nil, err
	}
	if err := a.refresh(); err != nil {
		return nil, err
	}
	if table != a.table {
		return nil, errors.Newf(errors.ErrorTypeTableNotFound, "table %s not found", table)
	}

	f, err := os.Open(a.path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to open csv file")
	}
	defer f.Close()

	rows := make([]adapter.Row, 0, len(ordinals))
	for _, ord := range ordinals {
		if ord < 0 || ord >= len(a.index) {
			return nil, errors.Newf(errors.ErrorTypeRowNotFound,
				"row ordinal %d out of range for table %s", ord, table)
		}
		record, err := a.readRecord(f, ord)
		if err != nil {
			return nil, err
		}
		rows = append(rows, a.toRow(ord, record))
	}
	return rows, nil
}

func (a *csvAdapter) readRecord(f *os.File, ordinal int) ([]string, error) {
	loc := a.index[ordinal]
	section := io.NewSectionReader(f, loc.offset, loc.length)

	reader := csv.NewReader(section)
	reader.FieldsPerRecord = -1

	record, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "failed to parse csv record").
			WithDetail("row", ordinal)
	}
	return record, nil
}

// toRow converts raw fields to typed values per the inferred schema and
// injects the synthetic ordinal key.
func (a *csvAdapter) toRow(ordinal int, record []string) adapter.Row {
	row := make(adapter.Row, len(a.headers)+1)
	row[adapter.OrdinalColumn] = int64(ordinal)

	for i, name := range a.headers {
		if i >= len(record) {
			row[name] = nil
			continue
		}
		// Schema columns are offset by one for the ordinal key.
		row[name] = adapter.ParseScalar(record[i], a.schema.Columns[i+1].Type)
	}
	return row
}

func (a *csvAdapter) PatchRow(table string, pk interface{}, patch map[string]interface{}) (adapter.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.errClosed(); err != nil {
		return nil, err
	}
	if err := a.refresh(); err != nil {
		return nil, err
	}
	if table != a.table {
		return nil, errors.Newf(errors.ErrorTypeTableNotFound, "table %s not found", table)
	}

	ordinal, err := ordinalKey(pk, len(a.index))
	if err != nil {
		return nil, err
	}

	patchFields := make(map[int]string, len(patch))
	for k, v := range patch {
		if k == adapter.OrdinalColumn {
			return nil, errors.New(errors.ErrorTypeValidation, "synthetic row key cannot be patched")
		}
		col := columnIndex(a.headers, k)
		if col < 0 {
			return nil, errors.Newf(errors.ErrorTypeValidation, "unknown column %s", k)
		}
		patchFields[col] = adapter.FormatScalar(v)
	}

	if err := a.rewrite(ordinal, patchFields); err != nil {
		return nil, err
	}
	if err := a.load(); err != nil {
		return nil, err
	}

	f, err := os.Open(a.path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to open csv file")
	}
	defer f.Close()
	record, err := a.readRecord(f, ordinal)
	if err != nil {
		return nil, err
	}
	return a.toRow(ordinal, record), nil
}

// rewrite streams the whole file to a temporary sibling with one
// record's fields replaced, then renames it over the original.
func (a *csvAdapter) rewrite(ordinal int, patchFields map[int]string) error {
	src, err := os.Open(a.path) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to open csv file")
	}
	defer src.Close()

	werr := fsutil.WriteAtomic(a.path, func(w io.Writer) error {
		reader := csv.NewReader(src)
		reader.FieldsPerRecord = -1
		writer := csv.NewWriter(w)

		header, rerr := reader.Read()
		if rerr != nil {
			return rerr
		}
		if rerr := writer.Write(header); rerr != nil {
			return rerr
		}

		row := 0
		for {
			record, rerr := reader.Read()
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return rerr
			}
			if row == ordinal {
				for i, value := range patchFields {
					for len(record) <= i {
						record = append(record, "")
					}
					record[i] = value
				}
			}
			if rerr := writer.Write(record); rerr != nil {
				return rerr
			}
			row++
		}

		writer.Flush()
		return writer.Error()
	})
	if werr != nil {
		return errors.Wrap(werr, errors.ErrorTypeIO, "failed to rewrite csv file")
	}

	a.logger.Debug("rewrote csv file", zap.Int("ordinal", ordinal))
	return nil
}

func columnIndex(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

// ordinalKey interprets a primary-key value against the synthetic
// ordinal key space.
func ordinalKey(pk interface{}, rows int) (int, error) {
	var ordinal int64
	switch v := pk.(type) {
	case int:
		ordinal = int64(v)
	case int64:
		ordinal = v
	case float64:
		ordinal = int64(v)
	default:
		return 0, errors.Newf(errors.ErrorTypeValidation, "row key %v is not an ordinal", pk)
	}

	if ordinal < 0 || ordinal >= int64(rows) {
		return 0, errors.Newf(errors.ErrorTypeRowNotFound, "no row with ordinal %d", ordinal)
	}
	return int(ordinal), nil
}

func (a *csvAdapter) Signature() (adapter.Signature, error) {
	return adapter.FileSignature(a.path)
}

func (a *csvAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.index = nil
	a.schema = nil
	return nil
}
