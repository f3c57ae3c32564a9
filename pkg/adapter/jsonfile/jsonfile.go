// Package jsonfile implements the adapter for line-delimited JSON
// record files (.json). The file models exactly one table named after
// the file; each non-blank line is one record. Open scans the file once
// to record the byte offset of every record and to infer a schema from
// a bounded sample, so later page reads touch only the requested rows.
package jsonfile

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/errors"
	"github.com/tuckview/tuckview/pkg/fsutil"
)

func init() {
	adapter.RegisterFormat(adapter.FormatJSON, []string{".json", ".jsonl", ".ndjson"}, New)
}

type locator struct {
	offset int64
	length int
}

type jsonAdapter struct {
	path       string
	table      string
	logger     *zap.Logger
	sampleRows int

	mu     sync.Mutex
	closed bool
	index  []locator
	schema *adapter.TableSchema
	sig    adapter.Signature
}

// New opens a line-delimited JSON file, recording record offsets and
// inferring the schema without materializing the data.
func New(path string, opts adapter.Options) (adapter.Adapter, error) {
	a := &jsonAdapter{
		path:       path,
		table:      tableName(path),
		logger:     opts.Logger.With(zap.String("format", "json"), zap.String("path", path)),
		sampleRows: opts.SampleRows,
	}
	if err := a.load(); err != nil {
		return nil, err
	}
	a.logger.Debug("opened json file", zap.Int("rows", len(a.index)))
	return a, nil
}

func tableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// load scans the file once: record locators for every non-blank line,
// plus a schema inferred from the leading sample.
func (a *jsonAdapter) load() error {
	sig, err := adapter.FileSignature(a.path)
	if err != nil {
		return err
	}

	f, err := os.Open(a.path) //nolint:gosec // G304: path was validated by the registry
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to open json file")
	}
	defer f.Close()

	var (
		index   []locator
		columns []adapter.ColumnDef
		seen    = make(map[string]int)
		reader  = bufio.NewReader(f)
		offset  int64
	)

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				if len(index) == 0 && trimmed[0] != '{' {
					return errors.New(errors.ErrorTypeCorruptFile,
						"expected line-delimited JSON objects, file starts with something else")
				}
				if len(index) < a.sampleRows {
					record, derr := decodeRecord(trimmed)
					if derr != nil {
						return errors.Wrap(derr, errors.ErrorTypeCorruptFile, "failed to parse json record").
							WithDetail("row", len(index))
					}
					columns = observeColumns(columns, seen, record)
				}
				index = append(index, locator{offset: offset, length: len(line)})
			}
			offset += int64(len(line))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeIO, "failed to scan json file")
		}
	}

	// Records sampled with a column absent are nullable.
	for i := range columns {
		if seen[columns[i].Name] < min(len(index), a.sampleRows) {
			columns[i].Nullable = true
		}
	}

	schema := &adapter.TableSchema{
		Name:     a.table,
		Columns:  append([]adapter.ColumnDef{{Name: adapter.OrdinalColumn, Type: adapter.TypeInt, PrimaryKey: true}}, columns...),
		RowCount: len(index),
	}

	a.index = index
	a.schema = schema
	a.sig = sig
	return nil
}

// observeColumns merges one sampled record into the inferred columns,
// keeping first-seen column order.
func observeColumns(columns []adapter.ColumnDef, seen map[string]int, record map[string]interface{}) []adapter.ColumnDef {
	byName := make(map[string]int, len(columns))
	for i, col := range columns {
		byName[col.Name] = i
	}

	for key, value := range record {
		colType, typed := adapter.ScalarTypeOf(value)

		idx, exists := byName[key]
		if !exists {
			col := adapter.ColumnDef{Name: key, Type: adapter.TypeString, Nullable: value == nil}
			if typed {
				col.Type = colType
			}
			columns = append(columns, col)
			byName[key] = len(columns) - 1
			if typed {
				seen[key]++
			}
			continue
		}

		if value == nil {
			columns[idx].Nullable = true
			continue
		}
		if seen[key] == 0 {
			columns[idx].Type = colType
		} else {
			columns[idx].Type = adapter.WidenType(columns[idx].Type, colType)
		}
		seen[key]++
	}

	return columns
}

// decodeRecord parses one JSON object, normalizing numbers to int64
// when integral and float64 otherwise.
func decodeRecord(line []byte) (map[string]interface{}, error) {
	dec := gojson.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var record map[string]interface{}
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	for k, v := range record {
		record[k] = normalize(v)
	}
	return record, nil
}

func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case gojson.Number:
		if !strings.ContainsAny(string(n), ".eE") {
			if i, err := n.Int64(); err == nil {
				return i
			}
		}
		f, err := n.Float64()
		if err != nil {
			return string(n)
		}
		return f
	case map[string]interface{}:
		for k, vv := range n {
			n[k] = normalize(vv)
		}
		return n
	case []interface{}:
		for i := range n {
			n[i] = normalize(n[i])
		}
		return n
	default:
		return v
	}
}

// refresh rebuilds the index when the file changed on disk.
func (a *jsonAdapter) refresh() error {
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

func (a *jsonAdapter) Format() adapter.Format { return adapter.FormatJSON }

func (a *jsonAdapter) Path() string { return a.path }

// errClosed guards every access made after Close. A handle closed or
// evicted while a caller still holds the adapter must error, not panic.
func (a *jsonAdapter) errClosed() error {
	if a.closed {
		return errors.New(errors.ErrorTypeHandleNotFound, "file is no longer open")
	}
	return nil
}

func (a *jsonAdapter) ListTables() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.errClosed(); err != nil {
		return nil, err
	}
	return []string{a.table}, nil
}

func (a *jsonAdapter) Schema(table string) (*adapter.TableSchema, error) {
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

func (a *jsonAdapter) ReadRows(table string, ordinals []int) ([]adapter.Row, error) {
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
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to open json file")
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

func (a *jsonAdapter) readRecord(f *os.File, ordinal int) (map[string]interface{}, error) {
	loc := a.index[ordinal]
	buf := make([]byte, loc.length)
	if _, err := f.ReadAt(buf, loc.offset); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to read json record")
	}

	record, err := decodeRecord(bytes.TrimSpace(buf))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "failed to parse json record").
			WithDetail("row", ordinal)
	}
	return record, nil
}

// toRow shapes a decoded record to the schema's columns, injecting the
// synthetic ordinal key. Keys outside the inferred schema (past the
// sample window) are still carried through.
func (a *jsonAdapter) toRow(ordinal int, record map[string]interface{}) adapter.Row {
	row := make(adapter.Row, len(record)+1)
	for k, v := range record {
		row[k] = v
	}
	for _, col := range a.schema.Columns[1:] {
		if _, ok := row[col.Name]; !ok {
			row[col.Name] = nil
		}
	}
	row[adapter.OrdinalColumn] = int64(ordinal)
	return row
}

func (a *jsonAdapter) PatchRow(table string, pk interface{}, patch map[string]interface{}) (adapter.Row, error) {
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

	f, err := os.Open(a.path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to open json file")
	}
	record, err := a.readRecord(f, ordinal)
	f.Close()
	if err != nil {
		return nil, err
	}

	for k, v := range patch {
		if k == adapter.OrdinalColumn {
			return nil, errors.New(errors.ErrorTypeValidation, "synthetic row key cannot be patched")
		}
		if _, ok := a.schema.Column(k); !ok {
			return nil, errors.Newf(errors.ErrorTypeValidation, "unknown column %s", k)
		}
		record[k] = v
	}

	if err := a.rewrite(ordinal, record); err != nil {
		return nil, err
	}
	if err := a.load(); err != nil {
		return nil, err
	}
	return a.toRow(ordinal, record), nil
}

// rewrite copies the file line by line with one record replaced, then
// renames the result over the original. Untouched lines keep their
// original bytes.
func (a *jsonAdapter) rewrite(ordinal int, record map[string]interface{}) error {
	replacement, err := gojson.Marshal(record)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode json record")
	}

	src, err := os.Open(a.path) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to open json file")
	}
	defer src.Close()

	werr := fsutil.WriteAtomic(a.path, func(w io.Writer) error {
		reader := bufio.NewReader(src)
		writer := bufio.NewWriter(w)
		row := 0

		for {
			line, rerr := reader.ReadBytes('\n')
			if len(line) > 0 {
				if len(bytes.TrimSpace(line)) > 0 {
					if row == ordinal {
						writer.Write(replacement)
						writer.WriteByte('\n')
					} else {
						writer.Write(line)
					}
					row++
				} else {
					writer.Write(line)
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return rerr
			}
		}
		return writer.Flush()
	})
	if werr != nil {
		return errors.Wrap(werr, errors.ErrorTypeIO, "failed to rewrite json file")
	}

	a.logger.Debug("rewrote json file", zap.Int("ordinal", ordinal))
	return nil
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

func (a *jsonAdapter) Signature() (adapter.Signature, error) {
	return adapter.FileSignature(a.path)
}

func (a *jsonAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.index = nil
	a.schema = nil
	return nil
}
