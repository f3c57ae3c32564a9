package tuck

import (
	"encoding/binary"
	"io"
	"os"

	gojson "github.com/goccy/go-json"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/errors"
)

// Table is the input to the writer: one table's schema and rows.
type Table struct {
	Name    string
	Comment string
	Columns []adapter.ColumnDef
	Rows    []adapter.Row
}

// Write serializes tables into the tuck binary layout.
func Write(w io.Writer, tables []Table) error {
	dir := directory{Tables: make([]tableEntry, 0, len(tables))}
	var data []byte

	for _, t := range tables {
		if err := validateTable(t); err != nil {
			return err
		}

		entry := tableEntry{
			Name:    t.Name,
			Comment: t.Comment,
			Columns: t.Columns,
			Rows:    make([]locator, 0, len(t.Rows)),
		}
		for _, row := range t.Rows {
			rec, err := encodeRow(t.Columns, row)
			if err != nil {
				return err
			}
			entry.Rows = append(entry.Rows, locator{
				Offset: headerSize + int64(len(data)),
				Length: int32(len(rec)),
			})
			data = append(data, rec...)
		}
		dir.Tables = append(dir.Tables, entry)
	}

	dirJSON, err := gojson.Marshal(&dir)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode directory")
	}

	header := make([]byte, headerSize)
	copy(header, headerMagic)
	binary.LittleEndian.PutUint16(header[4:], versionCur)
	binary.LittleEndian.PutUint64(header[8:], uint64(headerSize+len(data)))

	dirLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(dirLen, uint32(len(dirJSON)))

	for _, chunk := range [][]byte{header, data, dirLen, dirJSON, []byte(footerMagic)} {
		if _, err := w.Write(chunk); err != nil {
			return errors.Wrap(err, errors.ErrorTypeIO, "failed to write tuck file")
		}
	}
	return nil
}

// WriteFile writes tables to a new file at path.
func WriteFile(path string, tables []Table) error {
	f, err := os.Create(path) //nolint:gosec // G304: path is caller-controlled
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to create tuck file")
	}
	if err := Write(f, tables); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to close tuck file")
	}
	return nil
}

func validateTable(t Table) error {
	if t.Name == "" {
		return errors.New(errors.ErrorTypeValidation, "table name cannot be empty")
	}
	if len(t.Columns) == 0 {
		return errors.Newf(errors.ErrorTypeValidation, "table %s has no columns", t.Name)
	}

	pks := 0
	for _, col := range t.Columns {
		if col.PrimaryKey {
			pks++
		}
	}
	if pks != 1 {
		return errors.Newf(errors.ErrorTypeValidation,
			"table %s must have exactly one primary-key column, has %d", t.Name, pks)
	}
	return nil
}
