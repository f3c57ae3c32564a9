// Package tuck implements the proprietary binary table format (.bin).
//
// Layout:
//
//	offset 0   magic "TUCK"
//	offset 4   format version, uint16 LE
//	offset 6   reserved, uint16
//	offset 8   directory offset, uint64 LE
//	offset 16  row data region
//	dirOffset  directory: uint32 LE length + JSON
//	EOF-4      trailing magic "KCUT"
//
// The directory is the format's native index: per table it carries the
// column definitions and one (offset, length) locator per row into the
// data region. Row records are type-tagged values in column order; the
// non-string tags are fixed width, which is what makes same-size
// in-place patches possible.
package tuck

import (
	"encoding/binary"
	"math"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/errors"
)

const (
	headerMagic  = "TUCK"
	footerMagic  = "KCUT"
	headerSize   = 16
	versionCur   = 1
	maxDirectory = 64 << 20 // sanity bound on directory length
)

// Value tags in row records.
const (
	tagNull byte = iota
	tagBool
	tagInt
	tagFloat
	tagString
)

// directory is the JSON block at the end of the file.
type directory struct {
	Tables []tableEntry `json:"tables"`
}

type tableEntry struct {
	Name    string              `json:"name"`
	Comment string              `json:"comment,omitempty"`
	Columns []adapter.ColumnDef `json:"columns"`
	Rows    []locator           `json:"rows"`
}

// locator points at one row record inside the data region.
type locator struct {
	Offset int64 `json:"offset"`
	Length int32 `json:"length"`
}

func (d *directory) table(name string) (*tableEntry, bool) {
	for i := range d.Tables {
		if d.Tables[i].Name == name {
			return &d.Tables[i], true
		}
	}
	return nil, false
}

// encodeRow serializes one row's values in column order.
func encodeRow(columns []adapter.ColumnDef, row adapter.Row) ([]byte, error) {
	buf := make([]byte, 0, 16*len(columns))

	for _, col := range columns {
		value := row[col.Name]
		switch v := value.(type) {
		case nil:
			buf = append(buf, tagNull)
		case bool:
			buf = append(buf, tagBool)
			if v {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case int64:
			buf = append(buf, tagInt)
			buf = binary.LittleEndian.AppendUint64(buf, uint64(v))
		case int:
			buf = append(buf, tagInt)
			buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(v)))
		case float64:
			buf = append(buf, tagFloat)
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		case string:
			buf = append(buf, tagString)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
			buf = append(buf, v...)
		default:
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"column %s holds unsupported value type %T", col.Name, value)
		}
	}

	return buf, nil
}

// decodeRow parses one row record back into column values.
func decodeRow(columns []adapter.ColumnDef, data []byte) (adapter.Row, error) {
	row := make(adapter.Row, len(columns))
	pos := 0

	for _, col := range columns {
		if pos >= len(data) {
			return nil, errors.Newf(errors.ErrorTypeCorruptFile,
				"row record truncated before column %s", col.Name)
		}
		tag := data[pos]
		pos++

		switch tag {
		case tagNull:
			row[col.Name] = nil
		case tagBool:
			if pos+1 > len(data) {
				return nil, errors.New(errors.ErrorTypeCorruptFile, "row record truncated in bool value")
			}
			row[col.Name] = data[pos] != 0
			pos++
		case tagInt:
			if pos+8 > len(data) {
				return nil, errors.New(errors.ErrorTypeCorruptFile, "row record truncated in int value")
			}
			row[col.Name] = int64(binary.LittleEndian.Uint64(data[pos:]))
			pos += 8
		case tagFloat:
			if pos+8 > len(data) {
				return nil, errors.New(errors.ErrorTypeCorruptFile, "row record truncated in float value")
			}
			row[col.Name] = math.Float64frombits(binary.LittleEndian.Uint64(data[pos:]))
			pos += 8
		case tagString:
			if pos+4 > len(data) {
				return nil, errors.New(errors.ErrorTypeCorruptFile, "row record truncated in string length")
			}
			n := int(binary.LittleEndian.Uint32(data[pos:]))
			pos += 4
			if pos+n > len(data) {
				return nil, errors.New(errors.ErrorTypeCorruptFile, "row record truncated in string value")
			}
			row[col.Name] = string(data[pos : pos+n])
			pos += n
		default:
			return nil, errors.Newf(errors.ErrorTypeCorruptFile, "unknown value tag %d", tag)
		}
	}

	if pos != len(data) {
		return nil, errors.New(errors.ErrorTypeCorruptFile, "row record has trailing bytes")
	}

	return row, nil
}
