package adapter

// ColumnType is the declared scalar type of a column.
type ColumnType string

const (
	// TypeInt is a 64-bit signed integer column.
	TypeInt ColumnType = "int"
	// TypeFloat is a 64-bit floating point column.
	TypeFloat ColumnType = "float"
	// TypeString is a text column.
	TypeString ColumnType = "string"
	// TypeBool is a boolean column.
	TypeBool ColumnType = "bool"
)

// ColumnDef describes one column of a table.
type ColumnDef struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	Nullable   bool       `json:"nullable"`
	PrimaryKey bool       `json:"primary_key"`
}

// TableSchema describes one table: its ordered columns and current row
// count. Exactly one column is the primary key; formats without a native
// key get the synthetic OrdinalColumn.
type TableSchema struct {
	Name     string      `json:"name"`
	Comment  string      `json:"comment,omitempty"`
	Columns  []ColumnDef `json:"columns"`
	RowCount int         `json:"row_count"`
}

// Column looks up a column definition by name.
func (s *TableSchema) Column(name string) (*ColumnDef, bool) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// PrimaryKey returns the primary-key column. Schemas produced by the
// adapters always have exactly one.
func (s *TableSchema) PrimaryKey() *ColumnDef {
	for i := range s.Columns {
		if s.Columns[i].PrimaryKey {
			return &s.Columns[i]
		}
	}
	return nil
}

// Row maps column names to scalar values (int64, float64, string, bool,
// or nil). The primary-key column is always present. Rows are transient
// values handed to callers; the core never retains them.
type Row map[string]interface{}

// SortDirection orders a sorted page ascending or descending.
type SortDirection string

const (
	// Asc sorts smallest first.
	Asc SortDirection = "asc"
	// Desc sorts largest first.
	Desc SortDirection = "desc"
)

// SortSpec names the column and direction of a sorted page request.
// The column must exist in the table's schema.
type SortSpec struct {
	Column    string        `json:"column"`
	Direction SortDirection `json:"direction"`
}
