// Package adapter defines the uniform table access interface that makes
// the supported on-disk formats (tuck binary, line-delimited JSON, CSV)
// behave like one paginated, sortable table store.
//
// Each format lives in its own subpackage and registers a factory here
// keyed by file extension. Opening a file parses only structural
// metadata (headers and row locators); row data is fetched on demand by
// ordinal, which is what keeps pagination bounded-memory regardless of
// file size.
package adapter

// Format identifies one supported on-disk encoding.
type Format string

const (
	// FormatTuck is the proprietary binary table format (.bin).
	FormatTuck Format = "tuck"
	// FormatJSON is line-delimited JSON records (.json).
	FormatJSON Format = "json"
	// FormatCSV is comma-separated values with a header row (.csv).
	FormatCSV Format = "csv"
)

// OrdinalColumn is the synthetic primary-key column injected for formats
// that carry no key of their own (CSV, JSON). Its value is the row's
// ordinal position in the file. It is immutable and always returned.
const OrdinalColumn = "_rowid"

// Adapter is the capability set every format variant implements.
//
// Implementations are not safe for concurrent mutation; the owning
// registry entry serializes writes through a per-file lock. Reads are
// pure and may interleave freely with each other.
type Adapter interface {
	// Format reports which variant this adapter is.
	Format() Format

	// Path reports the canonical path of the open file.
	Path() string

	// ListTables returns the table names in the file. JSON and CSV
	// expose exactly one table named after the file.
	ListTables() ([]string, error)

	// Schema returns the schema of one table, including its current
	// row count. Fails with ErrorTypeTableNotFound for unknown names.
	Schema(table string) (*TableSchema, error)

	// ReadRows fetches the rows at the given ordinals using the row
	// index for O(1) locator lookup per ordinal. Ordinals out of range
	// fail with ErrorTypeRowNotFound.
	ReadRows(table string, ordinals []int) ([]Row, error)

	// PatchRow updates a single row identified by primary key value and
	// returns the updated row. The patch must already be validated and
	// coerced; adapters still reject unknown rows.
	PatchRow(table string, pk interface{}, patch map[string]interface{}) (Row, error)

	// Signature returns the file's current modification fingerprint.
	Signature() (Signature, error)

	// Close releases the adapter's resources.
	Close() error
}
