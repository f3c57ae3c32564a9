package csvfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/errors"
)

const citiesFixture = `name,population,area,coastal,note
amsterdam,821752,219.3,true,"canals, bikes"
bergen,283929,465.3,true,
cusco,428450,385.1,false,"high up
in the andes"
`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func openFixture(t *testing.T, path string) adapter.Adapter {
	t.Helper()
	a, err := New(path, adapter.Options{Logger: zaptest.NewLogger(t), SampleRows: 100})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOpenAndListTables(t *testing.T) {
	path := writeFixture(t, "cities.csv", citiesFixture)
	a := openFixture(t, path)

	names, err := a.ListTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"cities"}, names)
	assert.Equal(t, adapter.FormatCSV, a.Format())
}

func TestSchemaInference(t *testing.T) {
	path := writeFixture(t, "cities.csv", citiesFixture)
	a := openFixture(t, path)

	schema, err := a.Schema("cities")
	require.NoError(t, err)
	assert.Equal(t, 3, schema.RowCount)

	require.Len(t, schema.Columns, 6)
	assert.Equal(t, adapter.OrdinalColumn, schema.Columns[0].Name)
	assert.True(t, schema.Columns[0].PrimaryKey)

	name, ok := schema.Column("name")
	require.True(t, ok)
	assert.Equal(t, adapter.TypeString, name.Type)
	assert.False(t, name.Nullable)

	pop, ok := schema.Column("population")
	require.True(t, ok)
	assert.Equal(t, adapter.TypeInt, pop.Type)

	area, ok := schema.Column("area")
	require.True(t, ok)
	assert.Equal(t, adapter.TypeFloat, area.Type)

	coastal, ok := schema.Column("coastal")
	require.True(t, ok)
	assert.Equal(t, adapter.TypeBool, coastal.Type)

	// Empty field in one row makes the column nullable.
	note, ok := schema.Column("note")
	require.True(t, ok)
	assert.True(t, note.Nullable)

	_, err = a.Schema("towns")
	assert.True(t, errors.IsType(err, errors.ErrorTypeTableNotFound))
}

func TestReadRowsTypedValues(t *testing.T) {
	path := writeFixture(t, "cities.csv", citiesFixture)
	a := openFixture(t, path)

	rows, err := a.ReadRows("cities", []int{0, 1, 2})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, int64(0), rows[0][adapter.OrdinalColumn])
	assert.Equal(t, "amsterdam", rows[0]["name"])
	assert.Equal(t, int64(821752), rows[0]["population"])
	assert.Equal(t, 219.3, rows[0]["area"])
	assert.Equal(t, true, rows[0]["coastal"])
	assert.Equal(t, "canals, bikes", rows[0]["note"])

	// Empty field reads as nil.
	assert.Nil(t, rows[1]["note"])

	// Quoted newline stays inside one record.
	assert.Equal(t, "high up\nin the andes", rows[2]["note"])
	assert.Equal(t, false, rows[2]["coastal"])

	_, err = a.ReadRows("cities", []int{3})
	assert.True(t, errors.IsType(err, errors.ErrorTypeRowNotFound))
}

func TestPatchRow(t *testing.T) {
	path := writeFixture(t, "cities.csv", citiesFixture)
	a := openFixture(t, path)

	row, err := a.PatchRow("cities", int64(1), map[string]interface{}{
		"population": int64(291940),
		"note":       "rainy",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(291940), row["population"])
	assert.Equal(t, "rainy", row["note"])
	assert.Equal(t, "bergen", row["name"])

	// Reopen from scratch: neighbors untouched, change persisted.
	b := openFixture(t, path)
	rows, err := b.ReadRows("cities", []int{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(821752), rows[0]["population"])
	assert.Equal(t, int64(291940), rows[1]["population"])
	assert.Equal(t, "high up\nin the andes", rows[2]["note"])
}

func TestPatchRowErrors(t *testing.T) {
	path := writeFixture(t, "cities.csv", citiesFixture)
	a := openFixture(t, path)

	_, err := a.PatchRow("cities", int64(42), map[string]interface{}{"note": "x"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeRowNotFound))

	_, err = a.PatchRow("cities", "bergen", map[string]interface{}{"note": "x"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = a.PatchRow("cities", int64(0), map[string]interface{}{"ghost": "x"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = a.PatchRow("cities", int64(0), map[string]interface{}{adapter.OrdinalColumn: int64(9)})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestExternalChangeRebuildsIndex(t *testing.T) {
	path := writeFixture(t, "cities.csv", citiesFixture)
	a := openFixture(t, path)

	_, err := a.Schema("cities")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("name\nsolo\n"), 0o644))

	schema, err := a.Schema("cities")
	require.NoError(t, err)
	assert.Equal(t, 1, schema.RowCount)
	require.Len(t, schema.Columns, 2)
}

func TestRaggedRows(t *testing.T) {
	path := writeFixture(t, "ragged.csv", "a,b,c\n1,2\n3,4,5,6\n")
	a := openFixture(t, path)

	rows, err := a.ReadRows("ragged", []int{0, 1})
	require.NoError(t, err)
	assert.Nil(t, rows[0]["c"])
	assert.Equal(t, int64(5), rows[1]["c"])
}

func TestLargeFilePagedRead(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id,label\n")
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&sb, "%d,row-%d\n", i, i)
	}
	path := writeFixture(t, "big.csv", sb.String())
	a := openFixture(t, path)

	rows, err := a.ReadRows("big", []int{9999, 123})
	require.NoError(t, err)
	assert.Equal(t, "row-9999", rows[0]["label"])
	assert.Equal(t, int64(123), rows[1]["id"])
}

func TestCorruptHeader(t *testing.T) {
	path := writeFixture(t, "empty.csv", "")
	_, err := New(path, adapter.Options{Logger: zaptest.NewLogger(t)})
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptFile))
}

func TestAccessAfterClose(t *testing.T) {
	path := writeFixture(t, "cities.csv", citiesFixture)
	a := openFixture(t, path)
	require.NoError(t, a.Close())

	_, err := a.Schema("cities")
	assert.True(t, errors.IsType(err, errors.ErrorTypeHandleNotFound))
	_, err = a.ListTables()
	assert.True(t, errors.IsType(err, errors.ErrorTypeHandleNotFound))
	_, err = a.ReadRows("cities", []int{0})
	assert.True(t, errors.IsType(err, errors.ErrorTypeHandleNotFound))
	_, err = a.PatchRow("cities", int64(0), map[string]interface{}{"note": "late"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeHandleNotFound))
}
