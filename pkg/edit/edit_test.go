package edit

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/adapter/jsonfile"
	"github.com/tuckview/tuckview/pkg/errors"
)

const peopleFixture = `{"name": "ada", "age": 36, "active": true}
{"name": "bob", "age": 41, "active": false}
`

func openFixture(t *testing.T) (adapter.Adapter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.json")
	require.NoError(t, os.WriteFile(path, []byte(peopleFixture), 0o644))
	a, err := jsonfile.New(path, adapter.Options{Logger: zaptest.NewLogger(t), SampleRows: 100})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, path
}

func TestApplyWithMatchingToken(t *testing.T) {
	a, _ := openFixture(t)
	e := NewEditor(zaptest.NewLogger(t))
	var mu sync.Mutex

	sig, err := a.Signature()
	require.NoError(t, err)

	row, err := e.Apply(a, &mu, "people", int64(1), map[string]interface{}{"age": int64(42)}, sig.Token())
	require.NoError(t, err)
	assert.Equal(t, int64(42), row["age"])
	assert.Equal(t, "bob", row["name"])

	// The change is durable.
	rows, err := a.ReadRows("people", []int{1})
	require.NoError(t, err)
	assert.Equal(t, int64(42), rows[0]["age"])
}

func TestApplyWithoutTokenSkipsCheck(t *testing.T) {
	a, _ := openFixture(t)
	e := NewEditor(zaptest.NewLogger(t))
	var mu sync.Mutex

	row, err := e.Apply(a, &mu, "people", int64(0), map[string]interface{}{"active": false}, "")
	require.NoError(t, err)
	assert.Equal(t, false, row["active"])
}

func TestApplyConflictOnExternalChange(t *testing.T) {
	a, path := openFixture(t)
	e := NewEditor(zaptest.NewLogger(t))
	var mu sync.Mutex

	sig, err := a.Signature()
	require.NoError(t, err)
	stale := sig.Token()

	// Someone else rewrites the file after our token was issued.
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "zed", "age": 9, "active": true}`+"\n"), 0o644))

	_, err = e.Apply(a, &mu, "people", int64(0), map[string]interface{}{"age": int64(10)}, stale)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))

	// The conflicting edit left the file alone.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "zed")
	assert.NotContains(t, string(data), "10")
}

func TestApplyValidation(t *testing.T) {
	a, _ := openFixture(t)
	e := NewEditor(zaptest.NewLogger(t))
	var mu sync.Mutex

	_, err := e.Apply(a, &mu, "people", int64(0), map[string]interface{}{}, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = e.Apply(a, &mu, "people", int64(0), map[string]interface{}{"ghost": 1}, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	// Type mismatch against the inferred schema.
	_, err = e.Apply(a, &mu, "people", int64(0), map[string]interface{}{"age": "old"}, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	// The synthetic key column is immutable.
	_, err = e.Apply(a, &mu, "people", int64(0), map[string]interface{}{adapter.OrdinalColumn: int64(3)}, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	// Null key and unparseable key.
	_, err = e.Apply(a, &mu, "people", nil, map[string]interface{}{"age": int64(1)}, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	// Malformed version token fails before any write.
	_, err = e.Apply(a, &mu, "people", int64(0), map[string]interface{}{"age": int64(1)}, "gibberish")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestApplyRowNotFound(t *testing.T) {
	a, _ := openFixture(t)
	e := NewEditor(zaptest.NewLogger(t))
	var mu sync.Mutex

	_, err := e.Apply(a, &mu, "people", int64(57), map[string]interface{}{"age": int64(1)}, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeRowNotFound))
}
