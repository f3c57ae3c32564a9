// Package edit applies validated single-row patches through an
// adapter, with optimistic concurrency against the file's on-disk
// version.
package edit

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/errors"
)

// Editor validates and applies row patches.
type Editor struct {
	logger *zap.Logger
}

// NewEditor builds an editor.
func NewEditor(logger *zap.Logger) *Editor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Editor{logger: logger}
}

// Apply patches one row of table. The lock serializes writers on the
// same file. A non-empty token is the version the caller last saw; if
// the file changed since, the edit fails with a conflict and the file
// is left untouched. An empty token skips the check.
func (e *Editor) Apply(a adapter.Adapter, lock *sync.Mutex, table string, pk interface{}, patch map[string]interface{}, token string) (adapter.Row, error) {
	if len(patch) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "patch has no values")
	}

	schema, err := a.Schema(table)
	if err != nil {
		return nil, err
	}

	coerced, err := coercePatch(schema, patch)
	if err != nil {
		return nil, err
	}
	key, err := coerceKey(schema, pk)
	if err != nil {
		return nil, err
	}

	lock.Lock()
	defer lock.Unlock()

	if token != "" {
		if err := e.checkVersion(a, token); err != nil {
			return nil, err
		}
	}

	row, err := a.PatchRow(table, key, coerced)
	if err != nil {
		return nil, err
	}

	e.logger.Info("row edited",
		zap.String("path", a.Path()),
		zap.String("table", table),
		zap.Any("key", key),
		zap.Int("columns", len(coerced)))
	return row, nil
}

// checkVersion compares the caller's version token with the file as it
// is now.
func (e *Editor) checkVersion(a adapter.Adapter, token string) error {
	expected, err := adapter.ParseToken(token)
	if err != nil {
		return err
	}
	current, err := a.Signature()
	if err != nil {
		return err
	}
	if !current.Equal(expected) {
		return errors.New(errors.ErrorTypeConflict,
			"file changed since the row was read, reload and retry").
			WithDetail("expected", token).
			WithDetail("current", current.Token())
	}
	return nil
}

// coercePatch validates every patch value against the schema. The
// primary-key column cannot be patched.
func coercePatch(schema *adapter.TableSchema, patch map[string]interface{}) (map[string]interface{}, error) {
	coerced := make(map[string]interface{}, len(patch))
	for name, value := range patch {
		col, ok := schema.Column(name)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeValidation, "unknown column %s", name)
		}
		if col.PrimaryKey {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"primary-key column %s cannot be patched", name)
		}
		v, err := adapter.Coerce(value, *col)
		if err != nil {
			return nil, err
		}
		coerced[name] = v
	}
	return coerced, nil
}

// coerceKey shapes the caller's row key to the primary-key column type.
func coerceKey(schema *adapter.TableSchema, pk interface{}) (interface{}, error) {
	col := schema.PrimaryKey()
	if col == nil {
		return nil, errors.Newf(errors.ErrorTypeInternal,
			"table %s has no primary-key column", schema.Name)
	}
	if pk == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "row key cannot be null")
	}
	key, err := adapter.Coerce(pk, *col)
	if err != nil {
		return nil, err
	}
	return key, nil
}
