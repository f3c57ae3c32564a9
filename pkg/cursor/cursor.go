// Package cursor turns adapter row access into stable, bounded pages.
// The engine never materializes a whole table for unsorted reads, and
// for sorted reads it materializes only (ordinal, key) pairs, fetching
// full rows for the final page alone.
package cursor

import (
	"sort"

	"go.uber.org/zap"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/errors"
)

// DefaultMaxPageSize caps a single page when the caller does not
// configure a limit of its own.
const DefaultMaxPageSize = 500

// keyScanChunk bounds how many rows a sort key scan reads per adapter
// call.
const keyScanChunk = 1024

// Page is one window over a table.
type Page struct {
	Rows       []adapter.Row     `json:"rows"`
	TotalCount int               `json:"total_count"`
	Offset     int               `json:"offset"`
	Limit      int               `json:"limit"`
	Sort       *adapter.SortSpec `json:"sort,omitempty"`
}

// Engine computes pages against any adapter.
type Engine struct {
	maxPageSize int
	logger      *zap.Logger
}

// NewEngine builds an engine. A non-positive maxPageSize falls back to
// the default cap.
func NewEngine(maxPageSize int, logger *zap.Logger) *Engine {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{maxPageSize: maxPageSize, logger: logger}
}

// GetPage reads one page of table in storage order, or ordered by sort
// when given. Offset is clamped at zero. A non-positive limit reads a
// full page at the configured cap, so callers that leave limit unset
// get the largest page allowed; positive limits are clamped to the cap.
// An offset at or past the end yields an empty page with the true total.
func (e *Engine) GetPage(a adapter.Adapter, table string, offset, limit int, sortSpec *adapter.SortSpec) (*Page, error) {
	schema, err := a.Schema(table)
	if err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = e.maxPageSize
	}
	if limit > e.maxPageSize {
		e.logger.Debug("clamping page limit",
			zap.Int("requested", limit), zap.Int("max", e.maxPageSize))
		limit = e.maxPageSize
	}

	if sortSpec != nil {
		if _, ok := schema.Column(sortSpec.Column); !ok {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"unknown sort column %s", sortSpec.Column)
		}
	}

	total := schema.RowCount
	page := &Page{
		Rows:       []adapter.Row{},
		TotalCount: total,
		Offset:     offset,
		Limit:      limit,
		Sort:       sortSpec,
	}
	if offset >= total {
		return page, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	var ordinals []int
	if sortSpec == nil {
		ordinals = make([]int, 0, end-offset)
		for ord := offset; ord < end; ord++ {
			ordinals = append(ordinals, ord)
		}
	} else {
		ordinals, err = e.sortedOrdinals(a, table, sortSpec, total)
		if err != nil {
			return nil, err
		}
		ordinals = ordinals[offset:end]
	}

	rows, err := a.ReadRows(table, ordinals)
	if err != nil {
		return nil, err
	}
	page.Rows = rows
	return page, nil
}

// sortKey is one row's position in the requested order.
type sortKey struct {
	ordinal int
	value   interface{}
}

// sortedOrdinals scans the whole table in chunks, extracting only the
// sort column, and returns every ordinal in page order. Rows whose key
// is null sort last regardless of direction; ties keep ascending
// storage order so the result is stable across requests.
func (e *Engine) sortedOrdinals(a adapter.Adapter, table string, spec *adapter.SortSpec, total int) ([]int, error) {
	keys := make([]sortKey, 0, total)

	for start := 0; start < total; start += keyScanChunk {
		end := start + keyScanChunk
		if end > total {
			end = total
		}
		chunk := make([]int, 0, end-start)
		for ord := start; ord < end; ord++ {
			chunk = append(chunk, ord)
		}

		rows, err := a.ReadRows(table, chunk)
		if err != nil {
			return nil, err
		}
		for i, row := range rows {
			keys = append(keys, sortKey{ordinal: start + i, value: row[spec.Column]})
		}
	}

	desc := spec.Direction == adapter.Desc
	sort.SliceStable(keys, func(i, j int) bool {
		ki, kj := keys[i], keys[j]
		if ki.value == nil || kj.value == nil {
			// Nulls always trail, in both directions.
			return kj.value == nil && ki.value != nil
		}
		c := adapter.Compare(ki.value, kj.value)
		if c == 0 {
			return ki.ordinal < kj.ordinal
		}
		if desc {
			return c > 0
		}
		return c < 0
	})

	ordinals := make([]int, len(keys))
	for i, k := range keys {
		ordinals[i] = k.ordinal
	}
	return ordinals, nil
}
