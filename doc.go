// Package tuckview provides a local table access layer for browsing and
// editing data files in place: the proprietary tuck binary format,
// line-delimited JSON, and CSV, all behind one paginated, sortable,
// editable table interface.
//
// Tuckview never imports data anywhere. Files are opened where they
// live, a lightweight row index is built over them, and pages of rows
// are fetched on demand, so memory use stays bounded regardless of file
// size. Edits are single-row patches applied through atomic temp-file
// rewrites (or in-place record writes for the binary format when the
// record size is unchanged), guarded by optimistic version tokens so a
// concurrent external change is detected instead of overwritten.
//
// # Architecture
//
// The layer is built from small packages wired together by the browse
// service:
//
//  1. Format adapters (pkg/adapter and its subpackages) expose each
//     on-disk format through one interface, registered by file
//     extension.
//
//  2. The cursor engine (pkg/cursor) turns adapter row access into
//     stable pages with clamped offsets and a deterministic sort order.
//
//  3. The editor (pkg/edit) validates patches against the schema and
//     enforces version-token conflict checks before any byte is
//     written.
//
//  4. The registry (pkg/registry) tracks open files by opaque handle
//     and evicts idle ones; the recent-files ledger (pkg/recent)
//     remembers what was opened across restarts.
//
// # Quick Start
//
// Open a file and read a sorted page:
//
//	import (
//	    "github.com/tuckview/tuckview/pkg/adapter"
//	    "github.com/tuckview/tuckview/pkg/browse"
//	    "github.com/tuckview/tuckview/pkg/config"
//	    _ "github.com/tuckview/tuckview/pkg/adapter/csvfile"
//	)
//
//	cfg := config.NewConfig()
//	service := browse.NewService(cfg.Browse, logger)
//	defer service.Close()
//
//	info, _ := service.OpenFile("/data/users.csv")
//	page, _ := service.GetPage(info.Handle, "users", 0, 50, &adapter.SortSpec{
//	    Column:    "name",
//	    Direction: adapter.Asc,
//	})
//
// # Key Packages
//
//	pkg/adapter     - Uniform table access interface and format registry
//	pkg/cursor      - Page engine with stable sorting
//	pkg/edit        - Validated single-row patches with conflict checks
//	pkg/registry    - Open-file handle table with idle eviction
//	pkg/recent      - Crash-safe recent-files ledger
//	pkg/browse      - Façade wiring the layer together
//	internal/server - Local HTTP API for the frontend
//
// The tuckview command (cmd/tuckview) starts the HTTP server.
package tuckview
