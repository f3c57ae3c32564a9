package adapter

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tuckview/tuckview/pkg/errors"
)

// Options carries the shared knobs a factory needs to open a file.
type Options struct {
	// Logger receives the adapter's structured log output.
	Logger *zap.Logger
	// SampleRows bounds how many leading rows schema inference reads
	// for formats without declared types. Zero selects the default.
	SampleRows int
}

// DefaultSampleRows is used when Options.SampleRows is zero.
const DefaultSampleRows = 100

// Factory opens one file as an adapter. Factories parse structural
// metadata only; they must not read the full data region.
type Factory func(path string, opts Options) (Adapter, error)

type registration struct {
	format  Format
	factory Factory
}

var (
	formatsMu sync.RWMutex
	byExt     = make(map[string]registration)
)

// RegisterFormat registers a format factory for a set of file
// extensions (lowercase, with leading dot). Format subpackages call
// this from init; duplicate extensions panic at startup.
func RegisterFormat(format Format, extensions []string, factory Factory) {
	formatsMu.Lock()
	defer formatsMu.Unlock()

	for _, ext := range extensions {
		if _, exists := byExt[ext]; exists {
			panic("adapter: extension " + ext + " registered twice")
		}
		byExt[ext] = registration{format: format, factory: factory}
	}
}

// FormatForPath resolves the format a path's extension maps to, without
// touching the file. Unknown extensions fail with
// ErrorTypeUnsupportedFormat.
func FormatForPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))

	formatsMu.RLock()
	reg, ok := byExt[ext]
	formatsMu.RUnlock()

	if !ok {
		return "", errors.Newf(errors.ErrorTypeUnsupportedFormat,
			"no adapter registered for extension %q", ext).
			WithDetail("path", path)
	}
	return reg.format, nil
}

// Open constructs the adapter matching the path's extension.
func Open(path string, opts Options) (Adapter, error) {
	ext := strings.ToLower(filepath.Ext(path))

	formatsMu.RLock()
	reg, ok := byExt[ext]
	formatsMu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedFormat,
			"no adapter registered for extension %q", ext).
			WithDetail("path", path)
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultSampleRows
	}

	return reg.factory(path, opts)
}

// Extensions returns the registered file extensions, sorted.
func Extensions() []string {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	exts := make([]string, 0, len(byExt))
	for ext := range byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Formats returns the registered format names, sorted.
func Formats() []Format {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	seen := make(map[Format]bool)
	formats := make([]Format, 0, len(byExt))
	for _, reg := range byExt {
		if !seen[reg.format] {
			seen[reg.format] = true
			formats = append(formats, reg.format)
		}
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}
