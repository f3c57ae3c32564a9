package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tuckview/tuckview/pkg/adapter"
	_ "github.com/tuckview/tuckview/pkg/adapter/csvfile"
	_ "github.com/tuckview/tuckview/pkg/adapter/jsonfile"
	"github.com/tuckview/tuckview/pkg/errors"
	"github.com/tuckview/tuckview/pkg/fsutil"
	"github.com/tuckview/tuckview/pkg/recent"
)

func writeCSV(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,ada\n2,bob\n"), 0o644))
	return path
}

func newRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	r := New(cfg, nil, zaptest.NewLogger(t))
	t.Cleanup(r.Stop)
	return r
}

func TestOpenGetClose(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv")
	r := newRegistry(t, Config{})

	file, err := r.Open(path)
	require.NoError(t, err)
	assert.NotEmpty(t, file.Handle)
	assert.Equal(t, adapter.FormatCSV, file.Format)
	assert.Equal(t, 1, r.OpenCount())

	got, err := r.Get(file.Handle)
	require.NoError(t, err)
	assert.Same(t, file, got)

	tables, err := got.Adapter.ListTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"people"}, tables)

	require.NoError(t, r.Close(file.Handle))
	assert.Equal(t, 0, r.OpenCount())

	_, err = r.Get(file.Handle)
	assert.True(t, errors.IsType(err, errors.ErrorTypeHandleNotFound))
	err = r.Close(file.Handle)
	assert.True(t, errors.IsType(err, errors.ErrorTypeHandleNotFound))
}

func TestOpenSamePathTwice(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv")
	r := newRegistry(t, Config{})

	a, err := r.Open(path)
	require.NoError(t, err)
	b, err := r.Open(path)
	require.NoError(t, err)
	assert.NotEqual(t, a.Handle, b.Handle)
	assert.Equal(t, 2, r.OpenCount())
}

func TestOpenRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	r := newRegistry(t, Config{})

	_, err := r.Open(path)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedFormat))
}

func TestOpenMissingFile(t *testing.T) {
	r := newRegistry(t, Config{})
	_, err := r.Open(filepath.Join(t.TempDir(), "ghost.csv"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
}

func TestOpenRecordsRecentFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv")
	store := recent.NewStore(filepath.Join(dir, "recent.json"), zaptest.NewLogger(t))

	r := New(Config{}, store, zaptest.NewLogger(t))
	t.Cleanup(r.Stop)

	_, err := r.Open(path)
	require.NoError(t, err)

	entries := store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, adapter.FormatCSV, entries[0].Format)
	assert.True(t, filepath.IsAbs(entries[0].Path))
}

func TestOpenSweepsOrphanedTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv")

	orphan := filepath.Join(dir, fsutil.TempPrefix+"leftover")
	require.NoError(t, os.WriteFile(orphan, []byte("partial"), 0o600))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(orphan, old, old))

	r := newRegistry(t, Config{})
	_, err := r.Open(path)
	require.NoError(t, err)

	_, err = os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "b.csv")
	writeCSV(t, dir, "a.csv")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rows.json"), []byte(`{"x": 1}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("no"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	r := newRegistry(t, Config{DiscoverLimit: 10})

	found := r.Discover(dir)
	require.Len(t, found, 3)
	assert.Equal(t, "a.csv", found[0].Name)
	assert.Equal(t, "b.csv", found[1].Name)
	assert.Equal(t, "rows.json", found[2].Name)
	assert.Equal(t, adapter.FormatJSON, found[2].Format)
	assert.Positive(t, found[0].Size)
}

func TestDiscoverLimit(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv")
	writeCSV(t, dir, "b.csv")
	writeCSV(t, dir, "c.csv")

	r := newRegistry(t, Config{DiscoverLimit: 2})
	assert.Len(t, r.Discover(dir), 2)
}

func TestDiscoverUnreadableDirDegradesToEmpty(t *testing.T) {
	r := newRegistry(t, Config{})
	found := r.Discover(filepath.Join(t.TempDir(), "missing"))
	assert.NotNil(t, found)
	assert.Empty(t, found)
}

func TestEvictionClosesIdleFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv")
	r := newRegistry(t, Config{EvictionTTL: time.Hour})

	file, err := r.Open(path)
	require.NoError(t, err)

	// Not yet idle long enough.
	r.evictIdle(time.Now())
	assert.Equal(t, 1, r.OpenCount())

	// Well past the TTL.
	r.evictIdle(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 0, r.OpenCount())

	_, err = r.Get(file.Handle)
	assert.True(t, errors.IsType(err, errors.ErrorTypeHandleNotFound))
}

func TestPinnedFileSurvivesEviction(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv")
	r := newRegistry(t, Config{EvictionTTL: time.Hour})

	file, err := r.Open(path)
	require.NoError(t, err)

	file.Pin()
	r.evictIdle(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 1, r.OpenCount())

	file.Unpin()
	// Unpin refreshed last access, so the file needs to idle out again.
	r.evictIdle(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 0, r.OpenCount())
}

func TestStopClosesEverything(t *testing.T) {
	dir := t.TempDir()
	r := New(Config{EvictionTTL: time.Minute}, nil, zaptest.NewLogger(t))

	_, err := r.Open(writeCSV(t, dir, "a.csv"))
	require.NoError(t, err)
	_, err = r.Open(writeCSV(t, dir, "b.csv"))
	require.NoError(t, err)

	r.Stop()
	assert.Equal(t, 0, r.OpenCount())
	// Stop is idempotent.
	r.Stop()
}

func TestCloseDefersAdapterReleaseWhilePinned(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv")
	r := newRegistry(t, Config{})

	file, err := r.Open(path)
	require.NoError(t, err)

	file.Pin()
	require.NoError(t, r.Close(file.Handle))
	assert.Equal(t, 0, r.OpenCount())

	// The in-flight holder still reads through a live adapter.
	tables, err := file.Adapter.ListTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"people"}, tables)

	// The last Unpin releases it; later use errors instead of panicking.
	file.Unpin()
	_, err = file.Adapter.ListTables()
	assert.True(t, errors.IsType(err, errors.ErrorTypeHandleNotFound))
}

func TestStaleAdapterErrorsAfterEviction(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv")
	r := newRegistry(t, Config{EvictionTTL: time.Hour})

	file, err := r.Open(path)
	require.NoError(t, err)

	r.evictIdle(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 0, r.OpenCount())

	// A caller holding the pointer from before the eviction gets a typed
	// error from the released adapter.
	_, err = file.Adapter.Schema("people")
	assert.True(t, errors.IsType(err, errors.ErrorTypeHandleNotFound))
}

func TestOpenResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv")
	link := filepath.Join(dir, "alias.csv")
	require.NoError(t, os.Symlink(path, link))

	store := recent.NewStore(filepath.Join(dir, "recent.json"), zaptest.NewLogger(t))
	r := New(Config{}, store, zaptest.NewLogger(t))
	t.Cleanup(r.Stop)

	_, err := r.Open(path)
	require.NoError(t, err)
	_, err = r.Open(link)
	require.NoError(t, err)

	// Both opens resolve to one canonical path in the ledger.
	entries := store.Entries()
	require.Len(t, entries, 1)
}
