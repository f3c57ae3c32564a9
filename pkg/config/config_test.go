package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500, cfg.Browse.MaxPageSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero page size", func(c *Config) { c.Browse.MaxPageSize = 0 }},
		{"zero sample rows", func(c *Config) { c.Browse.SchemaSampleRows = 0 }},
		{"negative ttl", func(c *Config) { c.Browse.EvictionTTL = -time.Second }},
		{"zero discover limit", func(c *Config) { c.Browse.DiscoverLimit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TUCKVIEW_TEST_ADDR", "127.0.0.1:9000")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ${TUCKVIEW_TEST_ADDR}
browse:
  max_page_size: 250
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := NewConfig()
	require.NoError(t, Load(path, cfg))

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 250, cfg.Browse.MaxPageSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, 100, cfg.Browse.SchemaSampleRows)
}

func TestLoadMissingFile(t *testing.T) {
	cfg := NewConfig()
	assert.Error(t, Load(filepath.Join(t.TempDir(), "absent.yaml"), cfg))
}

func TestRecentFilesLocation(t *testing.T) {
	b := BrowseConfig{RecentFilesPath: "/tmp/ledger.json"}
	assert.Equal(t, "/tmp/ledger.json", b.RecentFilesLocation())

	b.RecentFilesPath = ""
	assert.Contains(t, b.RecentFilesLocation(), "recent_files.json")
}
