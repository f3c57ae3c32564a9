// Package config provides the configuration for tuckview.
// A single Config structure covers the HTTP server, the browsing core,
// and logging. Values come from defaults, an optional YAML file, and
// command-line flags, in that order of precedence (last wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	// Server configures the HTTP serving layer.
	Server ServerConfig `yaml:"server" json:"server"`

	// Browse configures the table browsing core.
	Browse BrowseConfig `yaml:"browse" json:"browse"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string `yaml:"addr" json:"addr"`
	// ReadTimeout bounds request read time.
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`
	// WriteTimeout bounds response write time.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// BrowseConfig contains settings for the table browsing core.
type BrowseConfig struct {
	// MaxPageSize is the ceiling a page request's limit is clamped to.
	MaxPageSize int `yaml:"max_page_size" json:"max_page_size"`
	// SchemaSampleRows is how many leading rows type inference samples
	// when a format carries no declared column types (CSV, JSON).
	SchemaSampleRows int `yaml:"schema_sample_rows" json:"schema_sample_rows"`
	// EvictionTTL is how long an open file may sit idle before its
	// handle is closed. Zero disables eviction.
	EvictionTTL time.Duration `yaml:"eviction_ttl" json:"eviction_ttl"`
	// RecentFilesPath overrides where the recent-files ledger lives.
	// Empty selects a per-user default location.
	RecentFilesPath string `yaml:"recent_files_path" json:"recent_files_path"`
	// DiscoverLimit caps how many candidate paths a directory scan returns.
	DiscoverLimit int `yaml:"discover_limit" json:"discover_limit"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level sets verbosity (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`
	// Encoding selects json or console output.
	Encoding string `yaml:"encoding" json:"encoding"`
	// Development enables colored levels and error stacktraces.
	Development bool `yaml:"development" json:"development"`
}

// NewConfig returns a Config populated with defaults that work for a
// local single-user session.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8695",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Browse: BrowseConfig{
			MaxPageSize:      500,
			SchemaSampleRows: 100,
			EvictionTTL:      30 * time.Minute,
			DiscoverLimit:    512,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Browse.MaxPageSize <= 0 {
		return fmt.Errorf("browse.max_page_size must be positive")
	}
	if c.Browse.SchemaSampleRows <= 0 {
		return fmt.Errorf("browse.schema_sample_rows must be positive")
	}
	if c.Browse.EvictionTTL < 0 {
		return fmt.Errorf("browse.eviction_ttl cannot be negative")
	}
	if c.Browse.DiscoverLimit <= 0 {
		return fmt.Errorf("browse.discover_limit must be positive")
	}
	return nil
}

// RecentFilesLocation resolves the path of the recent-files ledger.
// Explicit configuration wins; otherwise it lives under the user config
// directory, falling back to a dot directory next to the process.
func (c *BrowseConfig) RecentFilesLocation() string {
	if c.RecentFilesPath != "" {
		return c.RecentFilesPath
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tuckview", "recent_files.json")
	}
	return filepath.Join(".tuckview", "recent_files.json")
}
