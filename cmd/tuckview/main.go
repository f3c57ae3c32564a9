package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tuckview/tuckview/internal/server"
	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/browse"
	"github.com/tuckview/tuckview/pkg/config"
	"github.com/tuckview/tuckview/pkg/logger"

	// Import all format adapters to register them
	_ "github.com/tuckview/tuckview/pkg/adapter/csvfile"
	_ "github.com/tuckview/tuckview/pkg/adapter/jsonfile"
	_ "github.com/tuckview/tuckview/pkg/adapter/tuck"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "tuckview",
		Short: "Tuckview - local table browser for tuck, JSON and CSV files",
		Long: `Tuckview serves a local HTTP API for browsing and editing tabular data
files without importing them anywhere: proprietary tuck binaries, line-delimited
JSON, and CSV. Files are read in place and edited through atomic rewrites.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Tuckview v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "formats",
		Short: "List supported file formats",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Supported formats:")
			for _, f := range adapter.Formats() {
				fmt.Printf("  - %s\n", f)
			}
			fmt.Println("\nRecognized extensions:")
			for _, ext := range adapter.Extensions() {
				fmt.Printf("  - %s\n", ext)
			}
		},
	})

	var (
		configFile  string
		addr        string
		logLevel    string
		maxPageSize int
		evictionTTL time.Duration
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local browsing server",
		Long: `Start the HTTP server the frontend talks to. Settings come from
defaults, then the optional YAML config file, then flags, last wins.

Example:
  tuckview serve --addr 127.0.0.1:8695 --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewConfig()
			if configFile != "" {
				if err := config.Load(configFile, cfg); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if cmd.Flags().Changed("max-page-size") {
				cfg.Browse.MaxPageSize = maxPageSize
			}
			if cmd.Flags().Changed("eviction-ttl") {
				cfg.Browse.EvictionTTL = evictionTTL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file")
	serveCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8695", "Listen address")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().IntVar(&maxPageSize, "max-page-size", 500, "Ceiling for a single page of rows")
	serveCmd.Flags().DurationVar(&evictionTTL, "eviction-ttl", 30*time.Minute, "Idle time before an open file is released")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
		Development: cfg.Logging.Development,
	}); err != nil {
		return err
	}
	log := logger.Get()
	defer logger.Sync()

	service := browse.NewService(cfg.Browse, log)
	defer service.Close()

	srv := server.New(cfg.Server, service, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown did not complete", zap.Error(err))
		return err
	}
	return nil
}
