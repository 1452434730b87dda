package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/picturebook/internal/config"
	"github.com/jackzampolin/picturebook/internal/home"
	"github.com/jackzampolin/picturebook/internal/server"
)

var (
	serveHost string
	servePort string
	logLevel  string
	logFormat string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Picturebook server",
	Long: `Start the Picturebook HTTP server and its illustration workers.

Storage and the task queue are chosen in config.yaml. The defaults keep
everything in memory and write images under ~/.picturebook/blobs; set the
storage and queue backends to "nats" to share state between processes.

The server provides:
  - /health                  - Basic server health check
  - /status                  - Providers, queue and storage
  - /api/narratives          - Create and read narratives (X-Owner-ID required)
  - /api/tasks               - Illustration task records
  - /blobs/...               - Stored illustrations

Examples:
  picturebook serve                    # Start on default port 8080
  picturebook serve --port 3000        # Start on custom port
  picturebook serve --log-format json  # Structured JSON logs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger(logLevel, logFormat)
		if err != nil {
			return err
		}

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// An explicit --home also moves the default config location
		path := cfgFile
		if path == "" && homeDir != "" && h.ConfigExists() {
			path = h.ConfigPath()
		}
		cfgMgr, err := config.NewManager(path)
		if err != nil {
			return err
		}
		if used := cfgMgr.ConfigFile(); used != "" {
			logger.Info("loaded config", "file", used)
			cfgMgr.WatchConfig()
		} else {
			logger.Info("no config file found, using defaults")
		}

		// Create server
		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Home:          h,
			ConfigManager: cfgMgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

// newLogger builds the process logger from the --log-level and --log-format flags.
func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(serveCmd)
}
