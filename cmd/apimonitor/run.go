package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/apimonitor"
	"github.com/jpalmerr/apimonitor/config"
	"github.com/jpalmerr/apimonitor/internal/logging"
	"github.com/jpalmerr/apimonitor/internal/settings"
)

const (
	shutdownTimeout = 10 * time.Second
)

// runCmd starts the monitor.
var runCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"serve"},
	Short:   "Poll the endpoint and serve the dashboard",
	Long: `Start polling the configured endpoint and serve the dashboard.

The monitor will:
  - Load configuration from the YAML file (defaults if none is given)
  - Open the settings database in the data directory
  - Poll the endpoint and record status transitions
  - Serve the dashboard UI on the configured port

Only one monitor can use a data directory at a time. The monitor runs until
interrupted (Ctrl+C) or it receives SIGTERM, then saves the history.

Example:
  apimonitor run -c apimonitor.yaml
  apimonitor run --data-dir /var/lib/apimonitor --port 9090`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file")
	runCmd.Flags().String("data-dir", "", "directory for the settings database (overrides config)")
	runCmd.Flags().Int("port", 0, "dashboard port (overrides config)")
}

// loadConfig reads the file named by the config flag, or the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Port = port
	}

	var logFile *logging.CappedFile
	if path := cfg.LogFilePath(); path != "" {
		logFile, err = logging.OpenCapped(path, logging.DefaultMaxSize)
		if err != nil {
			return err
		}
		defer func() { _ = logFile.Close() }()
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
		File:   logFile,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Info("=== apimonitor starting ===", "version", version)

	st, err := settings.Open(cfg.DataDir)
	if err != nil {
		if errors.Is(err, settings.ErrAlreadyRunning) {
			return fmt.Errorf("data directory %s is in use: %w", cfg.DataDir, err)
		}
		return fmt.Errorf("failed to open settings: %w", err)
	}
	logger.Info("settings database opened", "path", st.Path())

	opts := append(config.BuildOptions(cfg),
		apimonitor.WithSettingsStore(st),
		apimonitor.WithLogger(logger),
	)
	if logFile != nil {
		opts = append(opts, apimonitor.WithLogFile(logFile))
	}

	m, err := apimonitor.New(opts...)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return waitForShutdown(ctx, logger, func() error { return m.Start(ctx) })
}

// waitForShutdown runs start and, once ctx is cancelled, gives it
// shutdownTimeout to return.
func waitForShutdown(ctx context.Context, logger *slog.Logger, start func() error) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("monitor error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("monitor error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
