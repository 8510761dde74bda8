package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/apimonitor"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockStatusServer(":9999")
	time.Sleep(100 * time.Millisecond)

	dir, err := os.MkdirTemp("", "apimonitor-example")
	if err != nil {
		slog.Error("failed to create data dir", "error", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	st, err := apimonitor.OpenStore(dir)
	if err != nil {
		slog.Error("failed to open settings store", "error", err)
		os.Exit(1)
	}

	seed := apimonitor.DefaultSettings()
	seed.URL = "http://localhost:9999/status"
	seed.Interval = 5 * time.Second

	m, err := apimonitor.New(
		apimonitor.WithTitle("API Monitor Demo"),
		apimonitor.WithPort(8080),
		apimonitor.WithSettingsStore(st),
		apimonitor.WithSeedSettings(seed),
		apimonitor.WithRetryInterval(3*time.Second),
		apimonitor.WithStatusCallback(func(s apimonitor.Status) {
			slog.Info("status", "result", s.Result.DisplayName(), "message", s.Message)
		}),
		apimonitor.WithHistoryCallback(func(entries []apimonitor.HistoryEntry) {
			if len(entries) == 0 {
				return
			}
			e := entries[0]
			slog.Info("transition", "from", e.OldResult.DisplayName(), "to", e.NewResult.DisplayName())
		}),
	)
	if err != nil {
		slog.Error("failed to create monitor", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  API Monitor Demo")
	fmt.Println()
	fmt.Println("  Dashboard:   http://localhost:8080")
	fmt.Println("  Mock status: http://localhost:9999/status")
	fmt.Println("  Force a result with:")
	fmt.Println("    curl -X POST localhost:9999/status/fail")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.Start(ctx); err != nil {
		slog.Error("monitor error", "error", err)
		os.Exit(1)
	}
}
