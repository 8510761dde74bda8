package apimonitor

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jpalmerr/apimonitor/internal/logging"
	"github.com/jpalmerr/apimonitor/internal/settings"
)

// monitorConfig holds mutable state during Monitor construction.
type monitorConfig struct {
	title               string
	port                int
	serve               bool
	logger              *slog.Logger
	store               settings.Store
	seed                *Settings
	policy              Policy
	retryInterval       time.Duration
	debounce            time.Duration
	logFile             *logging.CappedFile
	statusCallbacks     []func(Status)
	historyCallbacks    []func([]HistoryEntry)
	validationCallbacks []func(ValidationResult)
}

// Option is a function that configures a [Monitor] during construction.
// Options return an error if validation fails.
type Option func(*monitorConfig) error

// WithPort sets the HTTP port for the dashboard server. Defaults to 8080.
// Port 0 picks a free port; see [Monitor.Addr].
//
// Returns an error if the port is outside 0-65535.
func WithPort(port int) Option {
	return func(cfg *monitorConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
// If not specified, defaults to "API Monitor".
func WithTitle(title string) Option {
	return func(cfg *monitorConfig) error {
		cfg.title = title
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *monitorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithSettingsStore sets where settings and history are persisted. The
// monitor closes the store when [Monitor.Start] returns. Without this option
// an in-memory store is used and nothing survives a restart.
//
// Example:
//
//	st, err := apimonitor.OpenStore("/var/lib/apimonitor")
//	if err != nil {
//	    return err
//	}
//	m, err := apimonitor.New(apimonitor.WithSettingsStore(st))
func WithSettingsStore(st SettingsStore) Option {
	return func(cfg *monitorConfig) error {
		if st == nil {
			return errors.New("settings store cannot be nil")
		}
		cfg.store = st
		return nil
	}
}

// WithSeedSettings sets the settings written to the store on first run, when
// nothing has been saved yet. Later runs ignore the seed.
func WithSeedSettings(s Settings) Option {
	return func(cfg *monitorConfig) error {
		s = s.Normalize()
		cfg.seed = &s
		return nil
	}
}

// WithPolicy sets the retry policy of each polling cycle. Zero fields keep
// their defaults (3 attempts, 2s backoff, 10s timeout).
//
// Returns an error if any field is negative.
func WithPolicy(p Policy) Option {
	return func(cfg *monitorConfig) error {
		if p.MaxAttempts < 0 || p.Backoff < 0 || p.Timeout < 0 {
			return errors.New("policy values cannot be negative")
		}
		cfg.policy = p
		return nil
	}
}

// WithRetryInterval sets the delay before the next cycle after any result
// other than success. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRetryInterval(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("retry interval must be positive")
		}
		cfg.retryInterval = d
		return nil
	}
}

// WithValidatorDebounce sets how long URL edits must settle before a
// validation request is sent. Defaults to 500ms.
//
// Returns an error if the duration is negative.
func WithValidatorDebounce(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d < 0 {
			return errors.New("validator debounce cannot be negative")
		}
		cfg.debounce = d
		return nil
	}
}

// WithLogFile attaches the capped log file whose writes follow the
// LoggingEnabled setting. The caller still owns and closes the file.
func WithLogFile(f *logging.CappedFile) Option {
	return func(cfg *monitorConfig) error {
		cfg.logFile = f
		return nil
	}
}

// WithoutServer runs the polling engine and validator without the HTTP
// dashboard. Useful when embedding the monitor in another service.
func WithoutServer() Option {
	return func(cfg *monitorConfig) error {
		cfg.serve = false
		return nil
	}
}

// WithStatusCallback registers a function called after every completed
// polling cycle with the new current status.
//
// Callbacks run synchronously on the engine's dispatch goroutine and must
// not block. Panics are recovered and logged. Nil callbacks are ignored.
func WithStatusCallback(cb func(Status)) Option {
	return func(cfg *monitorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.statusCallbacks = append(cfg.statusCallbacks, cb)
		return nil
	}
}

// WithHistoryCallback registers a function called whenever the history
// changes, with all entries newest first. Nil callbacks are ignored.
func WithHistoryCallback(cb func([]HistoryEntry)) Option {
	return func(cfg *monitorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.historyCallbacks = append(cfg.historyCallbacks, cb)
		return nil
	}
}

// WithValidationCallback registers a function called with the verdict of
// every URL validation that was not superseded by a newer edit. It runs on
// a validator goroutine. Nil callbacks are ignored.
func WithValidationCallback(cb func(ValidationResult)) Option {
	return func(cfg *monitorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.validationCallbacks = append(cfg.validationCallbacks, cb)
		return nil
	}
}
