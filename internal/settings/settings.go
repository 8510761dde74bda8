// Package settings holds the user-editable monitor settings and persists them,
// together with the serialized history, in a bbolt key/value file.
package settings

import (
	"errors"
	"strings"
	"time"

	"github.com/jpalmerr/apimonitor/internal/history"
)

const (
	// DefaultURL is polled until the user configures a real endpoint.
	DefaultURL = "http://example.com/api/status"

	// DefaultInterval is the refresh interval after a successful poll.
	DefaultInterval = 60 * time.Second

	// MinInterval and MaxInterval bound the refresh interval.
	MinInterval = time.Second
	MaxInterval = time.Hour
)

// ErrAlreadyRunning is returned by [Open] when another process holds the
// settings file.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Settings are the values the user edits in the settings view.
type Settings struct {
	URL            string
	Interval       time.Duration
	LoggingEnabled bool
	HistoryLimit   int
}

// Defaults returns the settings used before anything was saved.
func Defaults() Settings {
	return Settings{
		URL:            DefaultURL,
		Interval:       DefaultInterval,
		LoggingEnabled: true,
		HistoryLimit:   history.DefaultCapacity,
	}
}

// Normalize trims the URL and clamps the interval (to whole seconds) and the
// history limit into their allowed ranges.
func (s Settings) Normalize() Settings {
	s.URL = strings.TrimSpace(s.URL)

	s.Interval = s.Interval.Round(time.Second)
	if s.Interval < MinInterval {
		s.Interval = MinInterval
	}
	if s.Interval > MaxInterval {
		s.Interval = MaxInterval
	}

	s.HistoryLimit = history.ClampCapacity(s.HistoryLimit)
	return s
}

// Store persists settings and history between runs.
type Store interface {
	// Load returns the stored settings. found is false when nothing was
	// ever saved, in which case the defaults are returned.
	Load() (s Settings, found bool, err error)

	// Save normalizes and stores s, returning what was stored.
	Save(s Settings) (Settings, error)

	// Configured reports whether the user has confirmed the settings.
	Configured() (bool, error)

	// MarkConfigured records that the user has confirmed the settings.
	MarkConfigured() error

	// LoadHistory returns the persisted history blob and its entry count.
	LoadHistory() (count uint32, blob []byte, err error)

	// SaveHistory replaces the persisted history. A zero count deletes it.
	SaveHistory(count uint32, blob []byte) error

	Close() error
}
