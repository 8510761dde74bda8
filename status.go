package apimonitor

import (
	"time"

	"github.com/jpalmerr/apimonitor/internal/history"
	"github.com/jpalmerr/apimonitor/internal/poller"
	"github.com/jpalmerr/apimonitor/internal/settings"
	"github.com/jpalmerr/apimonitor/internal/status"
	"github.com/jpalmerr/apimonitor/internal/validator"
)

// Result is the outcome of a polling cycle.
type Result = status.Result

const (
	// ResultNone means nothing has been observed yet.
	ResultNone = status.None

	// ResultError means the endpoint could not be reached or did not
	// answer HTTP 200.
	ResultError = status.Error

	// ResultInvalid means the endpoint answered but the body did not carry
	// a usable result tag.
	ResultInvalid = status.Invalid

	// ResultSuccess means the endpoint reported success.
	ResultSuccess = status.Success

	// ResultFail means the endpoint reported failure.
	ResultFail = status.Fail
)

// Status is the current status of the monitored endpoint. UpdatedAt is zero
// until the first cycle completes.
type Status = poller.Status

// State reports what the polling engine is doing.
type State = poller.State

const (
	StateIdle     = poller.Idle
	StatePolling  = poller.Polling
	StateCooldown = poller.Cooldown
)

// HistoryEntry is one recorded status transition.
type HistoryEntry = history.Entry

// Settings are the user-editable monitor settings.
type Settings = settings.Settings

// ValidationResult is the verdict of one URL validation.
type ValidationResult = validator.Result

// Policy is the retry policy of a polling cycle.
type Policy = poller.Policy

// DefaultSettings returns the settings used before anything was saved.
func DefaultSettings() Settings {
	return settings.Defaults()
}

// Tooltip returns the short human-readable summary of s at time now, as
// shown next to the status indicator.
//
//	Updated 12 seconds ago
//	Checkout latency above threshold
func Tooltip(s Status, now time.Time) string {
	return status.Tooltip(s.Result, s.Message, s.UpdatedAt, now)
}

// SettingsStore persists settings and history between runs.
type SettingsStore = settings.Store

// ErrAlreadyRunning is returned by [OpenStore] when another process holds
// the settings database.
var ErrAlreadyRunning = settings.ErrAlreadyRunning

// OpenStore opens or creates the settings database in dir. Only one process
// can hold it at a time.
func OpenStore(dir string) (SettingsStore, error) {
	st, err := settings.Open(dir)
	if err != nil {
		return nil, err
	}
	return st, nil
}
