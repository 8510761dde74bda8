package store

import "time"

// Kind names the type of an [Event].
type Kind string

// Event kinds, in the order [Store.GetAll] returns them.
const (
	KindSettings   Kind = "settings"
	KindStatus     Kind = "status"
	KindHistory    Kind = "history"
	KindProgress   Kind = "progress"
	KindValidation Kind = "validation"
)

// Kinds lists every event kind in replay order.
var Kinds = []Kind{KindSettings, KindStatus, KindHistory, KindProgress, KindValidation}

// Event is one notification pushed to the dashboard. Data holds one of the
// view types below.
type Event struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// StatusView is the JSON form of the current status.
type StatusView struct {
	// Result is the lower-case result tag ("success", "fail", ...).
	Result string `json:"result"`

	// Label is the display name of the result.
	Label string `json:"label"`

	Message string `json:"message"`

	// UpdatedAt is nil until the first cycle completes.
	UpdatedAt *time.Time `json:"updated_at"`
}

// HistoryEntryView is the JSON form of one recorded transition.
type HistoryEntryView struct {
	Time       time.Time `json:"time"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	OldMessage string    `json:"old_message"`
	Message    string    `json:"message"`
}

// HistoryView carries the whole history, newest first.
type HistoryView struct {
	Entries []HistoryEntryView `json:"entries"`
}

// ProgressView reports a fetch attempt within the running cycle.
type ProgressView struct {
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Text        string `json:"text"`
}

// ValidationView is the verdict for one URL validation generation.
type ValidationView struct {
	Generation uint64 `json:"generation"`
	URL        string `json:"url"`
	Valid      bool   `json:"valid"`
}

// SettingsView is the JSON form of the user settings.
type SettingsView struct {
	URL             string `json:"url"`
	IntervalSeconds int    `json:"interval_seconds"`
	LoggingEnabled  bool   `json:"logging_enabled"`
	HistoryLimit    int    `json:"history_limit"`
	Configured      bool   `json:"configured"`
}

// Store keeps the latest event of each kind and fans events out to
// subscribers.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Publish stores e as the latest event of its kind and notifies all
	// subscribers.
	Publish(e Event)

	// Latest returns the most recent event of kind.
	Latest(kind Kind) (Event, bool)

	// GetAll returns the latest event of every kind seen so far, in [Kinds]
	// order.
	GetAll() []Event

	// Subscribe returns a channel that receives published events.
	// The returned channel has a buffer; slow consumers may miss events.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Event)
}
