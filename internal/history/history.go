// Package history keeps a bounded log of status transitions.
//
// The log is a fixed-capacity ring buffer: appends are O(1) and overwrite the
// oldest entry once the buffer is full. Index 0 always refers to the most
// recently appended entry. The log can be resized without reordering entries
// and serialized into a fixed-width binary blob for the settings store.
//
// A [Log] has a single writer (the polling engine) and any number of
// concurrent readers; all methods are safe for concurrent use.
package history

import (
	"errors"
	"sync"
	"time"

	"github.com/jpalmerr/apimonitor/internal/status"
)

const (
	// MinCapacity is the smallest capacity a log can be created with.
	MinCapacity = 10

	// MaxCapacity is the largest capacity a log can be created with.
	MaxCapacity = 10000

	// DefaultCapacity is used when no capacity has been configured.
	DefaultCapacity = 100
)

var (
	// ErrOutOfRange is returned by [Log.Get] for an index outside [0, Len()).
	ErrOutOfRange = errors.New("history index out of range")

	// ErrCorrupt is returned by [Log.Deserialize] when persisted data fails
	// validation. The log is left empty.
	ErrCorrupt = errors.New("history data corrupt")
)

// Entry is a single recorded status transition. Entries are values and are
// never modified after they are appended.
type Entry struct {
	Time       time.Time
	OldResult  status.Result
	OldMessage string
	NewResult  status.Result
	NewMessage string
}

// ClampCapacity limits capacity to [MinCapacity, MaxCapacity].
func ClampCapacity(capacity int) int {
	if capacity < MinCapacity {
		return MinCapacity
	}
	if capacity > MaxCapacity {
		return MaxCapacity
	}
	return capacity
}

// Log is a ring buffer of transitions.
type Log struct {
	mu     sync.RWMutex
	buf    []Entry
	cursor int // next write slot
	count  int
}

// New creates an empty log. The capacity is clamped with [ClampCapacity].
func New(capacity int) *Log {
	return &Log{buf: make([]Entry, ClampCapacity(capacity))}
}

// Append records e as the most recent entry, evicting the oldest entry when
// the log is full. Messages are truncated to [status.MaxMessageLen].
func (l *Log) Append(e Entry) {
	e.OldMessage = status.TruncateMessage(e.OldMessage)
	e.NewMessage = status.TruncateMessage(e.NewMessage)

	l.mu.Lock()
	l.appendLocked(e)
	l.mu.Unlock()
}

func (l *Log) appendLocked(e Entry) {
	l.buf[l.cursor] = e
	l.cursor = (l.cursor + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
}

// Get returns the entry at index i, where 0 is the most recent.
func (l *Log) Get(i int) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.getLocked(i)
}

func (l *Log) getLocked(i int) (Entry, error) {
	if i < 0 || i >= l.count {
		return Entry{}, ErrOutOfRange
	}
	capacity := len(l.buf)
	return l.buf[((l.cursor-1-i)%capacity+capacity)%capacity], nil
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Cap returns the current capacity.
func (l *Log) Cap() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buf)
}

// Entries returns a copy of all retained entries, most recent first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entriesLocked()
}

func (l *Log) entriesLocked() []Entry {
	out := make([]Entry, l.count)
	for i := range out {
		out[i], _ = l.getLocked(i)
	}
	return out
}

// Resize changes the capacity (clamped). The most recent min(Len(), capacity)
// entries are kept in their original order; older entries are dropped.
func (l *Log) Resize(capacity int) {
	capacity = ClampCapacity(capacity)

	l.mu.Lock()
	defer l.mu.Unlock()

	if capacity == len(l.buf) {
		return
	}

	keep := min(l.count, capacity)
	buf := make([]Entry, capacity)
	for i := 0; i < keep; i++ {
		e, _ := l.getLocked(i)
		buf[keep-1-i] = e
	}

	l.buf = buf
	l.count = keep
	l.cursor = keep % capacity
}

// Clear removes all entries. The backing storage is retained.
func (l *Log) Clear() {
	l.mu.Lock()
	l.count = 0
	l.cursor = 0
	l.mu.Unlock()
}
