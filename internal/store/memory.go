package store

import (
	"sync"
	"time"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Subscribers receive events via buffered channels. Events are sent
// non-blocking; if a subscriber's buffer is full, the event is dropped for
// that subscriber so the engine never waits on a browser.
type MemoryStore struct {
	mu     sync.RWMutex
	latest map[Kind]Event

	subMu       sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latest:      make(map[Kind]Event),
		subscribers: make(map[chan Event]struct{}),
	}
}

// Publish stores e and notifies all subscribers. A zero At is set to now.
func (m *MemoryStore) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	m.mu.Lock()
	m.latest[e.Kind] = e
	m.mu.Unlock()

	m.notifySubscribers(e)
}

// Latest returns the most recent event of kind.
func (m *MemoryStore) Latest(kind Kind) (Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.latest[kind]
	return e, ok
}

// GetAll returns a snapshot of the latest event per kind.
func (m *MemoryStore) GetAll() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]Event, 0, len(m.latest))
	for _, kind := range Kinds {
		if e, ok := m.latest[kind]; ok {
			events = append(events, e)
		}
	}
	return events
}

// Subscribe creates a new subscription.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *MemoryStore) notifySubscribers(e Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- e:
		default:
			// subscriber is slow, drop the event
		}
	}
}
