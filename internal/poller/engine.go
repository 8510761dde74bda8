package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/apimonitor/internal/history"
	"github.com/jpalmerr/apimonitor/internal/metrics"
	"github.com/jpalmerr/apimonitor/internal/status"
)

const (
	// DefaultInterval is used when no user interval is configured.
	DefaultInterval = 60 * time.Second

	// DefaultRetryInterval is the delay before the next cycle after any
	// result other than success.
	DefaultRetryInterval = 10 * time.Second
)

// ErrEngineRunning is returned by [Engine.Run] when the loop is already running.
var ErrEngineRunning = errors.New("engine already running")

// Status is the current status of the monitored endpoint.
type Status struct {
	Result    status.Result
	Message   string
	UpdatedAt time.Time
}

// State describes what the engine is doing right now.
type State int

const (
	// Idle means no cycle is in flight.
	Idle State = iota
	// Polling means at least one cycle is fetching.
	Polling
	// Cooldown means every cycle in flight is waiting out a backoff.
	Cooldown
)

func (s State) String() string {
	switch s {
	case Polling:
		return "polling"
	case Cooldown:
		return "cooldown"
	default:
		return "idle"
	}
}

// Listener receives engine events. StatusChanged and HistoryChanged are
// called from the dispatch loop; Progress is called from cycle goroutines and
// may arrive concurrently.
type Listener interface {
	StatusChanged(s Status)
	HistoryChanged(entries []history.Entry)
	Progress(attempt, maxAttempts int)
}

type nopListener struct{}

func (nopListener) StatusChanged(Status)           {}
func (nopListener) HistoryChanged([]history.Entry) {}
func (nopListener) Progress(int, int)              {}

// EngineConfig configures an [Engine].
type EngineConfig struct {
	URL           string
	Interval      time.Duration
	RetryInterval time.Duration
	Listener      Listener
	Logger        *slog.Logger
}

// Engine owns the current status and the history log. A single dispatch
// loop started by [Engine.Run] schedules cycles, applies their outcomes and
// notifies the listener. Cycles run on their own goroutines and may overlap;
// outcomes are applied in completion order.
type Engine struct {
	cycle    *Cycle
	history  *history.Log
	listener Listener
	logger   *slog.Logger

	mu               sync.RWMutex
	current          Status
	url              string
	interval         time.Duration
	retryInterval    time.Duration
	intervalDeferred bool

	phaseMu sync.Mutex
	phases  map[uint64]State
	seq     uint64

	running    atomic.Bool
	refresh    chan struct{}
	reschedule chan struct{}
	outcomes   chan Outcome
}

// NewEngine creates an [Engine]. The engine does nothing until Run is called.
func NewEngine(cycle *Cycle, log *history.Log, cfg EngineConfig) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Listener == nil {
		cfg.Listener = nopListener{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		cycle:         cycle,
		history:       log,
		listener:      cfg.Listener,
		logger:        cfg.Logger,
		url:           cfg.URL,
		interval:      cfg.Interval,
		retryInterval: cfg.RetryInterval,
		phases:        make(map[uint64]State),
		refresh:       make(chan struct{}, 1),
		reschedule:    make(chan struct{}, 1),
		outcomes:      make(chan Outcome),
	}
}

// Run starts one cycle immediately, then keeps polling until ctx is
// cancelled. It waits for in-flight cycles before returning.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}
	defer e.running.Store(false)

	var wg sync.WaitGroup
	defer wg.Wait()

	e.logger.Info("polling engine started", "url", e.URL(), "interval", e.UserInterval())

	timer := time.NewTimer(e.UserInterval())
	defer timer.Stop()

	e.spawn(ctx, &wg)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("polling engine stopping")
			return nil
		case <-timer.C:
			e.spawn(ctx, &wg)
		case <-e.refresh:
			e.spawn(ctx, &wg)
		case <-e.reschedule:
			timer.Reset(e.UserInterval())
		case out := <-e.outcomes:
			timer.Reset(e.apply(out))
		}
	}
}

// spawn starts a cycle against the current URL on its own goroutine.
func (e *Engine) spawn(ctx context.Context, wg *sync.WaitGroup) {
	e.phaseMu.Lock()
	e.seq++
	obs := &cycleObserver{engine: e, id: e.seq}
	e.phases[obs.id] = Polling
	e.phaseMu.Unlock()

	target := e.URL()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer e.setPhase(obs.id, Idle)

		out := e.cycle.Run(ctx, target, obs)
		select {
		case e.outcomes <- out:
		case <-ctx.Done():
		}
	}()
}

// apply records out as the current status and returns the delay until the
// next scheduled cycle.
func (e *Engine) apply(out Outcome) time.Duration {
	e.mu.Lock()
	prev := e.current
	var entry *history.Entry
	if isTransition(prev, out) {
		entry = &history.Entry{
			Time:       out.CompletedAt,
			OldResult:  prev.Result,
			OldMessage: prev.Message,
			NewResult:  out.Result,
			NewMessage: out.Message,
		}
		e.history.Append(*entry)
	}
	e.current = Status{Result: out.Result, Message: out.Message, UpdatedAt: out.CompletedAt}

	next := e.retryInterval
	if out.Result == status.Success {
		next = e.interval
		if e.intervalDeferred {
			e.intervalDeferred = false
			e.logger.Info("applying deferred refresh interval", "interval", e.interval)
		}
	}
	current := e.current
	e.mu.Unlock()

	e.logger.Debug("cycle complete",
		"cycle_id", out.ID,
		"result", out.Result.String(),
		"message", out.Message,
		"attempts", out.Attempts,
		"latency_ms", out.Latency.Milliseconds(),
		"next_in", next,
	)

	e.listener.StatusChanged(current)
	if entry != nil {
		metrics.Transitions.WithLabelValues(entry.NewResult.String()).Inc()
		e.logger.Info("status changed",
			"from", entry.OldResult.String(),
			"to", entry.NewResult.String(),
			"message", entry.NewMessage,
		)
		e.listener.HistoryChanged(e.history.Entries())
	}
	return next
}

// isTransition reports whether applying out on top of prev must be recorded.
// The first observation is never recorded. A changed message alone counts
// unless the new result is success.
func isTransition(prev Status, out Outcome) bool {
	if prev.Result == status.None {
		return false
	}
	if out.Result != prev.Result {
		return true
	}
	return out.Message != prev.Message && out.Result != status.Success
}

// RefreshNow requests an immediate cycle. It never blocks; requests made
// while one is already pending are merged.
func (e *Engine) RefreshNow() {
	select {
	case e.refresh <- struct{}{}:
	default:
	}
}

// ApplySettings updates the polled URL and the user interval.
//
// A new interval takes effect immediately only while the current status is
// success; otherwise it is used from the next successful cycle. A changed
// URL triggers an immediate cycle.
func (e *Engine) ApplySettings(url string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	e.mu.Lock()
	urlChanged := url != e.url
	intervalChanged := interval != e.interval
	e.url = url
	e.interval = interval
	applyNow := intervalChanged && e.current.Result == status.Success
	if intervalChanged && !applyNow {
		e.intervalDeferred = true
	}
	e.mu.Unlock()

	if intervalChanged {
		if applyNow {
			e.logger.Info("refresh interval updated", "interval", interval)
			select {
			case e.reschedule <- struct{}{}:
			default:
			}
		} else {
			e.logger.Info("refresh interval change deferred until next success", "interval", interval)
		}
	}
	if urlChanged {
		e.logger.Info("API URL updated", "url", url)
		e.RefreshNow()
	}
}

// Current returns a copy of the current status.
func (e *Engine) Current() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// URL returns the URL polled by the next cycle.
func (e *Engine) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.url
}

// UserInterval returns the configured interval between successful cycles.
func (e *Engine) UserInterval() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.interval
}

// Snapshot returns the current status and the history entries, newest
// first, read consistently with each other.
func (e *Engine) Snapshot() (Status, []history.Entry) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current, e.history.Entries()
}

// History returns the history entries, newest first.
func (e *Engine) History() []history.Entry {
	return e.history.Entries()
}

// ClearHistory removes all history entries and notifies the listener.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	e.history.Clear()
	e.mu.Unlock()
	e.listener.HistoryChanged(nil)
}

// ResizeHistory changes the history capacity and notifies the listener when
// entries were dropped.
func (e *Engine) ResizeHistory(capacity int) {
	e.mu.Lock()
	before := e.history.Len()
	e.history.Resize(capacity)
	after := e.history.Len()
	e.mu.Unlock()

	if after != before {
		e.listener.HistoryChanged(e.history.Entries())
	}
}

// State reports whether cycles are in flight and what they are doing.
func (e *Engine) State() State {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if len(e.phases) == 0 {
		return Idle
	}
	for _, p := range e.phases {
		if p == Polling {
			return Polling
		}
	}
	return Cooldown
}

func (e *Engine) setPhase(id uint64, s State) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()
	if s == Idle {
		delete(e.phases, id)
		return
	}
	e.phases[id] = s
}

// cycleObserver tracks the phase of one cycle for [Engine.State].
type cycleObserver struct {
	engine *Engine
	id     uint64
}

func (o *cycleObserver) Attempt(attempt, maxAttempts int) {
	o.engine.setPhase(o.id, Polling)
	o.engine.listener.Progress(attempt, maxAttempts)
}

func (o *cycleObserver) Backoff(time.Duration) {
	o.engine.setPhase(o.id, Cooldown)
}
