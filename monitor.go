package apimonitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/apimonitor/dashboard"
	"github.com/jpalmerr/apimonitor/internal/history"
	"github.com/jpalmerr/apimonitor/internal/logging"
	"github.com/jpalmerr/apimonitor/internal/poller"
	"github.com/jpalmerr/apimonitor/internal/server"
	"github.com/jpalmerr/apimonitor/internal/settings"
	"github.com/jpalmerr/apimonitor/internal/status"
	"github.com/jpalmerr/apimonitor/internal/store"
	"github.com/jpalmerr/apimonitor/internal/validator"
)

const defaultPort = 8080

var (
	// ErrAlreadyStarted is returned by [Monitor.Start] on a second call.
	// A monitor cannot be restarted because its settings store is closed
	// on shutdown.
	ErrAlreadyStarted = errors.New("monitor already started")

	// ErrURLRequired is returned by [Monitor.SaveSettings] for an empty URL.
	ErrURLRequired = errors.New("url is required")
)

// Monitor watches one status endpoint and serves the dashboard.
//
// A Monitor is created with [New] and runs until the context passed to
// [Monitor.Start] is cancelled:
//
//	m, err := apimonitor.New(apimonitor.WithSettingsStore(st))
//	if err != nil {
//	    return err
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	return m.Start(ctx) // blocks until ctx is cancelled
//
// All methods are safe for concurrent use. Operations called before Start
// act on the stored settings and history only.
type Monitor struct {
	title       string
	port        int
	serve       bool
	logger      *slog.Logger
	store       settings.Store
	seed        *Settings
	retry       time.Duration
	logFile     *logging.CappedFile
	onStatus    []func(Status)
	onHistory   []func([]HistoryEntry)
	onValidated []func(ValidationResult)

	client    *poller.Client
	cycle     *poller.Cycle
	history   *history.Log
	validator *validator.Validator
	hub       *store.MemoryStore

	mu         sync.RWMutex
	settings   Settings
	configured bool
	engine     *poller.Engine
	addr       net.Addr

	started atomic.Bool
	// historyLoaded is set once persisted history has been read, even if it
	// was discarded as corrupt. Until then shutdown must not overwrite it.
	historyLoaded atomic.Bool
}

var _ server.Controller = (*Monitor)(nil)

// New creates a [Monitor] with the given options.
//
// Defaults:
//   - Port: 8080, dashboard enabled
//   - Settings: in-memory store, [DefaultSettings] unless seeded
//   - Policy: 3 attempts, 2s backoff, 10s per request
//   - Retry interval: 10s after any result other than success
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*Monitor, error) {
	cfg := &monitorConfig{
		port:  defaultPort,
		serve: true,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	st := cfg.store
	if st == nil {
		st = settings.NewMemoryStore()
	}

	initial := settings.Defaults()
	if cfg.seed != nil {
		initial = *cfg.seed
	}

	m := &Monitor{
		title:       cfg.title,
		port:        cfg.port,
		serve:       cfg.serve,
		logger:      logger,
		store:       st,
		seed:        cfg.seed,
		retry:       cfg.retryInterval,
		logFile:     cfg.logFile,
		onStatus:    cfg.statusCallbacks,
		onHistory:   cfg.historyCallbacks,
		onValidated: cfg.validationCallbacks,
		client:      poller.NewClient(),
		history:     history.New(initial.HistoryLimit),
		hub:         store.NewMemoryStore(),
		settings:    initial,
	}

	m.cycle = poller.NewCycle(m.client, cfg.policy, logger)

	vopts := []validator.Option{validator.WithLogger(logger)}
	if cfg.debounce > 0 {
		vopts = append(vopts, validator.WithDebounce(cfg.debounce))
	}
	m.validator = validator.New(m.client, m.validated, vopts...)

	return m, nil
}

// Start loads the settings, restores the persisted history and runs the
// polling engine, the URL validator and (unless [WithoutServer]) the
// dashboard server until ctx is cancelled.
//
// On the first run the seed settings are written to the store. History that
// fails validation is discarded with a warning. On shutdown the history is
// persisted, unless it could not be read at startup, and the settings store
// is closed.
//
// Returns nil on graceful shutdown. Returns an error if the store cannot be
// read, the HTTP server fails to start, or shutdown fails.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := m.loadSettings(); err != nil {
		return m.shutdown(fmt.Errorf("failed to load settings: %w", err))
	}
	m.restoreHistory()

	current := m.Settings()
	m.applyLogging(current.LoggingEnabled)

	engine := poller.NewEngine(m.cycle, m.history, poller.EngineConfig{
		URL:           current.URL,
		Interval:      current.Interval,
		RetryInterval: m.retry,
		Listener:      engineListener{m: m},
		Logger:        m.logger,
	})
	m.mu.Lock()
	m.engine = engine
	m.mu.Unlock()

	m.publishSettings()
	m.publishHistory(m.history.Entries())

	if ctx.Err() != nil {
		return m.shutdown(nil)
	}

	g, gctx := errgroup.WithContext(ctx)

	if m.serve {
		srv := server.NewServer(m, m.hub, m.port, dashboard.Assets, m.title, m.logger)
		if err := srv.Start(gctx); err != nil {
			return m.shutdown(fmt.Errorf("failed to start HTTP server: %w", err))
		}
		m.mu.Lock()
		m.addr = srv.Addr()
		m.mu.Unlock()
		m.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", tcpPort(srv.Addr(), m.port)))
	}

	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		m.validator.Close()
		return nil
	})

	err := g.Wait()
	return m.shutdown(err)
}

// loadSettings reads the stored settings, migrating the seed on first run.
func (m *Monitor) loadSettings() error {
	s, found, err := m.store.Load()
	if err != nil {
		return err
	}

	if !found && m.seed != nil {
		s, err = m.store.Save(*m.seed)
		if err != nil {
			return fmt.Errorf("migrate seed settings: %w", err)
		}
		m.logger.Info("seeded settings store", "url", s.URL, "interval", s.Interval)
	}

	configured, err := m.store.Configured()
	if err != nil {
		return err
	}
	if !configured {
		m.logger.Warn("settings not confirmed yet, open the dashboard settings to confirm them")
	}

	m.mu.Lock()
	m.settings = s
	m.configured = configured
	m.mu.Unlock()

	m.history.Resize(s.HistoryLimit)
	return nil
}

// restoreHistory loads the persisted history. Corrupt data leaves the
// history empty. A read error also leaves it empty, but the stored history is
// then kept as is on shutdown.
func (m *Monitor) restoreHistory() {
	count, blob, err := m.store.LoadHistory()
	if err != nil {
		m.logger.Warn("failed to read persisted history, it will not be saved on shutdown", "error", err)
		return
	}
	err = m.history.Deserialize(count, blob)
	m.historyLoaded.Store(true)
	if err != nil {
		m.logger.Warn("discarding persisted history", "error", err, "count", count, "bytes", len(blob))
		return
	}
	if count > 0 {
		m.logger.Info("restored history", "entries", m.history.Len())
	}
}

// shutdown persists the history and closes the store, combining every
// error with runErr.
func (m *Monitor) shutdown(runErr error) error {
	var result *multierror.Error
	if runErr != nil {
		result = multierror.Append(result, runErr)
	}

	m.validator.Close()

	if m.historyLoaded.Load() {
		if err := m.SaveHistory(); err != nil {
			result = multierror.Append(result, err)
		}
	} else {
		m.logger.Warn("persisted history was not loaded, leaving it unchanged")
	}
	if err := m.store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close settings store: %w", err))
	}
	m.client.Close()

	if err := result.ErrorOrNil(); err != nil {
		m.logger.Error("monitor stopped with errors", "error", err)
		return err
	}
	m.logger.Info("monitor stopped")
	return nil
}

// RefreshNow starts a polling cycle immediately. It does nothing before
// [Monitor.Start].
func (m *Monitor) RefreshNow() {
	if e := m.currentEngine(); e != nil {
		e.RefreshNow()
	}
}

// SaveSettings normalizes and persists s, marks the settings as confirmed
// and applies them: the history is resized, file logging is toggled and the
// engine picks up the URL and interval. It returns what was stored.
func (m *Monitor) SaveSettings(s Settings) (Settings, error) {
	s = s.Normalize()
	if s.URL == "" {
		return Settings{}, ErrURLRequired
	}

	saved, err := m.store.Save(s)
	if err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	if err := m.store.MarkConfigured(); err != nil {
		return Settings{}, fmt.Errorf("mark settings configured: %w", err)
	}

	m.mu.Lock()
	m.settings = saved
	m.configured = true
	engine := m.engine
	m.mu.Unlock()

	m.applyLogging(saved.LoggingEnabled)
	if engine != nil {
		engine.ResizeHistory(saved.HistoryLimit)
		engine.ApplySettings(saved.URL, saved.Interval)
	} else {
		m.history.Resize(saved.HistoryLimit)
	}

	m.logger.Info("settings saved",
		"url", saved.URL,
		"interval", saved.Interval,
		"logging_enabled", saved.LoggingEnabled,
		"history_limit", saved.HistoryLimit,
	)
	m.publishSettings()
	return saved, nil
}

// ValidateURL records an edit of the candidate URL in the settings view and
// returns its generation. The verdict is published once the edit has
// settled, unless a newer edit supersedes it.
func (m *Monitor) ValidateURL(rawURL string) uint64 {
	return m.validator.Edit(rawURL)
}

// ClearHistory removes every history entry and persists the empty history.
func (m *Monitor) ClearHistory() error {
	if e := m.currentEngine(); e != nil {
		e.ClearHistory()
	} else {
		m.history.Clear()
		m.publishHistory(nil)
	}
	m.logger.Info("history cleared")
	return m.SaveHistory()
}

// SaveHistory writes the history to the settings store.
func (m *Monitor) SaveHistory() error {
	count, blob := m.history.Serialize()
	if err := m.store.SaveHistory(count, blob); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Status returns the current status. It is the zero Status before the
// first cycle completes.
func (m *Monitor) Status() Status {
	if e := m.currentEngine(); e != nil {
		return e.Current()
	}
	return Status{}
}

// History returns the recorded transitions, newest first.
func (m *Monitor) History() []HistoryEntry {
	return m.history.Entries()
}

// Settings returns the settings in effect.
func (m *Monitor) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Configured reports whether the settings have been confirmed by the user.
func (m *Monitor) Configured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configured
}

// State reports what the polling engine is doing.
func (m *Monitor) State() State {
	if e := m.currentEngine(); e != nil {
		return e.State()
	}
	return StateIdle
}

// Addr returns the dashboard's bound address once Start is serving, or nil.
func (m *Monitor) Addr() net.Addr {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.addr
}

func (m *Monitor) currentEngine() *poller.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine
}

func (m *Monitor) applyLogging(enabled bool) {
	if m.logFile == nil {
		return
	}
	if m.logFile.Enabled() != enabled {
		m.logger.Info("file logging toggled", "enabled", enabled)
	}
	m.logFile.SetEnabled(enabled)
}

func (m *Monitor) publishSettings() {
	m.hub.Publish(store.Event{
		Kind: store.KindSettings,
		At:   time.Now(),
		Data: server.SettingsView(m.Settings(), m.Configured()),
	})
}

func (m *Monitor) publishHistory(entries []HistoryEntry) {
	m.hub.Publish(store.Event{
		Kind: store.KindHistory,
		At:   time.Now(),
		Data: store.NewHistoryView(entries),
	})
}

// validated receives validator verdicts.
func (m *Monitor) validated(r ValidationResult) {
	m.hub.Publish(store.Event{
		Kind: store.KindValidation,
		At:   time.Now(),
		Data: store.ValidationView{Generation: r.Generation, URL: r.URL, Valid: r.Valid},
	})
	for _, cb := range m.onValidated {
		invokeCallbackSafe("validation", cb, r, m.logger)
	}
}

// engineListener forwards engine events to the event hub and the callbacks.
type engineListener struct {
	m *Monitor
}

func (l engineListener) StatusChanged(s Status) {
	now := time.Now()
	l.m.hub.Publish(store.Event{
		Kind: store.KindStatus,
		At:   now,
		Data: store.NewStatusView(s.Result, s.Message, s.UpdatedAt),
	})
	// the cycle is over, so any progress text is stale
	l.m.hub.Publish(store.Event{Kind: store.KindProgress, At: now, Data: store.ProgressView{}})

	for _, cb := range l.m.onStatus {
		invokeCallbackSafe("status", cb, s, l.m.logger)
	}
}

func (l engineListener) HistoryChanged(entries []HistoryEntry) {
	l.m.publishHistory(entries)
	for _, cb := range l.m.onHistory {
		invokeCallbackSafe("history", cb, entries, l.m.logger)
	}
}

func (l engineListener) Progress(attempt, maxAttempts int) {
	l.m.hub.Publish(store.Event{
		Kind: store.KindProgress,
		At:   time.Now(),
		Data: store.ProgressView{
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Text:        status.ProgressText(attempt, maxAttempts),
		},
	})
}

// invokeCallbackSafe calls cb with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe[T any](kind string, cb func(T), v T, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("callback panicked",
				"panic", r,
				"callback", kind,
			)
		}
	}()
	cb(v)
}

// tcpPort returns the port of addr, or fallback when addr is not TCP.
func tcpPort(addr net.Addr, fallback int) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return fallback
}
