// Package validator checks candidate API URLs while the user edits them.
//
// Every edit advances a generation counter. Checks run in the background and
// report only if their generation is still the live one when they finish, so
// a slow check for an old URL can never overwrite the verdict for the URL
// currently in the form.
package validator

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/apimonitor/internal/metrics"
	"github.com/jpalmerr/apimonitor/internal/poller"
	"github.com/jpalmerr/apimonitor/internal/protocol"
)

const (
	// DefaultDebounce is the quiet period after the last edit before a check starts.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultTimeout bounds a single check.
	DefaultTimeout = 5 * time.Second
)

// Result is the verdict for one generation.
type Result struct {
	Generation uint64
	URL        string
	Valid      bool
}

// Option configures a [Validator].
type Option func(*Validator)

// WithDebounce sets the quiet period used by [Validator.Edit].
func WithDebounce(d time.Duration) Option {
	return func(v *Validator) {
		if d >= 0 {
			v.debounce = d
		}
	}
}

// WithTimeout sets the per-check timeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Validator runs debounced, generation-tagged URL checks.
type Validator struct {
	fetcher  poller.Fetcher
	report   func(Result)
	debounce time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	gen atomic.Uint64

	mu    sync.Mutex
	timer *time.Timer

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a [Validator]. report is called from a background goroutine
// for every check whose generation is still live on completion; it may be nil.
func New(fetcher poller.Fetcher, report func(Result), opts ...Option) *Validator {
	ctx, cancel := context.WithCancel(context.Background())
	v := &Validator{
		fetcher:  fetcher,
		report:   report,
		debounce: DefaultDebounce,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Edit records a change of the candidate URL and returns the new generation.
// A check starts once no further edit arrives within the debounce period.
// An empty URL cancels any pending check and reports nothing.
func (v *Validator) Edit(rawURL string) uint64 {
	rawURL = strings.TrimSpace(rawURL)

	// the generation must advance under mu so the newest edit owns the timer
	v.mu.Lock()
	defer v.mu.Unlock()

	gen := v.gen.Add(1)
	v.stopTimerLocked()
	if rawURL == "" {
		return gen
	}

	v.wg.Add(1)
	v.timer = time.AfterFunc(v.debounce, func() {
		defer v.wg.Done()
		if v.gen.Load() != gen {
			return
		}
		v.run(gen, rawURL)
	})
	return gen
}

// Validate starts a check immediately and returns its generation.
func (v *Validator) Validate(rawURL string) uint64 {
	rawURL = strings.TrimSpace(rawURL)

	v.mu.Lock()
	gen := v.gen.Add(1)
	v.stopTimerLocked()
	v.mu.Unlock()

	if rawURL == "" {
		return gen
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		v.run(gen, rawURL)
	}()
	return gen
}

// Check performs one synchronous check. A URL is valid when a GET returns
// HTTP 200 and the body carries a result tag of either dialect.
func (v *Validator) Check(ctx context.Context, rawURL string) bool {
	target, err := poller.NormalizeURL(rawURL)
	if err != nil {
		v.logger.Debug("validation rejected URL", "url", rawURL, "error", err)
		return false
	}

	resp := v.fetcher.Fetch(ctx, target, v.timeout)
	if resp.Err != nil {
		v.logger.Debug("validation request failed", "url", target, "error", resp.Err)
		return false
	}
	return resp.StatusCode == http.StatusOK && protocol.Detect(string(resp.Body))
}

// Generation returns the live generation.
func (v *Validator) Generation() uint64 {
	return v.gen.Load()
}

// Cancel invalidates pending and in-flight checks without starting a new one.
func (v *Validator) Cancel() {
	v.mu.Lock()
	v.gen.Add(1)
	v.stopTimerLocked()
	v.mu.Unlock()
}

// Wait blocks until every pending debounce timer and in-flight check is done.
func (v *Validator) Wait() {
	v.wg.Wait()
}

// Close cancels all checks, aborts in-flight requests and waits for them.
func (v *Validator) Close() {
	v.Cancel()
	v.cancel()
	v.wg.Wait()
}

func (v *Validator) stopTimerLocked() {
	if v.timer != nil && v.timer.Stop() {
		// the callback will never run, so release its slot here
		v.wg.Done()
	}
	v.timer = nil
}

func (v *Validator) run(gen uint64, rawURL string) {
	valid := v.Check(v.ctx, rawURL)

	if v.gen.Load() != gen {
		metrics.Validations.WithLabelValues(metrics.OutcomeStale).Inc()
		v.logger.Debug("discarding stale validation", "generation", gen, "url", rawURL)
		return
	}

	outcome := metrics.OutcomeInvalid
	if valid {
		outcome = metrics.OutcomeValid
	}
	metrics.Validations.WithLabelValues(outcome).Inc()
	v.logger.Info("URL validated", "generation", gen, "url", rawURL, "valid", valid)

	if v.report != nil {
		v.report(Result{Generation: gen, URL: rawURL, Valid: valid})
	}
}
