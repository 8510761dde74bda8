package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/apimonitor/internal/metrics"
	"github.com/jpalmerr/apimonitor/internal/protocol"
	"github.com/jpalmerr/apimonitor/internal/status"
)

// Messages reported with [status.Error].
const (
	MsgNotConfigured = "API URL not configured"
	MsgInvalidURL    = "Invalid API URL"
	MsgTimeout       = "Request timed out"
	MsgDNS           = "DNS lookup failed"
	MsgRefused       = "Connection refused"
	MsgConnFailed    = "Connection failed"
	MsgReadFailed    = "Response read failed"
	MsgRequestFailed = "Request failed"
)

// debugBodyPreview bounds how much of an unparseable body is logged.
const debugBodyPreview = 100

// Policy controls retries within one polling cycle.
type Policy struct {
	// MaxAttempts is the number of fetches tried before giving up.
	MaxAttempts int

	// Backoff is the wait between failed attempts.
	Backoff time.Duration

	// Timeout bounds each fetch.
	Timeout time.Duration
}

// DefaultPolicy is three attempts, two seconds apart, ten seconds each.
var DefaultPolicy = Policy{MaxAttempts: 3, Backoff: 2 * time.Second, Timeout: 10 * time.Second}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultPolicy.Timeout
	}
	return p
}

// Fetcher performs one HTTP GET. [*Client] is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) Response
}

// Observer is notified about progress within a cycle. Calls arrive on the
// cycle's goroutine.
type Observer interface {
	// Attempt is called before each fetch, numbered from 1.
	Attempt(attempt, maxAttempts int)

	// Backoff is called before waiting d ahead of the next attempt.
	Backoff(d time.Duration)
}

// Outcome is the final result of one polling cycle.
type Outcome struct {
	ID          string
	Result      status.Result
	Message     string
	StatusCode  int
	Attempts    int
	Backoffs    int
	Latency     time.Duration
	CompletedAt time.Time
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Cycle runs single polling cycles: fetch with retry, then classify.
// A Cycle holds no per-run state and may run concurrently.
type Cycle struct {
	fetcher Fetcher
	policy  Policy
	logger  *slog.Logger
	sleep   SleepFunc
}

// NewCycle creates a [Cycle]. A nil logger falls back to slog.Default().
func NewCycle(fetcher Fetcher, policy Policy, logger *slog.Logger) *Cycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cycle{
		fetcher: fetcher,
		policy:  policy.withDefaults(),
		logger:  logger,
		sleep:   sleepContext,
	}
}

// SetSleep replaces the backoff wait. Intended for tests.
func (c *Cycle) SetSleep(sleep SleepFunc) {
	c.sleep = sleep
}

// Policy returns the retry policy in use.
func (c *Cycle) Policy() Policy {
	return c.policy
}

// Run performs one polling cycle against rawURL. obs may be nil.
//
// Transport failures are retried up to the policy's attempt limit. Any HTTP
// status other than 200 and any parsed body (success, fail or invalid) ends
// the cycle immediately.
func (c *Cycle) Run(ctx context.Context, rawURL string, obs Observer) (out Outcome) {
	out.ID = uuid.NewString()
	logger := c.logger.With("cycle_id", out.ID)

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			logger.Error("polling cycle panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			out.Result = status.Error
			out.Message = fmt.Sprintf("Internal error (correlation_id: %s)", correlationID)
		}
		out.Message = status.TruncateMessage(out.Message)
		out.CompletedAt = time.Now()
		metrics.Cycles.WithLabelValues(out.Result.String()).Inc()
	}()

	if rawURL == "" {
		out.Result, out.Message = status.Error, MsgNotConfigured
		return out
	}
	target, err := NormalizeURL(rawURL)
	if err != nil {
		logger.Warn("invalid API URL", "url", rawURL, "error", err)
		out.Result, out.Message = status.Error, MsgInvalidURL
		return out
	}

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if obs != nil {
			obs.Attempt(attempt, c.policy.MaxAttempts)
		}
		out.Attempts = attempt
		metrics.FetchAttempts.Inc()

		resp := c.fetcher.Fetch(ctx, target, c.policy.Timeout)
		out.Latency = resp.Latency
		out.StatusCode = resp.StatusCode
		metrics.FetchLatency.Observe(resp.Latency.Seconds())

		if resp.Err != nil {
			msg := classifyError(resp)
			logger.Warn("fetch attempt failed",
				"url", target,
				"attempt", attempt,
				"max_attempts", c.policy.MaxAttempts,
				"status_code", resp.StatusCode,
				"error", resp.Err,
			)
			out.Result, out.Message = status.Error, msg

			if attempt == c.policy.MaxAttempts {
				break
			}
			if obs != nil {
				obs.Backoff(c.policy.Backoff)
			}
			out.Backoffs++
			metrics.Backoffs.Inc()
			if err := c.sleep(ctx, c.policy.Backoff); err != nil {
				// shutting down; keep the last failure
				break
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			out.Result, out.Message = status.Error, fmt.Sprintf("HTTP %d", resp.StatusCode)
			logger.Info("unexpected HTTP status", "url", target, "status_code", resp.StatusCode)
			return out
		}

		out.Result, out.Message = protocol.Parse(string(resp.Body))
		if out.Result == status.Invalid {
			preview := resp.Body
			if len(preview) > debugBodyPreview {
				preview = preview[:debugBodyPreview]
			}
			logger.Debug("unparseable response", "url", target, "reason", out.Message, "body", string(preview))
		}
		return out
	}

	return out
}

// classifyError maps a transport failure to a short message. The raw error
// is only logged.
func classifyError(resp Response) string {
	err := resp.Err
	var dnsErr *net.DNSError
	var netErr net.Error
	var opErr *net.OpError

	switch {
	case resp.StatusCode != 0:
		return MsgReadFailed
	case errors.Is(err, context.DeadlineExceeded):
		return MsgTimeout
	case errors.As(err, &dnsErr):
		return MsgDNS
	case errors.As(err, &netErr) && netErr.Timeout():
		return MsgTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return MsgRefused
	case errors.As(err, &opErr):
		return MsgConnFailed
	default:
		return MsgRequestFailed
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
