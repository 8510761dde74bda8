package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MaxBodySize bounds how much of a response body is read. Status documents
// are tiny; anything past this is ignored.
const MaxBodySize = 4096

// UserAgent is sent with every request.
const UserAgent = "APIMonitor/1.0"

// connection pooling limits; a single endpoint is polled, but cycles may overlap
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// ErrInvalidURL is returned by [NormalizeURL] for input that cannot be polled.
var ErrInvalidURL = errors.New("invalid URL")

// Response holds the result of an HTTP request made by [Client].
//
// Err, StatusCode and Body are independent outcomes: a body read failure
// after the headers arrived sets both StatusCode and Err.
type Response struct {
	// Body contains at most MaxBodySize bytes of the response body.
	Body []byte

	// StatusCode is zero if the request failed before a response arrived.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Err is any transport or read error.
	Err error
}

// Client is an HTTP client wrapper for polling a status endpoint.
//
// Client uses per-request timeouts via context rather than a global timeout,
// so the polling cycle and the URL validator can share one connection pool
// with different deadlines.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new polling [Client].
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Fetch performs a GET request and returns a structured [Response].
//
// The timeout is applied via context cancellation. Fetch always returns a
// Response; errors are captured in the Err field rather than returned
// separately.
func (c *Client) Fetch(ctx context.Context, rawURL string, timeout time.Duration) Response {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Err:     fmt.Errorf("failed to create request: %w", err),
		}
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Err:     fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Err:        fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
// Safe to call multiple times; the client remains usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// NormalizeURL trims raw and prepends "http://" when no scheme is given.
// The result must use http or https and name a host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u.String(), nil
}
