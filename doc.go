// Package apimonitor watches a single HTTP status endpoint and reports its
// health on a small web dashboard.
//
// The endpoint speaks a minimal tag protocol. Its body carries a result in
// one of two forms, plus an optional message:
//
//	<r>success</r>
//	<result version="2">fail</result><message>database unreachable</message>
//
// Each polling cycle makes up to three attempts, two seconds apart, and
// classifies the outcome as success, fail, invalid (unparseable body) or
// error (network failure or non-200 response). The next cycle follows after
// the user's interval when the endpoint reported success, and after a short
// retry interval otherwise. Every change of result, or of message while not
// successful, is recorded in a bounded history that survives restarts.
//
// # Quick Start
//
//	st, err := apimonitor.OpenStore(dataDir)
//	if err != nil {
//	    return err
//	}
//
//	m, err := apimonitor.New(
//	    apimonitor.WithSettingsStore(st),
//	    apimonitor.WithSeedSettings(apimonitor.Settings{
//	        URL:      "https://status.example.com/api/status",
//	        Interval: time.Minute,
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	return m.Start(ctx) // blocks until ctx is cancelled
//
// # Settings
//
// The URL, refresh interval, history size and file logging switch are
// edited in the dashboard and applied live through [Monitor.SaveSettings].
// While the URL is being edited, [Monitor.ValidateURL] checks candidates in
// the background; only the verdict for the latest edit is reported.
//
// # Architecture
//
//   - internal/protocol: result tag parser
//   - internal/history: ring buffer of transitions and its binary codec
//   - internal/poller: HTTP client, retrying cycle and the dispatch engine
//   - internal/validator: debounced, generation-tracked URL checks
//   - internal/settings: settings and history persistence (bbolt)
//   - internal/store: latest-event hub feeding the SSE stream
//   - internal/server: JSON API, SSE and the embedded dashboard
//
// The internal packages are not part of the public API and may change
// without notice.
package apimonitor
