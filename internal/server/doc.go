// Package server provides the HTTP server for the dashboard and its API.
//
// It is the presentation adapter of the monitor:
//
//   - Dashboard serving: the embedded HTML dashboard at "/"
//   - REST API: status, history, settings, validation and refresh under "/api"
//   - Server-Sent Events: live events at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics"
//
// Routing uses gorilla/mux, so a known path with the wrong method answers
// 405. The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
