// Package dashboard provides the embedded web UI of the monitor.
//
// The page shows the current status with its tooltip text, the transition
// history and the settings form with live URL validation. It talks to the
// server package's JSON API and follows the SSE stream for updates.
package dashboard

import "embed"

// Assets holds assets/index.html, a single page with inline CSS and
// JavaScript. The "{{.Title}}" marker is replaced by the server.
//
//go:embed assets/*
var Assets embed.FS
