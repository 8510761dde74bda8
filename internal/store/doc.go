// Package store is the event hub between the monitor and the dashboard.
//
// The monitor publishes status, history, progress, validation and settings
// events; the store keeps the latest event of each kind so a newly connected
// client can be brought up to date, and fans every event out to subscribers
// through buffered channels with non-blocking sends (slow subscribers miss
// events rather than block the engine).
//
// The view types in this package are the JSON representation used by the
// REST API and the SSE stream.
package store
