// Package poller polls the monitored endpoint and owns its current status.
//
// The main components are:
//
//   - [Client]: HTTP GET with a per-request timeout and a bounded body read
//   - [Cycle]: one polling cycle, fetch with retry then classify the result
//   - [Engine]: dispatch loop that schedules cycles, applies their outcomes,
//     records transitions in the history log and notifies a [Listener]
//
// Users of the apimonitor package should not need to interact with this
// package directly. Configuration is done through the root package.
package poller
