// Package metrics exposes Prometheus counters for the polling engine and the
// URL validator. Collectors register with the default registry on package
// init, so [Handler] serves them together with the Go runtime collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "apimonitor"

var (
	// Cycles counts completed polling cycles by final result.
	Cycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Completed polling cycles by result",
	}, []string{"result"})

	// FetchAttempts counts HTTP requests issued by polling cycles.
	FetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_attempts_total",
		Help:      "HTTP fetch attempts made by polling cycles",
	})

	// Backoffs counts waits between failed attempts.
	Backoffs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backoff_waits_total",
		Help:      "Backoff waits between failed fetch attempts",
	})

	// FetchLatency observes the latency of each fetch attempt.
	FetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_latency_seconds",
		Help:      "HTTP fetch latency",
		Buckets:   prometheus.DefBuckets,
	})

	// Transitions counts history entries recorded, by new result.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Status transitions recorded in history",
	}, []string{"to"})

	// Validations counts URL validation outcomes: valid, invalid or stale.
	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validations_total",
		Help:      "URL validation checks by outcome",
	}, []string{"outcome"})
)

// Validation outcome labels.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeStale   = "stale"
)

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
