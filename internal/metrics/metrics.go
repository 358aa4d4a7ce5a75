// Package metrics exposes Prometheus counters and histograms for the
// intake handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the forwarder's Prometheus instruments, registered against
// their own registry rather than the global default so tests can create
// independent instances.
type Metrics struct {
	registry       *prometheus.Registry
	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// New registers and returns a fresh set of metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forwarder_webhook_requests_total",
			Help: "Total number of webhook requests handled, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forwarder_webhook_request_duration_seconds",
			Help:    "Latency of webhook intake requests, by provider.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}

	registry.MustRegister(m.requestsTotal, m.requestLatency)
	return m
}

// Outcome labels a completed request for the requests-total counter.
type Outcome string

const (
	// OutcomeStored means the event was newly persisted.
	OutcomeStored Outcome = "stored"
	// OutcomeDuplicate means the event was recognized as a duplicate.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeUnauthorized means signature verification failed.
	OutcomeUnauthorized Outcome = "unauthorized"
	// OutcomeError means an internal error prevented processing.
	OutcomeError Outcome = "error"
)

// ObserveRequest records the outcome and latency of a completed request.
func (m *Metrics) ObserveRequest(provider string, outcome Outcome, seconds float64) {
	m.requestsTotal.WithLabelValues(provider, string(outcome)).Inc()
	m.requestLatency.WithLabelValues(provider).Observe(seconds)
}

// Handler returns the HTTP handler serving this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
