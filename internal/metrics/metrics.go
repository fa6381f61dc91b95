// Package metrics provides Prometheus metrics for the intake tracker.
//
// Collectors live on a Metrics value with its own registry rather than the
// global default one, so every test (and every server in a test) can build
// its own without "duplicate metrics collector registration" panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intake"

// Intake outcomes, used as the "outcome" label of IntakeRequests.
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid"
	OutcomeInference  = "inference_error"
	OutcomeNoJSON     = "no_json"
	OutcomeMalformed  = "malformed"
	OutcomeStoreError = "store_error"
)

// Relay frame outcomes, used as the "outcome" label of RelayMessages.
const (
	RelayDelivered    = "delivered"
	RelayUnreachable  = "unreachable"
	RelayInvalidFrame = "invalid_frame"
)

type Metrics struct {
	registry *prometheus.Registry

	// IntakeRequests counts intake pipeline runs by outcome.
	IntakeRequests *prometheus.CounterVec

	// InferenceDuration measures inference calls, including stream draining.
	InferenceDuration prometheus.Histogram

	// CorruptedLedgers counts stored blobs that failed to decode.
	CorruptedLedgers prometheus.Counter

	// HTTPRequests counts served requests by route pattern and status.
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration measures request handling time by route pattern.
	HTTPDuration *prometheus.HistogramVec

	// RelayConnections is the number of live relay sockets.
	RelayConnections prometheus.Gauge

	// RelayMessages counts relay frames by outcome.
	RelayMessages *prometheus.CounterVec
}

// New creates a Metrics with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		IntakeRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of intake requests by outcome",
			},
			[]string{"outcome"},
		),
		InferenceDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inference_duration_seconds",
				Help:      "Duration of inference calls in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
			},
		),
		CorruptedLedgers: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "corrupted_ledgers_total",
				Help:      "Stored ledgers that could not be decoded",
			},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RelayConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "relay_connections",
				Help:      "Number of connected relay clients",
			},
		),
		RelayMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_messages_total",
				Help:      "Relay frames by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordIntake records one intake pipeline run.
func (m *Metrics) RecordIntake(outcome string) {
	m.IntakeRequests.WithLabelValues(outcome).Inc()
}

// RecordInference records the duration of one inference call.
func (m *Metrics) RecordInference(seconds float64) {
	m.InferenceDuration.Observe(seconds)
}

// RecordRelay records the outcome of one relay frame.
func (m *Metrics) RecordRelay(outcome string) {
	m.RelayMessages.WithLabelValues(outcome).Inc()
}
