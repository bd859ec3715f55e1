package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the resolver. The resolver
// itself never serves HTTP; embedders mount Handler on whatever metrics
// endpoint they already expose.
type Metrics struct {
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	fetchAttempts      prometheus.Histogram
	requestDuration    *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance backed by a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnikey_resolutions_total",
				Help: "Total number of identity resolutions by outcome",
			},
			[]string{"outcome"},
		),

		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "omnikey_resolution_duration_seconds",
				Help:    "End-to-end identity resolution latency by outcome",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 15, 30, 45, 60},
			},
			[]string{"outcome"},
		),

		fetchAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "omnikey_fetch_attempts",
				Help:    "Fetch attempts spent per identity resolution",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "omnikey_request_duration_seconds",
				Help:    "UDP API request latency by endpoint and status code",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status"},
		),

		registry: registry,
	}

	registry.MustRegister(m.resolutionsTotal, m.resolutionDuration, m.fetchAttempts, m.requestDuration)

	return m
}

// RecordResolution records the terminal outcome of one resolution.
func (m *Metrics) RecordResolution(outcome Outcome, attempts int, duration time.Duration) {
	m.resolutionsTotal.WithLabelValues(string(outcome)).Inc()
	m.resolutionDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
	if attempts > 0 {
		m.fetchAttempts.Observe(float64(attempts))
	}
}

// RecordRequest records one UDP API round trip. A status of 0 means the
// request never produced a response (transport failure).
func (m *Metrics) RecordRequest(endpoint string, status int, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(duration.Seconds())
}

// Handler returns an HTTP handler exposing the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for embedders that aggregate
// several collectors into one endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
