// Package metrics holds the Prometheus instrumentation for the HTTP
// surface. The processing pipeline carries its own metrics in
// pkg/processor.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks request counts, latency and in-flight requests.
//
// All metrics use the "inkvault_http_" prefix. Methods handle a nil
// receiver gracefully, so a nil *HTTPMetrics acts as a no-op when
// metrics are disabled.
type HTTPMetrics struct {
	// RequestsTotal counts finished requests.
	// Labels: method, route, status
	RequestsTotal *prometheus.CounterVec

	// RequestDuration tracks wall time per request.
	// Labels: method, route
	RequestDuration *prometheus.HistogramVec

	// InFlight tracks requests currently being served.
	InFlight prometheus.Gauge
}

var (
	httpOnce     sync.Once
	httpInstance *HTTPMetrics
)

// NewHTTPMetrics creates and registers the HTTP metrics. Idempotent:
// repeated calls return the same instance. A nil registerer uses the
// Prometheus default.
func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	httpOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		m := &HTTPMetrics{
			RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "inkvault_http_requests_total",
				Help: "Finished HTTP requests by method, route and status.",
			}, []string{"method", "route", "status"}),
			RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "inkvault_http_request_duration_seconds",
				Help:    "HTTP request wall time by method and route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "route"}),
			InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "inkvault_http_in_flight_requests",
				Help: "HTTP requests currently being served.",
			}),
		}
		registerer.MustRegister(m.RequestsTotal, m.RequestDuration, m.InFlight)
		httpInstance = m
	})
	return httpInstance
}

// ObserveRequest records one finished request.
func (m *HTTPMetrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// InFlightDelta adjusts the in-flight gauge.
func (m *HTTPMetrics) InFlightDelta(d float64) {
	if m == nil {
		return
	}
	m.InFlight.Add(d)
}
