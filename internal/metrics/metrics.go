// Package metrics exposes the Prometheus metrics sink shared across
// transports and internal components (spec.md §4.5).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every counter/histogram/gauge the service publishes.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestsInFlight *prometheus.GaugeVec

	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
	RowsStreamed  *prometheus.CounterVec

	SessionsActive  prometheus.Gauge
	SessionsReaped  prometheus.Counter
	DatabasesOpen   prometheus.Gauge

	RateLimitRejections *prometheus.CounterVec

	ResourceMemoryBytes prometheus.Gauge
	ResourceDiskFreeBytes prometheus.Gauge

	registry prometheus.Registerer
}

// New builds a Metrics sink registered against the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry builds a Metrics sink registered against an explicit
// registerer, so tests can use a private registry instead of the global
// default (grounded on infrastructure/metrics.go's NewWithRegistry).
func NewWithRegistry(serviceName string, reg prometheus.Registerer) *Metrics {
	constLabels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "grafeodb_requests_total",
			Help:        "Total requests handled, by transport/route/status.",
			ConstLabels: constLabels,
		}, []string{"transport", "route", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "grafeodb_request_duration_seconds",
			Help:        "Request handling latency in seconds.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"transport", "route"}),

		RequestsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "grafeodb_requests_in_flight",
			Help:        "Requests currently being handled, by transport.",
			ConstLabels: constLabels,
		}, []string{"transport"}),

		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "grafeodb_query_duration_seconds",
			Help:        "Engine query execution latency in seconds.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"database", "language"}),

		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "grafeodb_query_errors_total",
			Help:        "Query execution errors, by kind.",
			ConstLabels: constLabels,
		}, []string{"database", "kind"}),

		RowsStreamed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "grafeodb_rows_streamed_total",
			Help:        "Rows delivered to clients via the row streamer.",
			ConstLabels: constLabels,
		}, []string{"database"}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "grafeodb_sessions_active",
			Help:        "Open transactional sessions.",
			ConstLabels: constLabels,
		}),

		SessionsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "grafeodb_sessions_reaped_total",
			Help:        "Sessions rolled back and evicted by the idle reaper.",
			ConstLabels: constLabels,
		}),

		DatabasesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "grafeodb_databases_open",
			Help:        "Databases currently registered with the manager.",
			ConstLabels: constLabels,
		}),

		RateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "grafeodb_rate_limit_rejections_total",
			Help:        "Requests rejected by the rate limiter, by transport.",
			ConstLabels: constLabels,
		}, []string{"transport"}),

		ResourceMemoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "grafeodb_resource_memory_available_bytes",
			Help:        "Available host memory, last probed value.",
			ConstLabels: constLabels,
		}),

		ResourceDiskFreeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "grafeodb_resource_disk_free_bytes",
			Help:        "Free disk space on the persistence root, last probed value.",
			ConstLabels: constLabels,
		}),

		registry: reg,
	}

	collectors := []prometheus.Collector{
		m.RequestsTotal, m.RequestDuration, m.RequestsInFlight,
		m.QueryDuration, m.QueryErrors, m.RowsStreamed,
		m.SessionsActive, m.SessionsReaped, m.DatabasesOpen,
		m.RateLimitRejections, m.ResourceMemoryBytes, m.ResourceDiskFreeBytes,
	}
	for _, c := range collectors {
		_ = reg.Register(c)
	}

	return m
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(transport, route, status string, d time.Duration) {
	m.RequestsTotal.WithLabelValues(transport, route, status).Inc()
	m.RequestDuration.WithLabelValues(transport, route).Observe(d.Seconds())
}
