package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics (dashboard surface)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Queue metrics
	QueueDepth          prometheus.Gauge
	QueueAdmissions     *prometheus.CounterVec
	QueueProcessed      *prometheus.CounterVec
	QueueProcessingTime prometheus.Histogram

	// Recovery metrics
	RecoveryAttempts  prometheus.Counter
	FreshPairings     prometheus.Counter
	SessionsSaved     prometheus.Counter
	SessionsRestored  prometheus.Counter
	RestoreFailures   prometheus.Counter
	WatchdogPurges    *prometheus.CounterVec
	StoreBytes        prometheus.Gauge

	// Chunk transfer metrics
	ChunkOps *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector on its own registry so test
// instances never collide.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_http_requests_total",
				Help: "Total number of dashboard HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bot_http_request_duration_seconds",
				Help:    "Dashboard HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bot_queue_depth",
				Help: "Current admission queue depth including the in-flight item",
			},
		),
		QueueAdmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_queue_admissions_total",
				Help: "Admission decisions by outcome",
			},
			[]string{"outcome"},
		),
		QueueProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_queue_processed_total",
				Help: "Processed queue items by outcome",
			},
			[]string{"outcome"},
		),
		QueueProcessingTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bot_queue_processing_seconds",
				Help:    "End-to-end processing time per queue item",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),

		RecoveryAttempts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_recovery_attempts_total",
				Help: "Reconnection attempts after disconnects",
			},
		),
		FreshPairings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_fresh_pairings_total",
				Help: "Forced fresh pairing cycles",
			},
		),
		SessionsSaved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_sessions_saved_total",
				Help: "Successful session blob saves",
			},
		),
		SessionsRestored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_sessions_restored_total",
				Help: "Successful session blob restores",
			},
		),
		RestoreFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_restore_failures_total",
				Help: "Failed session restore attempts",
			},
		),
		WatchdogPurges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_watchdog_purges_total",
				Help: "Quota watchdog purge runs by severity",
			},
			[]string{"severity"},
		),
		StoreBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bot_store_bytes",
				Help: "Aggregate remote store payload size in bytes",
			},
		),

		ChunkOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_chunk_ops_total",
				Help: "Chunk transfer operations by direction and outcome",
			},
			[]string{"op", "outcome"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bot_ws_connections",
				Help: "Active dashboard WebSocket connections",
			},
		),
	}
}

// Handler returns the Prometheus exposition handler for this
// collector's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
