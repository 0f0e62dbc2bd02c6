package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the click analytics service.
type Metrics struct {
	// Ingestion metrics
	ClicksIngested *prometheus.CounterVec
	ClicksRejected *prometheus.CounterVec

	// Rollup metrics
	RollupRuns     *prometheus.CounterVec
	RollupDuration prometheus.Histogram
	PurgedEvents   prometheus.Counter

	// Query metrics
	QueryDuration *prometheus.HistogramVec
	QueryFallback prometheus.Counter

	// Storage metrics
	StorageErrors *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ClicksIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clicks_ingested_total",
				Help:      "Total click events accepted and written",
			},
			[]string{"kind"}, // guide or navigation
		),
		ClicksRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clicks_rejected_total",
				Help:      "Total click events rejected before storage",
			},
			[]string{"reason"},
		),
		RollupRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollup_runs_total",
				Help:      "Total rollup invocations by outcome",
			},
			[]string{"status"}, // applied, skipped, failed
		),
		RollupDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rollup_duration_seconds",
				Help:      "Rollup run duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
		),
		PurgedEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purged_events_total",
				Help:      "Raw click events removed by the retention purge",
			},
		),
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ranking_query_duration_seconds",
				Help:      "Ranking query latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"path"}, // hybrid or raw
		),
		QueryFallback: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ranking_query_fallbacks_total",
				Help:      "Ranking queries answered by the raw-only fallback",
			},
		),
		StorageErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Storage backend failures by operation",
			},
			[]string{"op"},
		),
	}
}

// RecordIngested increments the accepted-click counter.
func (m *Metrics) RecordIngested(kind string) {
	if m == nil {
		return
	}
	m.ClicksIngested.WithLabelValues(kind).Inc()
}

// RecordRejected increments the rejection counter for a reason code.
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.ClicksRejected.WithLabelValues(reason).Inc()
}

// RecordRollup records one rollup invocation.
func (m *Metrics) RecordRollup(status string, duration time.Duration, purged int64) {
	if m == nil {
		return
	}
	m.RollupRuns.WithLabelValues(status).Inc()
	m.RollupDuration.Observe(duration.Seconds())
	if purged > 0 {
		m.PurgedEvents.Add(float64(purged))
	}
}

// RecordQuery records one ranking query.
func (m *Metrics) RecordQuery(path string, duration time.Duration) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(path).Observe(duration.Seconds())
	if path == "raw" {
		m.QueryFallback.Inc()
	}
}

// RecordStorageError increments the storage failure counter.
func (m *Metrics) RecordStorageError(op string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(op).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
