// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Scan metrics
	CyclesTotal         *prometheus.CounterVec
	CycleDuration       *prometheus.HistogramVec
	CandidatesEvaluated prometheus.Counter
	CandidatesRejected  *prometheus.CounterVec
	CandidateErrors     *prometheus.CounterVec

	// Position metrics
	PositionsOpened prometheus.Counter
	PositionsClosed *prometheus.CounterVec
	OpenPositions   prometheus.Gauge
	PersistFailures *prometheus.CounterVec

	// Performance metrics
	WinRate     prometheus.Gauge
	TotalPnLPct prometheus.Gauge

	// Market data metrics
	MarketDataLatency *prometheus.HistogramVec
	MarketDataErrors  *prometheus.CounterVec
	CacheHits         *prometheus.CounterVec
	StreamReconnects  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance registered on reg.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "pair_agent"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Scan metrics
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of scheduler runs by kind and status",
		}, []string{"kind", "status"}),
		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Scheduler run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		CandidatesEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "candidates_evaluated_total",
			Help:      "Total number of candidate pairs analyzed",
		}),
		CandidatesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "candidates_rejected_total",
			Help:      "Total number of rejected candidates by reason",
		}, []string{"reason"}),
		CandidateErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "candidate_errors_total",
			Help:      "Total number of candidate or position failures by error class",
		}, []string{"class"}),

		// Position metrics
		PositionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "opened_total",
			Help:      "Total number of positions opened",
		}),
		PositionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "closed_total",
			Help:      "Total number of positions closed by reason",
		}, []string{"reason"}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Current number of open positions",
		}),
		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "persist_failures_total",
			Help:      "Total number of failed position writes by operation",
		}, []string{"operation"}),

		// Performance metrics
		WinRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "performance",
			Name:      "win_rate",
			Help:      "Win rate of closed positions",
		}),
		TotalPnLPct: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "performance",
			Name:      "total_pnl_pct",
			Help:      "Sum of closed position PnL in percent",
		}),

		// Market data metrics
		MarketDataLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "request_latency_seconds",
			Help:      "Market data request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		MarketDataErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "errors_total",
			Help:      "Total number of market data errors by endpoint and class",
		}, []string{"endpoint", "class"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "cache_requests_total",
			Help:      "Series cache lookups by result",
		}, []string{"result"}),
		StreamReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "stream_reconnects_total",
			Help:      "Total number of ticker stream reconnects",
		}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last successful full cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRun records a scheduler run (kind is "cycle" or "exit").
func RecordRun(kind, status string, duration time.Duration) {
	DefaultMetrics.CyclesTotal.WithLabelValues(kind, status).Inc()
	DefaultMetrics.CycleDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if kind == "cycle" && status == "ok" {
		DefaultMetrics.LastSuccessfulCycle.SetToCurrentTime()
	}
}

// RecordCandidateEvaluated increments the evaluated candidates counter.
func RecordCandidateEvaluated() {
	DefaultMetrics.CandidatesEvaluated.Inc()
}

// RecordCandidateRejected records a rejection by qualifier or risk reason.
func RecordCandidateRejected(reason string) {
	DefaultMetrics.CandidatesRejected.WithLabelValues(reason).Inc()
}

// RecordCandidateError records an isolated failure by error class.
func RecordCandidateError(class string) {
	DefaultMetrics.CandidateErrors.WithLabelValues(class).Inc()
}

// RecordPositionOpened increments the opened counter.
func RecordPositionOpened() {
	DefaultMetrics.PositionsOpened.Inc()
}

// RecordPositionClosed increments the closed counter for a reason.
func RecordPositionClosed(reason string) {
	DefaultMetrics.PositionsClosed.WithLabelValues(reason).Inc()
}

// SetOpenPositions updates the open positions gauge.
func SetOpenPositions(n int) {
	DefaultMetrics.OpenPositions.Set(float64(n))
}

// RecordPersistFailure records a failed position write.
func RecordPersistFailure(operation string) {
	DefaultMetrics.PersistFailures.WithLabelValues(operation).Inc()
}

// UpdatePerformance updates the performance gauges.
func UpdatePerformance(winRate, totalPnLPct float64) {
	DefaultMetrics.WinRate.Set(winRate)
	DefaultMetrics.TotalPnLPct.Set(totalPnLPct)
}

// RecordMarketDataRequest records market data request latency and failures.
func RecordMarketDataRequest(endpoint string, seconds float64, errClass string) {
	DefaultMetrics.MarketDataLatency.WithLabelValues(endpoint).Observe(seconds)
	if errClass != "" {
		DefaultMetrics.MarketDataErrors.WithLabelValues(endpoint, errClass).Inc()
	}
}

// RecordCacheLookup records a series cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheHits.WithLabelValues(result).Inc()
}

// RecordStreamReconnect increments the stream reconnect counter.
func RecordStreamReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
