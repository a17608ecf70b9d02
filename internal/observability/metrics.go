package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// telemetry service.
type Metrics struct {
	FeedFetches       *prometheus.CounterVec   // labels: source, outcome={success,fetch_error,parse_error}
	FeedFetchDuration *prometheus.HistogramVec // labels: source

	Aggregations        prometheus.Counter
	AggregationDuration prometheus.Histogram

	// Cache/persistence metrics.
	CacheReads         *prometheus.CounterVec // labels: result={hit,stale,miss,corrupt,disabled}
	SnapshotsPersisted prometheus.Counter
	PersistenceErrors  prometheus.Counter

	// Streaming metrics.
	StreamSessions prometheus.Gauge
	StreamEvents   *prometheus.CounterVec // labels: event={snapshot,status,heartbeat,error}

	HistoryQueries *prometheus.CounterVec // labels: aggregate={none,hourly,daily}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.FeedFetches,
		m.FeedFetchDuration,
		m.Aggregations,
		m.AggregationDuration,
		m.CacheReads,
		m.SnapshotsPersisted,
		m.PersistenceErrors,
		m.StreamSessions,
		m.StreamEvents,
		m.HistoryQueries,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terra",
			Name:      "feed_fetches_total",
			Help:      "Upstream feed fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		FeedFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "terra",
			Name:      "feed_fetch_duration_seconds",
			Help:      "Upstream feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		Aggregations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "terra",
			Name:      "aggregations_total",
			Help:      "Total snapshot aggregations performed.",
		}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "terra",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of a full six-feed aggregation.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		CacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terra",
			Name:      "cache_reads_total",
			Help:      "Snapshot cache reads by result.",
		}, []string{"result"}),
		SnapshotsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "terra",
			Name:      "snapshots_persisted_total",
			Help:      "Snapshots written to the history log and cache.",
		}),
		PersistenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "terra",
			Name:      "persistence_errors_total",
			Help:      "Best-effort persistence failures (logged and swallowed).",
		}),
		StreamSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "terra",
			Name:      "stream_sessions_active",
			Help:      "Currently open SSE sessions.",
		}),
		StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terra",
			Name:      "stream_events_total",
			Help:      "SSE events emitted by event name.",
		}, []string{"event"}),
		HistoryQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terra",
			Name:      "history_queries_total",
			Help:      "History queries by aggregation mode.",
		}, []string{"aggregate"}),
	}
}
