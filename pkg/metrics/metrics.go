package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts instance cache lookups by model and result (hit|miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewcache_lookups_total",
			Help: "Total number of serialized instance cache lookups",
		},
		[]string{"model", "result"},
	)

	// QueryLookups counts cached primary-key list lookups by model and result.
	QueryLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewcache_query_lookups_total",
			Help: "Total number of cached query signature lookups",
		},
		[]string{"model", "result"},
	)

	// InvalidationSignals counts invalidation signals by model and outcome (ok|error).
	InvalidationSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewcache_invalidation_signals_total",
			Help: "Total number of invalidation signals processed",
		},
		[]string{"model", "result"},
	)

	// StoreErrors counts cache store failures by backend operation.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewcache_store_errors_total",
			Help: "Total number of cache store operation failures",
		},
		[]string{"operation"},
	)

	// InvalidationQueueDepth tracks pending invalidation signals.
	InvalidationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "viewcache_invalidation_queue_depth",
			Help: "Number of invalidation signals waiting to be processed",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "viewcache_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
