package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event ingestion metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dolpyitcs_events_total",
			Help: "Total number of events received, by event type and outcome",
		},
		[]string{"event_type", "status"},
	)

	EventBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dolpyitcs_event_bytes_total",
			Help: "Total bytes of event payload data received",
		},
	)

	// Rejections by reason. Ingestion responds success regardless, so this
	// counter is the primary way rejects stay visible to operators.
	RejectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dolpyitcs_rejects_total",
			Help: "Total number of internally rejected payloads by reason",
		},
		[]string{"reason"},
	)

	// Store metrics
	AppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dolpyitcs_store_append_duration_seconds",
			Help:    "Duration of durable event appends in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dolpyitcs_store_errors_total",
			Help: "Total number of event store write failures",
		},
	)

	// Aggregation metrics
	AggregateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dolpyitcs_aggregate_duration_seconds",
			Help:    "Duration of snapshot computation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"range", "path"},
	)

	SnapshotCacheServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dolpyitcs_snapshot_cache_served_total",
			Help: "Total number of snapshots answered from the stale cache",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dolpyitcs_rate_limit_hits_total",
			Help: "Total number of rate limited collect requests",
		},
	)

	// DLQ metrics
	DLQWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dolpyitcs_dlq_writes_total",
			Help: "Total number of events diverted to the dead letter queue",
		},
	)
)
