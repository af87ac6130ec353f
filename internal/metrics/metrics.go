// Package metrics provides Prometheus metrics for trackersyncd, adapted
// from orchid/pkg/metrics/metrics.go onto this engine's own pass/patch/
// conflict/adapter-call vocabulary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PassesTotal tracks poll-driver passes by outcome.
	PassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackersync",
			Subsystem: "poller",
			Name:      "passes_total",
			Help:      "Total number of poll passes by outcome",
		},
		[]string{"status"},
	)

	// PassDuration tracks whole-pass duration in seconds.
	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "trackersync",
			Subsystem: "poller",
			Name:      "pass_duration_seconds",
			Help:      "Duration of a full poll pass in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// PatchesAppliedTotal tracks every patch the reconciler applies to a
	// platform: first-observe, one-sided, and conflict-merge patches alike.
	PatchesAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackersync",
			Subsystem: "reconcile",
			Name:      "patches_applied_total",
			Help:      "Total number of issue patches applied, by target platform",
		},
		[]string{"platform"},
	)

	// ConflictsResolvedTotal tracks both-sides-differ merges.
	ConflictsResolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackersync",
			Subsystem: "reconcile",
			Name:      "conflicts_resolved_total",
			Help:      "Total number of two-sided conflicts resolved by per-field merge",
		},
	)

	// MappingsCreatedTotal/MappingsDeletedTotal track pairing lifecycle events.
	MappingsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackersync",
			Subsystem: "pairing",
			Name:      "mappings_created_total",
			Help:      "Total number of issue mappings created, by discovery path",
		},
		[]string{"path"},
	)

	MappingsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackersync",
			Subsystem: "pairing",
			Name:      "mappings_deleted_total",
			Help:      "Total number of issue mappings deleted after a confirmed not-found",
		},
	)

	// AdapterCallsTotal tracks every outbound adapter operation by platform,
	// operation, and result kind (ok/not_found/transient/permanent).
	AdapterCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackersync",
			Subsystem: "adapter",
			Name:      "calls_total",
			Help:      "Total number of adapter calls by platform, operation, and result",
		},
		[]string{"platform", "operation", "result"},
	)

	// RateLimitWaitSeconds tracks time spent waiting on the client-side limiter.
	RateLimitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trackersync",
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for rate-limit budget, by platform",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"platform"},
	)

	// EventPublishTotal tracks best-effort Kafka event-log publishes.
	EventPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackersync",
			Subsystem: "eventlog",
			Name:      "publish_total",
			Help:      "Total number of reconciliation events published, by type and status",
		},
		[]string{"event_type", "status"},
	)

	// DatabaseQueryDuration tracks repository query duration.
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trackersync",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// RecordPass records a completed poll pass.
func RecordPass(status string, durationSeconds float64) {
	PassesTotal.WithLabelValues(status).Inc()
	PassDuration.Observe(durationSeconds)
}

// RecordAdapterCall records one adapter operation's outcome.
func RecordAdapterCall(platform, operation, result string) {
	AdapterCallsTotal.WithLabelValues(platform, operation, result).Inc()
}

// RecordEventPublish records one eventlog publish attempt.
func RecordEventPublish(eventType, status string) {
	EventPublishTotal.WithLabelValues(eventType, status).Inc()
}
