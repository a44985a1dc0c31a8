// Package metrics exposes Prometheus instrumentation for the balance engine.
//
// Consistency violations are deliberately a metric rather than an API
// error: they indicate latent bugs, are surfaced to monitoring, and are
// never shown to end users.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	// Recompute outcomes, labeled ok|conflict_exhausted|violation|error.
	RecomputesTotal *prometheus.CounterVec

	// Optimistic-lock version mismatches (individual retries, not final
	// failures).
	LockConflictsTotal prometheus.Counter

	// Consistency violations by kind (orphaned_record, split_sum_mismatch,
	// self_settlement, non_zero_sum).
	ConsistencyViolationsTotal *prometheus.CounterVec

	RecomputeDuration prometheus.Histogram

	// Depth of the recompute queue.
	QueueDepth prometheus.Gauge
}

// New returns the process-wide metrics, registering them on first call.
// sync.Once guards against duplicate-collector panics when tests build
// multiple dispatchers.
func New() *Metrics {
	once.Do(func() {
		global = &Metrics{
			RecomputesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "splitengine_recomputes_total",
					Help: "Balance recompute attempts by final result",
				},
				[]string{"result"},
			),
			LockConflictsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "splitengine_lock_conflicts_total",
					Help: "Optimistic-lock version mismatches during projection writes",
				},
			),
			ConsistencyViolationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "splitengine_consistency_violations_total",
					Help: "Internal-consistency violations detected during aggregation",
				},
				[]string{"kind"},
			),
			RecomputeDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "splitengine_recompute_duration_seconds",
					Help:    "Wall time of full balance recomputes",
					Buckets: prometheus.DefBuckets,
				},
			),
			QueueDepth: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "splitengine_recompute_queue_depth",
					Help: "Recompute keys waiting in the dispatcher queue",
				},
			),
		}
	})
	return global
}
