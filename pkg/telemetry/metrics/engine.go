package metrics

import (
	"time"

	"palisade-hq/palisade/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks apply/revert batches and drift scanning.
//
// Metrics:
//   - palisade_daemon_batches_total: Batches by operation and outcome
//   - palisade_daemon_batch_duration_seconds: Batch wall time
//   - palisade_daemon_batch_policies: Policies per resolved batch
//   - palisade_daemon_policy_changes_total: Per-policy changes by mechanism,
//     operation and outcome
//   - palisade_daemon_checkpoints_total: Restore checkpoint attempts
//   - palisade_daemon_drift_scans_total: Drift scans by outcome
//   - palisade_daemon_drift_scan_duration_seconds: Drift scan wall time
//   - palisade_daemon_drift_items: Items found by the latest scan, by severity
type EngineMetrics struct {
	// Completed batches
	batchesTotal *prometheus.CounterVec

	// Batch duration histogram
	batchDuration *prometheus.HistogramVec

	// Policies per batch histogram
	batchPolicies *prometheus.HistogramVec

	// Individual change records
	changesTotal *prometheus.CounterVec

	// Restore checkpoint attempts
	checkpointsTotal *prometheus.CounterVec

	// Drift scans
	driftScansTotal   *prometheus.CounterVec
	driftScanDuration prometheus.Histogram
	driftItems        *prometheus.GaugeVec
}

// NewEngineMetrics creates and registers engine metrics with the provided
// registry.
func NewEngineMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EngineMetrics {
	em := &EngineMetrics{
		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "batches_total",
				Help:      "Total number of policy batches",
			},
			[]string{"operation", "outcome"},
		),

		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "batch_duration_seconds",
				Help:      "Wall time of policy batches in seconds",
				Buckets:   cfg.BatchDurationBuckets,
			},
			[]string{"operation"},
		),

		batchPolicies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "batch_policies",
				Help:      "Number of policies per resolved batch",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
			[]string{"operation"},
		),

		changesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_changes_total",
				Help:      "Total number of per-policy change records",
			},
			[]string{"mechanism", "operation", "outcome"},
		),

		checkpointsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "checkpoints_total",
				Help:      "Total number of restore checkpoint attempts",
			},
			[]string{"outcome"},
		),

		driftScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "drift_scans_total",
				Help:      "Total number of drift scans",
			},
			[]string{"outcome"},
		),

		driftScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "drift_scan_duration_seconds",
				Help:      "Wall time of drift scans in seconds",
				Buckets:   cfg.BatchDurationBuckets,
			},
		),

		driftItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "drift_items",
				Help:      "Drift items found by the most recent scan, by severity",
			},
			[]string{"severity"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		em.batchesTotal,
		em.batchDuration,
		em.batchPolicies,
		em.changesTotal,
		em.checkpointsTotal,
		em.driftScansTotal,
		em.driftScanDuration,
		em.driftItems,
	)

	return em
}

// RecordBatch records one completed batch.
func (em *EngineMetrics) RecordBatch(operation, outcome string, duration time.Duration, policies int) {
	em.batchesTotal.WithLabelValues(operation, outcome).Inc()
	em.batchDuration.WithLabelValues(operation).Observe(duration.Seconds())
	em.batchPolicies.WithLabelValues(operation).Observe(float64(policies))
}

// RecordChange records one per-policy change record.
func (em *EngineMetrics) RecordChange(mechanism, operation string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	em.changesTotal.WithLabelValues(mechanism, operation, outcome).Inc()
}

// RecordCheckpoint records a restore checkpoint attempt.
func (em *EngineMetrics) RecordCheckpoint(outcome string) {
	em.checkpointsTotal.WithLabelValues(outcome).Inc()
}

// driftSeverities pins the gauge's label space so a clean scan resets
// every severity, not only the ones present in the last report.
var driftSeverities = []string{"low", "medium", "high", "critical"}

// RecordDriftScan records one drift comparison and publishes the latest
// item counts.
func (em *EngineMetrics) RecordDriftScan(outcome string, duration time.Duration, itemsBySeverity map[string]int) {
	em.driftScansTotal.WithLabelValues(outcome).Inc()
	em.driftScanDuration.Observe(duration.Seconds())

	for _, severity := range driftSeverities {
		em.driftItems.WithLabelValues(severity).Set(float64(itemsBySeverity[severity]))
	}
}
