package metrics

import (
	"time"

	"palisade-hq/palisade/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks change ledger persistence.
//
// Metrics:
//   - palisade_daemon_ledger_writes_total: Batch writes by outcome
//   - palisade_daemon_ledger_write_duration_seconds: Write transaction time
//   - palisade_daemon_ledger_write_records: Change records per written batch
type LedgerMetrics struct {
	writesTotal   *prometheus.CounterVec
	writeDuration prometheus.Histogram
	writeRecords  prometheus.Histogram
}

// NewLedgerMetrics creates and registers ledger metrics with the provided
// registry.
func NewLedgerMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LedgerMetrics {
	lm := &LedgerMetrics{
		writesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ledger_writes_total",
				Help:      "Total number of ledger batch writes",
			},
			[]string{"outcome"},
		),

		writeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ledger_write_duration_seconds",
				Help:      "Duration of ledger write transactions in seconds",
				// Local SQLite commits are fast; the tail covers WAL
				// checkpoints and busy retries.
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to 1s
			},
		),

		writeRecords: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ledger_write_records",
				Help:      "Change records per written batch",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		lm.writesTotal,
		lm.writeDuration,
		lm.writeRecords,
	)

	return lm
}

// RecordWrite records one batch persistence attempt.
func (lm *LedgerMetrics) RecordWrite(success bool, duration time.Duration, records int) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	lm.writesTotal.WithLabelValues(outcome).Inc()
	lm.writeDuration.Observe(duration.Seconds())
	lm.writeRecords.Observe(float64(records))
}
