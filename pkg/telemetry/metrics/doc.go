// Package metrics provides Prometheus metrics collection for the Palisade
// daemon.
//
// # Overview
//
// A single Collector owns the registry and fans recordings out to the
// per-concern metric sets: engine batches and drift scans, ledger writes,
// server connections and commands, and catalog state.
//
// # Metrics Categories
//
//   - Engine Metrics: Batch count, duration, per-policy change outcomes,
//     checkpoints, drift scans
//   - Ledger Metrics: Write count, duration, and records per batch
//   - Server Metrics: Connections, command count and duration, denials
//   - Catalog Metrics: Policy count and reload outcomes
//
// # Usage
//
//	// Create collector
//	collector := metrics.NewCollector(config, registry)
//
//	// Record a completed batch
//	collector.RecordBatch("apply", "success", 12*time.Second, 9)
//
//	// Record one policy change inside a batch
//	collector.RecordPolicyChange("registry", "apply", true)
//
//	// Record server activity
//	collector.RecordCommand("audit", "ok", 300*time.Millisecond)
//
// # Cardinality
//
// Every label value comes from a closed enumeration: mechanism, operation,
// outcome, command type, error code, severity. Policy ids never become
// labels, so cardinality is bounded by construction and no limiter is
// needed.
//
// # Prometheus Endpoint
//
// All metrics are exposed over HTTP in standard Prometheus format via
// Collector.Handler, typically on a loopback listener:
//
//	# HELP palisade_daemon_batches_total Total number of policy batches
//	# TYPE palisade_daemon_batches_total counter
//	palisade_daemon_batches_total{operation="apply",outcome="success"} 17
//
// Recording is gated on MetricsConfig.Enabled, and every Collector method
// tolerates a nil receiver so components can run unmetered in tests.
package metrics
