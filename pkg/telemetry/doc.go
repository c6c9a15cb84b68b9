// Package telemetry provides observability for the Palisade daemon.
//
// # Overview
//
// The telemetry package implements structured logging and Prometheus
// metrics for a host-local policy daemon. It provides visibility into
// batch execution, ledger writes, and control connections while keeping
// overhead low enough for a process that sits idle most of the time.
//
// # Components
//
//   - logging: Structured logging with command-scoped context fields
//   - metrics: Prometheus metrics collection
//
// # Usage
//
//	// Initialize logging once at startup
//	logger, err := logging.InitDefault(logging.FromConfig(&cfg.Telemetry.Logging))
//
//	// Record metrics through the collector
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordBatch("apply", "success", time.Second, 12)
//
// # Performance
//
// The telemetry package is designed for minimal overhead:
//
//   - Logging: <10µs when enabled, <1µs when disabled
//   - Metrics: <50µs per metric update
//
// Metric label sets are fixed enums (operation, mechanism, outcome), so
// cardinality stays bounded no matter how many policies a catalog holds.
package telemetry
