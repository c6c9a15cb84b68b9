package metrics

import (
	"time"

	"palisade-hq/palisade/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the main orchestrator for all Prometheus metrics in the
// Palisade daemon. It manages metric registration and provides a unified
// recording interface for the engine, ledger, server and catalog.
//
// All methods are safe on a nil *Collector and become no-ops when metrics
// are disabled, so components never need their own guards.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Engine metrics: batches, per-policy changes, checkpoints, drift
	engineMetrics *EngineMetrics

	// Ledger metrics: batch writes
	ledgerMetrics *LedgerMetrics

	// Server metrics: connections and commands
	serverMetrics *ServerMetrics

	// Catalog metrics: policy count and reloads
	catalogMetrics *CatalogMetrics
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "palisade",
//		Subsystem: "daemon",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Set defaults if not specified
	if cfg.Namespace == "" {
		cfg.Namespace = "palisade"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "daemon"
	}
	if len(cfg.BatchDurationBuckets) == 0 {
		// Batches shell out to PowerShell per policy; whole batches run
		// seconds to minutes.
		cfg.BatchDurationBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	}
	if len(cfg.CommandDurationBuckets) == 0 {
		// Read commands answer in milliseconds, mutate commands in
		// seconds to minutes.
		cfg.CommandDurationBuckets = []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300}
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	// Initialize metric subsystems
	c.engineMetrics = NewEngineMetrics(cfg, registry)
	c.ledgerMetrics = NewLedgerMetrics(cfg, registry)
	c.serverMetrics = NewServerMetrics(cfg, registry)
	c.catalogMetrics = NewCatalogMetrics(cfg, registry)

	return c
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordBatch records one completed apply or revert batch.
//
// Parameters:
//   - operation: "apply" or "revert"
//   - outcome: "success", "failure" or "cancelled"
//   - duration: wall time for the whole batch
//   - policies: number of policies in the resolved batch
func (c *Collector) RecordBatch(operation, outcome string, duration time.Duration, policies int) {
	if !c.enabled() {
		return
	}

	c.engineMetrics.RecordBatch(operation, outcome, duration, policies)
}

// RecordPolicyChange records one per-policy change record inside a batch.
//
// Parameters:
//   - mechanism: "registry", "service", "scheduled_task", "firewall" or "script"
//   - operation: "apply" or "revert"
//   - success: the record's outcome
func (c *Collector) RecordPolicyChange(mechanism, operation string, success bool) {
	if !c.enabled() {
		return
	}

	c.engineMetrics.RecordChange(mechanism, operation, success)
}

// RecordCheckpoint records a restore checkpoint attempt.
//
// Parameters:
//   - outcome: "created", "failed" or "skipped"
func (c *Collector) RecordCheckpoint(outcome string) {
	if !c.enabled() {
		return
	}

	c.engineMetrics.RecordCheckpoint(outcome)
}

// RecordDriftScan records one drift comparison.
//
// Parameters:
//   - outcome: "clean", "drifted" or "failed"
//   - duration: scan wall time
//   - itemsBySeverity: drift items found, keyed by severity
func (c *Collector) RecordDriftScan(outcome string, duration time.Duration, itemsBySeverity map[string]int) {
	if !c.enabled() {
		return
	}

	c.engineMetrics.RecordDriftScan(outcome, duration, itemsBySeverity)
}

// RecordLedgerWrite records one batch persistence attempt.
//
// Parameters:
//   - success: whether the transaction committed
//   - duration: write wall time
//   - records: change records in the batch
func (c *Collector) RecordLedgerWrite(success bool, duration time.Duration, records int) {
	if !c.enabled() {
		return
	}

	c.ledgerMetrics.RecordWrite(success, duration, records)
}

// ConnectionOpened records an accepted control connection.
func (c *Collector) ConnectionOpened() {
	if !c.enabled() {
		return
	}

	c.serverMetrics.ConnectionOpened()
}

// ConnectionClosed records the end of a control connection.
func (c *Collector) ConnectionClosed() {
	if !c.enabled() {
		return
	}

	c.serverMetrics.ConnectionClosed()
}

// RecordConnectionRejected records a connection turned away before serving.
//
// Parameters:
//   - reason: "limit" or "identity"
func (c *Collector) RecordConnectionRejected(reason string) {
	if !c.enabled() {
		return
	}

	c.serverMetrics.RecordRejected(reason)
}

// RecordCommand records one completed command.
//
// Parameters:
//   - cmdType: wire command type
//   - code: "ok" for success, otherwise the wire error code
//   - duration: dispatch wall time
func (c *Collector) RecordCommand(cmdType, code string, duration time.Duration) {
	if !c.enabled() {
		return
	}

	c.serverMetrics.RecordCommand(cmdType, code, duration)
}

// RecordAuthzDenial records an authorization denial.
//
// Parameters:
//   - tier: "read" or "mutate"
func (c *Collector) RecordAuthzDenial(tier string) {
	if !c.enabled() {
		return
	}

	c.serverMetrics.RecordDenial(tier)
}

// RecordCatalogReload records a catalog load or reload.
//
// Parameters:
//   - success: whether the new catalog was accepted
//   - policies: resulting policy count (ignored on failure)
func (c *Collector) RecordCatalogReload(success bool, policies int) {
	if !c.enabled() {
		return
	}

	c.catalogMetrics.RecordReload(success, policies)
}

// Registry returns the Prometheus registry used by this collector.
// This can be used to create an HTTP handler for the /metrics endpoint:
//
//	http.Handle("/metrics", promhttp.HandlerFor(
//		collector.Registry(),
//		promhttp.HandlerOpts{},
//	))
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}
