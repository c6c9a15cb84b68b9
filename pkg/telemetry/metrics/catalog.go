package metrics

import (
	"time"

	"palisade-hq/palisade/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CatalogMetrics tracks the policy catalog.
//
// Metrics:
//   - palisade_daemon_catalog_policies: Policies in the active catalog
//   - palisade_daemon_catalog_reloads_total: Reload attempts by outcome
//   - palisade_daemon_catalog_reload_timestamp_seconds: Last successful reload
type CatalogMetrics struct {
	policies        prometheus.Gauge
	reloadsTotal    *prometheus.CounterVec
	reloadTimestamp prometheus.Gauge
}

// NewCatalogMetrics creates and registers catalog metrics with the provided
// registry.
func NewCatalogMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CatalogMetrics {
	cm := &CatalogMetrics{
		policies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_policies",
				Help:      "Number of policies in the active catalog",
			},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_reloads_total",
				Help:      "Total number of catalog load attempts",
			},
			[]string{"outcome"},
		),

		reloadTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_reload_timestamp_seconds",
				Help:      "Unix time of the last successful catalog load",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		cm.policies,
		cm.reloadsTotal,
		cm.reloadTimestamp,
	)

	return cm
}

// RecordReload records a catalog load attempt. A rejected catalog leaves
// the policy gauge untouched; the active catalog did not change.
func (cm *CatalogMetrics) RecordReload(success bool, policies int) {
	if !success {
		cm.reloadsTotal.WithLabelValues("failure").Inc()
		return
	}

	cm.reloadsTotal.WithLabelValues("success").Inc()
	cm.policies.Set(float64(policies))
	cm.reloadTimestamp.Set(float64(time.Now().Unix()))
}
