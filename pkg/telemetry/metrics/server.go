package metrics

import (
	"time"

	"palisade-hq/palisade/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ServerMetrics tracks the local control endpoint.
//
// Metrics:
//   - palisade_daemon_connections_total: Accepted connections
//   - palisade_daemon_connections_rejected_total: Rejections by reason
//   - palisade_daemon_connections_active: Currently served connections
//   - palisade_daemon_commands_total: Commands by type and result code
//   - palisade_daemon_command_duration_seconds: Command dispatch time
//   - palisade_daemon_authz_denials_total: Authorization denials by tier
type ServerMetrics struct {
	connectionsTotal    prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	connectionsActive   prometheus.Gauge

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	denialsTotal *prometheus.CounterVec
}

// NewServerMetrics creates and registers server metrics with the provided
// registry.
func NewServerMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ServerMetrics {
	sm := &ServerMetrics{
		connectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "connections_total",
				Help:      "Total number of accepted control connections",
			},
		),

		connectionsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "connections_rejected_total",
				Help:      "Control connections rejected before serving",
			},
			[]string{"reason"},
		),

		connectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "connections_active",
				Help:      "Control connections currently being served",
			},
		),

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "commands_total",
				Help:      "Total number of dispatched commands",
			},
			[]string{"type", "code"},
		),

		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "command_duration_seconds",
				Help:      "Duration of command dispatch in seconds",
				Buckets:   cfg.CommandDurationBuckets,
			},
			[]string{"type"},
		),

		denialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "authz_denials_total",
				Help:      "Total number of authorization denials",
			},
			[]string{"tier"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		sm.connectionsTotal,
		sm.connectionsRejected,
		sm.connectionsActive,
		sm.commandsTotal,
		sm.commandDuration,
		sm.denialsTotal,
	)

	return sm
}

// ConnectionOpened records an accepted connection.
func (sm *ServerMetrics) ConnectionOpened() {
	sm.connectionsTotal.Inc()
	sm.connectionsActive.Inc()
}

// ConnectionClosed records the end of a served connection.
func (sm *ServerMetrics) ConnectionClosed() {
	sm.connectionsActive.Dec()
}

// RecordRejected records a connection turned away before serving.
func (sm *ServerMetrics) RecordRejected(reason string) {
	sm.connectionsRejected.WithLabelValues(reason).Inc()
}

// RecordCommand records one completed command dispatch.
func (sm *ServerMetrics) RecordCommand(cmdType, code string, duration time.Duration) {
	sm.commandsTotal.WithLabelValues(cmdType, code).Inc()
	sm.commandDuration.WithLabelValues(cmdType).Observe(duration.Seconds())
}

// RecordDenial records an authorization denial.
func (sm *ServerMetrics) RecordDenial(tier string) {
	sm.denialsTotal.WithLabelValues(tier).Inc()
}
