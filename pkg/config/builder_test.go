package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with sensible defaults for testing.
// The resulting configuration is valid and can be used immediately.
func NewTestConfig() *ConfigBuilder {
	cfg := Config{}
	ApplyDefaults(&cfg)

	// Tests should not touch the real ledger file
	cfg.Ledger.Backend = "memory"

	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithPipeName sets the control pipe name.
func (b *ConfigBuilder) WithPipeName(name string) *ConfigBuilder {
	b.cfg.Server.PipeName = name
	return b
}

// WithSocketPath sets the control socket path.
func (b *ConfigBuilder) WithSocketPath(path string) *ConfigBuilder {
	b.cfg.Server.SocketPath = path
	return b
}

// WithMaxConnections sets the connection limit.
func (b *ConfigBuilder) WithMaxConnections(n int) *ConfigBuilder {
	b.cfg.Server.MaxConnections = n
	return b
}

// WithReadTimeout sets the command read timeout.
func (b *ConfigBuilder) WithReadTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.Server.ReadTimeout = d
	return b
}

// WithPolicyPath sets the policy catalog path.
func (b *ConfigBuilder) WithPolicyPath(path string) *ConfigBuilder {
	b.cfg.Policy.Path = path
	return b
}

// WithPolicyWatch sets catalog watch mode.
func (b *ConfigBuilder) WithPolicyWatch(watch bool) *ConfigBuilder {
	b.cfg.Policy.Watch = watch
	return b
}

// WithCheckpointDisabled disables restore checkpoints.
func (b *ConfigBuilder) WithCheckpointDisabled() *ConfigBuilder {
	b.cfg.Engine.Checkpoint.Disabled = true
	return b
}

// WithScriptRoot sets the allow-listed script directory.
func (b *ConfigBuilder) WithScriptRoot(root string) *ConfigBuilder {
	b.cfg.Engine.Scripts.Root = root
	return b
}

// WithDrift enables the drift monitor on the given schedule.
func (b *ConfigBuilder) WithDrift(schedule string) *ConfigBuilder {
	b.cfg.Engine.Drift.Enabled = true
	b.cfg.Engine.Drift.Schedule = schedule
	return b
}

// WithLedgerBackend sets the ledger backend.
func (b *ConfigBuilder) WithLedgerBackend(backend string) *ConfigBuilder {
	b.cfg.Ledger.Backend = backend
	return b
}

// WithSQLitePath sets the SQLite database path and selects the sqlite backend.
func (b *ConfigBuilder) WithSQLitePath(path string) *ConfigBuilder {
	b.cfg.Ledger.SQLite.Path = path
	b.cfg.Ledger.Backend = "sqlite"
	return b
}

// WithAllowUnsignedClients relaxes caller signature verification.
func (b *ConfigBuilder) WithAllowUnsignedClients() *ConfigBuilder {
	b.cfg.Authz.AllowUnsignedClients = true
	return b
}

// WithLoggingLevel sets the logging level.
func (b *ConfigBuilder) WithLoggingLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

// WithLoggingFormat sets the logging format.
func (b *ConfigBuilder) WithLoggingFormat(format string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Format = format
	return b
}

// WithMetricsEnabled sets whether metrics are enabled.
func (b *ConfigBuilder) WithMetricsEnabled(enabled bool) *ConfigBuilder {
	b.cfg.Telemetry.Metrics.Enabled = enabled
	return b
}

// MinimalConfig returns a minimal valid configuration for testing.
// This is useful for tests that don't care about most configuration values.
func MinimalConfig() *Config {
	return NewTestConfig().Build()
}
