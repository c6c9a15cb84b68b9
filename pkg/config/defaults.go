package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultServerPipeName        = `\\.\pipe\palisade-control`
	DefaultServerSocketPath      = "/run/palisade.sock"
	DefaultServerMaxConnections  = 8
	DefaultServerMaxFrameBytes   = 4194304 // 4MB
	DefaultServerReadTimeout     = 60 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerShutdownTimeout = 30 * time.Second

	// Policy defaults
	DefaultPolicyPath          = "./policies"
	DefaultPolicyWatchDebounce = 2 * time.Second
	DefaultPolicyMaxFileBytes  = 1048576 // 1MB

	// Engine defaults
	DefaultCheckpointDescription = "Palisade policy batch"
	DefaultScriptsDefaultTimeout = 60 * time.Second
	DefaultFirewallAuditCacheTTL = 30 * time.Second
	DefaultDriftSchedule         = "0 * * * *"

	// Ledger defaults
	DefaultLedgerBackend      = "sqlite"
	DefaultSQLitePath         = "data/ledger.db"
	DefaultSQLiteMaxOpenConns = 10
	DefaultSQLiteMaxIdleConns = 5
	DefaultSQLiteBusyTimeout  = 5 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultLoggingOutput        = "stderr"
	DefaultMetricsListenAddress = "127.0.0.1:9464"
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "palisade"
	DefaultMetricsSubsystem     = "daemon"
)

// ApplyDefaults fills in default values for any fields that are not set.
// It only sets zero values, preserving any explicitly configured values.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.PipeName == "" {
		cfg.Server.PipeName = DefaultServerPipeName
	}
	if cfg.Server.SocketPath == "" {
		cfg.Server.SocketPath = DefaultServerSocketPath
	}
	if cfg.Server.MaxConnections == 0 {
		cfg.Server.MaxConnections = DefaultServerMaxConnections
	}
	if cfg.Server.MaxFrameBytes == 0 {
		cfg.Server.MaxFrameBytes = DefaultServerMaxFrameBytes
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}

	// Policy defaults
	if cfg.Policy.Path == "" {
		cfg.Policy.Path = DefaultPolicyPath
	}
	if cfg.Policy.WatchDebounce == 0 {
		cfg.Policy.WatchDebounce = DefaultPolicyWatchDebounce
	}
	if cfg.Policy.MaxFileBytes == 0 {
		cfg.Policy.MaxFileBytes = DefaultPolicyMaxFileBytes
	}

	// Engine defaults
	if cfg.Engine.Checkpoint.Description == "" {
		cfg.Engine.Checkpoint.Description = DefaultCheckpointDescription
	}
	if cfg.Engine.Scripts.DefaultTimeout == 0 {
		cfg.Engine.Scripts.DefaultTimeout = DefaultScriptsDefaultTimeout
	}
	if cfg.Engine.Firewall.AuditCacheTTL == 0 {
		cfg.Engine.Firewall.AuditCacheTTL = DefaultFirewallAuditCacheTTL
	}
	if cfg.Engine.Drift.Schedule == "" {
		cfg.Engine.Drift.Schedule = DefaultDriftSchedule
	}

	// Ledger defaults
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = DefaultLedgerBackend
	}
	if cfg.Ledger.SQLite.Path == "" {
		cfg.Ledger.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Ledger.SQLite.MaxOpenConns == 0 {
		cfg.Ledger.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Ledger.SQLite.MaxIdleConns == 0 {
		cfg.Ledger.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.Ledger.SQLite.BusyTimeout == 0 {
		cfg.Ledger.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Logging.Output == "" {
		cfg.Telemetry.Logging.Output = DefaultLoggingOutput
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
}

// DefaultConfig returns a Config populated entirely with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
