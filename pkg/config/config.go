package config

import "time"

// Config is the root configuration structure for the Palisade daemon.
// It contains all configuration sections for the control endpoint, policy
// catalog, hardening engine, change ledger, authorization, and telemetry.
type Config struct {
	// Server contains local control endpoint configuration including the
	// endpoint name, connection limits, and timeouts.
	Server ServerConfig `yaml:"server"`

	// Policy contains configuration for the policy catalog including the
	// source path and watch mode.
	Policy PolicyConfig `yaml:"policy"`

	// Engine contains configuration for batch execution including restore
	// checkpoints, script execution, and the drift monitor.
	Engine EngineConfig `yaml:"engine"`

	// Ledger contains configuration for the change ledger including
	// backend selection and SQLite settings.
	Ledger LedgerConfig `yaml:"ledger"`

	// Authz contains authorization settings for control connections.
	Authz AuthzConfig `yaml:"authz"`

	// Telemetry contains configuration for observability including logging
	// and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the local control endpoint.
// The daemon listens on a named pipe on Windows and a unix socket
// elsewhere; both names are configured here and the platform picks its own.
type ServerConfig struct {
	// PipeName is the named pipe path used on Windows.
	// Default: `\\.\pipe\palisade-control`
	PipeName string `yaml:"pipe_name"`

	// SocketPath is the unix socket path used on other platforms.
	// The parent directory must exist; the socket file is replaced at
	// startup.
	// Default: "/run/palisade.sock"
	SocketPath string `yaml:"socket_path"`

	// MaxConnections caps concurrently served control connections.
	// Further connections are rejected immediately with a busy error.
	// Default: 8
	MaxConnections int `yaml:"max_connections"`

	// MaxFrameBytes bounds a single protocol frame in either direction.
	// Default: 4194304 (4MB)
	MaxFrameBytes int `yaml:"max_frame_bytes"`

	// ReadTimeout is the maximum duration for reading one command frame.
	// It also bounds how long an idle connection may sit between
	// commands. A zero or negative value means no timeout.
	// Default: 60s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing one response or
	// progress frame. A zero or negative value means no timeout.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight
	// commands during graceful shutdown. Batches still running after
	// this timeout are cancelled and their partial results persisted.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PolicyConfig contains configuration for the policy catalog.
type PolicyConfig struct {
	// Path is the policy catalog file or directory. Directories are
	// loaded recursively; files must be YAML catalogs.
	// Default: "./policies"
	Path string `yaml:"path"`

	// Watch enables automatic catalog reloading when files change.
	// A failed reload keeps the previous catalog serving.
	// Default: false
	Watch bool `yaml:"watch"`

	// WatchDebounce is the quiet period after a file event before the
	// catalog reloads, coalescing editor save bursts.
	// Default: 2s
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// MaxFileBytes bounds an individual policy file.
	// Default: 1048576 (1MB)
	MaxFileBytes int64 `yaml:"max_file_bytes"`
}

// EngineConfig contains configuration for batch execution.
type EngineConfig struct {
	// Checkpoint configures the per-batch restore checkpoint.
	Checkpoint CheckpointConfig `yaml:"checkpoint"`

	// Scripts configures the script execution mechanism.
	Scripts ScriptsConfig `yaml:"scripts"`

	// Firewall configures the firewall mechanism.
	Firewall FirewallConfig `yaml:"firewall"`

	// Drift configures the scheduled drift monitor.
	Drift DriftConfig `yaml:"drift"`
}

// CheckpointConfig configures restore checkpoints taken before mutating
// batches.
type CheckpointConfig struct {
	// Disabled skips checkpoint creation entirely. Individual batches can
	// also skip it per request.
	// Default: false
	Disabled bool `yaml:"disabled"`

	// Description is the checkpoint label recorded by the OS facility.
	// Default: "Palisade policy batch"
	Description string `yaml:"description"`
}

// ScriptsConfig configures script-mechanism execution.
type ScriptsConfig struct {
	// Root is the allow-listed directory script policies must live under.
	// Empty disables the script mechanism: script policies fail rather
	// than run from unvetted locations.
	// Default: "" (disabled)
	Root string `yaml:"root"`

	// AllowUnsigned skips Authenticode verification of scripts. Leave
	// false outside development.
	// Default: false
	AllowUnsigned bool `yaml:"allow_unsigned"`

	// DefaultTimeout applies to scripts that declare no timeout of their
	// own.
	// Default: 60s
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// FirewallConfig configures the firewall mechanism.
type FirewallConfig struct {
	// AuditCacheTTL is how long resolved rule state may be reused during
	// audits before the firewall is queried again.
	// Default: 30s
	AuditCacheTTL time.Duration `yaml:"audit_cache_ttl"`
}

// DriftConfig configures the scheduled drift monitor.
type DriftConfig struct {
	// Enabled turns the monitor on. It compares the latest snapshot to
	// observed host state on the configured schedule and logs divergence.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Schedule is a standard 5-field cron expression.
	// Default: "0 * * * *" (hourly)
	Schedule string `yaml:"schedule"`
}

// LedgerConfig contains configuration for the change ledger.
type LedgerConfig struct {
	// Backend selects the ledger storage backend.
	// Options: "sqlite" (persistent), "memory" (volatile, for tests)
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains settings for the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains settings for the SQLite ledger backend.
type SQLiteConfig struct {
	// Path is the database file path. The parent directory is created if
	// missing.
	// Default: "data/ledger.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// DisableWAL turns off Write-Ahead Logging mode.
	// Default: false
	DisableWAL bool `yaml:"disable_wal"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuthzConfig contains authorization settings for control connections.
type AuthzConfig struct {
	// AllowUnsignedClients skips Authenticode verification of caller
	// binaries on mutate commands. The administrator and integrity gates
	// still apply. Leave false outside development.
	// Default: false
	AllowUnsignedClients bool `yaml:"allow_unsigned_clients"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics settings.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is the minimum level emitted.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format selects the output encoding.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line of the logging call.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// Output is the log destination: "stderr", "stdout" or a file path.
	// Default: "stderr"
	Output string `yaml:"output"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled turns the metrics endpoint on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the scrape listener address. Keep it on loopback;
	// the daemon is host-local by design.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path metrics are served on.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "palisade"
	Namespace string `yaml:"namespace"`

	// Subsystem is the second metric name segment.
	// Default: "daemon"
	Subsystem string `yaml:"subsystem"`

	// BatchDurationBuckets overrides histogram buckets for batch and
	// drift scan durations, in seconds.
	BatchDurationBuckets []float64 `yaml:"batch_duration_buckets"`

	// CommandDurationBuckets overrides histogram buckets for command
	// dispatch durations, in seconds.
	CommandDurationBuckets []float64 `yaml:"command_duration_buckets"`
}
