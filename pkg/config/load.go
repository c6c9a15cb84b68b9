package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	// Apply defaults
	ApplyDefaults(&cfg)

	// Validate
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention PALISADE_SECTION_FIELD (e.g., PALISADE_SERVER_PIPE_NAME).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	// First load from file (this already applies defaults)
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Re-validate after overrides
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format PALISADE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("PALISADE_SERVER_PIPE_NAME"); val != "" {
		cfg.Server.PipeName = val
	}
	if val := os.Getenv("PALISADE_SERVER_SOCKET_PATH"); val != "" {
		cfg.Server.SocketPath = val
	}
	if val := os.Getenv("PALISADE_SERVER_MAX_CONNECTIONS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Server.MaxConnections = i
		}
	}
	if val := os.Getenv("PALISADE_SERVER_MAX_FRAME_BYTES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Server.MaxFrameBytes = i
		}
	}
	if val := os.Getenv("PALISADE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("PALISADE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("PALISADE_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Policy overrides
	if val := os.Getenv("PALISADE_POLICY_PATH"); val != "" {
		cfg.Policy.Path = val
	}
	if val := os.Getenv("PALISADE_POLICY_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.Watch = b
		}
	}
	if val := os.Getenv("PALISADE_POLICY_WATCH_DEBOUNCE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Policy.WatchDebounce = d
		}
	}
	if val := os.Getenv("PALISADE_POLICY_MAX_FILE_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Policy.MaxFileBytes = i
		}
	}

	// Engine overrides
	if val := os.Getenv("PALISADE_ENGINE_CHECKPOINT_DISABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Engine.Checkpoint.Disabled = b
		}
	}
	if val := os.Getenv("PALISADE_ENGINE_CHECKPOINT_DESCRIPTION"); val != "" {
		cfg.Engine.Checkpoint.Description = val
	}
	if val := os.Getenv("PALISADE_ENGINE_SCRIPTS_ROOT"); val != "" {
		cfg.Engine.Scripts.Root = val
	}
	if val := os.Getenv("PALISADE_ENGINE_SCRIPTS_ALLOW_UNSIGNED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Engine.Scripts.AllowUnsigned = b
		}
	}
	if val := os.Getenv("PALISADE_ENGINE_SCRIPTS_DEFAULT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Engine.Scripts.DefaultTimeout = d
		}
	}
	if val := os.Getenv("PALISADE_ENGINE_FIREWALL_AUDIT_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Engine.Firewall.AuditCacheTTL = d
		}
	}
	if val := os.Getenv("PALISADE_ENGINE_DRIFT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Engine.Drift.Enabled = b
		}
	}
	if val := os.Getenv("PALISADE_ENGINE_DRIFT_SCHEDULE"); val != "" {
		cfg.Engine.Drift.Schedule = val
	}

	// Ledger overrides
	if val := os.Getenv("PALISADE_LEDGER_BACKEND"); val != "" {
		cfg.Ledger.Backend = val
	}
	if val := os.Getenv("PALISADE_LEDGER_SQLITE_PATH"); val != "" {
		cfg.Ledger.SQLite.Path = val
	}
	if val := os.Getenv("PALISADE_LEDGER_SQLITE_MAX_OPEN_CONNS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Ledger.SQLite.MaxOpenConns = i
		}
	}
	if val := os.Getenv("PALISADE_LEDGER_SQLITE_MAX_IDLE_CONNS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Ledger.SQLite.MaxIdleConns = i
		}
	}
	if val := os.Getenv("PALISADE_LEDGER_SQLITE_DISABLE_WAL"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Ledger.SQLite.DisableWAL = b
		}
	}
	if val := os.Getenv("PALISADE_LEDGER_SQLITE_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Ledger.SQLite.BusyTimeout = d
		}
	}

	// Authz overrides
	if val := os.Getenv("PALISADE_AUTHZ_ALLOW_UNSIGNED_CLIENTS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Authz.AllowUnsignedClients = b
		}
	}

	// Telemetry overrides
	if val := os.Getenv("PALISADE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("PALISADE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("PALISADE_TELEMETRY_LOGGING_OUTPUT"); val != "" {
		cfg.Telemetry.Logging.Output = val
	}
	if val := os.Getenv("PALISADE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("PALISADE_TELEMETRY_METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Telemetry.Metrics.ListenAddress = val
	}
	if val := os.Getenv("PALISADE_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}
