package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.pipe_name").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	// Validate server configuration
	errs = append(errs, validateServer(&cfg.Server)...)

	// Validate policy configuration
	errs = append(errs, validatePolicy(&cfg.Policy)...)

	// Validate engine configuration
	errs = append(errs, validateEngine(&cfg.Engine)...)

	// Validate ledger configuration
	errs = append(errs, validateLedger(&cfg.Ledger)...)

	// Validate telemetry configuration
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates control endpoint configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	// Validate pipe name is a proper local pipe path
	if cfg.PipeName == "" {
		errs = append(errs, FieldError{
			Field:   "server.pipe_name",
			Message: "pipe name is required",
		})
	} else if !strings.HasPrefix(cfg.PipeName, `\\.\pipe\`) {
		errs = append(errs, FieldError{
			Field:   "server.pipe_name",
			Message: `pipe name must start with \\.\pipe\`,
		})
	}

	// Validate socket path is not empty
	if cfg.SocketPath == "" {
		errs = append(errs, FieldError{
			Field:   "server.socket_path",
			Message: "socket path is required",
		})
	}

	// Validate connection limit is reasonable
	if cfg.MaxConnections < 1 {
		errs = append(errs, FieldError{
			Field:   "server.max_connections",
			Message: "max connections must be at least 1",
		})
	}
	if cfg.MaxConnections > 1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_connections",
			Message: "max connections exceeds reasonable limit (1024)",
		})
	}

	// Validate frame size bounds
	if cfg.MaxFrameBytes < 4096 {
		errs = append(errs, FieldError{
			Field:   "server.max_frame_bytes",
			Message: "max frame bytes must be at least 4096",
		})
	}
	if cfg.MaxFrameBytes > 64*1024*1024 { // 64MB is excessive for a control channel
		errs = append(errs, FieldError{
			Field:   "server.max_frame_bytes",
			Message: "max frame bytes exceeds reasonable limit (64MB)",
		})
	}

	// Validate timeouts are non-negative
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be non-negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be non-negative",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be non-negative",
		})
	}

	return errs
}

// validatePolicy validates policy catalog configuration.
func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "policy.path",
			Message: "catalog path is required",
		})
	}

	if cfg.WatchDebounce < 0 {
		errs = append(errs, FieldError{
			Field:   "policy.watch_debounce",
			Message: "watch debounce must be non-negative",
		})
	}

	if cfg.MaxFileBytes < 1024 {
		errs = append(errs, FieldError{
			Field:   "policy.max_file_bytes",
			Message: "max file bytes must be at least 1024",
		})
	}

	return errs
}

// validateEngine validates batch execution configuration.
func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError

	if cfg.Scripts.DefaultTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "engine.scripts.default_timeout",
			Message: "default timeout must be positive",
		})
	}

	if cfg.Firewall.AuditCacheTTL < 0 {
		errs = append(errs, FieldError{
			Field:   "engine.firewall.audit_cache_ttl",
			Message: "audit cache ttl must be non-negative",
		})
	}

	// Validate drift schedule parses as a standard cron expression
	if cfg.Drift.Enabled {
		if cfg.Drift.Schedule == "" {
			errs = append(errs, FieldError{
				Field:   "engine.drift.schedule",
				Message: "schedule is required when drift monitoring is enabled",
			})
		} else if _, err := cron.ParseStandard(cfg.Drift.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "engine.drift.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateLedger validates change ledger configuration.
func validateLedger(cfg *LedgerConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite", "memory":
		// valid
	case "":
		errs = append(errs, FieldError{
			Field:   "ledger.backend",
			Message: "backend is required",
		})
	default:
		errs = append(errs, FieldError{
			Field:   "ledger.backend",
			Message: fmt.Sprintf("unknown backend %q (expected sqlite or memory)", cfg.Backend),
		})
	}

	if cfg.Backend == "sqlite" {
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite.path",
				Message: "database path is required for sqlite backend",
			})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite.max_open_conns",
				Message: "max open conns must be at least 1",
			})
		}
		if cfg.SQLite.MaxIdleConns < 0 {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite.max_idle_conns",
				Message: "max idle conns must be non-negative",
			})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite.max_idle_conns",
				Message: "max idle conns cannot exceed max open conns",
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite.busy_timeout",
				Message: "busy timeout must be non-negative",
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
		// valid
	case "":
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q (expected debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	// Validate logging format
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
		// valid
	case "":
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q (expected json or text)", cfg.Logging.Format),
		})
	}

	// Validate metrics listener only when enabled
	if cfg.Metrics.Enabled {
		if cfg.Metrics.ListenAddress == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: "listen address is required when metrics are enabled",
			})
		} else if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: fmt.Sprintf("invalid listen address: %v", err),
			})
		}
		if cfg.Metrics.Path == "" || !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "path must start with /",
			})
		}
	}

	for i, b := range cfg.Metrics.BatchDurationBuckets {
		if b <= 0 {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.batch_duration_buckets",
				Message: fmt.Sprintf("bucket %d must be positive", i),
			})
			break
		}
	}
	for i, b := range cfg.Metrics.CommandDurationBuckets {
		if b <= 0 {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.command_duration_buckets",
				Message: fmt.Sprintf("bucket %d must be positive", i),
			})
			break
		}
	}

	return errs
}
