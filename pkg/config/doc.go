// Package config provides configuration management for the Palisade daemon.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with comprehensive validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention PALISADE_SECTION_FIELD.
// For example:
//
//   - PALISADE_SERVER_PIPE_NAME overrides server.pipe_name
//   - PALISADE_LEDGER_SQLITE_PATH overrides ledger.sqlite.path
//   - PALISADE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
// For application-wide configuration access, use the singleton pattern:
//
//	// At application startup
//	if err := config.Initialize("config.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Anywhere in the application
//	cfg := config.GetConfig()
//	fmt.Println(cfg.Server.PipeName)
//
// For testing, prefer dependency injection with explicit Config instances
// rather than the global singleton.
//
// # Validation
//
// All configuration is validated automatically during loading. Validation includes:
//
//   - Required field checks (e.g., catalog path, ledger backend)
//   - Range validation (e.g., connection and frame size limits)
//   - Format validation (e.g., cron expressions, listen addresses)
//   - Logical validation (e.g., idle conns cannot exceed open conns)
//
// Validation errors include field paths and helpful messages:
//
//	configuration validation failed with 2 errors:
//	  - server.pipe_name: pipe name must start with \\.\pipe\
//	  - ledger.backend: unknown backend "postgres" (expected sqlite or memory)
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	server:
//	  max_connections: 8
//
//	policy:
//	  path: "./policies"
//	  watch: true
//
//	ledger:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/ledger.db"
//
//	engine:
//	  drift:
//	    enabled: true
//	    schedule: "0 * * * *"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// # Thread Safety
//
// All configuration access is thread-safe. The singleton pattern uses read-write
// locks to allow concurrent reads while protecting against concurrent writes during
// reload operations.
package config
