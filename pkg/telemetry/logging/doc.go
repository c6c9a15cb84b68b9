// Package logging provides structured logging for the daemon.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging with JSON and text formats
//   - Context-aware logging with command IDs and batch metadata
//   - Output selection (stderr, stdout, or an append-only file)
//   - Configurable log levels (debug, info, warn, error)
//
// # Usage
//
//	// Create a logger
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	// Log structured data
//	logger.Info("batch completed",
//	    "snapshot_id", "snap-123",
//	    "applied", 12,
//	    "duration_ms", 1234,
//	)
//
//	// Create context-aware logger
//	ctx = logging.WithCommandID(ctx, "cmd-123")
//	ctxLogger := logger.WithContext(ctx)
//	ctxLogger.Info("executing")  // Includes command_id automatically
//
// # Default Logger
//
// InitDefault installs the configured logger as the slog default, so
// components that log through slog.Default().With("component", ...) share
// the daemon's handler and level:
//
//	if _, err := logging.InitDefault(logging.FromConfig(&cfg.Telemetry.Logging)); err != nil {
//	    return err
//	}
//
// # Performance
//
// Level filtering happens before argument processing:
//   - <1µs when log level filters out the message
//   - File outputs are opened append-only with 0600 permissions
package logging
