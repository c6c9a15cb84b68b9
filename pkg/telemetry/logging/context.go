package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// CommandIDKey is the context key for control command IDs.
	CommandIDKey contextKey = "command_id"

	// CommandTypeKey is the context key for control command types.
	CommandTypeKey contextKey = "command_type"

	// PolicyIDKey is the context key for policy identifiers.
	PolicyIDKey contextKey = "policy_id"

	// SnapshotIDKey is the context key for batch snapshot identifiers.
	SnapshotIDKey contextKey = "snapshot_id"

	// CallerKey is the context key for the authenticated caller account.
	CallerKey contextKey = "caller"
)

// WithCommandID adds a command ID to the context.
func WithCommandID(ctx context.Context, commandID string) context.Context {
	return context.WithValue(ctx, CommandIDKey, commandID)
}

// GetCommandID retrieves the command ID from the context.
func GetCommandID(ctx context.Context) string {
	if commandID, ok := ctx.Value(CommandIDKey).(string); ok {
		return commandID
	}
	return ""
}

// WithCommandType adds a command type to the context.
func WithCommandType(ctx context.Context, commandType string) context.Context {
	return context.WithValue(ctx, CommandTypeKey, commandType)
}

// GetCommandType retrieves the command type from the context.
func GetCommandType(ctx context.Context) string {
	if commandType, ok := ctx.Value(CommandTypeKey).(string); ok {
		return commandType
	}
	return ""
}

// WithPolicyID adds a policy identifier to the context.
func WithPolicyID(ctx context.Context, policyID string) context.Context {
	return context.WithValue(ctx, PolicyIDKey, policyID)
}

// GetPolicyID retrieves the policy identifier from the context.
func GetPolicyID(ctx context.Context) string {
	if policyID, ok := ctx.Value(PolicyIDKey).(string); ok {
		return policyID
	}
	return ""
}

// WithSnapshotID adds a snapshot identifier to the context.
func WithSnapshotID(ctx context.Context, snapshotID string) context.Context {
	return context.WithValue(ctx, SnapshotIDKey, snapshotID)
}

// GetSnapshotID retrieves the snapshot identifier from the context.
func GetSnapshotID(ctx context.Context) string {
	if snapshotID, ok := ctx.Value(SnapshotIDKey).(string); ok {
		return snapshotID
	}
	return ""
}

// WithCaller adds the authenticated caller account to the context.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// GetCaller retrieves the authenticated caller account from the context.
func GetCaller(ctx context.Context) string {
	if caller, ok := ctx.Value(CallerKey).(string); ok {
		return caller
	}
	return ""
}

// Fields extracts the carried identifiers from the context as key-value
// pairs suitable for With(), for call sites logging through a bare slog
// logger.
func Fields(ctx context.Context) []any {
	var fields []any

	// Extract command ID
	if commandID := GetCommandID(ctx); commandID != "" {
		fields = append(fields, "command_id", commandID)
	}

	// Extract command type
	if commandType := GetCommandType(ctx); commandType != "" {
		fields = append(fields, "command_type", commandType)
	}

	// Extract policy ID
	if policyID := GetPolicyID(ctx); policyID != "" {
		fields = append(fields, "policy_id", policyID)
	}

	// Extract snapshot ID
	if snapshotID := GetSnapshotID(ctx); snapshotID != "" {
		fields = append(fields, "snapshot_id", snapshotID)
	}

	// Extract caller
	if caller := GetCaller(ctx); caller != "" {
		fields = append(fields, "caller", caller)
	}

	return fields
}

// ContextLogger is a logger that automatically includes context fields.
type ContextLogger struct {
	logger *Logger
	ctx    context.Context
}

// NewContextLogger creates a logger that automatically includes context fields.
func NewContextLogger(logger *Logger, ctx context.Context) *ContextLogger {
	return &ContextLogger{
		logger: logger.WithContext(ctx),
		ctx:    ctx,
	}
}

// Debug logs a debug message with context fields.
func (cl *ContextLogger) Debug(msg string, args ...any) {
	cl.logger.DebugContext(cl.ctx, msg, args...)
}

// Info logs an info message with context fields.
func (cl *ContextLogger) Info(msg string, args ...any) {
	cl.logger.InfoContext(cl.ctx, msg, args...)
}

// Warn logs a warning message with context fields.
func (cl *ContextLogger) Warn(msg string, args ...any) {
	cl.logger.WarnContext(cl.ctx, msg, args...)
}

// Error logs an error message with context fields.
func (cl *ContextLogger) Error(msg string, args ...any) {
	cl.logger.ErrorContext(cl.ctx, msg, args...)
}

// With creates a new context logger with additional fields.
func (cl *ContextLogger) With(args ...any) *ContextLogger {
	return &ContextLogger{
		logger: cl.logger.With(args...),
		ctx:    cl.ctx,
	}
}
