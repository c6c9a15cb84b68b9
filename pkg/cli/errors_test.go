package cli

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"palisade-hq/palisade/pkg/client"
	"palisade-hq/palisade/pkg/wire"
)

func TestConfigError(t *testing.T) {
	err := &ConfigError{
		Field:   "server.socket_path",
		Message: "missing required field",
	}

	expected := "config error in server.socket_path: missing required field"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("field", "message")
	if err.Field != "field" {
		t.Errorf("Field = %q, want %q", err.Field, "field")
	}
	if err.Message != "message" {
		t.Errorf("Message = %q, want %q", err.Message, "message")
	}
}

func TestCommandError(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := &CommandError{
		Command: "run",
		Err:     underlyingErr,
	}

	expected := "command run failed: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := &CommandError{
		Command: "run",
		Err:     underlyingErr,
	}

	unwrapped := err.Unwrap()
	if unwrapped != underlyingErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, underlyingErr)
	}

	// Test with errors.Is
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestNewCommandError(t *testing.T) {
	underlyingErr := errors.New("test")
	err := NewCommandError("command", underlyingErr)

	if err.Command != "command" {
		t.Errorf("Command = %q, want %q", err.Command, "command")
	}
	if err.Err != underlyingErr {
		t.Errorf("Err = %v, want %v", err.Err, underlyingErr)
	}
}

func daemonError(code string) error {
	return &client.CommandError{
		Type:   wire.CommandApply,
		Errors: []wire.Error{{Code: code, Message: "denied"}},
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain error", err: errors.New("boom"), want: ExitFailure},
		{name: "context cancelled", err: context.Canceled, want: ExitCancelled},
		{name: "validation", err: daemonError(wire.CodeValidation), want: ExitValidation},
		{name: "not authorized", err: daemonError(wire.CodeNotAuthorized), want: ExitNotAuthorized},
		{name: "busy", err: daemonError(wire.CodeBusy), want: ExitBusy},
		{name: "cancelled code", err: daemonError(wire.CodeCancelled), want: ExitCancelled},
		{name: "executor failure", err: daemonError(wire.CodeExecutor), want: ExitFailure},
		{
			name: "wrapped daemon error",
			err:  fmt.Errorf("apply: %w", daemonError(wire.CodeNotAuthorized)),
			want: ExitNotAuthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
