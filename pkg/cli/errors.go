package cli

import (
	"context"
	"errors"
	"fmt"

	"palisade-hq/palisade/pkg/client"
	"palisade-hq/palisade/pkg/wire"
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// Exit codes for the palisade binary. Scripted callers branch on these, so
// the mapping is part of the CLI contract.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitValidation    = 2
	ExitNotAuthorized = 3
	ExitBusy          = 4
	ExitCancelled     = 5
)

// ExitCode maps an error from a client command onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, context.Canceled) {
		return ExitCancelled
	}

	var cmdErr *client.CommandError
	if !errors.As(err, &cmdErr) {
		return ExitFailure
	}
	switch cmdErr.Code() {
	case wire.CodeValidation:
		return ExitValidation
	case wire.CodeNotAuthorized:
		return ExitNotAuthorized
	case wire.CodeBusy:
		return ExitBusy
	case wire.CodeCancelled:
		return ExitCancelled
	default:
		return ExitFailure
	}
}
