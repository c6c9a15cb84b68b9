package winsys

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for failure modes callers branch on. Adapters wrap these
// with detail; match with errors.Is.
var (
	// ErrNotFound indicates the target object (key, value, service, task,
	// rule) does not exist.
	ErrNotFound = errors.New("winsys: target not found")

	// ErrAccessDenied indicates the operation was refused by the OS.
	ErrAccessDenied = errors.New("winsys: access denied")

	// ErrTimeout indicates the operation exceeded its time budget.
	ErrTimeout = errors.New("winsys: operation timed out")

	// ErrStopTimeout indicates a service did not reach the stopped state
	// within the stop timeout.
	ErrStopTimeout = errors.New("winsys: service stop timed out")

	// ErrUntrustedSignature indicates a script's signature is missing or
	// not trusted.
	ErrUntrustedSignature = errors.New("winsys: signature not trusted")
)

// CommandError represents a failed system command.
type CommandError struct {
	// Command is a short description of what ran, e.g. the leading cmdlet.
	Command string

	// Stderr is the captured error output, trimmed.
	Stderr string

	// ExitCode is the process exit code, -1 when unknown.
	ExitCode int

	// Cause is a sentinel classified from the error output, or the raw
	// execution error.
	Cause error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q failed (exit %d)", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap returns the classified or raw cause.
func (e *CommandError) Unwrap() error {
	return e.Cause
}

// notFoundMarkers are stderr fragments that mean the target object is
// absent rather than the operation broken.
var notFoundMarkers = []string{
	"ObjectNotFound",
	"Cannot find",
	"does not exist",
	"cannot be found",
	"No such file",
	"NoServiceFoundForGivenName",
}

// accessDeniedMarkers are stderr fragments that mean the OS refused the
// operation.
var accessDeniedMarkers = []string{
	"Access is denied",
	"PermissionDenied",
	"UnauthorizedAccessException",
	"Requested registry access is not allowed",
}

// classifyStderr maps error output onto a sentinel, or returns nil when the
// output matches no known failure mode.
func classifyStderr(stderr string) error {
	switch {
	case containsAny(stderr, notFoundMarkers):
		return ErrNotFound
	case containsAny(stderr, accessDeniedMarkers):
		return ErrAccessDenied
	case strings.Contains(stderr, "TimeoutException"):
		return ErrTimeout
	default:
		return nil
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
