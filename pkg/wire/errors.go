package wire

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFrameTooLarge is returned when a frame's length prefix exceeds the
// configured maximum. The payload is never read.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// ValidationError reports why a command failed schema validation. Issues
// holds one entry per violation, instance location first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return "command validation failed"
	case 1:
		return "command validation failed: " + e.Issues[0]
	default:
		return fmt.Sprintf("command validation failed: %s (and %d more)", e.Issues[0], len(e.Issues)-1)
	}
}

// Details joins every issue for logging and error payloads.
func (e *ValidationError) Details() string {
	return strings.Join(e.Issues, "; ")
}

// NewValidationError builds a ValidationError from individual issues.
func NewValidationError(issues ...string) *ValidationError {
	return &ValidationError{Issues: issues}
}
