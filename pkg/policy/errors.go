package policy

import (
	"fmt"
	"strings"
)

// DefinitionError indicates a policy definition failed validation.
type DefinitionError struct {
	// PolicyID is the offending policy, if known.
	PolicyID string

	// Field is the definition field that failed, if attributable.
	Field string

	// Message describes the problem.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	var b strings.Builder
	b.WriteString("invalid policy definition")
	if e.PolicyID != "" {
		fmt.Fprintf(&b, " %q", e.PolicyID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %s)", e.Field)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *DefinitionError) Unwrap() error {
	return e.Cause
}

// NewDefinitionError creates a new DefinitionError.
func NewDefinitionError(policyID, field, message string) *DefinitionError {
	return &DefinitionError{
		PolicyID: policyID,
		Field:    field,
		Message:  message,
	}
}

// CycleError indicates the dependency graph contains a cycle. Catalogs with
// cyclic required or prerequisite edges are rejected wholesale at load time.
type CycleError struct {
	// Cycle is the dependency path forming the cycle, first node repeated
	// at the end.
	Cycle []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// NotFoundError indicates a policy ID is not present in the catalog.
type NotFoundError struct {
	// PolicyID is the missing policy.
	PolicyID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("policy %q not found", e.PolicyID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(policyID string) *NotFoundError {
	return &NotFoundError{PolicyID: policyID}
}
