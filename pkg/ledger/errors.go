package ledger

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested record or snapshot does not exist.
var ErrNotFound = errors.New("ledger: not found")

// StoreError represents an error from the ledger backend.
type StoreError struct {
	Backend   string // Backend type ("sqlite", "memory")
	Operation string // Operation that failed ("append_batch", "changes", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("ledger error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a new StoreError.
func NewStoreError(backend, operation string, cause error) *StoreError {
	return &StoreError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// BatchError indicates a batch failed structural validation before any
// write was attempted.
type BatchError struct {
	Message string
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return fmt.Sprintf("invalid batch: %s", e.Message)
}
