package source

import "fmt"

// LoadError indicates a file system level failure while loading policy
// files.
type LoadError struct {
	// FilePath is the file or directory being loaded.
	FilePath string

	// Message describes the failure.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load %q: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load %q: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ParseError indicates a policy file could not be parsed.
type ParseError struct {
	// FilePath is the offending file.
	FilePath string

	// Message describes the failure.
	Message string

	// Cause is the underlying YAML or definition error.
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to parse %q: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to parse %q: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}
