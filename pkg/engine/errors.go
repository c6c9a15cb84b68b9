package engine

import "errors"

// ErrBatchInProgress is returned by Apply and Revert while another mutating
// batch holds the engine. The caller retries once the engine is idle; nothing
// queues.
var ErrBatchInProgress = errors.New("engine: a mutating batch is already in progress")

// ErrEmptySelection is returned when a request selects no policies.
var ErrEmptySelection = errors.New("engine: no policies selected")
