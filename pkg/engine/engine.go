package engine

import (
	"errors"
	"log/slog"
	"sync"

	"palisade-hq/palisade/pkg/executor"
	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/telemetry/metrics"
	"palisade-hq/palisade/pkg/winsys"
)

// ProgressFunc receives interim progress while a batch runs. Callbacks are
// invoked synchronously from the batch loop and never after the operation
// returns.
type ProgressFunc func(percent int, message, policyID string)

// Config wires an Engine's collaborators.
type Config struct {
	Catalog   *policy.Catalog
	Resolver  *policy.Resolver
	Executors *executor.Registry
	Store     ledger.Store
	Prober    winsys.Prober

	// Checkpoint creates restore checkpoints before mutating batches.
	// Nil disables checkpointing.
	Checkpoint winsys.CheckpointCreator

	// CheckpointDescription labels created checkpoints.
	CheckpointDescription string

	// Metrics may be nil; a nil collector records nothing.
	Metrics *metrics.Collector
}

// Engine coordinates policy batches across the catalog, the resolver, the
// per-mechanism executors and the change ledger.
type Engine struct {
	catalog     *policy.Catalog
	resolver    *policy.Resolver
	executors   *executor.Registry
	store       ledger.Store
	prober      winsys.Prober
	checkpoint  winsys.CheckpointCreator
	description string
	metrics     *metrics.Collector
	logger      *slog.Logger

	// gate serializes mutating batches. TryLock semantics: a losing caller
	// gets ErrBatchInProgress instead of blocking.
	gate sync.Mutex
}

// New creates an engine over the given collaborators.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Catalog == nil:
		return nil, errors.New("engine: catalog is required")
	case cfg.Resolver == nil:
		return nil, errors.New("engine: resolver is required")
	case cfg.Executors == nil:
		return nil, errors.New("engine: executor registry is required")
	case cfg.Store == nil:
		return nil, errors.New("engine: ledger store is required")
	case cfg.Prober == nil:
		return nil, errors.New("engine: host prober is required")
	}

	return &Engine{
		catalog:     cfg.Catalog,
		resolver:    cfg.Resolver,
		executors:   cfg.Executors,
		store:       cfg.Store,
		prober:      cfg.Prober,
		checkpoint:  cfg.Checkpoint,
		description: cfg.CheckpointDescription,
		metrics:     cfg.Metrics,
		logger:      slog.Default().With("component", "engine"),
	}, nil
}

// Busy reports whether a mutating batch currently holds the engine.
func (e *Engine) Busy() bool {
	if e.gate.TryLock() {
		e.gate.Unlock()
		return false
	}
	return true
}

// BatchState tracks a batch through its lifecycle.
type BatchState string

const (
	StatePending           BatchState = "pending"
	StateCheckpointCreated BatchState = "checkpoint_created"
	StateExecuting         BatchState = "executing"
	StatePersisted         BatchState = "persisted"
	StateCompleted         BatchState = "completed"
	StateAborted           BatchState = "aborted"
)

// ApplyRequest selects and configures one apply batch.
type ApplyRequest struct {
	// PolicyIDs selects specific policies. Ignored when All is set.
	PolicyIDs []string

	// All selects every policy in the catalog.
	All bool

	// ContinueOnError keeps the batch going past a failed policy instead of
	// aborting the remainder.
	ContinueOnError bool

	// SkipRecommended suppresses automatic inclusion of recommended
	// dependencies.
	SkipRecommended bool

	// SkipCheckpoint skips the restore checkpoint for this batch.
	SkipCheckpoint bool

	// DryRun evaluates the batch without mutating the host or the ledger.
	DryRun bool

	// Progress, when set, receives interim progress from the batch loop.
	Progress ProgressFunc
}

// RevertRequest selects and configures one revert batch.
type RevertRequest struct {
	// PolicyIDs selects specific policies. Ignored when All is set.
	PolicyIDs []string

	// All selects every catalog policy with a recorded successful apply.
	All bool

	// ContinueOnError keeps the batch going past a failed policy.
	ContinueOnError bool

	// SkipCheckpoint skips the restore checkpoint for this batch.
	SkipCheckpoint bool

	// Progress, when set, receives interim progress from the batch loop.
	Progress ProgressFunc
}

// BatchResult is the outcome of one apply or revert batch.
type BatchResult struct {
	// Operation is apply or revert.
	Operation string

	// State is the batch lifecycle state; Completed or Aborted once the
	// operation has returned.
	State BatchState

	// Success is true when every attempted policy succeeded.
	Success bool

	// DryRun marks results that did not touch the host or the ledger.
	DryRun bool

	// SnapshotID identifies the persisted batch. Empty for dry runs and for
	// batches that produced no change records.
	SnapshotID string

	// CheckpointID is the restore checkpoint created before execution.
	CheckpointID string

	// Applied lists policies whose operation succeeded: applied for apply
	// batches, reverted for revert batches.
	Applied []string

	// Failed lists policies whose operation produced a failed record.
	Failed []string

	// Skipped lists policies not attempted: not applicable on this host,
	// already satisfied during a dry run, or nothing recorded to revert.
	Skipped []string

	// Aborted lists policies never reached because the batch stopped early.
	Aborted []string

	// AutoIncluded lists policies pulled in by dependency resolution beyond
	// the explicit request.
	AutoIncluded []string

	// Warnings carries non-fatal findings: declared conflicts, checkpoint
	// failures, post-batch observation problems.
	Warnings []string

	// Records are the change records the batch produced, in execution order.
	Records []ledger.ChangeRecord
}

// emit invokes the progress callback when one is set.
func emit(fn ProgressFunc, percent int, message, policyID string) {
	if fn != nil {
		fn(percent, message, policyID)
	}
}

// hostInfo converts probed facts into the applicability predicate's input.
func hostInfo(f winsys.HostFacts) policy.HostInfo {
	return policy.HostInfo{
		OSBuild:      f.OSBuild,
		OSEdition:    f.OSEdition,
		DomainJoined: f.DomainJoined,
	}
}
