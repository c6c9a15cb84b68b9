package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Operation names for change records.
const (
	OperationApply  = "apply"
	OperationRevert = "revert"
)

// Error categories recorded on failed changes. These distinguish failure
// modes that callers handle differently.
const (
	CategoryNotFound      = "not_found"
	CategoryAccessDenied  = "access_denied"
	CategoryTimeout       = "timeout"
	CategoryInvalidState  = "invalid_state"
	CategoryResolveFailed = "resolve_failed"
)

// ChangeRecord captures one attempted policy change, successful or not.
// Records are append-only; nothing updates or deletes them after the batch
// that produced them is persisted.
type ChangeRecord struct {
	// ChangeID uniquely identifies the record.
	ChangeID string `json:"change_id"`

	// Operation is apply or revert.
	Operation string `json:"operation"`

	// PolicyID is the policy that was attempted.
	PolicyID string `json:"policy_id"`

	// Mechanism is the policy's mechanism tag at execution time.
	Mechanism string `json:"mechanism"`

	// AppliedAt is when the attempt happened.
	AppliedAt time.Time `json:"applied_at"`

	// Description is the policy's human-readable description.
	Description string `json:"description,omitempty"`

	// PreviousState is the captured state before the change, in the
	// mechanism's canonical encoding. Nil when the target was absent or
	// capture was impossible.
	PreviousState *string `json:"previous_state,omitempty"`

	// NewState is the state after the change.
	NewState string `json:"new_state,omitempty"`

	// Success reports whether the change took effect.
	Success bool `json:"success"`

	// ErrorMessage describes the failure for unsuccessful changes.
	ErrorMessage string `json:"error_message,omitempty"`

	// ErrorCategory classifies the failure (not_found, access_denied,
	// timeout, invalid_state). Empty on success.
	ErrorCategory string `json:"error_category,omitempty"`

	// SnapshotID links the record to the batch snapshot it belongs to.
	SnapshotID string `json:"snapshot_id"`
}

// Baseline describes the host at snapshot time.
type Baseline struct {
	// OSBuild is the OS build number.
	OSBuild int `json:"os_build"`

	// OSEdition is the OS edition string.
	OSEdition string `json:"os_edition"`

	// DomainJoined reports directory domain membership.
	DomainJoined bool `json:"domain_joined"`

	// ManagementEnrolled reports device management enrollment.
	ManagementEnrolled bool `json:"management_enrolled"`
}

// SnapshotPolicy is one policy's observed state within a snapshot.
type SnapshotPolicy struct {
	// PolicyID identifies the policy.
	PolicyID string `json:"policy_id"`

	// IsApplied reports whether the policy's desired state held when the
	// snapshot was taken.
	IsApplied bool `json:"is_applied"`

	// CurrentValue is the observed value in the mechanism's canonical
	// encoding. Empty when the target is absent.
	CurrentValue string `json:"current_value,omitempty"`
}

// Snapshot records the host baseline and per-policy state observed at the
// end of one batch.
type Snapshot struct {
	// SnapshotID uniquely identifies the snapshot.
	SnapshotID string `json:"snapshot_id"`

	// CreatedAt is when the snapshot was taken.
	CreatedAt time.Time `json:"created_at"`

	// Baseline is the host description.
	Baseline Baseline `json:"baseline"`

	// RestoreCheckpointID is the OS restore point created before the
	// batch, when checkpointing succeeded.
	RestoreCheckpointID string `json:"restore_checkpoint_id,omitempty"`

	// Policies is the per-policy observed state.
	Policies []SnapshotPolicy `json:"policies,omitempty"`
}

// Batch is the unit of persistence: one snapshot plus every change record
// produced under it. A batch lands in the ledger completely or not at all.
type Batch struct {
	Snapshot *Snapshot
	Changes  []*ChangeRecord
}

// Query filters change record reads. Zero-valued fields do not filter.
// Results always come back newest first.
type Query struct {
	// PolicyID filters to one policy.
	PolicyID string

	// SnapshotID filters to one batch.
	SnapshotID string

	// Operation filters to apply or revert records.
	Operation string

	// Mechanism filters by mechanism tag.
	Mechanism string

	// Success filters by outcome when non-nil.
	Success *bool

	// Since and Until bound applied_at inclusively.
	Since *time.Time
	Until *time.Time

	// Limit caps the result size. Zero means the backend default (100).
	Limit int

	// Offset skips leading results for pagination.
	Offset int
}

// Store is the append-only change ledger. Mutation happens exclusively
// through AppendBatch; there is no update or delete surface.
type Store interface {
	// AppendBatch atomically persists a snapshot and its change records.
	AppendBatch(ctx context.Context, batch *Batch) error

	// Changes returns change records matching the query, newest first.
	Changes(ctx context.Context, query *Query) ([]*ChangeRecord, error)

	// Count returns the number of records matching the query.
	Count(ctx context.Context, query *Query) (int64, error)

	// LatestApply returns the most recent successful apply record for a
	// policy, or ErrNotFound when the policy was never applied.
	LatestApply(ctx context.Context, policyID string) (*ChangeRecord, error)

	// GetSnapshot returns one snapshot with its per-policy states, or
	// ErrNotFound.
	GetSnapshot(ctx context.Context, snapshotID string) (*Snapshot, error)

	// LatestSnapshot returns the most recent snapshot, or ErrNotFound when
	// the ledger is empty.
	LatestSnapshot(ctx context.Context) (*Snapshot, error)

	// ListSnapshots returns up to limit snapshots, newest first, without
	// per-policy states.
	ListSnapshots(ctx context.Context, limit int) ([]*Snapshot, error)

	// Close releases backend resources.
	Close() error
}

// NewChangeID generates a unique change record ID.
func NewChangeID() string {
	return uuid.New().String()
}

// NewSnapshotID generates a unique snapshot ID.
func NewSnapshotID() string {
	return uuid.New().String()
}
