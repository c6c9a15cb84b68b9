package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/winsys"
)

// Executor applies, reverts and audits policies of one mechanism. Apply and
// Revert never return a Go error: every outcome, including failure, is a
// ChangeRecord, and the engine decides batch-level consequences.
type Executor interface {
	// Mechanism returns the mechanism tag this executor handles.
	Mechanism() policy.Mechanism

	// IsApplied reports whether the policy's target state currently holds.
	IsApplied(ctx context.Context, def *policy.PolicyDefinition) (bool, error)

	// CurrentValue returns the live state in the mechanism's canonical
	// encoding. exists is false when the target object is absent.
	CurrentValue(ctx context.Context, def *policy.PolicyDefinition) (value string, exists bool, err error)

	// Apply moves the system toward the policy's target state.
	Apply(ctx context.Context, def *policy.PolicyDefinition) ledger.ChangeRecord

	// Revert undoes a previous apply using the state captured in its
	// change record.
	Revert(ctx context.Context, def *policy.PolicyDefinition, original ledger.ChangeRecord) ledger.ChangeRecord
}

// Registry maps mechanism tags to executors. Registration happens once at
// startup; lookups afterwards are read-only and need no locking.
type Registry struct {
	executors map[policy.Mechanism]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[policy.Mechanism]Executor)}
}

// Register adds an executor. Registering a mechanism twice is a programming
// error and fails loudly.
func (r *Registry) Register(e Executor) error {
	mech := e.Mechanism()
	if _, exists := r.executors[mech]; exists {
		return fmt.Errorf("executor for mechanism %q already registered", mech)
	}
	r.executors[mech] = e
	return nil
}

// Lookup returns the executor for a mechanism tag.
func (r *Registry) Lookup(mech policy.Mechanism) (Executor, error) {
	e, ok := r.executors[mech]
	if !ok {
		return nil, fmt.Errorf("no executor registered for mechanism %q", mech)
	}
	return e, nil
}

// Mechanisms returns the registered mechanism tags in sorted order.
func (r *Registry) Mechanisms() []policy.Mechanism {
	mechs := make([]policy.Mechanism, 0, len(r.executors))
	for mech := range r.executors {
		mechs = append(mechs, mech)
	}
	sort.Slice(mechs, func(i, j int) bool { return mechs[i] < mechs[j] })
	return mechs
}

// newRecord starts a change record for one attempt against a policy.
func newRecord(operation string, def *policy.PolicyDefinition) ledger.ChangeRecord {
	return ledger.ChangeRecord{
		ChangeID:    ledger.NewChangeID(),
		Operation:   operation,
		PolicyID:    def.ID,
		Mechanism:   string(def.Mechanism),
		AppliedAt:   time.Now().UTC(),
		Description: def.Name,
	}
}

// failRecord marks a record failed with a classified category.
func failRecord(rec ledger.ChangeRecord, err error) ledger.ChangeRecord {
	rec.Success = false
	rec.ErrorMessage = err.Error()
	rec.ErrorCategory = categorize(err)
	return rec
}

// failRecordAs marks a record failed with an explicit category.
func failRecordAs(rec ledger.ChangeRecord, category string, err error) ledger.ChangeRecord {
	rec.Success = false
	rec.ErrorMessage = err.Error()
	rec.ErrorCategory = category
	return rec
}

// categorize maps facility errors onto ledger error categories.
func categorize(err error) string {
	switch {
	case errors.Is(err, winsys.ErrNotFound):
		return ledger.CategoryNotFound
	case errors.Is(err, winsys.ErrAccessDenied):
		return ledger.CategoryAccessDenied
	case errors.Is(err, winsys.ErrUntrustedSignature):
		return ledger.CategoryAccessDenied
	case errors.Is(err, winsys.ErrTimeout), errors.Is(err, winsys.ErrStopTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return ledger.CategoryTimeout
	default:
		return ledger.CategoryInvalidState
	}
}

// strPtr returns a pointer to s, for nullable previous-state fields.
func strPtr(s string) *string {
	return &s
}
