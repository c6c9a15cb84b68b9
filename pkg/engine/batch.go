package engine

import (
	"context"
	"fmt"
	"time"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/winsys"
)

// createCheckpoint makes a restore checkpoint before a mutating batch. A
// failed checkpoint downgrades to a warning: the batch proceeds, because the
// ledger's captured previous states remain the primary recovery path.
func (e *Engine) createCheckpoint(ctx context.Context, skip bool, res *BatchResult) {
	if skip || e.checkpoint == nil {
		e.metrics.RecordCheckpoint("skipped")
		return
	}

	id, err := e.checkpoint.Create(ctx, e.description)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("restore checkpoint failed: %v", err))
		e.metrics.RecordCheckpoint("failed")
		e.logger.Warn("restore checkpoint failed, continuing without one", "error", err)
		return
	}

	res.CheckpointID = id
	res.State = StateCheckpointCreated
	e.metrics.RecordCheckpoint("created")
	e.logger.Info("restore checkpoint created", "checkpoint_id", id)
}

// failedRecord builds a failed change record for problems the engine detects
// before an executor runs, such as a missing executor or unreadable history.
func failedRecord(operation, policyID, mechanism, category string, err error) ledger.ChangeRecord {
	return ledger.ChangeRecord{
		ChangeID:      ledger.NewChangeID(),
		Operation:     operation,
		PolicyID:      policyID,
		Mechanism:     mechanism,
		AppliedAt:     time.Now().UTC(),
		Success:       false,
		ErrorMessage:  err.Error(),
		ErrorCategory: category,
	}
}

// observePolicies reads the post-batch state of the given policies for the
// snapshot. Observation problems are warnings, never batch failures.
func (e *Engine) observePolicies(ctx context.Context, ids []string) ([]ledger.SnapshotPolicy, []string) {
	var states []ledger.SnapshotPolicy
	var warnings []string

	for _, id := range ids {
		def, err := e.catalog.Get(id)
		if err != nil {
			continue
		}
		exec, err := e.executors.Lookup(def.Mechanism)
		if err != nil {
			continue
		}

		applied, err := exec.IsApplied(ctx, def)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("observing %s after batch: %v", id, err))
			continue
		}
		value, exists, err := exec.CurrentValue(ctx, def)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("observing %s after batch: %v", id, err))
			continue
		}
		if !exists {
			value = ""
		}

		states = append(states, ledger.SnapshotPolicy{
			PolicyID:     id,
			IsApplied:    applied,
			CurrentValue: value,
		})
	}

	return states, warnings
}

// persistBatch observes the attempted policies, stamps the records with a
// fresh snapshot id and appends the whole batch atomically. Persistence runs
// detached from the caller's cancellation so a cancelled batch still lands in
// the ledger.
func (e *Engine) persistBatch(ctx context.Context, res *BatchResult, host winsys.HostFacts) error {
	ctx = context.WithoutCancel(ctx)

	seen := make(map[string]bool, len(res.Records))
	attempted := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		if !seen[rec.PolicyID] {
			seen[rec.PolicyID] = true
			attempted = append(attempted, rec.PolicyID)
		}
	}

	states, warnings := e.observePolicies(ctx, attempted)
	res.Warnings = append(res.Warnings, warnings...)

	snap := &ledger.Snapshot{
		SnapshotID: ledger.NewSnapshotID(),
		CreatedAt:  time.Now().UTC(),
		Baseline: ledger.Baseline{
			OSBuild:            host.OSBuild,
			OSEdition:          host.OSEdition,
			DomainJoined:       host.DomainJoined,
			ManagementEnrolled: host.ManagementEnrolled,
		},
		RestoreCheckpointID: res.CheckpointID,
		Policies:            states,
	}

	batch := &ledger.Batch{Snapshot: snap}
	for i := range res.Records {
		res.Records[i].SnapshotID = snap.SnapshotID
		batch.Changes = append(batch.Changes, &res.Records[i])
	}

	start := time.Now()
	err := e.store.AppendBatch(ctx, batch)
	e.metrics.RecordLedgerWrite(err == nil, time.Since(start), len(batch.Changes))
	if err != nil {
		return fmt.Errorf("persisting batch: %w", err)
	}

	res.SnapshotID = snap.SnapshotID
	res.State = StatePersisted
	return nil
}

// finishBatch persists a mutating batch and settles its terminal state,
// metrics and final progress frame. The returned error is the context's
// error for cancelled batches and the persistence error when the ledger
// write failed; the result is populated either way.
func (e *Engine) finishBatch(ctx context.Context, res *BatchResult, host winsys.HostFacts, progress ProgressFunc, cancelled bool, started time.Time, total int) error {
	if len(res.Records) > 0 {
		if err := e.persistBatch(ctx, res, host); err != nil {
			res.State = StateAborted
			res.Success = false
			emit(progress, 100, "batch aborted", "")
			e.metrics.RecordBatch(res.Operation, "failure", time.Since(started), total)
			e.logger.Error("batch persistence failed",
				"operation", res.Operation,
				"records", len(res.Records),
				"error", err)
			return err
		}
	}

	res.Success = len(res.Failed) == 0
	if cancelled || len(res.Aborted) > 0 {
		res.State = StateAborted
	} else {
		res.State = StateCompleted
	}

	emit(progress, 100, "batch "+string(res.State), "")

	outcome := "success"
	switch {
	case cancelled:
		outcome = "cancelled"
	case !res.Success:
		outcome = "failure"
	}
	e.metrics.RecordBatch(res.Operation, outcome, time.Since(started), total)

	e.logger.Info("batch finished",
		"operation", res.Operation,
		"state", res.State,
		"succeeded", len(res.Applied),
		"failed", len(res.Failed),
		"skipped", len(res.Skipped),
		"aborted", len(res.Aborted),
		"snapshot_id", res.SnapshotID)

	if cancelled {
		return ctx.Err()
	}
	return nil
}
