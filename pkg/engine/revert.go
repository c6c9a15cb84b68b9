package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
)

// Revert runs one revert batch. Each policy's most recent successful apply
// record supplies the state to restore; policies with no such record are
// skipped with a warning. Execution runs in reverse dependency order so
// dependents are undone before the policies they depend on. Applicability is
// not re-checked: what was applied here can be reverted here.
func (e *Engine) Revert(ctx context.Context, req RevertRequest) (*BatchResult, error) {
	if !e.gate.TryLock() {
		return nil, ErrBatchInProgress
	}
	defer e.gate.Unlock()

	started := time.Now()

	requested := req.PolicyIDs
	if req.All {
		ids, err := e.previouslyApplied(ctx)
		if err != nil {
			return nil, err
		}
		requested = ids
	}
	if len(requested) == 0 {
		if req.All {
			// Nothing was ever applied; reverting everything is a no-op.
			return &BatchResult{
				Operation: ledger.OperationRevert,
				State:     StateCompleted,
				Success:   true,
			}, nil
		}
		return nil, ErrEmptySelection
	}

	order, err := e.revertOrder(requested)
	if err != nil {
		return nil, err
	}

	host, err := e.prober.Probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("probing host facts: %w", err)
	}

	res := &BatchResult{
		Operation: ledger.OperationRevert,
		State:     StatePending,
	}

	e.logger.Info("revert batch starting", "requested", len(requested))

	e.createCheckpoint(ctx, req.SkipCheckpoint, res)
	res.State = StateExecuting

	total := len(order)
	cancelled := false

loop:
	for i, id := range order {
		select {
		case <-ctx.Done():
			res.Aborted = append(res.Aborted, order[i:]...)
			cancelled = true
			break loop
		default:
		}

		emit(req.Progress, i*100/total, "reverting "+id, id)

		def, err := e.catalog.Get(id)
		if err != nil {
			res.Records = append(res.Records, failedRecord(ledger.OperationRevert, id, "", ledger.CategoryResolveFailed, err))
			res.Failed = append(res.Failed, id)
			if !req.ContinueOnError {
				res.Aborted = append(res.Aborted, order[i+1:]...)
				break loop
			}
			continue
		}

		original, err := e.store.LatestApply(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) {
			res.Skipped = append(res.Skipped, id)
			res.Warnings = append(res.Warnings, fmt.Sprintf("policy %s has no recorded apply; nothing to revert", id))
			continue
		}
		if err != nil {
			res.Records = append(res.Records, failedRecord(ledger.OperationRevert, id, string(def.Mechanism), ledger.CategoryInvalidState, fmt.Errorf("reading apply history: %w", err)))
			res.Failed = append(res.Failed, id)
			if !req.ContinueOnError {
				res.Aborted = append(res.Aborted, order[i+1:]...)
				break loop
			}
			continue
		}

		if !def.Reversible {
			res.Records = append(res.Records, failedRecord(ledger.OperationRevert, id, string(def.Mechanism), ledger.CategoryInvalidState, errors.New("policy is marked irreversible")))
			res.Failed = append(res.Failed, id)
			e.metrics.RecordPolicyChange(string(def.Mechanism), ledger.OperationRevert, false)
			if !req.ContinueOnError {
				res.Aborted = append(res.Aborted, order[i+1:]...)
				break loop
			}
			continue
		}

		exec, err := e.executors.Lookup(def.Mechanism)
		if err != nil {
			res.Records = append(res.Records, failedRecord(ledger.OperationRevert, id, string(def.Mechanism), ledger.CategoryInvalidState, err))
			res.Failed = append(res.Failed, id)
			e.metrics.RecordPolicyChange(string(def.Mechanism), ledger.OperationRevert, false)
			if !req.ContinueOnError {
				res.Aborted = append(res.Aborted, order[i+1:]...)
				break loop
			}
			continue
		}

		rec := exec.Revert(ctx, def, *original)
		res.Records = append(res.Records, rec)
		e.metrics.RecordPolicyChange(string(def.Mechanism), ledger.OperationRevert, rec.Success)

		if rec.Success {
			res.Applied = append(res.Applied, id)
			continue
		}

		res.Failed = append(res.Failed, id)
		e.logger.Warn("policy revert failed",
			"policy_id", id,
			"category", rec.ErrorCategory,
			"error", rec.ErrorMessage)
		if !req.ContinueOnError {
			res.Aborted = append(res.Aborted, order[i+1:]...)
			break loop
		}
	}

	err = e.finishBatch(ctx, res, host, req.Progress, cancelled, started, total)
	return res, err
}

// previouslyApplied returns the catalog policies that have a recorded
// successful apply, the candidate set for revert --all.
func (e *Engine) previouslyApplied(ctx context.Context) ([]string, error) {
	var ids []string
	for _, id := range e.catalog.IDs() {
		_, err := e.store.LatestApply(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading apply history: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// revertOrder computes the execution order for a revert: the dependency
// order of the requested policies restricted to the requested set, then
// reversed so dependents are undone before their dependencies. Resolution
// never adds policies to a revert.
func (e *Engine) revertOrder(requested []string) ([]string, error) {
	resolved, err := e.resolver.Resolve(requested, policy.ResolveOptions{SkipRecommended: true})
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(requested))
	for _, id := range requested {
		want[id] = true
	}

	order := make([]string, 0, len(requested))
	for _, id := range resolved.Order {
		if want[id] {
			order = append(order, id)
		}
	}

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}
