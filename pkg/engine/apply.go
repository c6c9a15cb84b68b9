package engine

import (
	"context"
	"fmt"
	"time"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/winsys"
)

// Apply runs one apply batch. The request is resolved into dependency order,
// a restore checkpoint is created unless disabled or skipped, and each policy
// in order is checked for applicability and handed to its executor. Partial
// batches, including cancelled ones, persist to the ledger; on cancellation
// the partial result is returned together with the context's error.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (*BatchResult, error) {
	if !req.DryRun {
		if !e.gate.TryLock() {
			return nil, ErrBatchInProgress
		}
		defer e.gate.Unlock()
	}

	started := time.Now()

	requested := req.PolicyIDs
	if req.All {
		requested = e.catalog.IDs()
	}
	if len(requested) == 0 {
		return nil, ErrEmptySelection
	}

	resolved, err := e.resolver.Resolve(requested, policy.ResolveOptions{SkipRecommended: req.SkipRecommended})
	if err != nil {
		return nil, err
	}

	host, err := e.prober.Probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("probing host facts: %w", err)
	}

	res := &BatchResult{
		Operation:    ledger.OperationApply,
		State:        StatePending,
		DryRun:       req.DryRun,
		AutoIncluded: resolved.AutoIncluded,
	}
	for _, w := range resolved.Warnings {
		res.Warnings = append(res.Warnings, w.Message)
	}

	e.logger.Info("apply batch starting",
		"requested", len(requested),
		"resolved", len(resolved.Order),
		"auto_included", len(resolved.AutoIncluded),
		"dry_run", req.DryRun)

	if req.DryRun {
		err := e.dryRunApply(ctx, resolved.Order, host, res, req.Progress)
		return res, err
	}

	e.createCheckpoint(ctx, req.SkipCheckpoint, res)
	res.State = StateExecuting

	order := resolved.Order
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

		emit(req.Progress, i*100/total, "applying "+id, id)

		def, err := e.catalog.Get(id)
		if err != nil {
			res.Records = append(res.Records, failedRecord(ledger.OperationApply, id, "", ledger.CategoryResolveFailed, err))
			res.Failed = append(res.Failed, id)
			if !req.ContinueOnError {
				res.Aborted = append(res.Aborted, order[i+1:]...)
				break loop
			}
			continue
		}

		if !def.Applicability.Matches(hostInfo(host)) {
			res.Skipped = append(res.Skipped, id)
			e.logger.Debug("policy not applicable on this host", "policy_id", id)
			continue
		}

		exec, err := e.executors.Lookup(def.Mechanism)
		if err != nil {
			res.Records = append(res.Records, failedRecord(ledger.OperationApply, id, string(def.Mechanism), ledger.CategoryInvalidState, err))
			res.Failed = append(res.Failed, id)
			e.metrics.RecordPolicyChange(string(def.Mechanism), ledger.OperationApply, false)
			if !req.ContinueOnError {
				res.Aborted = append(res.Aborted, order[i+1:]...)
				break loop
			}
			continue
		}

		rec := exec.Apply(ctx, def)
		res.Records = append(res.Records, rec)
		e.metrics.RecordPolicyChange(string(def.Mechanism), ledger.OperationApply, rec.Success)

		if rec.Success {
			res.Applied = append(res.Applied, id)
			continue
		}

		res.Failed = append(res.Failed, id)
		e.logger.Warn("policy apply failed",
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

// dryRunApply evaluates the batch without touching the host or the ledger.
// Policies already in their target state land in Skipped since applying them
// would change nothing.
func (e *Engine) dryRunApply(ctx context.Context, order []string, host winsys.HostFacts, res *BatchResult, progress ProgressFunc) error {
	total := len(order)

	for i, id := range order {
		select {
		case <-ctx.Done():
			res.Aborted = append(res.Aborted, order[i:]...)
			res.State = StateAborted
			emit(progress, 100, "batch aborted", "")
			return ctx.Err()
		default:
		}

		emit(progress, i*100/total, "evaluating "+id, id)

		def, err := e.catalog.Get(id)
		if err != nil {
			res.Failed = append(res.Failed, id)
			res.Warnings = append(res.Warnings, fmt.Sprintf("evaluating %s: %v", id, err))
			continue
		}

		if !def.Applicability.Matches(hostInfo(host)) {
			res.Skipped = append(res.Skipped, id)
			continue
		}

		exec, err := e.executors.Lookup(def.Mechanism)
		if err != nil {
			res.Failed = append(res.Failed, id)
			res.Warnings = append(res.Warnings, fmt.Sprintf("evaluating %s: %v", id, err))
			continue
		}

		applied, err := exec.IsApplied(ctx, def)
		if err != nil {
			res.Failed = append(res.Failed, id)
			res.Warnings = append(res.Warnings, fmt.Sprintf("evaluating %s: %v", id, err))
			continue
		}

		if applied {
			res.Skipped = append(res.Skipped, id)
		} else {
			res.Applied = append(res.Applied, id)
		}
	}

	res.State = StateCompleted
	res.Success = len(res.Failed) == 0
	emit(progress, 100, "batch completed", "")

	e.logger.Info("dry run finished",
		"would_apply", len(res.Applied),
		"already_satisfied", len(res.Skipped),
		"failed", len(res.Failed))
	return nil
}
