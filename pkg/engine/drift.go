package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"palisade-hq/palisade/pkg/ledger"
)

// Drift item kinds.
const (
	// DriftAppliedState marks a policy whose applied/not-applied state
	// changed since the snapshot.
	DriftAppliedState = "applied_state"

	// DriftCurrentValue marks a policy whose observed value changed while
	// its applied state did not.
	DriftCurrentValue = "current_value"

	// DriftMissingPolicy marks a snapshot policy no longer in the catalog.
	DriftMissingPolicy = "missing_policy"
)

// SeverityUnknown tags drift items for policies whose risk class is no
// longer known because the policy left the catalog.
const SeverityUnknown = "unknown"

// DriftItem is one divergence between a snapshot and observed state.
type DriftItem struct {
	PolicyID string

	// Kind is applied_state, current_value or missing_policy.
	Kind string

	// Severity mirrors the policy's risk class.
	Severity string

	Expected string
	Observed string
	Detail   string
}

// DriftReport is the outcome of one drift comparison.
type DriftReport struct {
	SnapshotID string
	SnapshotAt time.Time
	CheckedAt  time.Time

	// Clean is true when no divergence was found.
	Clean bool

	Items []DriftItem
}

// Drift compares a stored snapshot against freshly observed state. An empty
// snapshotID compares against the most recent snapshot; an empty ledger
// surfaces ledger.ErrNotFound. Policies that cannot be probed are logged and
// left out of the report rather than counted as drift.
func (e *Engine) Drift(ctx context.Context, snapshotID string) (report *DriftReport, err error) {
	started := time.Now()
	defer func() {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			// No baseline to compare against is not a failed scan.
		case err != nil:
			e.metrics.RecordDriftScan("failed", time.Since(started), nil)
		case report.Clean:
			e.metrics.RecordDriftScan("clean", time.Since(started), nil)
		default:
			e.metrics.RecordDriftScan("drifted", time.Since(started), severityCounts(report.Items))
		}
	}()

	var snap *ledger.Snapshot
	if snapshotID == "" {
		snap, err = e.store.LatestSnapshot(ctx)
	} else {
		snap, err = e.store.GetSnapshot(ctx, snapshotID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	report = &DriftReport{
		SnapshotID: snap.SnapshotID,
		SnapshotAt: snap.CreatedAt,
		CheckedAt:  time.Now().UTC(),
	}

	for _, sp := range snap.Policies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		def, getErr := e.catalog.Get(sp.PolicyID)
		if getErr != nil {
			report.Items = append(report.Items, DriftItem{
				PolicyID: sp.PolicyID,
				Kind:     DriftMissingPolicy,
				Severity: SeverityUnknown,
				Detail:   "policy recorded in snapshot is no longer in the catalog",
			})
			continue
		}

		exec, lookErr := e.executors.Lookup(def.Mechanism)
		if lookErr != nil {
			e.logger.Warn("drift check skipped, no executor",
				"policy_id", def.ID,
				"mechanism", def.Mechanism)
			continue
		}

		applied, probeErr := exec.IsApplied(ctx, def)
		if probeErr != nil {
			e.logger.Warn("drift check could not probe policy",
				"policy_id", def.ID,
				"error", probeErr)
			continue
		}

		if applied != sp.IsApplied {
			report.Items = append(report.Items, DriftItem{
				PolicyID: sp.PolicyID,
				Kind:     DriftAppliedState,
				Severity: string(def.Risk),
				Expected: appliedWord(sp.IsApplied),
				Observed: appliedWord(applied),
			})
			continue
		}

		value, exists, probeErr := exec.CurrentValue(ctx, def)
		if probeErr != nil {
			e.logger.Warn("drift check could not read value",
				"policy_id", def.ID,
				"error", probeErr)
			continue
		}
		if !exists {
			value = ""
		}

		if value != sp.CurrentValue {
			report.Items = append(report.Items, DriftItem{
				PolicyID: sp.PolicyID,
				Kind:     DriftCurrentValue,
				Severity: string(def.Risk),
				Expected: sp.CurrentValue,
				Observed: value,
			})
		}
	}

	report.Clean = len(report.Items) == 0

	e.logger.Info("drift scan finished",
		"snapshot_id", report.SnapshotID,
		"items", len(report.Items),
		"clean", report.Clean)

	return report, nil
}

func appliedWord(applied bool) string {
	if applied {
		return "applied"
	}
	return "not_applied"
}

func severityCounts(items []DriftItem) map[string]int {
	counts := make(map[string]int, 4)
	for _, item := range items {
		counts[item.Severity]++
	}
	return counts
}
