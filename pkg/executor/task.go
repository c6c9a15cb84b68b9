package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/winsys"
)

// Canonical task state encodings.
const (
	taskStateEnabled  = "enabled"
	taskStateDisabled = "disabled"
)

// TaskExecutor applies scheduled task policies.
type TaskExecutor struct {
	store  winsys.TaskStore
	logger *slog.Logger
}

// NewTaskExecutor creates a scheduled task executor.
func NewTaskExecutor(store winsys.TaskStore) *TaskExecutor {
	return &TaskExecutor{
		store:  store,
		logger: slog.Default().With("component", "executor.task"),
	}
}

// Mechanism implements Executor.
func (e *TaskExecutor) Mechanism() policy.Mechanism {
	return policy.MechanismScheduledTask
}

func taskDetails(def *policy.PolicyDefinition) (*policy.TaskDetails, error) {
	d, ok := def.Details.(*policy.TaskDetails)
	if !ok {
		return nil, fmt.Errorf("policy %s does not carry scheduled task details", def.ID)
	}
	return d, nil
}

func encodeTaskState(enabled bool) string {
	if enabled {
		return taskStateEnabled
	}
	return taskStateDisabled
}

// IsApplied implements Executor.
func (e *TaskExecutor) IsApplied(ctx context.Context, def *policy.PolicyDefinition) (bool, error) {
	d, err := taskDetails(def)
	if err != nil {
		return false, err
	}

	info, err := e.store.Query(ctx, d.TaskPath)
	if err != nil {
		if errors.Is(err, winsys.ErrNotFound) {
			// An absent task satisfies only the delete action.
			return d.Action == policy.TaskActionDelete, nil
		}
		return false, err
	}

	switch d.Action {
	case policy.TaskActionDisable:
		return !info.Enabled, nil
	case policy.TaskActionEnable:
		return info.Enabled, nil
	case policy.TaskActionDelete:
		return false, nil
	case policy.TaskActionModifyTriggers:
		xml, err := e.store.Export(ctx, d.TaskPath)
		if err != nil {
			return false, err
		}
		return containsCollapsed(xml, d.TriggersXML), nil
	case policy.TaskActionExportOnly:
		// Export-only policies never change anything to check.
		return true, nil
	default:
		return false, fmt.Errorf("unknown task action %q", d.Action)
	}
}

// CurrentValue implements Executor.
func (e *TaskExecutor) CurrentValue(ctx context.Context, def *policy.PolicyDefinition) (string, bool, error) {
	d, err := taskDetails(def)
	if err != nil {
		return "", false, err
	}

	info, err := e.store.Query(ctx, d.TaskPath)
	if err != nil {
		if errors.Is(err, winsys.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return encodeTaskState(info.Enabled), true, nil
}

// Apply implements Executor.
func (e *TaskExecutor) Apply(ctx context.Context, def *policy.PolicyDefinition) ledger.ChangeRecord {
	rec := newRecord(ledger.OperationApply, def)

	d, err := taskDetails(def)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}

	info, err := e.store.Query(ctx, d.TaskPath)
	if err != nil {
		// Absence is a hard failure even for delete: a missing task more
		// often means a wrong path than prior success, and the operator
		// should see it.
		return failRecord(rec, fmt.Errorf("querying task %s: %w", d.TaskPath, err))
	}

	switch d.Action {
	case policy.TaskActionDisable, policy.TaskActionEnable:
		return e.applyEnabledFlag(ctx, rec, d, info)
	case policy.TaskActionDelete:
		return e.applyDelete(ctx, rec, d, info)
	case policy.TaskActionModifyTriggers:
		return e.applyModifyTriggers(ctx, rec, d)
	case policy.TaskActionExportOnly:
		return e.applyExportOnly(ctx, rec, d)
	default:
		return failRecordAs(rec, ledger.CategoryInvalidState,
			fmt.Errorf("unknown task action %q", d.Action))
	}
}

func (e *TaskExecutor) applyEnabledFlag(ctx context.Context, rec ledger.ChangeRecord, d *policy.TaskDetails, info winsys.TaskInfo) ledger.ChangeRecord {
	wantEnabled := d.Action == policy.TaskActionEnable
	rec.PreviousState = strPtr(encodeTaskState(info.Enabled))
	rec.NewState = encodeTaskState(wantEnabled)
	rec.Description = fmt.Sprintf("%s task %s", d.Action, d.TaskPath)

	if info.Enabled == wantEnabled {
		rec.Success = true
		rec.Description += " (already applied)"
		return rec
	}

	if err := e.store.SetEnabled(ctx, d.TaskPath, wantEnabled); err != nil {
		return failRecord(rec, err)
	}

	rec.Success = true
	e.logger.Debug("task flag changed", "policy_id", rec.PolicyID, "task_path", d.TaskPath, "enabled", wantEnabled)
	return rec
}

func (e *TaskExecutor) applyDelete(ctx context.Context, rec ledger.ChangeRecord, d *policy.TaskDetails, info winsys.TaskInfo) ledger.ChangeRecord {
	// Capture the full definition first so revert can re-register it.
	xml, err := e.store.Export(ctx, d.TaskPath)
	if err != nil {
		return failRecord(rec, fmt.Errorf("exporting task %s before delete: %w", d.TaskPath, err))
	}
	rec.PreviousState = strPtr(xml)
	rec.NewState = stateAbsent
	rec.Description = "delete task " + d.TaskPath

	if err := e.store.Delete(ctx, d.TaskPath); err != nil {
		return failRecord(rec, err)
	}

	rec.Success = true
	return rec
}

func (e *TaskExecutor) applyModifyTriggers(ctx context.Context, rec ledger.ChangeRecord, d *policy.TaskDetails) ledger.ChangeRecord {
	xml, err := e.store.Export(ctx, d.TaskPath)
	if err != nil {
		return failRecord(rec, fmt.Errorf("exporting task %s before trigger change: %w", d.TaskPath, err))
	}
	rec.PreviousState = strPtr(xml)
	rec.Description = "modify triggers of task " + d.TaskPath

	modified, err := spliceTriggers(xml, d.TriggersXML)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}
	rec.NewState = modified

	if err := e.store.Register(ctx, d.TaskPath, modified); err != nil {
		return failRecord(rec, err)
	}

	rec.Success = true
	return rec
}

func (e *TaskExecutor) applyExportOnly(ctx context.Context, rec ledger.ChangeRecord, d *policy.TaskDetails) ledger.ChangeRecord {
	xml, err := e.store.Export(ctx, d.TaskPath)
	if err != nil {
		return failRecord(rec, fmt.Errorf("exporting task %s: %w", d.TaskPath, err))
	}

	rec.NewState = xml
	rec.Success = true
	rec.Description = "exported task " + d.TaskPath
	return rec
}

// Revert implements Executor.
func (e *TaskExecutor) Revert(ctx context.Context, def *policy.PolicyDefinition, original ledger.ChangeRecord) ledger.ChangeRecord {
	rec := newRecord(ledger.OperationRevert, def)

	d, err := taskDetails(def)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}

	switch d.Action {
	case policy.TaskActionDisable, policy.TaskActionEnable:
		return e.revertEnabledFlag(ctx, rec, d, original)

	case policy.TaskActionDelete, policy.TaskActionModifyTriggers:
		return e.revertDefinition(ctx, rec, d, original)

	case policy.TaskActionExportOnly:
		rec.Success = true
		rec.Description = "export of task " + d.TaskPath + " needs no revert"
		return rec

	default:
		return failRecordAs(rec, ledger.CategoryInvalidState,
			fmt.Errorf("unknown task action %q", d.Action))
	}
}

func (e *TaskExecutor) revertEnabledFlag(ctx context.Context, rec ledger.ChangeRecord, d *policy.TaskDetails, original ledger.ChangeRecord) ledger.ChangeRecord {
	if original.PreviousState == nil {
		return failRecordAs(rec, ledger.CategoryInvalidState,
			fmt.Errorf("apply record %s carries no previous task state", original.ChangeID))
	}
	wantEnabled := *original.PreviousState == taskStateEnabled

	info, err := e.store.Query(ctx, d.TaskPath)
	if err != nil {
		return failRecord(rec, fmt.Errorf("querying task %s: %w", d.TaskPath, err))
	}
	rec.PreviousState = strPtr(encodeTaskState(info.Enabled))
	rec.NewState = encodeTaskState(wantEnabled)
	rec.Description = fmt.Sprintf("restore task %s to %s", d.TaskPath, rec.NewState)

	if info.Enabled == wantEnabled {
		rec.Success = true
		rec.Description += " (already there)"
		return rec
	}

	if err := e.store.SetEnabled(ctx, d.TaskPath, wantEnabled); err != nil {
		return failRecord(rec, err)
	}

	rec.Success = true
	return rec
}

func (e *TaskExecutor) revertDefinition(ctx context.Context, rec ledger.ChangeRecord, d *policy.TaskDetails, original ledger.ChangeRecord) ledger.ChangeRecord {
	if original.PreviousState == nil || strings.TrimSpace(*original.PreviousState) == "" {
		return failRecordAs(rec, ledger.CategoryInvalidState,
			fmt.Errorf("apply record %s carries no task definition to restore", original.ChangeID))
	}

	rec.NewState = *original.PreviousState
	rec.Description = "re-register task " + d.TaskPath + " from captured definition"

	if current, err := e.store.Export(ctx, d.TaskPath); err == nil {
		rec.PreviousState = strPtr(current)
	}

	if err := e.store.Register(ctx, d.TaskPath, *original.PreviousState); err != nil {
		return failRecord(rec, err)
	}

	rec.Success = true
	e.logger.Debug("task definition restored", "policy_id", rec.PolicyID, "task_path", d.TaskPath)
	return rec
}

// spliceTriggers replaces the <Triggers> element of a task definition.
func spliceTriggers(xml, triggers string) (string, error) {
	start := strings.Index(xml, "<Triggers")
	if start < 0 {
		return "", fmt.Errorf("task definition has no Triggers element")
	}

	// Self-closing <Triggers/> or a full <Triggers>...</Triggers> block.
	rest := xml[start:]
	end := strings.Index(rest, "</Triggers>")
	if end >= 0 {
		end = start + end + len("</Triggers>")
	} else {
		selfClose := strings.Index(rest, "/>")
		if selfClose < 0 {
			return "", fmt.Errorf("task definition has an unterminated Triggers element")
		}
		end = start + selfClose + len("/>")
	}

	return xml[:start] + triggers + xml[end:], nil
}

// containsCollapsed reports whether haystack contains needle after
// collapsing runs of whitespace, making XML comparison indentation-proof.
func containsCollapsed(haystack, needle string) bool {
	return strings.Contains(collapseSpace(haystack), collapseSpace(needle))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
