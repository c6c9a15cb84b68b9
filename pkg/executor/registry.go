package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/winsys"
)

// stateAbsent is the canonical new-state for delete operations.
const stateAbsent = "absent"

// stateKeyPresent is the canonical encoding of an existing key for
// delete_key policies, which track key existence rather than a value.
const stateKeyPresent = "present"

// RegistryExecutor applies registry policies.
type RegistryExecutor struct {
	store  winsys.RegistryStore
	logger *slog.Logger
}

// NewRegistryExecutor creates a registry executor.
func NewRegistryExecutor(store winsys.RegistryStore) *RegistryExecutor {
	return &RegistryExecutor{
		store:  store,
		logger: slog.Default().With("component", "executor.registry"),
	}
}

// Mechanism implements Executor.
func (e *RegistryExecutor) Mechanism() policy.Mechanism {
	return policy.MechanismRegistry
}

// encodeRegistryState renders a registry value as "type:data" so revert can
// restore the exact original type and bytes.
func encodeRegistryState(v winsys.RegistryValue) string {
	return string(v.Type) + ":" + v.Data
}

// decodeRegistryState parses a "type:data" state string.
func decodeRegistryState(s string) (winsys.RegistryValue, error) {
	typeText, data, found := strings.Cut(s, ":")
	if !found {
		return winsys.RegistryValue{}, fmt.Errorf("malformed registry state %q", s)
	}
	valueType, err := policy.ParseRegistryValueType(typeText)
	if err != nil {
		return winsys.RegistryValue{}, fmt.Errorf("malformed registry state %q: %w", s, err)
	}
	return winsys.RegistryValue{Type: valueType, Data: data}, nil
}

func registryDetails(def *policy.PolicyDefinition) (*policy.RegistryDetails, error) {
	d, ok := def.Details.(*policy.RegistryDetails)
	if !ok {
		return nil, fmt.Errorf("policy %s does not carry registry details", def.ID)
	}
	return d, nil
}

// IsApplied implements Executor.
func (e *RegistryExecutor) IsApplied(ctx context.Context, def *policy.PolicyDefinition) (bool, error) {
	d, err := registryDetails(def)
	if err != nil {
		return false, err
	}

	switch d.EffectiveAction() {
	case policy.RegistryActionSet:
		value, exists, err := e.store.GetValue(ctx, d.Path, d.ValueName)
		if err != nil {
			return false, err
		}
		return exists && value.Type == d.ValueType && value.Data == d.ValueData, nil

	case policy.RegistryActionDeleteValue:
		_, exists, err := e.store.GetValue(ctx, d.Path, d.ValueName)
		if err != nil {
			return false, err
		}
		return !exists, nil

	case policy.RegistryActionDeleteKey:
		exists, err := e.store.KeyExists(ctx, d.Path)
		if err != nil {
			return false, err
		}
		return !exists, nil

	default:
		return false, fmt.Errorf("unknown registry action %q", d.Action)
	}
}

// CurrentValue implements Executor.
func (e *RegistryExecutor) CurrentValue(ctx context.Context, def *policy.PolicyDefinition) (string, bool, error) {
	d, err := registryDetails(def)
	if err != nil {
		return "", false, err
	}

	if d.EffectiveAction() == policy.RegistryActionDeleteKey {
		exists, err := e.store.KeyExists(ctx, d.Path)
		if err != nil {
			return "", false, err
		}
		if !exists {
			return "", false, nil
		}
		return stateKeyPresent, true, nil
	}

	value, exists, err := e.store.GetValue(ctx, d.Path, d.ValueName)
	if err != nil {
		return "", false, err
	}
	if !exists {
		return "", false, nil
	}
	return encodeRegistryState(value), true, nil
}

// Apply implements Executor.
func (e *RegistryExecutor) Apply(ctx context.Context, def *policy.PolicyDefinition) ledger.ChangeRecord {
	rec := newRecord(ledger.OperationApply, def)

	d, err := registryDetails(def)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}

	switch d.EffectiveAction() {
	case policy.RegistryActionSet:
		return e.applySet(ctx, rec, d)
	case policy.RegistryActionDeleteValue:
		return e.applyDeleteValue(ctx, rec, d)
	case policy.RegistryActionDeleteKey:
		return e.applyDeleteKey(ctx, rec, d)
	default:
		return failRecordAs(rec, ledger.CategoryInvalidState,
			fmt.Errorf("unknown registry action %q", d.Action))
	}
}

func (e *RegistryExecutor) applySet(ctx context.Context, rec ledger.ChangeRecord, d *policy.RegistryDetails) ledger.ChangeRecord {
	previous, exists, err := e.store.GetValue(ctx, d.Path, d.ValueName)
	if err != nil {
		return failRecord(rec, fmt.Errorf("reading previous value: %w", err))
	}
	if exists {
		rec.PreviousState = strPtr(encodeRegistryState(previous))
	}

	target := winsys.RegistryValue{Type: d.ValueType, Data: d.ValueData}
	rec.NewState = encodeRegistryState(target)
	rec.Description = fmt.Sprintf("set %s!%s", d.Path, d.ValueName)

	if exists && previous.Type == d.ValueType && previous.Data == d.ValueData {
		rec.Success = true
		rec.Description += " (already applied)"
		return rec
	}

	if err := e.store.SetValue(ctx, d.Path, d.ValueName, target); err != nil {
		return failRecord(rec, err)
	}

	rec.Success = true
	e.logger.Debug("registry value set", "policy_id", rec.PolicyID, "path", d.Path, "value_name", d.ValueName)
	return rec
}

func (e *RegistryExecutor) applyDeleteValue(ctx context.Context, rec ledger.ChangeRecord, d *policy.RegistryDetails) ledger.ChangeRecord {
	previous, exists, err := e.store.GetValue(ctx, d.Path, d.ValueName)
	if err != nil {
		return failRecord(rec, fmt.Errorf("reading previous value: %w", err))
	}

	rec.NewState = stateAbsent
	rec.Description = fmt.Sprintf("delete value %s!%s", d.Path, d.ValueName)

	if !exists {
		rec.Success = true
		rec.Description += " (already absent)"
		return rec
	}

	rec.PreviousState = strPtr(encodeRegistryState(previous))
	if err := e.store.DeleteValue(ctx, d.Path, d.ValueName); err != nil {
		return failRecord(rec, err)
	}

	rec.Success = true
	return rec
}

func (e *RegistryExecutor) applyDeleteKey(ctx context.Context, rec ledger.ChangeRecord, d *policy.RegistryDetails) ledger.ChangeRecord {
	exists, err := e.store.KeyExists(ctx, d.Path)
	if err != nil {
		return failRecord(rec, fmt.Errorf("checking key: %w", err))
	}

	rec.NewState = stateAbsent
	rec.Description = "delete key " + d.Path

	if !exists {
		rec.Success = true
		rec.Description += " (already absent)"
		return rec
	}

	rec.PreviousState = strPtr(stateKeyPresent)
	if err := e.store.DeleteKey(ctx, d.Path); err != nil {
		return failRecord(rec, err)
	}

	rec.Success = true
	return rec
}

// Revert implements Executor.
func (e *RegistryExecutor) Revert(ctx context.Context, def *policy.PolicyDefinition, original ledger.ChangeRecord) ledger.ChangeRecord {
	rec := newRecord(ledger.OperationRevert, def)

	d, err := registryDetails(def)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}

	switch d.EffectiveAction() {
	case policy.RegistryActionSet, policy.RegistryActionDeleteValue:
		return e.revertValue(ctx, rec, d, original)
	case policy.RegistryActionDeleteKey:
		return e.revertKey(ctx, rec, d, original)
	default:
		return failRecordAs(rec, ledger.CategoryInvalidState,
			fmt.Errorf("unknown registry action %q", d.Action))
	}
}

func (e *RegistryExecutor) revertValue(ctx context.Context, rec ledger.ChangeRecord, d *policy.RegistryDetails, original ledger.ChangeRecord) ledger.ChangeRecord {
	current, exists, err := e.store.GetValue(ctx, d.Path, d.ValueName)
	if err != nil {
		return failRecord(rec, fmt.Errorf("reading current value: %w", err))
	}
	if exists {
		rec.PreviousState = strPtr(encodeRegistryState(current))
	}

	// No previous value means the apply created it; revert removes it.
	if original.PreviousState == nil {
		rec.NewState = stateAbsent
		rec.Description = fmt.Sprintf("remove created value %s!%s", d.Path, d.ValueName)
		if !exists {
			rec.Success = true
			rec.Description += " (already absent)"
			return rec
		}
		if err := e.store.DeleteValue(ctx, d.Path, d.ValueName); err != nil {
			return failRecord(rec, err)
		}
		rec.Success = true
		return rec
	}

	restored, err := decodeRegistryState(*original.PreviousState)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}

	rec.NewState = encodeRegistryState(restored)
	rec.Description = fmt.Sprintf("restore %s!%s", d.Path, d.ValueName)
	if err := e.store.SetValue(ctx, d.Path, d.ValueName, restored); err != nil {
		return failRecord(rec, err)
	}

	rec.Success = true
	return rec
}

func (e *RegistryExecutor) revertKey(ctx context.Context, rec ledger.ChangeRecord, d *policy.RegistryDetails, original ledger.ChangeRecord) ledger.ChangeRecord {
	// A deleted key's values and subkeys are not captured, so there is
	// nothing faithful to restore. Policies deleting keys should be
	// marked irreversible.
	if original.PreviousState == nil {
		rec.NewState = stateAbsent
		rec.Description = "delete key " + d.Path + " had no effect; nothing to revert"
		rec.Success = true
		return rec
	}
	return failRecordAs(rec, ledger.CategoryInvalidState,
		fmt.Errorf("key %s was deleted with its contents; contents were not captured and cannot be restored", d.Path))
}
