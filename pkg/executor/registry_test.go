package executor

import (
	"context"
	"testing"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/winsys"

	"palisade-hq/palisade/internal/winfake"
)

const testKeyPath = `HKLM\SOFTWARE\Policies\Microsoft\Windows\Explorer`

func registryPolicy(id string, details *policy.RegistryDetails) *policy.PolicyDefinition {
	return &policy.PolicyDefinition{
		ID:         id,
		Name:       "Test registry policy " + id,
		Mechanism:  policy.MechanismRegistry,
		Risk:       policy.RiskLow,
		Reversible: true,
		Details:    details,
	}
}

func TestRegistryExecutor_ApplyRevertRoundTrip(t *testing.T) {
	store := winfake.NewRegistry()
	store.Seed(testKeyPath, "NoAutorun", winsys.RegistryValue{Type: policy.RegDWord, Data: "0"})

	exec := NewRegistryExecutor(store)
	def := registryPolicy("disable-autorun", &policy.RegistryDetails{
		Path:      testKeyPath,
		ValueName: "NoAutorun",
		Action:    policy.RegistryActionSet,
		ValueType: policy.RegDWord,
		ValueData: "1",
	})

	applied, err := exec.IsApplied(context.Background(), def)
	if err != nil {
		t.Fatalf("IsApplied() failed: %v", err)
	}
	if applied {
		t.Fatal("IsApplied() = true before apply")
	}

	rec := exec.Apply(context.Background(), def)
	if !rec.Success {
		t.Fatalf("Apply() failed: %s", rec.ErrorMessage)
	}
	if rec.PreviousState == nil || *rec.PreviousState != "dword:0" {
		t.Errorf("PreviousState = %v, want dword:0", rec.PreviousState)
	}
	if rec.NewState != "dword:1" {
		t.Errorf("NewState = %q, want dword:1", rec.NewState)
	}
	if rec.Operation != ledger.OperationApply || rec.Mechanism != "registry" {
		t.Errorf("record metadata = %s/%s", rec.Operation, rec.Mechanism)
	}

	applied, err = exec.IsApplied(context.Background(), def)
	if err != nil {
		t.Fatalf("IsApplied() failed: %v", err)
	}
	if !applied {
		t.Fatal("IsApplied() = false after apply")
	}

	revert := exec.Revert(context.Background(), def, rec)
	if !revert.Success {
		t.Fatalf("Revert() failed: %s", revert.ErrorMessage)
	}
	if revert.Operation != ledger.OperationRevert {
		t.Errorf("Operation = %q, want revert", revert.Operation)
	}
	if revert.PreviousState == nil || *revert.PreviousState != "dword:1" {
		t.Errorf("revert PreviousState = %v, want dword:1", revert.PreviousState)
	}

	value, exists, err := exec.CurrentValue(context.Background(), def)
	if err != nil {
		t.Fatalf("CurrentValue() failed: %v", err)
	}
	if !exists || value != "dword:0" {
		t.Errorf("CurrentValue() = (%q, %v), want (dword:0, true)", value, exists)
	}
}

func TestRegistryExecutor_RevertDeletesCreatedValue(t *testing.T) {
	store := winfake.NewRegistry()
	exec := NewRegistryExecutor(store)
	def := registryPolicy("create-value", &policy.RegistryDetails{
		Path:      testKeyPath,
		ValueName: "NoDriveTypeAutoRun",
		Action:    policy.RegistryActionSet,
		ValueType: policy.RegDWord,
		ValueData: "255",
	})

	rec := exec.Apply(context.Background(), def)
	if !rec.Success {
		t.Fatalf("Apply() failed: %s", rec.ErrorMessage)
	}
	if rec.PreviousState != nil {
		t.Errorf("PreviousState = %v, want nil for created value", *rec.PreviousState)
	}

	revert := exec.Revert(context.Background(), def, rec)
	if !revert.Success {
		t.Fatalf("Revert() failed: %s", revert.ErrorMessage)
	}
	if revert.NewState != stateAbsent {
		t.Errorf("revert NewState = %q, want %q", revert.NewState, stateAbsent)
	}

	_, exists, err := exec.CurrentValue(context.Background(), def)
	if err != nil {
		t.Fatalf("CurrentValue() failed: %v", err)
	}
	if exists {
		t.Error("value still present after reverting a created value")
	}
}

func TestRegistryExecutor_ApplyAlreadyApplied(t *testing.T) {
	store := winfake.NewRegistry()
	store.Seed(testKeyPath, "NoAutorun", winsys.RegistryValue{Type: policy.RegDWord, Data: "1"})

	exec := NewRegistryExecutor(store)
	def := registryPolicy("noop", &policy.RegistryDetails{
		Path:      testKeyPath,
		ValueName: "NoAutorun",
		Action:    policy.RegistryActionSet,
		ValueType: policy.RegDWord,
		ValueData: "1",
	})

	rec := exec.Apply(context.Background(), def)
	if !rec.Success {
		t.Fatalf("Apply() failed: %s", rec.ErrorMessage)
	}
	if len(store.Ops) != 0 {
		t.Errorf("store mutated on already-applied policy: %v", store.Ops)
	}

	// The no-op record must still support a later revert.
	revert := exec.Revert(context.Background(), def, rec)
	if !revert.Success {
		t.Fatalf("Revert() failed: %s", revert.ErrorMessage)
	}
	value, _, err := exec.CurrentValue(context.Background(), def)
	if err != nil {
		t.Fatalf("CurrentValue() failed: %v", err)
	}
	if value != "dword:1" {
		t.Errorf("CurrentValue() = %q after no-op round trip, want dword:1", value)
	}
}

func TestRegistryExecutor_DeleteValueRoundTrip(t *testing.T) {
	store := winfake.NewRegistry()
	store.Seed(testKeyPath, "LegacyFlag", winsys.RegistryValue{Type: policy.RegString, Data: "on"})

	exec := NewRegistryExecutor(store)
	def := registryPolicy("remove-flag", &policy.RegistryDetails{
		Path:      testKeyPath,
		ValueName: "LegacyFlag",
		Action:    policy.RegistryActionDeleteValue,
	})

	rec := exec.Apply(context.Background(), def)
	if !rec.Success {
		t.Fatalf("Apply() failed: %s", rec.ErrorMessage)
	}
	if rec.PreviousState == nil || *rec.PreviousState != "string:on" {
		t.Errorf("PreviousState = %v, want string:on", rec.PreviousState)
	}

	applied, err := exec.IsApplied(context.Background(), def)
	if err != nil || !applied {
		t.Fatalf("IsApplied() = (%v, %v) after delete, want (true, nil)", applied, err)
	}

	revert := exec.Revert(context.Background(), def, rec)
	if !revert.Success {
		t.Fatalf("Revert() failed: %s", revert.ErrorMessage)
	}
	value, exists, err := exec.CurrentValue(context.Background(), def)
	if err != nil {
		t.Fatalf("CurrentValue() failed: %v", err)
	}
	if !exists || value != "string:on" {
		t.Errorf("CurrentValue() = (%q, %v), want restored string:on", value, exists)
	}
}

func TestRegistryExecutor_DeleteAbsentValueIsNoOp(t *testing.T) {
	store := winfake.NewRegistry()
	store.SeedKey(testKeyPath)

	exec := NewRegistryExecutor(store)
	def := registryPolicy("remove-missing", &policy.RegistryDetails{
		Path:      testKeyPath,
		ValueName: "NeverExisted",
		Action:    policy.RegistryActionDeleteValue,
	})

	rec := exec.Apply(context.Background(), def)
	if !rec.Success {
		t.Fatalf("Apply() failed: %s", rec.ErrorMessage)
	}
	if rec.PreviousState != nil {
		t.Errorf("PreviousState = %v, want nil", *rec.PreviousState)
	}
	if len(store.Ops) != 0 {
		t.Errorf("store mutated deleting an absent value: %v", store.Ops)
	}

	revert := exec.Revert(context.Background(), def, rec)
	if !revert.Success {
		t.Fatalf("Revert() failed: %s", revert.ErrorMessage)
	}
}

func TestRegistryExecutor_DeleteKey(t *testing.T) {
	store := winfake.NewRegistry()
	store.Seed(testKeyPath, "A", winsys.RegistryValue{Type: policy.RegDWord, Data: "1"})

	exec := NewRegistryExecutor(store)
	def := registryPolicy("remove-key", &policy.RegistryDetails{
		Path:   testKeyPath,
		Action: policy.RegistryActionDeleteKey,
	})
	def.Reversible = false

	rec := exec.Apply(context.Background(), def)
	if !rec.Success {
		t.Fatalf("Apply() failed: %s", rec.ErrorMessage)
	}
	if rec.PreviousState == nil || *rec.PreviousState != stateKeyPresent {
		t.Errorf("PreviousState = %v, want %q", rec.PreviousState, stateKeyPresent)
	}

	applied, err := exec.IsApplied(context.Background(), def)
	if err != nil || !applied {
		t.Fatalf("IsApplied() = (%v, %v), want (true, nil)", applied, err)
	}

	// Deleted key contents are gone; a forced revert must refuse rather
	// than fake a restore.
	revert := exec.Revert(context.Background(), def, rec)
	if revert.Success {
		t.Fatal("Revert() succeeded for a deleted key")
	}
	if revert.ErrorCategory != ledger.CategoryInvalidState {
		t.Errorf("ErrorCategory = %q, want invalid_state", revert.ErrorCategory)
	}
}

func TestRegistryExecutor_AccessDeniedCategory(t *testing.T) {
	store := winfake.NewRegistry()
	store.SeedKey(testKeyPath)
	store.SetErr = winsys.ErrAccessDenied

	exec := NewRegistryExecutor(store)
	def := registryPolicy("denied", &policy.RegistryDetails{
		Path:      testKeyPath,
		ValueName: "Locked",
		Action:    policy.RegistryActionSet,
		ValueType: policy.RegDWord,
		ValueData: "1",
	})

	rec := exec.Apply(context.Background(), def)
	if rec.Success {
		t.Fatal("Apply() succeeded despite access denial")
	}
	if rec.ErrorCategory != ledger.CategoryAccessDenied {
		t.Errorf("ErrorCategory = %q, want access_denied", rec.ErrorCategory)
	}
}

func TestEncodeDecodeRegistryState(t *testing.T) {
	tests := []struct {
		encoded string
		value   winsys.RegistryValue
	}{
		{"dword:1", winsys.RegistryValue{Type: policy.RegDWord, Data: "1"}},
		{"string:C:\\Windows", winsys.RegistryValue{Type: policy.RegString, Data: "C:\\Windows"}},
		{"multi_string:a\nb", winsys.RegistryValue{Type: policy.RegMultiString, Data: "a\nb"}},
		{"binary:0aff", winsys.RegistryValue{Type: policy.RegBinary, Data: "0aff"}},
	}

	for _, tt := range tests {
		if got := encodeRegistryState(tt.value); got != tt.encoded {
			t.Errorf("encodeRegistryState() = %q, want %q", got, tt.encoded)
		}
		decoded, err := decodeRegistryState(tt.encoded)
		if err != nil {
			t.Fatalf("decodeRegistryState(%q) failed: %v", tt.encoded, err)
		}
		if decoded != tt.value {
			t.Errorf("decodeRegistryState(%q) = %+v, want %+v", tt.encoded, decoded, tt.value)
		}
	}

	if _, err := decodeRegistryState("no-separator"); err == nil {
		t.Error("expected error for state without separator")
	}
	if _, err := decodeRegistryState("float:1.5"); err == nil {
		t.Error("expected error for unknown value type")
	}
}
