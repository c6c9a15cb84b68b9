package engine

import (
	"context"
	"testing"
	"time"

	"palisade-hq/palisade/pkg/executor"
	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/winsys"

	"palisade-hq/palisade/internal/winfake"
)

// fakeExecutor drives outcomes from per-policy lookup tables so tests can
// inject failures at exact points in a batch.
type fakeExecutor struct {
	mech policy.Mechanism

	applied map[string]bool
	values  map[string]string

	applyErr  map[string]error
	revertErr map[string]error
	probeErr  map[string]error

	// onApply hooks run during Apply for the named policy, before the
	// outcome is decided. Used to cancel contexts mid-batch.
	onApply map[string]func()

	applyCalls  []string
	revertCalls []string
}

func newFakeExecutor(mech policy.Mechanism) *fakeExecutor {
	return &fakeExecutor{
		mech:      mech,
		applied:   make(map[string]bool),
		values:    make(map[string]string),
		applyErr:  make(map[string]error),
		revertErr: make(map[string]error),
		probeErr:  make(map[string]error),
		onApply:   make(map[string]func()),
	}
}

func (f *fakeExecutor) Mechanism() policy.Mechanism { return f.mech }

func (f *fakeExecutor) IsApplied(ctx context.Context, def *policy.PolicyDefinition) (bool, error) {
	if err := f.probeErr[def.ID]; err != nil {
		return false, err
	}
	return f.applied[def.ID], nil
}

func (f *fakeExecutor) CurrentValue(ctx context.Context, def *policy.PolicyDefinition) (string, bool, error) {
	if err := f.probeErr[def.ID]; err != nil {
		return "", false, err
	}
	v, ok := f.values[def.ID]
	return v, ok, nil
}

func (f *fakeExecutor) Apply(ctx context.Context, def *policy.PolicyDefinition) ledger.ChangeRecord {
	f.applyCalls = append(f.applyCalls, def.ID)
	if hook := f.onApply[def.ID]; hook != nil {
		hook()
	}

	rec := ledger.ChangeRecord{
		ChangeID:  ledger.NewChangeID(),
		Operation: ledger.OperationApply,
		PolicyID:  def.ID,
		Mechanism: string(def.Mechanism),
		AppliedAt: time.Now().UTC(),
	}

	if err := f.applyErr[def.ID]; err != nil {
		rec.Success = false
		rec.ErrorMessage = err.Error()
		rec.ErrorCategory = ledger.CategoryInvalidState
		return rec
	}

	if prev, ok := f.values[def.ID]; ok {
		rec.PreviousState = &prev
	}
	f.applied[def.ID] = true
	f.values[def.ID] = "1"
	rec.NewState = "1"
	rec.Success = true
	return rec
}

func (f *fakeExecutor) Revert(ctx context.Context, def *policy.PolicyDefinition, original ledger.ChangeRecord) ledger.ChangeRecord {
	f.revertCalls = append(f.revertCalls, def.ID)

	rec := ledger.ChangeRecord{
		ChangeID:  ledger.NewChangeID(),
		Operation: ledger.OperationRevert,
		PolicyID:  def.ID,
		Mechanism: string(def.Mechanism),
		AppliedAt: time.Now().UTC(),
	}

	if err := f.revertErr[def.ID]; err != nil {
		rec.Success = false
		rec.ErrorMessage = err.Error()
		rec.ErrorCategory = ledger.CategoryInvalidState
		return rec
	}

	if original.PreviousState != nil {
		f.values[def.ID] = *original.PreviousState
		rec.NewState = *original.PreviousState
	} else {
		delete(f.values, def.ID)
		rec.NewState = "absent"
	}
	f.applied[def.ID] = false
	rec.Success = true
	return rec
}

// regPolicy builds a minimal registry policy for engine tests.
func regPolicy(id string, deps ...policy.Dependency) *policy.PolicyDefinition {
	return &policy.PolicyDefinition{
		ID:           id,
		Name:         "Test policy " + id,
		Mechanism:    policy.MechanismRegistry,
		Risk:         policy.RiskLow,
		Reversible:   true,
		Dependencies: deps,
		Details: &policy.RegistryDetails{
			Path:      `HKLM\SOFTWARE\Palisade\Test`,
			ValueName: id,
			Action:    policy.RegistryActionSet,
			ValueType: policy.RegDWord,
			ValueData: "1",
		},
	}
}

func dep(id string, kind policy.DependencyKind) policy.Dependency {
	return policy.Dependency{PolicyID: id, Kind: kind}
}

// harness assembles an engine over fakes and an in-memory ledger.
type harness struct {
	catalog    *policy.Catalog
	exec       *fakeExecutor
	store      *ledger.MemoryStore
	checkpoint *winfake.Checkpoint
	prober     *winfake.Prober
	engine     *Engine
}

func newHarness(t *testing.T, defs ...*policy.PolicyDefinition) *harness {
	t.Helper()

	catalog := policy.NewCatalog()
	if err := catalog.Replace(defs); err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}

	exec := newFakeExecutor(policy.MechanismRegistry)
	registry := executor.NewRegistry()
	if err := registry.Register(exec); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	store := ledger.NewMemoryStore()
	checkpoint := winfake.NewCheckpoint()
	prober := &winfake.Prober{Facts: winsys.HostFacts{
		OSBuild:   26100,
		OSEdition: "Windows 11 Enterprise",
	}}

	eng, err := New(Config{
		Catalog:               catalog,
		Resolver:              policy.NewResolver(catalog),
		Executors:             registry,
		Store:                 store,
		Prober:                prober,
		Checkpoint:            checkpoint,
		CheckpointDescription: "test batch",
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	return &harness{
		catalog:    catalog,
		exec:       exec,
		store:      store,
		checkpoint: checkpoint,
		prober:     prober,
		engine:     eng,
	}
}

func TestNew_MissingCollaborators(t *testing.T) {
	catalog := policy.NewCatalog()
	base := func() Config {
		return Config{
			Catalog:   catalog,
			Resolver:  policy.NewResolver(catalog),
			Executors: executor.NewRegistry(),
			Store:     ledger.NewMemoryStore(),
			Prober:    &winfake.Prober{},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil catalog", func(c *Config) { c.Catalog = nil }},
		{"nil resolver", func(c *Config) { c.Resolver = nil }},
		{"nil executors", func(c *Config) { c.Executors = nil }},
		{"nil store", func(c *Config) { c.Store = nil }},
		{"nil prober", func(c *Config) { c.Prober = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New() accepted a config with a missing collaborator")
			}
		})
	}

	if _, err := New(base()); err != nil {
		t.Errorf("New() with complete config failed: %v", err)
	}
}

func TestEngine_Busy(t *testing.T) {
	h := newHarness(t, regPolicy("a"))

	if h.engine.Busy() {
		t.Error("Busy() = true on an idle engine")
	}

	h.engine.gate.Lock()
	if !h.engine.Busy() {
		t.Error("Busy() = false while the gate is held")
	}
	h.engine.gate.Unlock()

	if h.engine.Busy() {
		t.Error("Busy() = true after the gate was released")
	}
}

// TestEngine_RegistryRoundTrip drives the real registry executor through a
// full apply and revert over the engine and the ledger: a seeded value moves
// from 0 to 1 and back, with the original state coming out of the ledger.
func TestEngine_RegistryRoundTrip(t *testing.T) {
	const keyPath = `HKLM\SOFTWARE\Policies\Microsoft\Windows\Explorer`

	regStore := winfake.NewRegistry()
	regStore.Seed(keyPath, "NoAutorun", winsys.RegistryValue{Type: policy.RegDWord, Data: "0"})

	catalog := policy.NewCatalog()
	def := &policy.PolicyDefinition{
		ID:         "disable-autorun",
		Name:       "Disable Autorun",
		Mechanism:  policy.MechanismRegistry,
		Risk:       policy.RiskLow,
		Reversible: true,
		Details: &policy.RegistryDetails{
			Path:      keyPath,
			ValueName: "NoAutorun",
			Action:    policy.RegistryActionSet,
			ValueType: policy.RegDWord,
			ValueData: "1",
		},
	}
	if err := catalog.Replace([]*policy.PolicyDefinition{def}); err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}

	registry := executor.NewRegistry()
	if err := registry.Register(executor.NewRegistryExecutor(regStore)); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	store := ledger.NewMemoryStore()
	eng, err := New(Config{
		Catalog:    catalog,
		Resolver:   policy.NewResolver(catalog),
		Executors:  registry,
		Store:      store,
		Prober:     &winfake.Prober{Facts: winsys.HostFacts{OSBuild: 26100, OSEdition: "Windows 11 Pro"}},
		Checkpoint: winfake.NewCheckpoint(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()

	applyRes, err := eng.Apply(ctx, ApplyRequest{PolicyIDs: []string{"disable-autorun"}})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if !applyRes.Success || applyRes.State != StateCompleted {
		t.Fatalf("apply result = %s success=%v, want completed success", applyRes.State, applyRes.Success)
	}

	value, exists, err := regStore.GetValue(ctx, keyPath, "NoAutorun")
	if err != nil || !exists {
		t.Fatalf("GetValue() after apply = (%v, %v)", exists, err)
	}
	if value.Data != "1" {
		t.Errorf("value after apply = %q, want 1", value.Data)
	}

	original, err := store.LatestApply(ctx, "disable-autorun")
	if err != nil {
		t.Fatalf("LatestApply() failed: %v", err)
	}
	if original.PreviousState == nil || *original.PreviousState != "dword:0" {
		t.Errorf("ledger PreviousState = %v, want dword:0", original.PreviousState)
	}

	revertRes, err := eng.Revert(ctx, RevertRequest{PolicyIDs: []string{"disable-autorun"}})
	if err != nil {
		t.Fatalf("Revert() failed: %v", err)
	}
	if !revertRes.Success || len(revertRes.Applied) != 1 {
		t.Fatalf("revert result success=%v reverted=%v", revertRes.Success, revertRes.Applied)
	}

	value, exists, err = regStore.GetValue(ctx, keyPath, "NoAutorun")
	if err != nil || !exists {
		t.Fatalf("GetValue() after revert = (%v, %v)", exists, err)
	}
	if value.Data != "0" {
		t.Errorf("value after revert = %q, want 0", value.Data)
	}

	if revertRes.SnapshotID == applyRes.SnapshotID {
		t.Error("revert reused the apply batch's snapshot id")
	}
}
