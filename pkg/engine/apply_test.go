package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
)

func TestApply_SinglePolicy(t *testing.T) {
	h := newHarness(t, regPolicy("a"))

	res, err := h.engine.Apply(context.Background(), ApplyRequest{PolicyIDs: []string{"a"}})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if res.State != StateCompleted {
		t.Errorf("State = %q, want %q", res.State, StateCompleted)
	}
	if !res.Success {
		t.Error("Success = false")
	}
	if !reflect.DeepEqual(res.Applied, []string{"a"}) {
		t.Errorf("Applied = %v, want [a]", res.Applied)
	}
	if len(res.Records) != 1 {
		t.Fatalf("Records = %d, want 1", len(res.Records))
	}
	if res.SnapshotID == "" {
		t.Error("SnapshotID is empty")
	}
	if res.Records[0].SnapshotID != res.SnapshotID {
		t.Errorf("record SnapshotID = %q, want %q", res.Records[0].SnapshotID, res.SnapshotID)
	}
	if res.CheckpointID == "" {
		t.Error("CheckpointID is empty")
	}
	if len(h.checkpoint.Descriptions) != 1 {
		t.Errorf("checkpoint calls = %d, want 1", len(h.checkpoint.Descriptions))
	}

	snap, err := h.store.LatestSnapshot(context.Background())
	if err != nil {
		t.Fatalf("LatestSnapshot() failed: %v", err)
	}
	if snap.SnapshotID != res.SnapshotID {
		t.Errorf("persisted snapshot = %q, want %q", snap.SnapshotID, res.SnapshotID)
	}
	if snap.RestoreCheckpointID != res.CheckpointID {
		t.Errorf("snapshot checkpoint = %q, want %q", snap.RestoreCheckpointID, res.CheckpointID)
	}
	if len(snap.Policies) != 1 || !snap.Policies[0].IsApplied {
		t.Errorf("snapshot policies = %+v, want one applied entry", snap.Policies)
	}
	if snap.Baseline.OSBuild != 26100 {
		t.Errorf("baseline build = %d, want 26100", snap.Baseline.OSBuild)
	}
}

func TestApply_DependencyOrder(t *testing.T) {
	h := newHarness(t,
		regPolicy("a"),
		regPolicy("b", dep("a", policy.DependencyRequired)),
	)

	res, err := h.engine.Apply(context.Background(), ApplyRequest{PolicyIDs: []string{"b"}})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if !reflect.DeepEqual(h.exec.applyCalls, []string{"a", "b"}) {
		t.Errorf("apply order = %v, want [a b]", h.exec.applyCalls)
	}
	if !reflect.DeepEqual(res.AutoIncluded, []string{"a"}) {
		t.Errorf("AutoIncluded = %v, want [a]", res.AutoIncluded)
	}
}

func TestApply_StopsOnFirstFailure(t *testing.T) {
	h := newHarness(t, regPolicy("a"), regPolicy("b"), regPolicy("c"))
	h.exec.applyErr["b"] = errors.New("write rejected")

	res, err := h.engine.Apply(context.Background(), ApplyRequest{PolicyIDs: []string{"a", "b", "c"}})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if res.State != StateAborted {
		t.Errorf("State = %q, want %q", res.State, StateAborted)
	}
	if res.Success {
		t.Error("Success = true with a failed policy")
	}
	if !reflect.DeepEqual(res.Applied, []string{"a"}) {
		t.Errorf("Applied = %v, want [a]", res.Applied)
	}
	if !reflect.DeepEqual(res.Failed, []string{"b"}) {
		t.Errorf("Failed = %v, want [b]", res.Failed)
	}
	if !reflect.DeepEqual(res.Aborted, []string{"c"}) {
		t.Errorf("Aborted = %v, want [c]", res.Aborted)
	}
	if len(res.Records) != 2 {
		t.Errorf("Records = %d, want 2 (a and b, never c)", len(res.Records))
	}

	// The partial batch still persisted.
	count, err := h.store.Count(context.Background(), &ledger.Query{})
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("persisted records = %d, want 2", count)
	}
}

func TestApply_ContinueOnError(t *testing.T) {
	h := newHarness(t, regPolicy("a"), regPolicy("b"), regPolicy("c"))
	h.exec.applyErr["b"] = errors.New("write rejected")

	res, err := h.engine.Apply(context.Background(), ApplyRequest{
		PolicyIDs:       []string{"a", "b", "c"},
		ContinueOnError: true,
	})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if res.State != StateCompleted {
		t.Errorf("State = %q, want %q", res.State, StateCompleted)
	}
	if res.Success {
		t.Error("Success = true with a failed policy")
	}
	if !reflect.DeepEqual(res.Applied, []string{"a", "c"}) {
		t.Errorf("Applied = %v, want [a c]", res.Applied)
	}
	if !reflect.DeepEqual(res.Failed, []string{"b"}) {
		t.Errorf("Failed = %v, want [b]", res.Failed)
	}
	if len(res.Aborted) != 0 {
		t.Errorf("Aborted = %v, want empty", res.Aborted)
	}
}

func TestApply_NotApplicableSkips(t *testing.T) {
	def := regPolicy("a")
	def.Applicability = &policy.Applicability{MinBuild: 99999}
	h := newHarness(t, def)

	res, err := h.engine.Apply(context.Background(), ApplyRequest{PolicyIDs: []string{"a"}})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if !reflect.DeepEqual(res.Skipped, []string{"a"}) {
		t.Errorf("Skipped = %v, want [a]", res.Skipped)
	}
	if len(res.Records) != 0 {
		t.Errorf("Records = %d, want 0 for an inapplicable policy", len(res.Records))
	}
	if res.State != StateCompleted || !res.Success {
		t.Errorf("result = %s success=%v, want completed success", res.State, res.Success)
	}
	if res.SnapshotID != "" {
		t.Error("a batch with no records should not persist a snapshot")
	}
	if _, err := h.store.LatestSnapshot(context.Background()); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("LatestSnapshot() err = %v, want ErrNotFound", err)
	}
	if len(h.exec.applyCalls) != 0 {
		t.Errorf("executor ran for inapplicable policy: %v", h.exec.applyCalls)
	}
}

func TestApply_NoExecutorForMechanism(t *testing.T) {
	svc := &policy.PolicyDefinition{
		ID:         "stop-spooler",
		Name:       "Stop print spooler",
		Mechanism:  policy.MechanismService,
		Risk:       policy.RiskMedium,
		Reversible: true,
		Details: &policy.ServiceDetails{
			ServiceName: "Spooler",
			StartMode:   policy.StartModeDisabled,
		},
	}
	h := newHarness(t, svc)

	res, err := h.engine.Apply(context.Background(), ApplyRequest{PolicyIDs: []string{"stop-spooler"}})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if !reflect.DeepEqual(res.Failed, []string{"stop-spooler"}) {
		t.Errorf("Failed = %v, want [stop-spooler]", res.Failed)
	}
	if len(res.Records) != 1 {
		t.Fatalf("Records = %d, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if rec.ErrorCategory != ledger.CategoryInvalidState {
		t.Errorf("ErrorCategory = %q, want %q", rec.ErrorCategory, ledger.CategoryInvalidState)
	}
	if !strings.Contains(rec.ErrorMessage, "no executor registered") {
		t.Errorf("ErrorMessage = %q, want executor lookup failure", rec.ErrorMessage)
	}
}

func TestApply_DryRun(t *testing.T) {
	h := newHarness(t, regPolicy("a"), regPolicy("b"))
	h.exec.applied["a"] = true
	h.exec.values["a"] = "1"

	res, err := h.engine.Apply(context.Background(), ApplyRequest{
		PolicyIDs: []string{"a", "b"},
		DryRun:    true,
	})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if !res.DryRun {
		t.Error("DryRun = false on result")
	}
	if !reflect.DeepEqual(res.Skipped, []string{"a"}) {
		t.Errorf("Skipped = %v, want [a] (already satisfied)", res.Skipped)
	}
	if !reflect.DeepEqual(res.Applied, []string{"b"}) {
		t.Errorf("Applied = %v, want [b] (would change)", res.Applied)
	}
	if len(h.exec.applyCalls) != 0 {
		t.Errorf("dry run invoked Apply: %v", h.exec.applyCalls)
	}
	if len(h.checkpoint.Descriptions) != 0 {
		t.Error("dry run created a checkpoint")
	}
	if _, err := h.store.LatestSnapshot(context.Background()); !errors.Is(err, ledger.ErrNotFound) {
		t.Error("dry run persisted a batch")
	}
}

func TestApply_BusyEngineRejectsSecondBatch(t *testing.T) {
	h := newHarness(t, regPolicy("a"))

	h.engine.gate.Lock()
	defer h.engine.gate.Unlock()

	_, err := h.engine.Apply(context.Background(), ApplyRequest{PolicyIDs: []string{"a"}})
	if !errors.Is(err, ErrBatchInProgress) {
		t.Errorf("Apply() err = %v, want ErrBatchInProgress", err)
	}
}

func TestApply_CancellationPersistsPartialBatch(t *testing.T) {
	h := newHarness(t, regPolicy("a"), regPolicy("b"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.exec.onApply["a"] = cancel

	res, err := h.engine.Apply(ctx, ApplyRequest{PolicyIDs: []string{"a", "b"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Apply() err = %v, want context.Canceled", err)
	}
	if res == nil {
		t.Fatal("Apply() returned nil result on cancellation")
	}

	if res.State != StateAborted {
		t.Errorf("State = %q, want %q", res.State, StateAborted)
	}
	if !reflect.DeepEqual(res.Applied, []string{"a"}) {
		t.Errorf("Applied = %v, want [a]", res.Applied)
	}
	if !reflect.DeepEqual(res.Aborted, []string{"b"}) {
		t.Errorf("Aborted = %v, want [b]", res.Aborted)
	}
	if res.SnapshotID == "" {
		t.Error("cancelled batch did not persist a snapshot")
	}

	records, err := h.store.Changes(context.Background(), &ledger.Query{SnapshotID: res.SnapshotID})
	if err != nil {
		t.Fatalf("Changes() failed: %v", err)
	}
	if len(records) != 1 || records[0].PolicyID != "a" {
		t.Errorf("persisted records = %+v, want only policy a", records)
	}
}

func TestApply_CheckpointFailureIsWarning(t *testing.T) {
	h := newHarness(t, regPolicy("a"))
	h.checkpoint.Err = errors.New("volume shadow copy service unavailable")

	res, err := h.engine.Apply(context.Background(), ApplyRequest{PolicyIDs: []string{"a"}})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if res.CheckpointID != "" {
		t.Errorf("CheckpointID = %q, want empty", res.CheckpointID)
	}
	if res.State != StateCompleted || !res.Success {
		t.Errorf("result = %s success=%v, want completed success despite checkpoint failure", res.State, res.Success)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "checkpoint failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want a checkpoint failure warning", res.Warnings)
	}
}

func TestApply_SkipCheckpoint(t *testing.T) {
	h := newHarness(t, regPolicy("a"))

	res, err := h.engine.Apply(context.Background(), ApplyRequest{
		PolicyIDs:      []string{"a"},
		SkipCheckpoint: true,
	})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(h.checkpoint.Descriptions) != 0 {
		t.Errorf("checkpoint calls = %d, want 0", len(h.checkpoint.Descriptions))
	}
	if res.CheckpointID != "" {
		t.Errorf("CheckpointID = %q, want empty", res.CheckpointID)
	}
}

func TestApply_UnknownPolicy(t *testing.T) {
	h := newHarness(t, regPolicy("a"))

	_, err := h.engine.Apply(context.Background(), ApplyRequest{PolicyIDs: []string{"ghost"}})
	var notFound *policy.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Apply() err = %v, want NotFoundError", err)
	}
	if notFound.PolicyID != "ghost" {
		t.Errorf("NotFoundError.PolicyID = %q, want ghost", notFound.PolicyID)
	}
}

func TestApply_EmptySelection(t *testing.T) {
	h := newHarness(t, regPolicy("a"))

	_, err := h.engine.Apply(context.Background(), ApplyRequest{})
	if !errors.Is(err, ErrEmptySelection) {
		t.Errorf("Apply() err = %v, want ErrEmptySelection", err)
	}
}

func TestApply_AllSelectsWholeCatalog(t *testing.T) {
	h := newHarness(t, regPolicy("a"), regPolicy("b"), regPolicy("c"))

	res, err := h.engine.Apply(context.Background(), ApplyRequest{All: true})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(res.Applied) != 3 {
		t.Errorf("Applied = %v, want all three policies", res.Applied)
	}
}

func TestApply_ConflictWarning(t *testing.T) {
	h := newHarness(t,
		regPolicy("a", dep("b", policy.DependencyConflict)),
		regPolicy("b"),
	)

	res, err := h.engine.Apply(context.Background(), ApplyRequest{PolicyIDs: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(res.Warnings) == 0 {
		t.Error("Warnings is empty, want a conflict warning")
	}
	// Conflicts warn; they never block execution.
	if len(res.Applied) != 2 {
		t.Errorf("Applied = %v, want both policies", res.Applied)
	}
}

func TestApply_ProgressFramesPrecedeReturn(t *testing.T) {
	h := newHarness(t, regPolicy("a"), regPolicy("b"))

	type frame struct {
		percent  int
		message  string
		policyID string
	}
	var frames []frame
	returned := false

	_, err := h.engine.Apply(context.Background(), ApplyRequest{
		PolicyIDs: []string{"a", "b"},
		Progress: func(percent int, message, policyID string) {
			if returned {
				t.Error("progress callback after Apply() returned")
			}
			frames = append(frames, frame{percent, message, policyID})
		},
	})
	returned = true
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(frames) < 3 {
		t.Fatalf("got %d progress frames, want at least 3", len(frames))
	}
	if frames[0].percent != 0 || frames[0].policyID != "a" {
		t.Errorf("first frame = %+v, want percent 0 for policy a", frames[0])
	}
	last := frames[len(frames)-1]
	if last.percent != 100 {
		t.Errorf("last frame percent = %d, want 100", last.percent)
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].percent < frames[i-1].percent {
			t.Errorf("progress went backward: %d after %d", frames[i].percent, frames[i-1].percent)
		}
	}
}

func TestApply_SkipRecommended(t *testing.T) {
	h := newHarness(t,
		regPolicy("a"),
		regPolicy("b", dep("a", policy.DependencyRecommended)),
	)

	res, err := h.engine.Apply(context.Background(), ApplyRequest{
		PolicyIDs:       []string{"b"},
		SkipRecommended: true,
	})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if !reflect.DeepEqual(res.Applied, []string{"b"}) {
		t.Errorf("Applied = %v, want [b] only", res.Applied)
	}
	if len(res.AutoIncluded) != 0 {
		t.Errorf("AutoIncluded = %v, want empty", res.AutoIncluded)
	}
}
