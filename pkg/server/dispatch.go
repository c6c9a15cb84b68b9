package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"palisade-hq/palisade/pkg/authz"
	"palisade-hq/palisade/pkg/engine"
	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/telemetry/logging"
	"palisade-hq/palisade/pkg/wire"
)

// dispatch authorizes one command and executes it. It always returns a
// terminal response; progress frames for long commands go through send
// before dispatch returns.
func (s *Server) dispatch(ctx context.Context, cmd *wire.Command, caller *authz.Identity, send progressSender) *wire.Response {
	clog := logging.NewContextLogger(logging.Default().With("component", "server"), ctx)

	tier := wire.TierFor(cmd.Type)
	if err := s.authorizer.Authorize(ctx, authz.Tier(tier), caller); err != nil {
		s.metrics.RecordAuthzDenial(string(tier))
		clog.Warn("command rejected, caller not authorized", "tier", string(tier))
		return &wire.Response{
			CommandID: cmd.ID,
			Success:   false,
			Errors:    []wire.Error{{Code: wire.CodeNotAuthorized, Message: "not authorized"}},
		}
	}

	started := time.Now()
	result, err := s.execute(ctx, cmd, send)

	resp := &wire.Response{CommandID: cmd.ID, Success: err == nil}
	if result != nil {
		payload, merr := json.Marshal(result)
		if merr != nil && err == nil {
			err = fmt.Errorf("encoding result: %w", merr)
			resp.Success = false
		}
		resp.Result = payload
	}
	if err != nil {
		resp.Errors = append(resp.Errors, s.wireError(cmd, err))
		clog.Warn("command failed", "duration", time.Since(started).String(), "error", err)
	} else {
		clog.Debug("command completed", "duration", time.Since(started).String())
	}
	return resp
}

// execute runs the command body. A non-nil result may accompany an error
// when partial work persisted, which the response carries to the client.
func (s *Server) execute(ctx context.Context, cmd *wire.Command, send progressSender) (any, error) {
	switch cmd.Type {
	case wire.CommandPing:
		return &wire.PingResult{
			ProtocolVersion: wire.ProtocolVersion,
			ServerVersion:   s.version,
			Time:            time.Now().UTC(),
		}, nil
	case wire.CommandGetState:
		return s.stateCommand(ctx)
	case wire.CommandListPolicies:
		return s.listPoliciesCommand(cmd.Payload)
	case wire.CommandHistory:
		return s.historyCommand(ctx, cmd.Payload)
	case wire.CommandAudit:
		return s.auditCommand(ctx, cmd.Payload)
	case wire.CommandDrift:
		return s.driftCommand(ctx, cmd.Payload)
	case wire.CommandApply:
		return s.applyCommand(ctx, cmd, send)
	case wire.CommandRevert:
		return s.revertCommand(ctx, cmd, send)
	default:
		// The validator rejects unknown types before dispatch; keep the
		// gap closed anyway.
		return nil, wire.NewValidationError(fmt.Sprintf("unsupported command type %q", cmd.Type))
	}
}

func (s *Server) applyCommand(ctx context.Context, cmd *wire.Command, send progressSender) (any, error) {
	var p wire.ApplyPayload
	if err := decodePayload(cmd.Payload, &p); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	res, err := s.engine.Apply(ctx, engine.ApplyRequest{
		PolicyIDs:       p.PolicyIDs,
		All:             p.All,
		ContinueOnError: p.ContinueOnError,
		SkipRecommended: p.SkipRecommended,
		SkipCheckpoint:  p.SkipCheckpoint,
		DryRun:          p.DryRun,
		Progress:        s.progressFunc(cmd.ID, send, cancel),
	})
	if res == nil {
		return nil, err
	}
	return batchResult(res), err
}

func (s *Server) revertCommand(ctx context.Context, cmd *wire.Command, send progressSender) (any, error) {
	var p wire.RevertPayload
	if err := decodePayload(cmd.Payload, &p); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	res, err := s.engine.Revert(ctx, engine.RevertRequest{
		PolicyIDs:       p.PolicyIDs,
		All:             p.All,
		ContinueOnError: p.ContinueOnError,
		SkipCheckpoint:  p.SkipCheckpoint,
		Progress:        s.progressFunc(cmd.ID, send, cancel),
	})
	if res == nil {
		return nil, err
	}
	return batchResult(res), err
}

func (s *Server) auditCommand(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.AuditPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}

	rep, err := s.engine.Audit(ctx, p.PolicyIDs)
	if err != nil {
		return nil, err
	}
	return auditResult(rep), nil
}

func (s *Server) driftCommand(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.DriftPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}

	rep, err := s.engine.Drift(ctx, p.SnapshotID)
	if err != nil {
		return nil, err
	}
	return driftResult(rep), nil
}

func (s *Server) historyCommand(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.HistoryPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}

	query := &ledger.Query{
		PolicyID:   p.PolicyID,
		SnapshotID: p.SnapshotID,
		Operation:  p.Operation,
		Mechanism:  p.Mechanism,
		Success:    p.Success,
		Limit:      p.Limit,
		Offset:     p.Offset,
	}
	records, err := s.store.Changes(ctx, query)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Count(ctx, query)
	if err != nil {
		return nil, err
	}

	out := &wire.HistoryResult{Records: make([]ledger.ChangeRecord, 0, len(records)), Total: total}
	for _, r := range records {
		out.Records = append(out.Records, *r)
	}
	return out, nil
}

func (s *Server) listPoliciesCommand(payload json.RawMessage) (any, error) {
	var p wire.ListPoliciesPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}

	out := &wire.ListPoliciesResult{
		CatalogVersion: s.catalog.Version(),
		Policies:       []wire.PolicySummary{},
	}
	for _, def := range s.catalog.All() {
		if p.Mechanism != "" && string(def.Mechanism) != p.Mechanism {
			continue
		}
		if p.Risk != "" && string(def.Risk) != p.Risk {
			continue
		}
		out.Policies = append(out.Policies, policySummary(def))
	}
	return out, nil
}

func (s *Server) stateCommand(ctx context.Context) (any, error) {
	st := &wire.StateResult{
		Version:        s.version,
		StartedAt:      s.startedAt,
		CatalogVersion: s.catalog.Version(),
		PolicyCount:    s.catalog.Count(),
		Busy:           s.engine.Busy(),
		LedgerBackend:  s.backend,
	}

	snap, err := s.store.LatestSnapshot(ctx)
	switch {
	case err == nil:
		st.LatestSnapshotID = snap.SnapshotID
		st.LatestSnapshotAt = snap.CreatedAt
	case errors.Is(err, ledger.ErrNotFound):
		// Empty ledger: no snapshot fields.
	default:
		return nil, err
	}
	return st, nil
}

// progressFunc adapts the engine's progress callback to wire frames. A
// failed write cancels the command; the client is gone, so the batch should
// stop at the next policy boundary and persist what it completed.
func (s *Server) progressFunc(commandID string, send progressSender, cancel context.CancelFunc) engine.ProgressFunc {
	if send == nil {
		return nil
	}
	failed := false
	return func(percent int, message, policyID string) {
		if failed {
			return
		}
		err := send(&wire.Progress{
			CommandID: commandID,
			Percent:   percent,
			Message:   message,
			PolicyID:  policyID,
		})
		if err != nil {
			failed = true
			s.logger.Warn("progress write failed, cancelling command",
				"command_id", commandID,
				"error", err)
			cancel()
		}
	}
}

// wireError maps one command failure onto a wire error. Unrecognized
// failures are logged with full detail and reported generically.
func (s *Server) wireError(cmd *wire.Command, err error) wire.Error {
	var (
		ve *wire.ValidationError
		ne *policy.NotFoundError
		se *ledger.StoreError
	)
	switch {
	case errors.As(err, &ve):
		return wire.Error{Code: wire.CodeValidation, Message: validationMessage(ve)}
	case errors.As(err, &ne):
		return wire.Error{Code: wire.CodeValidation, Message: ne.Error(), PolicyID: ne.PolicyID}
	case errors.Is(err, engine.ErrEmptySelection):
		return wire.Error{Code: wire.CodeValidation, Message: err.Error()}
	case errors.Is(err, engine.ErrBatchInProgress):
		return wire.Error{Code: wire.CodeBusy, Message: err.Error()}
	case errors.Is(err, ledger.ErrNotFound):
		return wire.Error{Code: wire.CodeValidation, Message: err.Error()}
	case errors.As(err, &se):
		return wire.Error{Code: wire.CodePersistence, Message: se.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return wire.Error{Code: wire.CodeCancelled, Message: "operation cancelled"}
	case errors.Is(err, authz.ErrNotAuthorized):
		return wire.Error{Code: wire.CodeNotAuthorized, Message: "not authorized"}
	default:
		s.logger.Error("command failed", "type", cmd.Type, "command_id", cmd.ID, "error", err)
		return wire.Error{Code: wire.CodeInternal, Message: "internal error"}
	}
}

// decodePayload unmarshals a schema-validated payload. A decode failure
// here still comes back as a validation error, never a panic or 500-style
// internal.
func decodePayload(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return wire.NewValidationError("decoding payload: " + err.Error())
	}
	return nil
}

// batchResult converts an engine batch outcome to its wire form.
func batchResult(res *engine.BatchResult) *wire.BatchResult {
	return &wire.BatchResult{
		State:        string(res.State),
		Success:      res.Success,
		DryRun:       res.DryRun,
		SnapshotID:   res.SnapshotID,
		CheckpointID: res.CheckpointID,
		Applied:      emptyNotNil(res.Applied),
		Failed:       emptyNotNil(res.Failed),
		Skipped:      emptyNotNil(res.Skipped),
		Aborted:      res.Aborted,
		AutoIncluded: res.AutoIncluded,
		Warnings:     res.Warnings,
		Records:      res.Records,
	}
}

func auditResult(rep *engine.AuditReport) *wire.AuditResult {
	out := &wire.AuditResult{
		GeneratedAt:  rep.GeneratedAt,
		Entries:      make([]wire.AuditEntry, 0, len(rep.Entries)),
		AppliedCount: rep.AppliedCount,
	}
	for _, e := range rep.Entries {
		out.Entries = append(out.Entries, wire.AuditEntry{
			PolicyID:     e.PolicyID,
			Mechanism:    e.Mechanism,
			Applicable:   e.Applicable,
			Applied:      e.Applied,
			CurrentValue: e.CurrentValue,
			Exists:       e.Exists,
			Error:        e.Error,
		})
	}
	return out
}

func driftResult(rep *engine.DriftReport) *wire.DriftResult {
	out := &wire.DriftResult{
		SnapshotID: rep.SnapshotID,
		SnapshotAt: rep.SnapshotAt,
		CheckedAt:  rep.CheckedAt,
		Clean:      rep.Clean,
		Items:      make([]wire.DriftItem, 0, len(rep.Items)),
	}
	for _, it := range rep.Items {
		out.Items = append(out.Items, wire.DriftItem{
			PolicyID: it.PolicyID,
			Kind:     it.Kind,
			Severity: it.Severity,
			Expected: it.Expected,
			Observed: it.Observed,
			Detail:   it.Detail,
		})
	}
	return out
}

func policySummary(def *policy.PolicyDefinition) wire.PolicySummary {
	sum := wire.PolicySummary{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Mechanism:   string(def.Mechanism),
		Risk:        string(def.Risk),
		Reversible:  def.Reversible,
	}
	for _, dep := range def.Dependencies {
		if dep.Kind == policy.DependencyConflict {
			continue
		}
		sum.DependsOn = append(sum.DependsOn, dep.PolicyID)
	}
	return sum
}

// emptyNotNil keeps the partition lists as JSON arrays, never null.
func emptyNotNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
