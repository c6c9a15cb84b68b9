package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/winsys"
)

// defaultStopTimeout bounds service stops that declare no timeout.
const defaultStopTimeout = 30 * time.Second

// ServiceExecutor applies service policies.
type ServiceExecutor struct {
	manager winsys.ServiceManager
	logger  *slog.Logger
}

// NewServiceExecutor creates a service executor.
func NewServiceExecutor(manager winsys.ServiceManager) *ServiceExecutor {
	return &ServiceExecutor{
		manager: manager,
		logger:  slog.Default().With("component", "executor.service"),
	}
}

// Mechanism implements Executor.
func (e *ServiceExecutor) Mechanism() policy.Mechanism {
	return policy.MechanismService
}

// encodeServiceState renders a service status as "startMode,runState".
func encodeServiceState(status winsys.ServiceStatus) string {
	return fmt.Sprintf("%d,%s", int(status.StartMode), status.State)
}

// decodeServiceState parses a "startMode,runState" state string.
func decodeServiceState(s string) (winsys.ServiceStatus, error) {
	modeText, state, found := strings.Cut(s, ",")
	if !found {
		return winsys.ServiceStatus{}, fmt.Errorf("malformed service state %q", s)
	}
	mode, err := strconv.Atoi(modeText)
	if err != nil {
		return winsys.ServiceStatus{}, fmt.Errorf("malformed service state %q: %w", s, err)
	}
	startMode := policy.ServiceStartMode(mode)
	if !startMode.Valid() {
		return winsys.ServiceStatus{}, fmt.Errorf("malformed service state %q: start mode out of range", s)
	}
	return winsys.ServiceStatus{StartMode: startMode, State: state}, nil
}

func serviceDetails(def *policy.PolicyDefinition) (*policy.ServiceDetails, error) {
	d, ok := def.Details.(*policy.ServiceDetails)
	if !ok {
		return nil, fmt.Errorf("policy %s does not carry service details", def.ID)
	}
	return d, nil
}

// serviceTarget is a policy's desired service configuration.
type serviceTarget struct {
	mode        policy.ServiceStartMode
	stopRunning bool
}

func (t serviceTarget) met(status winsys.ServiceStatus) bool {
	if status.StartMode != t.mode {
		return false
	}
	if t.stopRunning && status.State == winsys.ServiceRunning {
		return false
	}
	return true
}

// IsApplied implements Executor.
func (e *ServiceExecutor) IsApplied(ctx context.Context, def *policy.PolicyDefinition) (bool, error) {
	d, err := serviceDetails(def)
	if err != nil {
		return false, err
	}

	status, err := e.manager.Query(ctx, d.ServiceName)
	if err != nil {
		return false, err
	}

	target := serviceTarget{mode: d.StartMode, stopRunning: d.StopRunning}
	return target.met(status), nil
}

// CurrentValue implements Executor.
func (e *ServiceExecutor) CurrentValue(ctx context.Context, def *policy.PolicyDefinition) (string, bool, error) {
	d, err := serviceDetails(def)
	if err != nil {
		return "", false, err
	}

	status, err := e.manager.Query(ctx, d.ServiceName)
	if err != nil {
		if errors.Is(err, winsys.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return encodeServiceState(status), true, nil
}

// Apply implements Executor.
func (e *ServiceExecutor) Apply(ctx context.Context, def *policy.PolicyDefinition) ledger.ChangeRecord {
	rec := newRecord(ledger.OperationApply, def)

	d, err := serviceDetails(def)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}

	status, err := e.manager.Query(ctx, d.ServiceName)
	if err != nil {
		return failRecord(rec, fmt.Errorf("querying service %s: %w", d.ServiceName, err))
	}
	rec.PreviousState = strPtr(encodeServiceState(status))

	target := serviceTarget{mode: d.StartMode, stopRunning: d.StopRunning}
	if target.met(status) {
		rec.Success = true
		rec.NewState = encodeServiceState(status)
		rec.Description = fmt.Sprintf("service %s already in desired state", d.ServiceName)
		return rec
	}

	if status.StartMode != d.StartMode {
		if err := e.manager.SetStartMode(ctx, d.ServiceName, d.StartMode); err != nil {
			return failRecord(rec, fmt.Errorf("setting start mode of %s: %w", d.ServiceName, err))
		}
		status.StartMode = d.StartMode
	}

	if d.StopRunning && status.State == winsys.ServiceRunning {
		timeout := defaultStopTimeout
		if d.StopTimeoutSeconds > 0 {
			timeout = time.Duration(d.StopTimeoutSeconds) * time.Second
		}
		if err := e.manager.Stop(ctx, d.ServiceName, timeout); err != nil {
			// The start mode change above stands even when the stop
			// fails, so record the intermediate state.
			rec.NewState = encodeServiceState(status)
			return failRecord(rec, fmt.Errorf("stopping service %s: %w", d.ServiceName, err))
		}
		status.State = "stopped"
	}

	rec.Success = true
	rec.NewState = encodeServiceState(status)
	rec.Description = fmt.Sprintf("service %s set to start mode %s", d.ServiceName, d.StartMode)
	e.logger.Debug("service configured",
		"policy_id", rec.PolicyID,
		"service", d.ServiceName,
		"start_mode", int(d.StartMode),
		"stopped", d.StopRunning)
	return rec
}

// Revert implements Executor.
func (e *ServiceExecutor) Revert(ctx context.Context, def *policy.PolicyDefinition, original ledger.ChangeRecord) ledger.ChangeRecord {
	rec := newRecord(ledger.OperationRevert, def)

	d, err := serviceDetails(def)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}
	if original.PreviousState == nil {
		return failRecordAs(rec, ledger.CategoryInvalidState,
			fmt.Errorf("apply record %s carries no previous service state", original.ChangeID))
	}

	restored, err := decodeServiceState(*original.PreviousState)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}

	current, err := e.manager.Query(ctx, d.ServiceName)
	if err != nil {
		return failRecord(rec, fmt.Errorf("querying service %s: %w", d.ServiceName, err))
	}
	rec.PreviousState = strPtr(encodeServiceState(current))

	if current.StartMode != restored.StartMode {
		if err := e.manager.SetStartMode(ctx, d.ServiceName, restored.StartMode); err != nil {
			return failRecord(rec, fmt.Errorf("restoring start mode of %s: %w", d.ServiceName, err))
		}
		current.StartMode = restored.StartMode
	}

	// Restart only services that were running before the apply.
	if restored.State == winsys.ServiceRunning && current.State != winsys.ServiceRunning {
		if err := e.manager.Start(ctx, d.ServiceName); err != nil {
			rec.NewState = encodeServiceState(current)
			return failRecord(rec, fmt.Errorf("restarting service %s: %w", d.ServiceName, err))
		}
		current.State = winsys.ServiceRunning
	}

	rec.Success = true
	rec.NewState = encodeServiceState(current)
	rec.Description = fmt.Sprintf("service %s restored to start mode %s", d.ServiceName, restored.StartMode)
	return rec
}
