package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/winsys"
)

// ScriptExecutorConfig configures the script executor.
type ScriptExecutorConfig struct {
	// ScriptRoot is the allow-listed directory scripts must live under.
	ScriptRoot string

	// RequireSignature gates execution on a trusted Authenticode
	// signature.
	RequireSignature bool

	// DefaultTimeout applies to scripts that declare no timeout of their
	// own. Zero falls through to the runner's default.
	DefaultTimeout time.Duration
}

// ScriptExecutor applies external script policies.
type ScriptExecutor struct {
	runner   winsys.Runner
	verifier winsys.SignatureVerifier
	config   ScriptExecutorConfig
	logger   *slog.Logger
}

// NewScriptExecutor creates a script executor.
func NewScriptExecutor(runner winsys.Runner, verifier winsys.SignatureVerifier, config ScriptExecutorConfig) *ScriptExecutor {
	return &ScriptExecutor{
		runner:   runner,
		verifier: verifier,
		config:   config,
		logger:   slog.Default().With("component", "executor.script"),
	}
}

// Mechanism implements Executor.
func (e *ScriptExecutor) Mechanism() policy.Mechanism {
	return policy.MechanismScript
}

func scriptDetails(def *policy.PolicyDefinition) (*policy.ScriptDetails, error) {
	d, ok := def.Details.(*policy.ScriptDetails)
	if !ok {
		return nil, fmt.Errorf("policy %s does not carry script details", def.ID)
	}
	return d, nil
}

// resolveUnder resolves rel strictly inside root, following symlinks, and
// rejects anything that lands outside it.
func resolveUnder(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty script path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("script path %q must be relative to the script root", rel)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving script root: %w", err)
	}
	rootResolved, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolving script root %s: %w", root, err)
	}

	candidate := filepath.Join(rootResolved, rel)
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: script %s", winsys.ErrNotFound, rel)
		}
		return "", fmt.Errorf("resolving script %s: %w", rel, err)
	}

	inside, err := filepath.Rel(rootResolved, resolved)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("script path %q escapes the script root", rel)
	}
	return resolved, nil
}

// paramArgs renders parameters as sorted named arguments.
func paramArgs(params map[string]string) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]string, 0, 2*len(names))
	for _, name := range names {
		args = append(args, "-"+name, params[name])
	}
	return args
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// prepare resolves and, when required, signature-checks one script path.
func (e *ScriptExecutor) prepare(ctx context.Context, rel string) (string, error) {
	path, err := resolveUnder(e.config.ScriptRoot, rel)
	if err != nil {
		return "", err
	}
	if e.config.RequireSignature {
		if err := e.verifier.Verify(ctx, path); err != nil {
			return "", err
		}
	}
	return path, nil
}

func (e *ScriptExecutor) timeoutFor(d *policy.ScriptDetails) time.Duration {
	if d.TimeoutSeconds > 0 {
		return time.Duration(d.TimeoutSeconds) * time.Second
	}
	return e.config.DefaultTimeout
}

// runScript executes one prepared script and folds non-zero exits into an
// error so callers have a single failure path.
func (e *ScriptExecutor) runScript(ctx context.Context, path string, params map[string]string, timeout time.Duration) (winsys.CommandResult, error) {
	result, err := e.runner.Run(ctx, winsys.CommandSpec{
		Path:    path,
		Args:    paramArgs(params),
		Timeout: timeout,
	})
	if err != nil {
		return result, err
	}
	if result.ExitCode != 0 {
		return result, fmt.Errorf("script %s exited %d: %s",
			filepath.Base(path), result.ExitCode, clip(strings.TrimSpace(result.Stderr), 500))
	}
	return result, nil
}

// snapshotState runs the optional snapshot script and returns its output
// as the captured state.
func (e *ScriptExecutor) snapshotState(ctx context.Context, d *policy.ScriptDetails) (*string, error) {
	if d.SnapshotScript == "" {
		return nil, nil
	}
	path, err := e.prepare(ctx, d.SnapshotScript)
	if err != nil {
		return nil, fmt.Errorf("snapshot script: %w", err)
	}
	result, err := e.runScript(ctx, path, nil, e.timeoutFor(d))
	if err != nil {
		return nil, fmt.Errorf("snapshot script: %w", err)
	}
	return strPtr(strings.TrimSpace(result.Stdout)), nil
}

// IsApplied implements Executor. Scripts declare no checkable target
// state; audit and drift rely on CurrentValue instead.
func (e *ScriptExecutor) IsApplied(ctx context.Context, def *policy.PolicyDefinition) (bool, error) {
	if _, err := scriptDetails(def); err != nil {
		return false, err
	}
	return false, nil
}

// CurrentValue implements Executor. Without a snapshot script there is
// nothing observable.
func (e *ScriptExecutor) CurrentValue(ctx context.Context, def *policy.PolicyDefinition) (string, bool, error) {
	d, err := scriptDetails(def)
	if err != nil {
		return "", false, err
	}
	if d.SnapshotScript == "" {
		return "", false, nil
	}

	state, err := e.snapshotState(ctx, d)
	if err != nil {
		return "", false, err
	}
	return *state, true, nil
}

// Apply implements Executor.
func (e *ScriptExecutor) Apply(ctx context.Context, def *policy.PolicyDefinition) ledger.ChangeRecord {
	rec := newRecord(ledger.OperationApply, def)

	d, err := scriptDetails(def)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}

	path, err := e.prepare(ctx, d.ScriptPath)
	if err != nil {
		return failRecord(rec, err)
	}

	previous, err := e.snapshotState(ctx, d)
	if err != nil {
		return failRecord(rec, err)
	}
	rec.PreviousState = previous

	result, err := e.runScript(ctx, path, d.Parameters, e.timeoutFor(d))
	if err != nil {
		if result.TimedOut {
			return failRecordAs(rec, ledger.CategoryTimeout, err)
		}
		return failRecord(rec, err)
	}

	rec.Success = true
	rec.NewState = strings.TrimSpace(result.Stdout)
	if rec.NewState == "" {
		rec.NewState = "applied"
	}
	rec.Description = "ran script " + d.ScriptPath
	e.logger.Debug("script applied", "policy_id", rec.PolicyID, "script", d.ScriptPath)
	return rec
}

// Revert implements Executor. Reverting needs an explicit revert script;
// there is no generic state restoration for scripts.
func (e *ScriptExecutor) Revert(ctx context.Context, def *policy.PolicyDefinition, original ledger.ChangeRecord) ledger.ChangeRecord {
	rec := newRecord(ledger.OperationRevert, def)

	d, err := scriptDetails(def)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}
	if d.RevertScript == "" {
		return failRecordAs(rec, ledger.CategoryInvalidState,
			fmt.Errorf("policy %s has no revert script", def.ID))
	}

	path, err := e.prepare(ctx, d.RevertScript)
	if err != nil {
		return failRecord(rec, err)
	}

	previous, err := e.snapshotState(ctx, d)
	if err != nil {
		return failRecord(rec, err)
	}
	rec.PreviousState = previous

	result, err := e.runScript(ctx, path, d.RevertParameters, e.timeoutFor(d))
	if err != nil {
		if result.TimedOut {
			return failRecordAs(rec, ledger.CategoryTimeout, err)
		}
		return failRecord(rec, err)
	}

	rec.Success = true
	rec.NewState = strings.TrimSpace(result.Stdout)
	if rec.NewState == "" {
		rec.NewState = "reverted"
	}
	rec.Description = "ran revert script " + d.RevertScript
	return rec
}
