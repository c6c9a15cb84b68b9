package winsys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"palisade-hq/palisade/pkg/policy"
)

// DefaultCommandTimeout bounds a single PowerShell invocation when the
// caller's context carries no deadline.
const DefaultCommandTimeout = 60 * time.Second

// Shell runs PowerShell commands non-interactively and classifies their
// failures. All the adapter types in this package share one Shell.
type Shell struct {
	exe     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewShell creates a shell using the powershell executable on PATH.
func NewShell() *Shell {
	return &Shell{
		exe:     "powershell",
		timeout: DefaultCommandTimeout,
		logger:  slog.Default().With("component", "winsys.shell"),
	}
}

// Run executes one script and returns trimmed stdout. Failures come back
// as CommandError wrapping a classified sentinel where the error output
// matches a known failure mode.
func (s *Shell) Run(ctx context.Context, script string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.exe, "-NoProfile", "-NonInteractive", "-Command", script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	name := commandName(script)
	s.logger.Debug("powershell command finished",
		"command", name,
		"duration_ms", elapsed.Milliseconds(),
		"success", err == nil)

	if err == nil {
		return strings.TrimSpace(stdout.String()), nil
	}

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %s after %s", ErrTimeout, name, elapsed.Round(time.Millisecond))
	}

	errOut := strings.TrimSpace(stderr.String())
	cmdErr := &CommandError{
		Command:  name,
		Stderr:   truncate(errOut, 500),
		ExitCode: exitCode(err),
		Cause:    err,
	}
	if sentinel := classifyStderr(errOut); sentinel != nil {
		cmdErr.Cause = sentinel
	}
	return "", cmdErr
}

// commandName extracts the leading cmdlet for logs and errors; scripts are
// never echoed whole.
func commandName(script string) string {
	script = strings.TrimSpace(script)
	if i := strings.IndexAny(script, " \t\r\n;"); i > 0 {
		script = script[:i]
	}
	if strings.HasPrefix(script, "$") {
		return "script"
	}
	return script
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// psQuote renders a single-quoted PowerShell string literal. Embedded
// quotes double per PowerShell quoting rules, so arbitrary input cannot
// break out of the literal.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// regProviderPath renders a registry path for -LiteralPath through the
// Registry provider, which reaches every hive without drive mappings.
func regProviderPath(path string) (string, error) {
	hive, subkey, err := policy.SplitRegistryPath(path)
	if err != nil {
		return "", err
	}
	return `Registry::` + hive + `\` + subkey, nil
}

// splitTaskPath splits a full task path into its folder (with trailing
// backslash) and task name.
func splitTaskPath(taskPath string) (folder, name string) {
	idx := strings.LastIndex(taskPath, `\`)
	if idx < 0 {
		return `\`, taskPath
	}
	folder = taskPath[:idx+1]
	name = taskPath[idx+1:]
	if folder == "" {
		folder = `\`
	}
	return folder, name
}
