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
)

// DefaultScriptTimeout bounds script runs that declare no timeout of
// their own.
const DefaultScriptTimeout = 5 * time.Minute

// maxCapturedOutput caps stdout and stderr capture per stream.
const maxCapturedOutput = 1 << 20

// CommandSpec describes one script invocation.
type CommandSpec struct {
	// Path is the script or program path.
	Path string

	// Args are positional arguments passed after the path.
	Args []string

	// Dir is the working directory. Empty inherits the daemon's.
	Dir string

	// Timeout bounds the run. Zero means DefaultScriptTimeout.
	Timeout time.Duration
}

// CommandResult is the outcome of one script invocation.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Runner executes scripts. A non-zero exit code is reported in the result,
// not as a Go error; errors mean the process could not be run to completion.
type Runner interface {
	Run(ctx context.Context, spec CommandSpec) (CommandResult, error)
}

// ExecRunner runs scripts as child processes. PowerShell scripts go through
// powershell -File; anything else is executed directly. Children get their
// own process group so a timeout kills the whole tree.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates a script runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		logger: slog.Default().With("component", "winsys.exec"),
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, spec CommandSpec) (CommandResult, error) {
	if spec.Path == "" {
		return CommandResult{}, fmt.Errorf("command spec has no path")
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if hasSuffixFold(spec.Path, ".ps1") {
		args := append([]string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File", spec.Path}, spec.Args...)
		cmd = exec.Command("powershell", args...)
	} else {
		cmd = exec.Command(spec.Path, spec.Args...)
	}
	cmd.Dir = spec.Dir

	var stdout, stderr limitedBuffer
	stdout.limit = maxCapturedOutput
	stderr.limit = maxCapturedOutput
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return CommandResult{}, fmt.Errorf("starting %s: %w", spec.Path, err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-waitCh:
	case <-runCtx.Done():
		killTree(cmd)
		waitErr = <-waitCh
		timedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
	}

	result := CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: timedOut,
	}

	r.logger.Debug("script finished",
		"path", spec.Path,
		"duration_ms", time.Since(start).Milliseconds(),
		"timed_out", timedOut)

	if timedOut {
		result.ExitCode = -1
		return result, fmt.Errorf("%w: %s exceeded %s", ErrTimeout, spec.Path, timeout)
	}
	if runCtx.Err() != nil {
		result.ExitCode = -1
		return result, runCtx.Err()
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("waiting for %s: %w", spec.Path, waitErr)
	}
	return result, nil
}

// hasSuffixFold reports whether s ends with suffix, case-insensitively.
func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

// limitedBuffer captures up to limit bytes and silently drops the rest, so
// a chatty script cannot balloon daemon memory.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
