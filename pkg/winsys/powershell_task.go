package winsys

import (
	"context"
	"fmt"
	"strings"
)

// ShellTasks implements TaskStore over PowerShell.
type ShellTasks struct {
	shell *Shell
}

// NewShellTasks creates a task store backed by the given shell.
func NewShellTasks(shell *Shell) *ShellTasks {
	return &ShellTasks{shell: shell}
}

// Query implements TaskStore.
func (t *ShellTasks) Query(ctx context.Context, taskPath string) (TaskInfo, error) {
	folder, name := splitTaskPath(taskPath)

	script := fmt.Sprintf(`$task = Get-ScheduledTask -TaskPath %s -TaskName %s -ErrorAction Stop
"$($task.State)"`, psQuote(folder), psQuote(name))

	out, err := t.shell.Run(ctx, script)
	if err != nil {
		return TaskInfo{}, err
	}

	// Task Scheduler reports Disabled, Ready, Running or Queued. Anything
	// but Disabled counts as enabled.
	state := strings.TrimSpace(out)
	return TaskInfo{Enabled: !strings.EqualFold(state, "Disabled")}, nil
}

// Export implements TaskStore.
func (t *ShellTasks) Export(ctx context.Context, taskPath string) (string, error) {
	folder, name := splitTaskPath(taskPath)

	script := fmt.Sprintf(`Export-ScheduledTask -TaskPath %s -TaskName %s -ErrorAction Stop`,
		psQuote(folder), psQuote(name))

	out, err := t.shell.Run(ctx, script)
	if err != nil {
		return "", err
	}
	return out, nil
}

// SetEnabled implements TaskStore.
func (t *ShellTasks) SetEnabled(ctx context.Context, taskPath string, enabled bool) error {
	folder, name := splitTaskPath(taskPath)

	cmdlet := "Disable-ScheduledTask"
	if enabled {
		cmdlet = "Enable-ScheduledTask"
	}
	script := fmt.Sprintf(`%s -TaskPath %s -TaskName %s -ErrorAction Stop | Out-Null`,
		cmdlet, psQuote(folder), psQuote(name))

	_, err := t.shell.Run(ctx, script)
	return err
}

// Delete implements TaskStore.
func (t *ShellTasks) Delete(ctx context.Context, taskPath string) error {
	folder, name := splitTaskPath(taskPath)

	script := fmt.Sprintf(`Unregister-ScheduledTask -TaskPath %s -TaskName %s -Confirm:$false -ErrorAction Stop`,
		psQuote(folder), psQuote(name))

	_, err := t.shell.Run(ctx, script)
	return err
}

// Register implements TaskStore.
func (t *ShellTasks) Register(ctx context.Context, taskPath, xml string) error {
	if strings.TrimSpace(xml) == "" {
		return fmt.Errorf("empty task definition for %q", taskPath)
	}
	folder, name := splitTaskPath(taskPath)

	script := fmt.Sprintf(`Register-ScheduledTask -TaskPath %s -TaskName %s -Xml %s -Force -ErrorAction Stop | Out-Null`,
		psQuote(folder), psQuote(name), psQuote(xml))

	_, err := t.shell.Run(ctx, script)
	return err
}
