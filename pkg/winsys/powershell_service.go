package winsys

import (
	"context"
	"fmt"
	"strings"
	"time"

	"palisade-hq/palisade/pkg/policy"
)

// ShellServices implements ServiceManager over PowerShell.
type ShellServices struct {
	shell *Shell
}

// NewShellServices creates a service manager backed by the given shell.
func NewShellServices(shell *Shell) *ShellServices {
	return &ShellServices{shell: shell}
}

// Query implements ServiceManager.
func (s *ShellServices) Query(ctx context.Context, name string) (ServiceStatus, error) {
	script := fmt.Sprintf(`$svc = Get-Service -Name %s -ErrorAction Stop
$cfg = Get-CimInstance Win32_Service -Filter ("Name = '" + $svc.Name.Replace("'", "''") + "'")
"$($cfg.StartMode)|$($svc.Status)"`,
		psQuote(name))

	out, err := s.shell.Run(ctx, script)
	if err != nil {
		return ServiceStatus{}, err
	}

	modeText, stateText, found := strings.Cut(out, "|")
	if !found {
		return ServiceStatus{}, fmt.Errorf("unexpected service query output %q", truncate(out, 80))
	}

	mode, err := parseStartMode(modeText)
	if err != nil {
		return ServiceStatus{}, err
	}

	return ServiceStatus{
		StartMode: mode,
		State:     strings.ToLower(strings.TrimSpace(stateText)),
	}, nil
}

// SetStartMode implements ServiceManager. The Start value under the
// service's registry key covers all five modes; Set-Service cannot reach
// boot or system.
func (s *ShellServices) SetStartMode(ctx context.Context, name string, mode policy.ServiceStartMode) error {
	if !mode.Valid() {
		return fmt.Errorf("start mode %d outside valid range 0..4", int(mode))
	}

	keyPath := `Registry::HKEY_LOCAL_MACHINE\SYSTEM\CurrentControlSet\Services\` + name
	script := fmt.Sprintf(`if (-not (Test-Path -LiteralPath %s)) { throw 'Cannot find service key' }
Set-ItemProperty -LiteralPath %s -Name 'Start' -Value %d -Type DWord -Force -ErrorAction Stop`,
		psQuote(keyPath), psQuote(keyPath), int(mode))

	_, err := s.shell.Run(ctx, script)
	return err
}

// Stop implements ServiceManager.
func (s *ShellServices) Stop(ctx context.Context, name string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Leave headroom so the in-script wait times out before the process
	// deadline does.
	runCtx, cancel := context.WithTimeout(ctx, timeout+15*time.Second)
	defer cancel()

	script := fmt.Sprintf(`Stop-Service -Name %s -Force -ErrorAction Stop
$svc = Get-Service -Name %s
$svc.WaitForStatus('Stopped', [TimeSpan]::FromSeconds(%d))`,
		psQuote(name), psQuote(name), int(timeout.Seconds()))

	_, err := s.shell.Run(runCtx, script)
	if err != nil {
		if strings.Contains(err.Error(), "TimeoutException") {
			return fmt.Errorf("%w: service %q still running after %s", ErrStopTimeout, name, timeout)
		}
		return err
	}
	return nil
}

// Start implements ServiceManager.
func (s *ShellServices) Start(ctx context.Context, name string) error {
	_, err := s.shell.Run(ctx, fmt.Sprintf(`Start-Service -Name %s -ErrorAction Stop`, psQuote(name)))
	return err
}

// parseStartMode maps Win32_Service start mode names onto the numeric
// modes stored in the registry.
func parseStartMode(s string) (policy.ServiceStartMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "boot":
		return policy.StartModeBoot, nil
	case "system":
		return policy.StartModeSystem, nil
	case "auto", "automatic":
		return policy.StartModeAutomatic, nil
	case "manual":
		return policy.StartModeManual, nil
	case "disabled":
		return policy.StartModeDisabled, nil
	default:
		return 0, fmt.Errorf("unknown service start mode %q", s)
	}
}
