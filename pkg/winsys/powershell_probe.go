package winsys

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// probeScript collects host facts on one line as
// "build|edition|domainJoined|managementEnrolled".
const probeScript = `$os = Get-CimInstance Win32_OperatingSystem -ErrorAction Stop
$cs = Get-CimInstance Win32_ComputerSystem -ErrorAction Stop
$enrolled = $false
$enrollKey = 'Registry::HKEY_LOCAL_MACHINE\SOFTWARE\Microsoft\Enrollments'
if (Test-Path -LiteralPath $enrollKey) {
    $count = (Get-ChildItem -LiteralPath $enrollKey -ErrorAction SilentlyContinue | Measure-Object).Count
    if ($count -gt 0) { $enrolled = $true }
}
"$($os.BuildNumber)|$($os.Caption)|$($cs.PartOfDomain)|$enrolled"`

// ShellProber implements Prober over PowerShell CIM queries.
type ShellProber struct {
	shell *Shell
}

// NewShellProber creates a prober backed by the given shell.
func NewShellProber(shell *Shell) *ShellProber {
	return &ShellProber{shell: shell}
}

// Probe implements Prober.
func (p *ShellProber) Probe(ctx context.Context) (HostFacts, error) {
	out, err := p.shell.Run(ctx, probeScript)
	if err != nil {
		return HostFacts{}, err
	}
	return parseHostFacts(out)
}

func parseHostFacts(out string) (HostFacts, error) {
	fields := strings.Split(strings.TrimSpace(out), "|")
	if len(fields) != 4 {
		return HostFacts{}, fmt.Errorf("unexpected probe output %q", truncate(out, 120))
	}

	build, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return HostFacts{}, fmt.Errorf("bad build number %q: %w", fields[0], err)
	}

	return HostFacts{
		OSBuild:            build,
		OSEdition:          strings.TrimSpace(fields[1]),
		DomainJoined:       strings.EqualFold(strings.TrimSpace(fields[2]), "True"),
		ManagementEnrolled: strings.EqualFold(strings.TrimSpace(fields[3]), "True"),
	}, nil
}
