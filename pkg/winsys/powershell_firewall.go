package winsys

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ShellFirewall implements FirewallStore over PowerShell.
type ShellFirewall struct {
	shell *Shell
}

// NewShellFirewall creates a firewall store backed by the given shell.
func NewShellFirewall(shell *Shell) *ShellFirewall {
	return &ShellFirewall{shell: shell}
}

// RuleExists implements FirewallStore.
func (f *ShellFirewall) RuleExists(ctx context.Context, name string) (bool, error) {
	script := fmt.Sprintf(`Get-NetFirewallRule -DisplayName %s -ErrorAction Stop | Out-Null
'present'`, psQuote(name))

	_, err := f.shell.Run(ctx, script)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateRule implements FirewallStore. Rules are always created enabled,
// outbound and blocking.
func (f *ShellFirewall) CreateRule(ctx context.Context, rule FirewallRule) error {
	if rule.Name == "" {
		return fmt.Errorf("firewall rule has no name")
	}
	if len(rule.RemoteAddresses) == 0 {
		return fmt.Errorf("firewall rule %q has no remote addresses", rule.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `New-NetFirewallRule -DisplayName %s -Direction Outbound -Action Block -Enabled True`,
		psQuote(rule.Name))
	if len(rule.Profiles) > 0 {
		b.WriteString(" -Profile " + psList(rule.Profiles))
	}
	b.WriteString(" -RemoteAddress " + psList(rule.RemoteAddresses))
	b.WriteString(" -ErrorAction Stop | Out-Null")

	_, err := f.shell.Run(ctx, b.String())
	return err
}

// DeleteRule implements FirewallStore.
func (f *ShellFirewall) DeleteRule(ctx context.Context, name string) error {
	script := fmt.Sprintf(`Remove-NetFirewallRule -DisplayName %s -ErrorAction Stop`, psQuote(name))
	_, err := f.shell.Run(ctx, script)
	return err
}

// blockingRulesScript lists enabled outbound block rules, one per line as
// "displayName<TAB>profiles<TAB>addr,addr". The profile field is the rule's
// Profile flags string ("Any", "Domain, Private", ...). Rules without an
// address filter still get a line with an empty address field.
const blockingRulesScript = `Get-NetFirewallRule -Direction Outbound -Action Block -Enabled True -ErrorAction SilentlyContinue | ForEach-Object {
    $addr = ($_ | Get-NetFirewallAddressFilter).RemoteAddress -join ','
    "$($_.DisplayName)` + "`t" + `$($_.Profile)` + "`t" + `$addr"
}`

// BlockingRules implements FirewallStore.
func (f *ShellFirewall) BlockingRules(ctx context.Context) ([]FirewallRule, error) {
	out, err := f.shell.Run(ctx, blockingRulesScript)
	if err != nil {
		return nil, err
	}
	return parseBlockingRules(out), nil
}

func parseBlockingRules(out string) []FirewallRule {
	var rules []FirewallRule
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		rule := FirewallRule{
			Name:     fields[0],
			Enabled:  true,
			Profiles: parseProfileFlags(fields[1]),
		}
		for _, addr := range strings.Split(fields[2], ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				rule.RemoteAddresses = append(rule.RemoteAddresses, addr)
			}
		}
		rules = append(rules, rule)
	}
	return rules
}

// parseProfileFlags turns a NetSecurity Profile flags string into canonical
// lowercase profile names. "Any", "All" and an empty field mean no profile
// restriction and come back nil.
func parseProfileFlags(field string) []string {
	var profiles []string
	for _, part := range strings.Split(field, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "", "any", "all", "notapplicable":
			return nil
		case "domain":
			profiles = append(profiles, "domain")
		case "private":
			profiles = append(profiles, "private")
		case "public":
			profiles = append(profiles, "public")
		}
	}
	return profiles
}

// activeProfilesScript lists the network category of every connected
// network, one per line.
const activeProfilesScript = `(Get-NetConnectionProfile -ErrorAction SilentlyContinue).NetworkCategory | ForEach-Object { "$_" }`

// ActiveProfiles implements FirewallStore. NetworkCategory values map onto
// firewall profile names; DomainAuthenticated becomes domain.
func (f *ShellFirewall) ActiveProfiles(ctx context.Context) ([]string, error) {
	out, err := f.shell.Run(ctx, activeProfilesScript)
	if err != nil {
		return nil, err
	}
	return parseActiveProfiles(out), nil
}

func parseActiveProfiles(out string) []string {
	seen := make(map[string]bool)
	var active []string
	for _, line := range strings.Split(out, "\n") {
		var name string
		switch strings.ToLower(strings.TrimSpace(strings.TrimRight(line, "\r"))) {
		case "domainauthenticated":
			name = "domain"
		case "private":
			name = "private"
		case "public":
			name = "public"
		default:
			continue
		}
		if !seen[name] {
			seen[name] = true
			active = append(active, name)
		}
	}
	return active
}

// psList renders values as a PowerShell array literal.
func psList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = psQuote(v)
	}
	return "@(" + strings.Join(quoted, ", ") + ")"
}

