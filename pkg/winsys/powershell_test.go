package winsys

import (
	"errors"
	"strings"
	"testing"

	"palisade-hq/palisade/pkg/policy"
)

func TestPsQuote(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Spooler", "'Spooler'"},
		{"empty", "", "''"},
		{"embedded quote", "O'Brien", "'O''Brien'"},
		{"injection attempt", "'; Remove-Item C:\\ '", "'''; Remove-Item C:\\ '''"},
		{"dollar stays literal", "$env:TEMP", "'$env:TEMP'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := psQuote(tt.input); got != tt.want {
				t.Errorf("psQuote(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitTaskPath(t *testing.T) {
	tests := []struct {
		name       string
		taskPath   string
		wantFolder string
		wantName   string
	}{
		{"nested", `\Microsoft\Windows\Maintenance\WinSAT`, `\Microsoft\Windows\Maintenance\`, "WinSAT"},
		{"root task", `\MyTask`, `\`, "MyTask"},
		{"no backslash", "MyTask", `\`, "MyTask"},
		{"single level", `\Vendor\Updater`, `\Vendor\`, "Updater"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			folder, name := splitTaskPath(tt.taskPath)
			if folder != tt.wantFolder || name != tt.wantName {
				t.Errorf("splitTaskPath(%q) = (%q, %q), want (%q, %q)",
					tt.taskPath, folder, name, tt.wantFolder, tt.wantName)
			}
		})
	}
}

func TestRegProviderPath(t *testing.T) {
	got, err := regProviderPath(`HKLM\SOFTWARE\Policies\Microsoft\Windows NT\DNSClient`)
	if err != nil {
		t.Fatalf("regProviderPath() failed: %v", err)
	}
	want := `Registry::HKEY_LOCAL_MACHINE\SOFTWARE\Policies\Microsoft\Windows NT\DNSClient`
	if got != want {
		t.Errorf("regProviderPath() = %q, want %q", got, want)
	}

	if _, err := regProviderPath("NOTAHIVE\\Key"); err == nil {
		t.Error("expected error for unknown hive")
	}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"cmdlet", "Get-Service -Name 'Spooler'", "Get-Service"},
		{"multiline", "Stop-Service -Name 'x'\n$svc.WaitForStatus(...)", "Stop-Service"},
		{"variable first", "$sig = Get-AuthenticodeSignature", "script"},
		{"bare", "hostname", "hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commandName(tt.script); got != tt.want {
				t.Errorf("commandName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyStderr(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{"object not found", "Get-Item : Cannot find path 'HKLM:\\x' because it does not exist.\n+ CategoryInfo : ObjectNotFound", ErrNotFound},
		{"service not found", "Get-Service : NoServiceFoundForGivenName,Microsoft.PowerShell.Commands.GetServiceCommand", ErrNotFound},
		{"access denied", "Set-ItemProperty : Requested registry access is not allowed.", ErrAccessDenied},
		{"unauthorized", "System.UnauthorizedAccessException: Access to the path is denied", ErrAccessDenied},
		{"timeout", "Exception calling \"WaitForStatus\" with \"2\" argument(s): \"Time out has expired\" System.ServiceProcess.TimeoutException", ErrTimeout},
		{"unclassified", "Something unexpected happened", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStderr(tt.stderr); got != tt.want {
				t.Errorf("classifyStderr() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	cmdErr := &CommandError{
		Command:  "Get-Service",
		Stderr:   "NoServiceFoundForGivenName",
		ExitCode: 1,
		Cause:    ErrNotFound,
	}

	if !errors.Is(cmdErr, ErrNotFound) {
		t.Error("errors.Is(cmdErr, ErrNotFound) = false, want true")
	}
	if errors.Is(cmdErr, ErrAccessDenied) {
		t.Error("errors.Is(cmdErr, ErrAccessDenied) = true, want false")
	}
	msg := cmdErr.Error()
	if !strings.Contains(msg, "Get-Service") || !strings.Contains(msg, "exit 1") {
		t.Errorf("Error() = %q, missing command or exit code", msg)
	}
}

func TestPsValueLiteral(t *testing.T) {
	tests := []struct {
		name        string
		value       RegistryValue
		wantLiteral string
		wantType    string
		wantErr     bool
	}{
		{"dword decimal", RegistryValue{Type: policy.RegDWord, Data: "1"}, "1", "DWord", false},
		{"dword hex", RegistryValue{Type: policy.RegDWord, Data: "0xff"}, "255", "DWord", false},
		{"dword overflow", RegistryValue{Type: policy.RegDWord, Data: "4294967296"}, "", "", true},
		{"dword junk", RegistryValue{Type: policy.RegDWord, Data: "enabled"}, "", "", true},
		{"qword", RegistryValue{Type: policy.RegQWord, Data: "4294967296"}, "4294967296", "QWord", false},
		{"string", RegistryValue{Type: policy.RegString, Data: "hello"}, "'hello'", "String", false},
		{"string quoted", RegistryValue{Type: policy.RegString, Data: "it's"}, "'it''s'", "String", false},
		{"expand string", RegistryValue{Type: policy.RegExpandString, Data: "%TEMP%\\x"}, "'%TEMP%\\x'", "ExpandString", false},
		{"multi string", RegistryValue{Type: policy.RegMultiString, Data: "a\nb"}, "@('a','b')", "MultiString", false},
		{"multi string empty", RegistryValue{Type: policy.RegMultiString, Data: ""}, "@()", "MultiString", false},
		{"binary", RegistryValue{Type: policy.RegBinary, Data: "0aff"}, "([byte[]]@(0x0a,0xff))", "Binary", false},
		{"binary empty", RegistryValue{Type: policy.RegBinary, Data: ""}, "([byte[]]@())", "Binary", false},
		{"binary odd length", RegistryValue{Type: policy.RegBinary, Data: "abc"}, "", "", true},
		{"binary non hex", RegistryValue{Type: policy.RegBinary, Data: "zz"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			literal, psType, err := psValueLiteral(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("psValueLiteral() failed: %v", err)
			}
			if literal != tt.wantLiteral || psType != tt.wantType {
				t.Errorf("psValueLiteral() = (%q, %q), want (%q, %q)",
					literal, psType, tt.wantLiteral, tt.wantType)
			}
		})
	}
}

func TestParseStartMode(t *testing.T) {
	tests := []struct {
		input   string
		want    policy.ServiceStartMode
		wantErr bool
	}{
		{"Auto", policy.StartModeAutomatic, false},
		{"Automatic", policy.StartModeAutomatic, false},
		{"Manual", policy.StartModeManual, false},
		{"Disabled", policy.StartModeDisabled, false},
		{"Boot", policy.StartModeBoot, false},
		{"System", policy.StartModeSystem, false},
		{" manual ", policy.StartModeManual, false},
		{"Delayed", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseStartMode(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseStartMode(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseStartMode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseHostFacts(t *testing.T) {
	facts, err := parseHostFacts("22631|Microsoft Windows 11 Enterprise|True|False\r\n")
	if err != nil {
		t.Fatalf("parseHostFacts() failed: %v", err)
	}
	if facts.OSBuild != 22631 {
		t.Errorf("OSBuild = %d, want 22631", facts.OSBuild)
	}
	if facts.OSEdition != "Microsoft Windows 11 Enterprise" {
		t.Errorf("OSEdition = %q", facts.OSEdition)
	}
	if !facts.DomainJoined {
		t.Error("DomainJoined = false, want true")
	}
	if facts.ManagementEnrolled {
		t.Error("ManagementEnrolled = true, want false")
	}

	if _, err := parseHostFacts("garbage"); err == nil {
		t.Error("expected error for malformed output")
	}
	if _, err := parseHostFacts("notanumber|Edition|False|False"); err == nil {
		t.Error("expected error for non-numeric build")
	}
}

func TestPsList(t *testing.T) {
	got := psList([]string{"203.0.113.7", "198.51.100.0/24"})
	want := "@('203.0.113.7', '198.51.100.0/24')"
	if got != want {
		t.Errorf("psList() = %q, want %q", got, want)
	}
}

func TestShellFirewall_ParseBlockingRules(t *testing.T) {
	out := "Block telemetry (vendor.example.com)\tAny\t203.0.113.7,203.0.113.8\r\n" +
		"Legacy block\tDomain, Private\t198.51.100.0/24\r\n" +
		"No addresses\tPublic\t\r\n"

	rules := parseBlockingRules(out)
	if len(rules) != 3 {
		t.Fatalf("got %d rules, want 3", len(rules))
	}
	if rules[0].Name != "Block telemetry (vendor.example.com)" {
		t.Errorf("rules[0].Name = %q", rules[0].Name)
	}
	if len(rules[0].RemoteAddresses) != 2 || rules[0].RemoteAddresses[1] != "203.0.113.8" {
		t.Errorf("rules[0].RemoteAddresses = %v", rules[0].RemoteAddresses)
	}
	if rules[0].Profiles != nil {
		t.Errorf("rules[0].Profiles = %v, want nil for Any", rules[0].Profiles)
	}
	if len(rules[1].Profiles) != 2 || rules[1].Profiles[0] != "domain" || rules[1].Profiles[1] != "private" {
		t.Errorf("rules[1].Profiles = %v", rules[1].Profiles)
	}
	if len(rules[2].RemoteAddresses) != 0 {
		t.Errorf("rules[2].RemoteAddresses = %v, want empty", rules[2].RemoteAddresses)
	}
	if len(rules[2].Profiles) != 1 || rules[2].Profiles[0] != "public" {
		t.Errorf("rules[2].Profiles = %v", rules[2].Profiles)
	}
}

func TestParseActiveProfiles(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want []string
	}{
		{"domain joined", "DomainAuthenticated\r\n", []string{"domain"}},
		{"multi homed", "Private\r\nPublic\r\nPrivate\r\n", []string{"private", "public"}},
		{"no networks", "\r\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseActiveProfiles(tt.out)
			if len(got) != len(tt.want) {
				t.Fatalf("parseActiveProfiles() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseActiveProfiles()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q, want unchanged", got)
	}
	long := strings.Repeat("x", 600)
	got := truncate(long, 500)
	if len(got) != 503 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate() len = %d, want 503 with ellipsis", len(got))
	}
}
