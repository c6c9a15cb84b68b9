package policy

import (
	"testing"
)

func TestSplitRegistryPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantHive string
		wantKey  string
		wantErr  bool
	}{
		{
			name:     "short hive",
			path:     `HKLM\SYSTEM\CurrentControlSet\Control\Lsa`,
			wantHive: "HKEY_LOCAL_MACHINE",
			wantKey:  `SYSTEM\CurrentControlSet\Control\Lsa`,
		},
		{
			name:     "long hive",
			path:     `HKEY_CURRENT_USER\Software\Palisade`,
			wantHive: "HKEY_CURRENT_USER",
			wantKey:  `Software\Palisade`,
		},
		{
			name:     "lowercase hive",
			path:     `hklm\Software\Test`,
			wantHive: "HKEY_LOCAL_MACHINE",
			wantKey:  `Software\Test`,
		},
		{
			name:    "unknown hive",
			path:    `HKPD\Counter`,
			wantErr: true,
		},
		{
			name:    "hive only",
			path:    `HKLM`,
			wantErr: true,
		},
		{
			name:    "trailing separator only",
			path:    `HKLM\`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hive, key, err := SplitRegistryPath(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SplitRegistryPath(%q) error = nil, want error", tt.path)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitRegistryPath(%q) failed: %v", tt.path, err)
			}
			if hive != tt.wantHive {
				t.Errorf("hive = %q, want %q", hive, tt.wantHive)
			}
			if key != tt.wantKey {
				t.Errorf("subkey = %q, want %q", key, tt.wantKey)
			}
		})
	}
}

func TestRegistryDetails_Validate(t *testing.T) {
	tests := []struct {
		name    string
		details RegistryDetails
		wantErr bool
	}{
		{
			name: "valid set",
			details: RegistryDetails{
				Path:      `HKLM\SOFTWARE\Test`,
				ValueName: "Enabled",
				ValueType: RegDWord,
				ValueData: "1",
			},
		},
		{
			name: "set without value name",
			details: RegistryDetails{
				Path:      `HKLM\SOFTWARE\Test`,
				ValueType: RegDWord,
			},
			wantErr: true,
		},
		{
			name: "set without value type",
			details: RegistryDetails{
				Path:      `HKLM\SOFTWARE\Test`,
				ValueName: "Enabled",
			},
			wantErr: true,
		},
		{
			name: "delete_value",
			details: RegistryDetails{
				Path:      `HKLM\SOFTWARE\Test`,
				ValueName: "Enabled",
				Action:    RegistryActionDeleteValue,
			},
		},
		{
			name: "delete_value without value name",
			details: RegistryDetails{
				Path:   `HKLM\SOFTWARE\Test`,
				Action: RegistryActionDeleteValue,
			},
			wantErr: true,
		},
		{
			name: "delete_key without value name",
			details: RegistryDetails{
				Path:   `HKLM\SOFTWARE\Test\Subkey`,
				Action: RegistryActionDeleteKey,
			},
		},
		{
			name: "unknown action",
			details: RegistryDetails{
				Path:      `HKLM\SOFTWARE\Test`,
				ValueName: "Enabled",
				Action:    "rename",
			},
			wantErr: true,
		},
		{
			name:    "empty path",
			details: RegistryDetails{ValueName: "Enabled", ValueType: RegDWord},
			wantErr: true,
		},
		{
			name: "bad hive",
			details: RegistryDetails{
				Path:      `HKXX\SOFTWARE\Test`,
				ValueName: "Enabled",
				ValueType: RegDWord,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.details.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServiceDetails_Validate(t *testing.T) {
	valid := ServiceDetails{ServiceName: "Spooler", StartMode: StartModeDisabled}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}

	tests := []struct {
		name    string
		details ServiceDetails
	}{
		{"empty name", ServiceDetails{StartMode: StartModeManual}},
		{"start mode above range", ServiceDetails{ServiceName: "S", StartMode: 5}},
		{"start mode below range", ServiceDetails{ServiceName: "S", StartMode: -1}},
		{"negative stop timeout", ServiceDetails{ServiceName: "S", StartMode: StartModeManual, StopTimeoutSeconds: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.details.Validate(); err == nil {
				t.Errorf("Validate() error = nil, want error for %s", tt.name)
			}
		})
	}
}

func TestServiceStartMode_String(t *testing.T) {
	tests := []struct {
		mode ServiceStartMode
		want string
	}{
		{StartModeBoot, "boot"},
		{StartModeSystem, "system"},
		{StartModeAutomatic, "automatic"},
		{StartModeManual, "manual"},
		{StartModeDisabled, "disabled"},
		{9, "unknown(9)"},
	}

	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("ServiceStartMode(%d).String() = %q, want %q", int(tt.mode), got, tt.want)
		}
	}
}

func TestTaskDetails_Validate(t *testing.T) {
	tests := []struct {
		name    string
		details TaskDetails
		wantErr bool
	}{
		{
			name:    "valid disable",
			details: TaskDetails{TaskPath: `\Microsoft\Windows\Maintenance\WinSAT`, Action: TaskActionDisable},
		},
		{
			name:    "valid export only",
			details: TaskDetails{TaskPath: `\Vendor\Telemetry`, Action: TaskActionExportOnly},
		},
		{
			name:    "missing leading backslash",
			details: TaskDetails{TaskPath: `Microsoft\Windows\WinSAT`, Action: TaskActionDisable},
			wantErr: true,
		},
		{
			name:    "modify_triggers without xml",
			details: TaskDetails{TaskPath: `\Vendor\Updater`, Action: TaskActionModifyTriggers},
			wantErr: true,
		},
		{
			name: "modify_triggers with xml",
			details: TaskDetails{
				TaskPath:    `\Vendor\Updater`,
				Action:      TaskActionModifyTriggers,
				TriggersXML: "<Triggers><CalendarTrigger/></Triggers>",
			},
		},
		{
			name:    "unknown action",
			details: TaskDetails{TaskPath: `\Vendor\Updater`, Action: "pause"},
			wantErr: true,
		},
		{
			name:    "empty path",
			details: TaskDetails{Action: TaskActionDisable},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.details.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFirewallDetails_Validate(t *testing.T) {
	valid := FirewallDetails{
		RuleName: "Block Telemetry",
		Remotes:  []string{"203.0.113.10", "198.51.100.0/24", "telemetry.example.com"},
		Profiles: []string{"domain", "Private"},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}

	tests := []struct {
		name    string
		details FirewallDetails
	}{
		{"empty rule name", FirewallDetails{Remotes: []string{"203.0.113.10"}}},
		{"no remotes", FirewallDetails{RuleName: "Block"}},
		{"blank remote", FirewallDetails{RuleName: "Block", Remotes: []string{"  "}}},
		{"unknown profile", FirewallDetails{RuleName: "Block", Remotes: []string{"203.0.113.10"}, Profiles: []string{"dmz"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.details.Validate(); err == nil {
				t.Errorf("Validate() error = nil, want error for %s", tt.name)
			}
		})
	}
}

func TestFirewallDetails_RuleNameFor(t *testing.T) {
	details := FirewallDetails{RuleName: "Block Telemetry"}

	got := details.RuleNameFor("203.0.113.10")
	want := "Block Telemetry (203.0.113.10)"
	if got != want {
		t.Errorf("RuleNameFor() = %q, want %q", got, want)
	}
}

func TestScriptDetails_Validate(t *testing.T) {
	valid := ScriptDetails{
		ScriptPath:     "harden.ps1",
		Parameters:     map[string]string{"Level": "strict", "Retry_Count": "3"},
		TimeoutSeconds: 120,
		RevertScript:   "unharden.ps1",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}

	tests := []struct {
		name    string
		details ScriptDetails
	}{
		{"empty path", ScriptDetails{}},
		{"negative timeout", ScriptDetails{ScriptPath: "s.ps1", TimeoutSeconds: -5}},
		{"param name with dash", ScriptDetails{ScriptPath: "s.ps1", Parameters: map[string]string{"bad-name": "x"}}},
		{"param name with semicolon", ScriptDetails{ScriptPath: "s.ps1", Parameters: map[string]string{"a;b": "x"}}},
		{"revert param with space", ScriptDetails{ScriptPath: "s.ps1", RevertParameters: map[string]string{"a b": "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.details.Validate(); err == nil {
				t.Errorf("Validate() error = nil, want error for %s", tt.name)
			}
		})
	}
}
