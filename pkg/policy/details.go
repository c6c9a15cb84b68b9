package policy

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Details is the mechanism-specific payload of a policy definition. The set
// of implementations is closed: one variant per mechanism tag, decoded once
// at load time.
type Details interface {
	// Mechanism returns the mechanism tag this payload belongs to.
	Mechanism() Mechanism

	// Validate checks the payload's internal consistency.
	Validate() error
}

// decodeDetails decodes the raw details node into the typed variant for the
// given mechanism.
func decodeDetails(mech Mechanism, node *yaml.Node) (Details, error) {
	if node == nil || node.IsZero() {
		return nil, fmt.Errorf("details payload is missing")
	}

	var details Details
	switch mech {
	case MechanismRegistry:
		details = &RegistryDetails{}
	case MechanismService:
		details = &ServiceDetails{}
	case MechanismScheduledTask:
		details = &TaskDetails{}
	case MechanismFirewall:
		details = &FirewallDetails{}
	case MechanismScript:
		details = &ScriptDetails{}
	default:
		return nil, fmt.Errorf("no details variant for mechanism %q", mech)
	}

	if err := node.Decode(details); err != nil {
		return nil, fmt.Errorf("decoding %s details: %w", mech, err)
	}

	return details, nil
}

// RegistryAction selects the registry operation a policy performs.
type RegistryAction string

const (
	RegistryActionSet         RegistryAction = "set"
	RegistryActionDeleteValue RegistryAction = "delete_value"
	RegistryActionDeleteKey   RegistryAction = "delete_key"
)

// RegistryValueType enumerates the registry value types the engine preserves
// across apply and revert.
type RegistryValueType string

const (
	RegDWord        RegistryValueType = "dword"
	RegQWord        RegistryValueType = "qword"
	RegString       RegistryValueType = "string"
	RegExpandString RegistryValueType = "expand_string"
	RegMultiString  RegistryValueType = "multi_string"
	RegBinary       RegistryValueType = "binary"
)

// ParseRegistryValueType validates a registry value type string.
func ParseRegistryValueType(s string) (RegistryValueType, error) {
	switch RegistryValueType(s) {
	case RegDWord, RegQWord, RegString, RegExpandString, RegMultiString, RegBinary:
		return RegistryValueType(s), nil
	default:
		return "", fmt.Errorf("unknown registry value type %q", s)
	}
}

// registryHives maps accepted hive prefixes to their canonical long form.
var registryHives = map[string]string{
	"HKLM":                "HKEY_LOCAL_MACHINE",
	"HKCU":                "HKEY_CURRENT_USER",
	"HKCR":                "HKEY_CLASSES_ROOT",
	"HKU":                 "HKEY_USERS",
	"HKEY_LOCAL_MACHINE":  "HKEY_LOCAL_MACHINE",
	"HKEY_CURRENT_USER":   "HKEY_CURRENT_USER",
	"HKEY_CLASSES_ROOT":   "HKEY_CLASSES_ROOT",
	"HKEY_USERS":          "HKEY_USERS",
}

// SplitRegistryPath splits a registry path into its canonical hive name and
// subkey. The path uses backslash separators, e.g.
// `HKLM\SYSTEM\CurrentControlSet\Services\LanmanServer`.
func SplitRegistryPath(path string) (hive, subkey string, err error) {
	hivePart, rest, found := strings.Cut(path, `\`)
	canonical, ok := registryHives[strings.ToUpper(hivePart)]
	if !ok {
		return "", "", fmt.Errorf("unknown registry hive in path %q", path)
	}
	if !found || rest == "" {
		return "", "", fmt.Errorf("registry path %q has no subkey", path)
	}
	return canonical, rest, nil
}

// RegistryDetails is the payload for registry policies.
type RegistryDetails struct {
	// Path is the full key path including the hive, e.g.
	// `HKLM\SYSTEM\CurrentControlSet\Control\Lsa`.
	Path string `yaml:"path" json:"path"`

	// ValueName is the value to operate on. Unused for delete_key.
	ValueName string `yaml:"value_name,omitempty" json:"value_name,omitempty"`

	// Action is the registry operation. Defaults to set.
	Action RegistryAction `yaml:"action,omitempty" json:"action,omitempty"`

	// ValueType is the target value type. Required for set.
	ValueType RegistryValueType `yaml:"value_type,omitempty" json:"value_type,omitempty"`

	// ValueData is the target value in canonical string form: decimal for
	// dword/qword, lowercase hex pairs for binary, newline-separated entries
	// for multi_string.
	ValueData string `yaml:"value_data,omitempty" json:"value_data,omitempty"`
}

// Mechanism implements Details.
func (d *RegistryDetails) Mechanism() Mechanism { return MechanismRegistry }

// Validate implements Details.
func (d *RegistryDetails) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("registry path cannot be empty")
	}
	if _, _, err := SplitRegistryPath(d.Path); err != nil {
		return err
	}

	action := d.Action
	if action == "" {
		action = RegistryActionSet
	}

	switch action {
	case RegistryActionSet:
		if d.ValueName == "" {
			return fmt.Errorf("set action requires value_name")
		}
		if _, err := ParseRegistryValueType(string(d.ValueType)); err != nil {
			return fmt.Errorf("set action: %w", err)
		}
	case RegistryActionDeleteValue:
		if d.ValueName == "" {
			return fmt.Errorf("delete_value action requires value_name")
		}
	case RegistryActionDeleteKey:
		// No value name involved.
	default:
		return fmt.Errorf("unknown registry action %q", d.Action)
	}

	return nil
}

// EffectiveAction returns the configured action, defaulting to set.
func (d *RegistryDetails) EffectiveAction() RegistryAction {
	if d.Action == "" {
		return RegistryActionSet
	}
	return d.Action
}

// ServiceStartMode is the integer start mode stored in the service's
// registry key (the Start value): 0 boot, 1 system, 2 automatic, 3 manual,
// 4 disabled.
type ServiceStartMode int

const (
	StartModeBoot      ServiceStartMode = 0
	StartModeSystem    ServiceStartMode = 1
	StartModeAutomatic ServiceStartMode = 2
	StartModeManual    ServiceStartMode = 3
	StartModeDisabled  ServiceStartMode = 4
)

// Valid reports whether the start mode is within the 0..4 range.
func (m ServiceStartMode) Valid() bool {
	return m >= StartModeBoot && m <= StartModeDisabled
}

// String returns the conventional name for the start mode.
func (m ServiceStartMode) String() string {
	switch m {
	case StartModeBoot:
		return "boot"
	case StartModeSystem:
		return "system"
	case StartModeAutomatic:
		return "automatic"
	case StartModeManual:
		return "manual"
	case StartModeDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ServiceDetails is the payload for service policies.
type ServiceDetails struct {
	// ServiceName is the short service name, e.g. "LanmanServer".
	ServiceName string `yaml:"service_name" json:"service_name"`

	// StartMode is the target start mode (0..4).
	StartMode ServiceStartMode `yaml:"start_mode" json:"start_mode"`

	// StopRunning stops the running instance after changing the start mode.
	StopRunning bool `yaml:"stop_running,omitempty" json:"stop_running,omitempty"`

	// StopTimeoutSeconds bounds the wait for the service to stop.
	// Defaults to 30.
	StopTimeoutSeconds int `yaml:"stop_timeout_seconds,omitempty" json:"stop_timeout_seconds,omitempty"`
}

// Mechanism implements Details.
func (d *ServiceDetails) Mechanism() Mechanism { return MechanismService }

// Validate implements Details.
func (d *ServiceDetails) Validate() error {
	if d.ServiceName == "" {
		return fmt.Errorf("service_name cannot be empty")
	}
	if !d.StartMode.Valid() {
		return fmt.Errorf("start_mode %d outside valid range 0..4", int(d.StartMode))
	}
	if d.StopTimeoutSeconds < 0 {
		return fmt.Errorf("stop_timeout_seconds cannot be negative")
	}
	return nil
}

// TaskAction selects the scheduled task operation a policy performs.
type TaskAction string

const (
	TaskActionDisable        TaskAction = "disable"
	TaskActionEnable         TaskAction = "enable"
	TaskActionDelete         TaskAction = "delete"
	TaskActionModifyTriggers TaskAction = "modify_triggers"
	TaskActionExportOnly     TaskAction = "export_only"
)

// TaskDetails is the payload for scheduled task policies.
type TaskDetails struct {
	// TaskPath is the full task path including folders, e.g.
	// `\Microsoft\Windows\Maintenance\WinSAT`.
	TaskPath string `yaml:"task_path" json:"task_path"`

	// Action is the task operation.
	Action TaskAction `yaml:"action" json:"action"`

	// TriggersXML is the replacement <Triggers> element for modify_triggers,
	// including the enclosing Triggers tags.
	TriggersXML string `yaml:"triggers_xml,omitempty" json:"triggers_xml,omitempty"`
}

// Mechanism implements Details.
func (d *TaskDetails) Mechanism() Mechanism { return MechanismScheduledTask }

// Validate implements Details.
func (d *TaskDetails) Validate() error {
	if d.TaskPath == "" {
		return fmt.Errorf("task_path cannot be empty")
	}
	if !strings.HasPrefix(d.TaskPath, `\`) {
		return fmt.Errorf("task_path %q must start with a backslash", d.TaskPath)
	}

	switch d.Action {
	case TaskActionDisable, TaskActionEnable, TaskActionDelete, TaskActionExportOnly:
		// No extra fields.
	case TaskActionModifyTriggers:
		if d.TriggersXML == "" {
			return fmt.Errorf("modify_triggers action requires triggers_xml")
		}
		if !strings.Contains(d.TriggersXML, "<Triggers") {
			return fmt.Errorf("triggers_xml must contain a Triggers element")
		}
	default:
		return fmt.Errorf("unknown task action %q", d.Action)
	}

	return nil
}

// FirewallDetails is the payload for firewall policies. Palisade firewall
// policies create outbound block rules for a set of remote targets.
type FirewallDetails struct {
	// RuleName is the base display name for created rules. Each remote gets
	// its own rule named "{RuleName} ({remote})".
	RuleName string `yaml:"rule_name" json:"rule_name"`

	// Remotes are the targets to block: single IPs, CIDR blocks, dashed
	// address ranges, or hostnames. Hostnames are resolved at apply time.
	Remotes []string `yaml:"remotes" json:"remotes"`

	// Profiles restricts rule creation to the given firewall profiles
	// (domain, private, public). Empty means all profiles.
	Profiles []string `yaml:"profiles,omitempty" json:"profiles,omitempty"`
}

// Mechanism implements Details.
func (d *FirewallDetails) Mechanism() Mechanism { return MechanismFirewall }

// Validate implements Details.
func (d *FirewallDetails) Validate() error {
	if d.RuleName == "" {
		return fmt.Errorf("rule_name cannot be empty")
	}
	if len(d.Remotes) == 0 {
		return fmt.Errorf("remotes cannot be empty")
	}
	for i, r := range d.Remotes {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("remotes[%d] is blank", i)
		}
	}
	for _, p := range d.Profiles {
		switch strings.ToLower(p) {
		case "domain", "private", "public":
		default:
			return fmt.Errorf("unknown firewall profile %q", p)
		}
	}
	return nil
}

// RuleNameFor returns the deterministic display name for one remote's rule.
func (d *FirewallDetails) RuleNameFor(remote string) string {
	return fmt.Sprintf("%s (%s)", d.RuleName, remote)
}

// paramNamePattern is the allow-list for script parameter names. Anything
// outside it is rejected at load time to keep parameter names from carrying
// shell or interpreter syntax.
var paramNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ScriptDetails is the payload for external script policies.
type ScriptDetails struct {
	// ScriptPath is the script location relative to the configured script
	// root. Paths that escape the root are rejected at execution time.
	ScriptPath string `yaml:"script_path" json:"script_path"`

	// Parameters are named arguments passed to the script. Names are
	// restricted to alphanumerics and underscore.
	Parameters map[string]string `yaml:"parameters,omitempty" json:"parameters,omitempty"`

	// TimeoutSeconds is the hard wall-clock limit for one invocation.
	// Zero uses the engine's configured default.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`

	// SnapshotScript optionally captures previous-state text before the
	// main script runs. Same path rules as ScriptPath.
	SnapshotScript string `yaml:"snapshot_script,omitempty" json:"snapshot_script,omitempty"`

	// RevertScript undoes the policy. Without it the policy is not
	// revertible and must declare reversible: false.
	RevertScript string `yaml:"revert_script,omitempty" json:"revert_script,omitempty"`

	// RevertParameters are named arguments for the revert script.
	RevertParameters map[string]string `yaml:"revert_parameters,omitempty" json:"revert_parameters,omitempty"`
}

// Mechanism implements Details.
func (d *ScriptDetails) Mechanism() Mechanism { return MechanismScript }

// Validate implements Details.
func (d *ScriptDetails) Validate() error {
	if d.ScriptPath == "" {
		return fmt.Errorf("script_path cannot be empty")
	}
	if d.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds cannot be negative")
	}
	if err := validateParamNames(d.Parameters); err != nil {
		return err
	}
	if err := validateParamNames(d.RevertParameters); err != nil {
		return err
	}
	return nil
}

func validateParamNames(params map[string]string) error {
	for name := range params {
		if !paramNamePattern.MatchString(name) {
			return fmt.Errorf("parameter name %q outside [A-Za-z0-9_] allow-list", name)
		}
	}
	return nil
}
