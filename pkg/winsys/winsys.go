package winsys

import (
	"context"
	"time"

	"palisade-hq/palisade/pkg/policy"
)

// RegistryValue is one registry value in canonical string form: decimal for
// dword and qword, newline-joined entries for multi_string, lowercase hex
// pairs for binary.
type RegistryValue struct {
	Type policy.RegistryValueType
	Data string
}

// RegistryStore reads and writes registry values. Paths include the hive,
// e.g. `HKLM\SYSTEM\CurrentControlSet\Control\Lsa`.
type RegistryStore interface {
	// GetValue reads one value. exists is false when the key or value is
	// absent; that is not an error.
	GetValue(ctx context.Context, path, name string) (value RegistryValue, exists bool, err error)

	// SetValue writes one value, creating the key if needed.
	SetValue(ctx context.Context, path, name string, value RegistryValue) error

	// DeleteValue removes one value. Deleting an absent value returns
	// ErrNotFound.
	DeleteValue(ctx context.Context, path, name string) error

	// DeleteKey removes a key and its subtree. Deleting an absent key
	// returns ErrNotFound.
	DeleteKey(ctx context.Context, path string) error

	// KeyExists reports whether a key is present.
	KeyExists(ctx context.Context, path string) (bool, error)
}

// ServiceStatus is the observed state of one service.
type ServiceStatus struct {
	// StartMode is the configured start mode.
	StartMode policy.ServiceStartMode

	// State is the lowercase run state, e.g. "running" or "stopped".
	State string
}

// ServiceRunning is the State value for a running service.
const ServiceRunning = "running"

// ServiceManager queries and controls services.
type ServiceManager interface {
	// Query returns the service's start mode and run state, or ErrNotFound.
	Query(ctx context.Context, name string) (ServiceStatus, error)

	// SetStartMode sets the configured start mode. The write goes through
	// the service's registry key so boot and system modes are reachable.
	SetStartMode(ctx context.Context, name string, mode policy.ServiceStartMode) error

	// Stop stops a running service and waits up to timeout for it to
	// reach the stopped state. A service that does not stop in time
	// returns ErrStopTimeout; the start mode change stands either way.
	Stop(ctx context.Context, name string, timeout time.Duration) error

	// Start starts a stopped service.
	Start(ctx context.Context, name string) error
}

// TaskInfo is the observed state of one scheduled task.
type TaskInfo struct {
	Enabled bool
}

// TaskStore queries and controls scheduled tasks. Task paths are full
// folder paths, e.g. `\Microsoft\Windows\Maintenance\WinSAT`.
type TaskStore interface {
	// Query returns the task's state, or ErrNotFound.
	Query(ctx context.Context, taskPath string) (TaskInfo, error)

	// Export returns the task's definition XML.
	Export(ctx context.Context, taskPath string) (string, error)

	// SetEnabled enables or disables the task.
	SetEnabled(ctx context.Context, taskPath string, enabled bool) error

	// Delete unregisters the task.
	Delete(ctx context.Context, taskPath string) error

	// Register creates or replaces the task from definition XML.
	Register(ctx context.Context, taskPath, xml string) error
}

// FirewallRule describes one firewall rule.
type FirewallRule struct {
	// Name is the display name.
	Name string

	// Enabled reports whether the rule is active.
	Enabled bool

	// Profiles limits which firewall profiles the rule applies to.
	// Empty means all.
	Profiles []string

	// RemoteAddresses is the rule's remote address specification: single
	// IPs, CIDR blocks, or dashed ranges.
	RemoteAddresses []string
}

// FirewallStore manages outbound block rules.
type FirewallStore interface {
	// RuleExists reports whether a rule with the display name exists.
	RuleExists(ctx context.Context, name string) (bool, error)

	// CreateRule creates an enabled outbound block rule.
	CreateRule(ctx context.Context, rule FirewallRule) error

	// DeleteRule removes a rule by display name. Deleting an absent rule
	// returns ErrNotFound.
	DeleteRule(ctx context.Context, name string) error

	// BlockingRules returns every enabled outbound block rule with its
	// profile restriction and remote address specification.
	BlockingRules(ctx context.Context) ([]FirewallRule, error)

	// ActiveProfiles returns the firewall profiles (domain, private,
	// public) of the currently connected networks. An empty result means
	// no network is categorized; profile-scoped rules are not effective
	// then.
	ActiveProfiles(ctx context.Context) ([]string, error)
}

// CheckpointCreator creates OS restore checkpoints before mutating batches.
type CheckpointCreator interface {
	// Create makes a restore checkpoint and returns its identifier.
	Create(ctx context.Context, description string) (string, error)
}

// SignatureVerifier checks code-signing trust on script files.
type SignatureVerifier interface {
	// Verify returns nil for a trusted signature and ErrUntrustedSignature
	// (wrapped with detail) otherwise.
	Verify(ctx context.Context, path string) error
}

// HostFacts describes the host for applicability checks and ledger
// baselines.
type HostFacts struct {
	// OSBuild is the OS build number.
	OSBuild int

	// OSEdition is the OS edition string.
	OSEdition string

	// DomainJoined reports directory domain membership.
	DomainJoined bool

	// ManagementEnrolled reports device management enrollment.
	ManagementEnrolled bool
}

// Prober collects host facts.
type Prober interface {
	Probe(ctx context.Context) (HostFacts, error)
}
