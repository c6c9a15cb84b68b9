package policy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mechanism identifies the category of OS primitive a policy mutates.
// Every mechanism must resolve to exactly one registered executor.
type Mechanism string

const (
	// MechanismRegistry mutates a registry value or key.
	MechanismRegistry Mechanism = "registry"

	// MechanismService mutates a service's startup type and run state.
	MechanismService Mechanism = "service"

	// MechanismScheduledTask mutates a scheduled task definition.
	MechanismScheduledTask Mechanism = "scheduled_task"

	// MechanismFirewall manages outbound block rules in the firewall store.
	MechanismFirewall Mechanism = "firewall"

	// MechanismScript delegates the mutation to an allow-listed external script.
	MechanismScript Mechanism = "script"
)

// Mechanisms returns all known mechanism tags in a stable order.
func Mechanisms() []Mechanism {
	return []Mechanism{
		MechanismRegistry,
		MechanismService,
		MechanismScheduledTask,
		MechanismFirewall,
		MechanismScript,
	}
}

// ParseMechanism validates a mechanism tag string.
func ParseMechanism(s string) (Mechanism, error) {
	switch Mechanism(s) {
	case MechanismRegistry, MechanismService, MechanismScheduledTask,
		MechanismFirewall, MechanismScript:
		return Mechanism(s), nil
	default:
		return "", fmt.Errorf("unknown mechanism %q", s)
	}
}

// RiskLevel classifies the operational risk of applying a policy.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel validates a risk level string.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return RiskLevel(s), nil
	default:
		return "", fmt.Errorf("unknown risk level %q", s)
	}
}

// DependencyKind describes the relationship between two policies.
type DependencyKind string

const (
	// DependencyRequired means the target policy must be applied as part of
	// the same batch. Required targets are pulled in transitively.
	DependencyRequired DependencyKind = "required"

	// DependencyPrerequisite means the target policy must be applied before
	// this one. Prerequisite targets are pulled in transitively.
	DependencyPrerequisite DependencyKind = "prerequisite"

	// DependencyRecommended means the target policy should normally be applied
	// alongside this one. Callers may opt out of recommended targets.
	DependencyRecommended DependencyKind = "recommended"

	// DependencyConflict means the target policy is known to interact badly
	// with this one. Conflicts never block resolution, they only produce
	// warnings.
	DependencyConflict DependencyKind = "conflict"
)

// ParseDependencyKind validates a dependency kind string.
func ParseDependencyKind(s string) (DependencyKind, error) {
	switch DependencyKind(s) {
	case DependencyRequired, DependencyPrerequisite, DependencyRecommended, DependencyConflict:
		return DependencyKind(s), nil
	default:
		return "", fmt.Errorf("unknown dependency kind %q", s)
	}
}

// Dependency is a declared edge from one policy to another.
type Dependency struct {
	// PolicyID is the id of the target policy.
	PolicyID string `yaml:"policy_id" json:"policy_id"`

	// Kind is the edge kind (required, prerequisite, recommended, conflict).
	Kind DependencyKind `yaml:"kind" json:"kind"`

	// Overridable marks the edge as advisory for tooling that lets an
	// operator suppress it. The resolver itself only honors opt-out for
	// recommended edges.
	Overridable bool `yaml:"overridable,omitempty" json:"overridable,omitempty"`
}

// HostInfo is the slice of environment state the applicability predicate
// evaluates against. It is supplied by an external probe.
type HostInfo struct {
	// OSBuild is the OS build number (e.g. 22631).
	OSBuild int

	// OSEdition is the full edition string reported by the OS.
	OSEdition string

	// DomainJoined reports whether the machine is joined to a domain.
	DomainJoined bool
}

// Applicability is a static compatibility predicate gating whether a policy
// may be attempted on a host. A nil Applicability matches every host.
type Applicability struct {
	// MinBuild is the minimum OS build number (inclusive). Zero means no
	// lower bound.
	MinBuild int `yaml:"min_build,omitempty" json:"min_build,omitempty"`

	// MaxBuild is the maximum OS build number (inclusive). Zero means no
	// upper bound.
	MaxBuild int `yaml:"max_build,omitempty" json:"max_build,omitempty"`

	// Editions restricts the policy to hosts whose edition string contains
	// one of these entries (case-insensitive). Empty means any edition.
	Editions []string `yaml:"editions,omitempty" json:"editions,omitempty"`

	// DomainJoined, when set, requires the host's domain-join state to match.
	DomainJoined *bool `yaml:"domain_joined,omitempty" json:"domain_joined,omitempty"`
}

// Matches evaluates the predicate against the supplied host information.
// Edition entries match as case-insensitive substrings of the host edition.
func (a *Applicability) Matches(host HostInfo) bool {
	if a == nil {
		return true
	}

	if a.MinBuild > 0 && host.OSBuild < a.MinBuild {
		return false
	}
	if a.MaxBuild > 0 && host.OSBuild > a.MaxBuild {
		return false
	}

	if len(a.Editions) > 0 {
		if !editionMatches(host.OSEdition, a.Editions) {
			return false
		}
	}

	if a.DomainJoined != nil && host.DomainJoined != *a.DomainJoined {
		return false
	}

	return true
}

// PolicyDefinition is the immutable typed representation of one configurable
// setting. Definitions are loaded once per process lifetime and treated as
// read-only afterwards.
type PolicyDefinition struct {
	// ID is the globally unique policy identifier.
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable policy name.
	Name string `yaml:"name" json:"name"`

	// Description explains what the policy changes and why.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Mechanism selects the executor responsible for this policy.
	Mechanism Mechanism `yaml:"mechanism" json:"mechanism"`

	// Risk classifies the operational risk of applying the policy.
	Risk RiskLevel `yaml:"risk" json:"risk"`

	// Reversible reports whether the policy can be reverted from its
	// captured previous state. Defaults to true.
	Reversible bool `yaml:"reversible" json:"reversible"`

	// Applicability gates whether the policy may be attempted on a host.
	// Nil means applicable everywhere.
	Applicability *Applicability `yaml:"applicability,omitempty" json:"applicability,omitempty"`

	// Dependencies are the declared edges to other policies.
	Dependencies []Dependency `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	// Details is the mechanism-specific payload, decoded exactly once at
	// load time into the variant matching Mechanism.
	Details Details `yaml:"-" json:"-"`
}

// UnmarshalYAML decodes a policy definition. The mechanism-specific details
// payload is decoded here, once, into its typed variant; executors never
// re-parse raw payloads at apply time.
func (p *PolicyDefinition) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID            string         `yaml:"id"`
		Name          string         `yaml:"name"`
		Description   string         `yaml:"description"`
		Mechanism     string         `yaml:"mechanism"`
		Risk          string         `yaml:"risk"`
		Reversible    *bool          `yaml:"reversible"`
		Applicability *Applicability `yaml:"applicability"`
		Dependencies  []Dependency   `yaml:"dependencies"`
		Details       yaml.Node      `yaml:"details"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	mech, err := ParseMechanism(raw.Mechanism)
	if err != nil {
		return &DefinitionError{PolicyID: raw.ID, Field: "mechanism", Message: err.Error()}
	}

	risk := RiskMedium
	if raw.Risk != "" {
		risk, err = ParseRiskLevel(raw.Risk)
		if err != nil {
			return &DefinitionError{PolicyID: raw.ID, Field: "risk", Message: err.Error()}
		}
	}

	reversible := true
	if raw.Reversible != nil {
		reversible = *raw.Reversible
	}

	details, err := decodeDetails(mech, &raw.Details)
	if err != nil {
		return &DefinitionError{PolicyID: raw.ID, Field: "details", Message: err.Error()}
	}

	p.ID = raw.ID
	p.Name = raw.Name
	p.Description = raw.Description
	p.Mechanism = mech
	p.Risk = risk
	p.Reversible = reversible
	p.Applicability = raw.Applicability
	p.Dependencies = raw.Dependencies
	p.Details = details

	return nil
}

// Validate checks the structural invariants of a single definition.
// Cross-policy invariants (unique ids, dependency targets, acyclic graph)
// are enforced by the catalog.
func (p *PolicyDefinition) Validate() error {
	if p.ID == "" {
		return &DefinitionError{Field: "id", Message: "policy id cannot be empty"}
	}
	if p.Name == "" {
		return &DefinitionError{PolicyID: p.ID, Field: "name", Message: "policy name cannot be empty"}
	}
	if _, err := ParseMechanism(string(p.Mechanism)); err != nil {
		return &DefinitionError{PolicyID: p.ID, Field: "mechanism", Message: err.Error()}
	}
	if _, err := ParseRiskLevel(string(p.Risk)); err != nil {
		return &DefinitionError{PolicyID: p.ID, Field: "risk", Message: err.Error()}
	}

	if p.Details == nil {
		return &DefinitionError{PolicyID: p.ID, Field: "details", Message: "details payload is missing"}
	}
	if p.Details.Mechanism() != p.Mechanism {
		return &DefinitionError{
			PolicyID: p.ID,
			Field:    "details",
			Message: fmt.Sprintf("details payload is for mechanism %q, policy declares %q",
				p.Details.Mechanism(), p.Mechanism),
		}
	}
	if err := p.Details.Validate(); err != nil {
		return &DefinitionError{PolicyID: p.ID, Field: "details", Message: err.Error()}
	}

	// A script policy without a revert script cannot honor Reversible.
	if sd, ok := p.Details.(*ScriptDetails); ok {
		if p.Reversible && sd.RevertScript == "" {
			return &DefinitionError{
				PolicyID: p.ID,
				Field:    "reversible",
				Message:  "script policy without revert_script must declare reversible: false",
			}
		}
	}

	for i, dep := range p.Dependencies {
		if dep.PolicyID == "" {
			return &DefinitionError{
				PolicyID: p.ID,
				Field:    fmt.Sprintf("dependencies[%d].policy_id", i),
				Message:  "dependency target cannot be empty",
			}
		}
		if dep.PolicyID == p.ID {
			return &DefinitionError{
				PolicyID: p.ID,
				Field:    fmt.Sprintf("dependencies[%d].policy_id", i),
				Message:  "policy cannot depend on itself",
			}
		}
		if _, err := ParseDependencyKind(string(dep.Kind)); err != nil {
			return &DefinitionError{
				PolicyID: p.ID,
				Field:    fmt.Sprintf("dependencies[%d].kind", i),
				Message:  err.Error(),
			}
		}
	}

	return nil
}

// DependenciesOfKind returns the dependency targets with the given kind.
func (p *PolicyDefinition) DependenciesOfKind(kind DependencyKind) []string {
	var ids []string
	for _, dep := range p.Dependencies {
		if dep.Kind == kind {
			ids = append(ids, dep.PolicyID)
		}
	}
	return ids
}

// editionMatches reports whether the host edition string contains any of the
// configured edition entries, ignoring case.
func editionMatches(hostEdition string, editions []string) bool {
	host := strings.ToLower(hostEdition)
	for _, e := range editions {
		if e == "" {
			continue
		}
		if strings.Contains(host, strings.ToLower(e)) {
			return true
		}
	}
	return false
}
