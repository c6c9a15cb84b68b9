package engine

import (
	"context"
	"fmt"
	"time"

	"palisade-hq/palisade/pkg/policy"
)

// AuditEntry is one policy's observed state.
type AuditEntry struct {
	// PolicyID identifies the policy.
	PolicyID string

	// Mechanism is the policy's mechanism tag.
	Mechanism string

	// Applicable reports whether the policy's applicability predicate
	// matches this host. Inapplicable policies are not probed.
	Applicable bool

	// Applied reports whether the policy's target state currently holds.
	Applied bool

	// CurrentValue is the live state in the mechanism's canonical encoding.
	CurrentValue string

	// Exists is false when the target object is absent.
	Exists bool

	// Error describes a probe failure for this entry. Probe failures never
	// fail the audit as a whole.
	Error string
}

// AuditReport is the outcome of one audit pass. Audits read live state and
// mutate nothing, neither the host nor the ledger.
type AuditReport struct {
	GeneratedAt  time.Time
	Entries      []AuditEntry
	AppliedCount int
}

// Audit observes the current state of the given policies, or of the whole
// catalog when ids is empty. Unknown ids fail the audit up front with a
// not-found error.
func (e *Engine) Audit(ctx context.Context, ids []string) (*AuditReport, error) {
	var defs []*policy.PolicyDefinition
	if len(ids) == 0 {
		defs = e.catalog.All()
	} else {
		for _, id := range ids {
			def, err := e.catalog.Get(id)
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		}
	}

	host, err := e.prober.Probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("probing host facts: %w", err)
	}

	report := &AuditReport{GeneratedAt: time.Now().UTC()}

	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry := AuditEntry{
			PolicyID:  def.ID,
			Mechanism: string(def.Mechanism),
		}

		if !def.Applicability.Matches(hostInfo(host)) {
			report.Entries = append(report.Entries, entry)
			continue
		}
		entry.Applicable = true

		exec, err := e.executors.Lookup(def.Mechanism)
		if err != nil {
			entry.Error = err.Error()
			report.Entries = append(report.Entries, entry)
			continue
		}

		applied, err := exec.IsApplied(ctx, def)
		if err != nil {
			entry.Error = err.Error()
			report.Entries = append(report.Entries, entry)
			continue
		}
		entry.Applied = applied
		if applied {
			report.AppliedCount++
		}

		value, exists, err := exec.CurrentValue(ctx, def)
		if err != nil {
			entry.Error = err.Error()
			report.Entries = append(report.Entries, entry)
			continue
		}
		entry.CurrentValue = value
		entry.Exists = exists

		report.Entries = append(report.Entries, entry)
	}

	return report, nil
}
