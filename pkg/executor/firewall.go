package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/winsys"
)

// FirewallExecutor applies outbound block rule policies.
type FirewallExecutor struct {
	store    winsys.FirewallStore
	resolver winsys.Resolver
	cache    *ruleCache
	logger   *slog.Logger
}

// NewFirewallExecutor creates a firewall executor. A ttl of zero uses the
// default audit cache TTL.
func NewFirewallExecutor(store winsys.FirewallStore, resolver winsys.Resolver, ttl time.Duration) *FirewallExecutor {
	return &FirewallExecutor{
		store:    store,
		resolver: resolver,
		cache:    newRuleCache(store, ttl),
		logger:   slog.Default().With("component", "executor.firewall"),
	}
}

// Mechanism implements Executor.
func (e *FirewallExecutor) Mechanism() policy.Mechanism {
	return policy.MechanismFirewall
}

// firewallOwnership records which rules an apply created versus found
// pre-existing. Revert removes only the created ones.
type firewallOwnership struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

func (o firewallOwnership) encode() string {
	data, _ := json.Marshal(o)
	return string(data)
}

func decodeOwnership(s string) (firewallOwnership, error) {
	var o firewallOwnership
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		return firewallOwnership{}, fmt.Errorf("malformed firewall ownership state %q: %w", s, err)
	}
	return o, nil
}

func firewallDetails(def *policy.PolicyDefinition) (*policy.FirewallDetails, error) {
	d, ok := def.Details.(*policy.FirewallDetails)
	if !ok {
		return nil, fmt.Errorf("policy %s does not carry firewall details", def.ID)
	}
	return d, nil
}

// resolveRemote turns one remote specification into concrete rule
// addresses. Address-form remotes pass through verbatim; hostnames resolve,
// and a remote that resolves to nothing fails.
func (e *FirewallExecutor) resolveRemote(ctx context.Context, remote string) ([]string, error) {
	t, err := parseTarget(remote)
	if err != nil {
		return nil, err
	}
	if t.kind != targetHostname {
		return []string{remote}, nil
	}

	addrs, err := e.resolver.LookupHost(ctx, t.host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", t.host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolving %s: no addresses", t.host)
	}

	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out, nil
}

// Apply implements Executor. One rule is created per remote; remotes whose
// rule name already exists are skipped and stay foreign to revert.
func (e *FirewallExecutor) Apply(ctx context.Context, def *policy.PolicyDefinition) ledger.ChangeRecord {
	rec := newRecord(ledger.OperationApply, def)

	d, err := firewallDetails(def)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}

	var ownership firewallOwnership
	mutated := false
	defer func() {
		if mutated {
			e.cache.invalidate()
		}
	}()

	for _, remote := range d.Remotes {
		name := d.RuleNameFor(remote)

		exists, err := e.store.RuleExists(ctx, name)
		if err != nil {
			rec.NewState = ownership.encode()
			return failRecord(rec, fmt.Errorf("checking rule %q: %w", name, err))
		}
		if exists {
			ownership.Skipped = append(ownership.Skipped, name)
			continue
		}

		addresses, err := e.resolveRemote(ctx, remote)
		if err != nil {
			rec.NewState = ownership.encode()
			return failRecordAs(rec, ledger.CategoryResolveFailed, err)
		}

		rule := winsys.FirewallRule{
			Name:            name,
			Profiles:        d.Profiles,
			RemoteAddresses: addresses,
		}
		if err := e.store.CreateRule(ctx, rule); err != nil {
			rec.NewState = ownership.encode()
			return failRecord(rec, fmt.Errorf("creating rule %q: %w", name, err))
		}
		mutated = true
		ownership.Created = append(ownership.Created, name)
	}

	rec.Success = true
	rec.NewState = ownership.encode()
	rec.Description = fmt.Sprintf("blocked %d remote(s), %d rule(s) pre-existing",
		len(ownership.Created), len(ownership.Skipped))
	e.logger.Debug("firewall rules applied",
		"policy_id", rec.PolicyID,
		"created", len(ownership.Created),
		"skipped", len(ownership.Skipped))
	return rec
}

// Revert implements Executor. Only rules the original apply created are
// removed; pre-existing rules belong to someone else.
func (e *FirewallExecutor) Revert(ctx context.Context, def *policy.PolicyDefinition, original ledger.ChangeRecord) ledger.ChangeRecord {
	rec := newRecord(ledger.OperationRevert, def)

	if _, err := firewallDetails(def); err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}

	ownership, err := decodeOwnership(original.NewState)
	if err != nil {
		return failRecordAs(rec, ledger.CategoryInvalidState, err)
	}
	rec.PreviousState = strPtr(original.NewState)

	var removed []string
	mutated := false
	defer func() {
		if mutated {
			e.cache.invalidate()
		}
	}()

	for _, name := range ownership.Created {
		err := e.store.DeleteRule(ctx, name)
		switch {
		case err == nil:
			mutated = true
			removed = append(removed, name)
		case errors.Is(err, winsys.ErrNotFound):
			// Already gone, out-of-band. Nothing left to own.
			removed = append(removed, name)
		default:
			rec.NewState = encodeRemoved(removed)
			return failRecord(rec, fmt.Errorf("removing rule %q: %w", name, err))
		}
	}

	rec.Success = true
	rec.NewState = encodeRemoved(removed)
	rec.Description = fmt.Sprintf("removed %d rule(s), left %d pre-existing rule(s) in place",
		len(removed), len(ownership.Skipped))
	return rec
}

func encodeRemoved(removed []string) string {
	data, _ := json.Marshal(map[string][]string{"removed": removed})
	return string(data)
}

// IsApplied implements Executor. A policy counts as applied only when every
// remote is covered by an enabled outbound block rule; hostname remotes
// must resolve, and resolution failure fails the check closed.
func (e *FirewallExecutor) IsApplied(ctx context.Context, def *policy.PolicyDefinition) (bool, error) {
	d, err := firewallDetails(def)
	if err != nil {
		return false, err
	}

	index, err := e.cache.get(ctx)
	if err != nil {
		return false, err
	}

	for _, remote := range d.Remotes {
		covered, err := e.remoteCovered(ctx, index, remote)
		if err != nil {
			return false, err
		}
		if !covered {
			return false, nil
		}
	}
	return true, nil
}

func (e *FirewallExecutor) remoteCovered(ctx context.Context, index *ruleIndex, remote string) (bool, error) {
	t, err := parseTarget(remote)
	if err != nil {
		return false, err
	}
	if t.kind != targetHostname {
		return index.coversTarget(t), nil
	}

	addrs, err := e.resolver.LookupHost(ctx, t.host)
	if err != nil {
		return false, fmt.Errorf("resolving %s: %w", t.host, err)
	}
	if len(addrs) == 0 {
		return false, fmt.Errorf("resolving %s: no addresses", t.host)
	}
	for _, a := range addrs {
		if !index.coversAddr(a) {
			return false, nil
		}
	}
	return true, nil
}

// CurrentValue implements Executor. The value summarizes per-remote
// coverage, e.g. "2/3 remotes blocked".
func (e *FirewallExecutor) CurrentValue(ctx context.Context, def *policy.PolicyDefinition) (string, bool, error) {
	d, err := firewallDetails(def)
	if err != nil {
		return "", false, err
	}

	index, err := e.cache.get(ctx)
	if err != nil {
		return "", false, err
	}

	covered := 0
	for _, remote := range d.Remotes {
		ok, err := e.remoteCovered(ctx, index, remote)
		if err != nil {
			return "", false, err
		}
		if ok {
			covered++
		}
	}
	return fmt.Sprintf("%d/%d remotes blocked", covered, len(d.Remotes)), true, nil
}
