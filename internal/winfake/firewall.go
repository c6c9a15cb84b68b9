package winfake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"palisade-hq/palisade/pkg/winsys"
)

// Firewall is an in-memory winsys.FirewallStore.
type Firewall struct {
	mu sync.Mutex

	rules map[string]winsys.FirewallRule

	// CreateErr is returned from CreateRule when non-nil.
	CreateErr error

	// ListErr is returned from BlockingRules when non-nil.
	ListErr error

	// Active is returned from ActiveProfiles; tests set it to model the
	// host's connected network profiles.
	Active []string

	// Ops records mutations in order, e.g. "create Block x (host)".
	Ops []string
}

// NewFirewall creates an empty fake firewall store.
func NewFirewall() *Firewall {
	return &Firewall{rules: make(map[string]winsys.FirewallRule)}
}

// Seed primes one rule.
func (f *Firewall) Seed(rule winsys.FirewallRule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[rule.Name] = rule
}

// Rule returns the current fake state of a rule.
func (f *Firewall) Rule(name string) (winsys.FirewallRule, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[name]
	return rule, ok
}

// RuleExists implements winsys.FirewallStore.
func (f *Firewall) RuleExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rules[name]
	return ok, nil
}

// CreateRule implements winsys.FirewallStore.
func (f *Firewall) CreateRule(ctx context.Context, rule winsys.FirewallRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		return f.CreateErr
	}
	rule.Enabled = true
	f.rules[rule.Name] = rule
	f.Ops = append(f.Ops, "create "+rule.Name)
	return nil
}

// DeleteRule implements winsys.FirewallStore.
func (f *Firewall) DeleteRule(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.rules[name]; !ok {
		return fmt.Errorf("%w: rule %s", winsys.ErrNotFound, name)
	}
	delete(f.rules, name)
	f.Ops = append(f.Ops, "delete "+name)
	return nil
}

// BlockingRules implements winsys.FirewallStore. Rules come back sorted by
// name for deterministic tests.
func (f *Firewall) BlockingRules(ctx context.Context) ([]winsys.FirewallRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListErr != nil {
		return nil, f.ListErr
	}
	rules := make([]winsys.FirewallRule, 0, len(f.rules))
	for _, rule := range f.rules {
		if rule.Enabled {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules, nil
}

// ActiveProfiles implements winsys.FirewallStore.
func (f *Firewall) ActiveProfiles(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Active...), nil
}
