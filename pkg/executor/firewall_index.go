package executor

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"palisade-hq/palisade/pkg/winsys"
)

// defaultCacheTTL bounds how stale the audit rule index may be. Mutations
// through the executor invalidate it immediately; the TTL only covers
// out-of-band changes.
const defaultCacheTTL = 30 * time.Second

// targetKind classifies a remote address specification.
type targetKind int

const (
	targetAny targetKind = iota
	targetAddr
	targetPrefix
	targetRange
	targetHostname
)

// target is one parsed remote address specification.
type target struct {
	kind   targetKind
	addr   netip.Addr
	prefix netip.Prefix
	lo, hi netip.Addr
	host   string
}

// parseTarget classifies a remote: a literal address, CIDR block, dashed
// range, the wildcard, or a hostname needing resolution.
func parseTarget(s string) (target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return target{}, fmt.Errorf("empty remote address")
	}
	if strings.EqualFold(s, "any") || s == "*" {
		return target{kind: targetAny}, nil
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return target{kind: targetAddr, addr: addr}, nil
	}
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return target{kind: targetPrefix, prefix: prefix.Masked()}, nil
	}
	if loText, hiText, found := strings.Cut(s, "-"); found {
		lo, loErr := netip.ParseAddr(strings.TrimSpace(loText))
		hi, hiErr := netip.ParseAddr(strings.TrimSpace(hiText))
		if loErr == nil && hiErr == nil {
			if lo.Compare(hi) > 0 {
				return target{}, fmt.Errorf("range %q runs backwards", s)
			}
			return target{kind: targetRange, lo: lo, hi: hi}, nil
		}
	}
	return target{kind: targetHostname, host: s}, nil
}

// prefixLast returns the highest address inside a prefix.
func prefixLast(p netip.Prefix) netip.Addr {
	if p.Addr().Is4() {
		b := p.Addr().As4()
		for i := p.Bits(); i < 32; i++ {
			b[i/8] |= 1 << (7 - i%8)
		}
		return netip.AddrFrom4(b)
	}
	b := p.Addr().As16()
	for i := p.Bits(); i < 128; i++ {
		b[i/8] |= 1 << (7 - i%8)
	}
	return netip.AddrFrom16(b)
}

// addrRange is an inclusive address range.
type addrRange struct {
	lo, hi netip.Addr
}

func (r addrRange) containsAddr(a netip.Addr) bool {
	return r.lo.Compare(a) <= 0 && a.Compare(r.hi) <= 0
}

func (r addrRange) containsRange(other addrRange) bool {
	return r.lo.Compare(other.lo) <= 0 && other.hi.Compare(r.hi) <= 0
}

// ruleIndex is a point-in-time index of enabled outbound block rules,
// queryable by the four coverage forms.
type ruleIndex struct {
	anyRule  bool
	addrs    map[netip.Addr]bool
	prefixes []netip.Prefix
	ranges   []addrRange
}

// ruleEffective reports whether a rule applies to at least one active
// profile. Rules without a profile restriction apply everywhere; a
// profile-scoped rule with no active profile to match is not effective.
func ruleEffective(rule winsys.FirewallRule, active []string) bool {
	if len(rule.Profiles) == 0 {
		return true
	}
	for _, p := range rule.Profiles {
		if strings.EqualFold(p, "any") {
			return true
		}
		for _, a := range active {
			if strings.EqualFold(p, a) {
				return true
			}
		}
	}
	return false
}

// buildRuleIndex parses the remote specifications of the rules effective
// for the active profiles. Unparseable entries are skipped; a rule with no
// parseable remote cannot cover anything.
func buildRuleIndex(rules []winsys.FirewallRule, active []string) *ruleIndex {
	ix := &ruleIndex{addrs: make(map[netip.Addr]bool)}
	for _, rule := range rules {
		if !ruleEffective(rule, active) {
			continue
		}
		if len(rule.RemoteAddresses) == 0 {
			// NetFirewall reports a rule matching every remote with an
			// empty or "Any" address list.
			ix.anyRule = true
			continue
		}
		for _, remote := range rule.RemoteAddresses {
			t, err := parseTarget(remote)
			if err != nil {
				continue
			}
			switch t.kind {
			case targetAny:
				ix.anyRule = true
			case targetAddr:
				ix.addrs[t.addr] = true
			case targetPrefix:
				ix.prefixes = append(ix.prefixes, t.prefix)
			case targetRange:
				ix.ranges = append(ix.ranges, addrRange{lo: t.lo, hi: t.hi})
			}
		}
	}
	return ix
}

// coversAddr reports whether any indexed rule blocks the address.
func (ix *ruleIndex) coversAddr(a netip.Addr) bool {
	if ix.anyRule || ix.addrs[a] {
		return true
	}
	for _, p := range ix.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	for _, r := range ix.ranges {
		if r.containsAddr(a) {
			return true
		}
	}
	return false
}

// coversPrefix reports whether any single indexed rule blocks the whole
// prefix.
func (ix *ruleIndex) coversPrefix(p netip.Prefix) bool {
	if ix.anyRule {
		return true
	}
	for _, rp := range ix.prefixes {
		if rp.Bits() <= p.Bits() && rp.Contains(p.Addr()) {
			return true
		}
	}
	want := addrRange{lo: p.Masked().Addr(), hi: prefixLast(p)}
	for _, r := range ix.ranges {
		if r.containsRange(want) {
			return true
		}
	}
	return false
}

// coversRange reports whether any single indexed rule blocks the whole
// range.
func (ix *ruleIndex) coversRange(want addrRange) bool {
	if ix.anyRule {
		return true
	}
	for _, rp := range ix.prefixes {
		if rp.Contains(want.lo) && rp.Contains(want.hi) {
			return true
		}
	}
	for _, r := range ix.ranges {
		if r.containsRange(want) {
			return true
		}
	}
	return false
}

// coversTarget reports whether the index blocks an already-parsed target.
func (ix *ruleIndex) coversTarget(t target) bool {
	switch t.kind {
	case targetAny:
		return ix.anyRule
	case targetAddr:
		return ix.coversAddr(t.addr)
	case targetPrefix:
		return ix.coversPrefix(t.prefix)
	case targetRange:
		return ix.coversRange(addrRange{lo: t.lo, hi: t.hi})
	default:
		return false
	}
}

// ruleCache caches the ruleIndex with a short TTL and explicit
// invalidation after every mutating firewall call.
type ruleCache struct {
	mu      sync.Mutex
	store   winsys.FirewallStore
	ttl     time.Duration
	index   *ruleIndex
	builtAt time.Time
}

func newRuleCache(store winsys.FirewallStore, ttl time.Duration) *ruleCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &ruleCache{store: store, ttl: ttl}
}

// get returns the cached index, rebuilding it when absent or stale.
func (c *ruleCache) get(ctx context.Context) (*ruleIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index != nil && time.Since(c.builtAt) < c.ttl {
		return c.index, nil
	}

	active, err := c.store.ActiveProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying active profiles: %w", err)
	}
	rules, err := c.store.BlockingRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing blocking rules: %w", err)
	}
	c.index = buildRuleIndex(rules, active)
	c.builtAt = time.Now()
	return c.index, nil
}

// invalidate drops the cached index.
func (c *ruleCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = nil
}
