package winfake

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"palisade-hq/palisade/pkg/winsys"
)

// Checkpoint is an in-memory winsys.CheckpointCreator.
type Checkpoint struct {
	mu sync.Mutex

	seq int

	// Err is returned from Create when non-nil.
	Err error

	// Descriptions records every checkpoint description in order.
	Descriptions []string
}

// NewCheckpoint creates a fake checkpoint creator.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{}
}

// Create implements winsys.CheckpointCreator.
func (c *Checkpoint) Create(ctx context.Context, description string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return "", c.Err
	}
	c.seq++
	c.Descriptions = append(c.Descriptions, description)
	return fmt.Sprintf("%d", c.seq), nil
}

// Signature is an in-memory winsys.SignatureVerifier. Paths not marked
// trusted fail verification.
type Signature struct {
	mu sync.Mutex

	trusted map[string]bool

	// AllValid makes every path verify.
	AllValid bool
}

// NewSignature creates a fake signature verifier.
func NewSignature() *Signature {
	return &Signature{trusted: make(map[string]bool)}
}

// Trust marks a path as carrying a valid signature.
func (s *Signature) Trust(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted[path] = true
}

// Verify implements winsys.SignatureVerifier.
func (s *Signature) Verify(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AllValid || s.trusted[path] {
		return nil
	}
	return fmt.Errorf("%w: %s has signature status NotSigned", winsys.ErrUntrustedSignature, path)
}

// Prober is a winsys.Prober returning fixed facts.
type Prober struct {
	Facts winsys.HostFacts
	Err   error
}

// Probe implements winsys.Prober.
func (p *Prober) Probe(ctx context.Context) (winsys.HostFacts, error) {
	if p.Err != nil {
		return winsys.HostFacts{}, p.Err
	}
	return p.Facts, nil
}

// Resolver is a winsys.Resolver backed by a host table. Unknown hosts
// resolve with an error, like the real resolver.
type Resolver struct {
	mu sync.Mutex

	hosts map[string][]netip.Addr

	// Lookups records every hostname resolved, in order.
	Lookups []string
}

// NewResolver creates an empty fake resolver.
func NewResolver() *Resolver {
	return &Resolver{hosts: make(map[string][]netip.Addr)}
}

// Add primes addresses for a hostname.
func (r *Resolver) Add(host string, addrs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range addrs {
		r.hosts[host] = append(r.hosts[host], netip.MustParseAddr(a))
	}
}

// LookupHost implements winsys.Resolver.
func (r *Resolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Lookups = append(r.Lookups, host)
	addrs, ok := r.hosts[host]
	if !ok {
		return nil, fmt.Errorf("lookup %s: no such host", host)
	}
	return append([]netip.Addr(nil), addrs...), nil
}

// Runner is a winsys.Runner returning scripted results per path.
type Runner struct {
	mu sync.Mutex

	results map[string]winsys.CommandResult

	// Err is returned from Run when non-nil.
	Err error

	// Calls records every invocation in order.
	Calls []winsys.CommandSpec
}

// NewRunner creates an empty fake runner. Paths without a scripted result
// succeed with exit code 0.
func NewRunner() *Runner {
	return &Runner{results: make(map[string]winsys.CommandResult)}
}

// SetResult primes the result for a script path.
func (r *Runner) SetResult(path string, result winsys.CommandResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[path] = result
}

// Run implements winsys.Runner.
func (r *Runner) Run(ctx context.Context, spec winsys.CommandSpec) (winsys.CommandResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Calls = append(r.Calls, spec)
	if r.Err != nil {
		return winsys.CommandResult{}, r.Err
	}
	if result, ok := r.results[spec.Path]; ok {
		return result, nil
	}
	return winsys.CommandResult{ExitCode: 0}, nil
}
