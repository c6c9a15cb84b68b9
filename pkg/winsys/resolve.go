package winsys

import (
	"context"
	"net"
	"net/netip"
)

// Resolver resolves hostnames to addresses for firewall rule materialization.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]netip.Addr, error)
}

// NetResolver resolves through the system resolver.
type NetResolver struct{}

// LookupHost implements Resolver.
func (NetResolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}
