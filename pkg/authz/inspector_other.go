//go:build !windows && !linux

package authz

import (
	"context"
	"fmt"
	"net"
	"runtime"
)

// NewPlatformInspector returns an inspector that denies everything.
// Platforms without a credential mechanism fail closed.
func NewPlatformInspector() Inspector {
	return unsupportedInspector{}
}

type unsupportedInspector struct{}

func (unsupportedInspector) Inspect(_ context.Context, _ net.Conn) (*Identity, error) {
	return nil, fmt.Errorf("%w: no credential mechanism on %s", ErrIdentityUnavailable, runtime.GOOS)
}
