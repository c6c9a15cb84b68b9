//go:build !windows

package client

import (
	"context"
	"net"

	"palisade-hq/palisade/pkg/config"
)

// dial connects to the daemon's unix control socket.
func dial(ctx context.Context, opts Options) (net.Conn, error) {
	path := opts.SocketPath
	if path == "" {
		path = config.DefaultServerSocketPath
	}
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}
