//go:build windows

package client

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"

	"palisade-hq/palisade/pkg/config"
)

// dial connects to the daemon's named pipe. winio handles the open retry
// dance around ERROR_PIPE_BUSY while ctx bounds the whole attempt.
func dial(ctx context.Context, opts Options) (net.Conn, error) {
	path := opts.PipeName
	if path == "" {
		path = config.DefaultServerPipeName
	}
	return winio.DialPipeContext(ctx, path)
}
