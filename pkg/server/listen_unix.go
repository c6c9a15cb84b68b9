//go:build !windows

package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"palisade-hq/palisade/pkg/config"
)

// listen opens the control socket. A stale socket file from a previous run
// is replaced; the live socket is restricted to its owner. The parent
// directory must already exist and should be root-owned.
func listen(cfg *config.ServerConfig) (net.Listener, error) {
	path := cfg.SocketPath
	if path == "" {
		return nil, errors.New("server: socket path not configured")
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}

	if err := os.Chmod(path, 0o700); err != nil {
		ln.Close()
		return nil, fmt.Errorf("restricting socket %s: %w", path, err)
	}
	return ln, nil
}

// EndpointName is the human-readable control endpoint for this platform.
func EndpointName(cfg *config.ServerConfig) string {
	return cfg.SocketPath
}
