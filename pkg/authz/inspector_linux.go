//go:build linux

package authz

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// SocketInspector reads SO_PEERCRED credentials from a unix socket
// connection. root maps to the administrator gates so the full mutate path
// stays testable off-Windows; everyone else caps at medium integrity.
type SocketInspector struct {
	logger *slog.Logger
}

// NewPlatformInspector returns the unix socket credential inspector.
func NewPlatformInspector() Inspector {
	return &SocketInspector{logger: slog.Default().With("component", "authz")}
}

// Inspect implements Inspector.
func (i *SocketInspector) Inspect(_ context.Context, conn net.Conn) (*Identity, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("%w: connection %T is not a unix socket", ErrIdentityUnavailable, conn)
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	var (
		cred    *unix.Ucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	if credErr != nil {
		return nil, fmt.Errorf("%w: reading peer credentials: %v", ErrIdentityUnavailable, credErr)
	}

	id := &Identity{
		SID:           "uid:" + strconv.FormatUint(uint64(cred.Uid), 10),
		SessionLocal:  true,
		Authenticated: true,
		AdminMember:   cred.Uid == 0,
		ProcessID:     uint32(cred.Pid),
	}
	if cred.Uid == 0 {
		id.IntegrityLevel = IntegrityHigh
	} else {
		id.IntegrityLevel = IntegrityMedium
	}

	if u, err := user.LookupId(strconv.FormatUint(uint64(cred.Uid), 10)); err == nil {
		id.Account = u.Username
	}
	if path, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", cred.Pid)); err == nil {
		id.ProcessPath = path
	} else {
		i.logger.Debug("client exe lookup failed", "pid", cred.Pid, "error", err)
	}

	return id, nil
}
