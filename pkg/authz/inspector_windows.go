//go:build windows

package authz

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modadvapi32 = windows.NewLazySystemDLL("advapi32.dll")

	procGetNamedPipeClientProcessId = modkernel32.NewProc("GetNamedPipeClientProcessId")
	procQueryFullProcessImageNameW  = modkernel32.NewProc("QueryFullProcessImageNameW")
	procImpersonateNamedPipeClient  = modadvapi32.NewProc("ImpersonateNamedPipeClient")
)

const (
	tokenIntegrityLevelClass       = 25
	processQueryLimitedInformation = 0x1000

	// Long enough for \\?\ prefixed image paths.
	imagePathBufferLen = 32768
)

// tokenMandatoryLabel mirrors TOKEN_MANDATORY_LABEL.
type tokenMandatoryLabel struct {
	Label windows.SIDAndAttributes
}

// pipeHandleConn is implemented by server pipe connections that expose
// their instance handle for client token queries.
type pipeHandleConn interface {
	PipeHandle() windows.Handle
}

// TokenInspector reads the client token behind a named pipe connection via
// scoped impersonation. The impersonation window lasts only long enough to
// open the thread token; every query runs on the duplicated token handle
// after reverting.
type TokenInspector struct {
	logger *slog.Logger
}

// NewPlatformInspector returns the named pipe token inspector.
func NewPlatformInspector() Inspector {
	return &TokenInspector{logger: slog.Default().With("component", "authz")}
}

// Inspect implements Inspector.
func (i *TokenInspector) Inspect(ctx context.Context, conn net.Conn) (*Identity, error) {
	pc, ok := conn.(pipeHandleConn)
	if !ok {
		return nil, fmt.Errorf("%w: connection %T exposes no pipe handle", ErrIdentityUnavailable, conn)
	}
	pipe := pc.PipeHandle()

	token, err := clientToken(pipe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	defer token.Close()

	id := &Identity{
		// Remote clients are rejected at pipe creation, so an accepted
		// connection is same-machine by construction.
		SessionLocal: true,
	}

	user, err := token.GetTokenUser()
	if err != nil {
		return nil, fmt.Errorf("%w: querying token user: %v", ErrIdentityUnavailable, err)
	}
	id.SID = user.User.Sid.String()
	if account, domain, _, err := user.User.Sid.LookupAccount(""); err == nil {
		id.Account = domain + `\` + account
	}
	id.Authenticated = true

	admin, err := isAdminMember(token)
	if err != nil {
		return nil, fmt.Errorf("%w: checking administrator membership: %v", ErrIdentityUnavailable, err)
	}
	id.AdminMember = admin

	level, err := tokenIntegrity(token)
	if err != nil {
		return nil, fmt.Errorf("%w: querying integrity level: %v", ErrIdentityUnavailable, err)
	}
	id.IntegrityLevel = level

	pid, path, err := clientProcess(pipe)
	if err != nil {
		// Mutate-tier signature checks need the path; read-tier callers
		// do not. Record what we have and let the authorizer decide.
		i.logger.Debug("client process lookup failed", "error", err)
	}
	id.ProcessID = pid
	id.ProcessPath = path

	return id, nil
}

// clientToken impersonates the pipe client just long enough to open its
// token, then reverts. The returned token must be closed by the caller.
func clientToken(pipe windows.Handle) (windows.Token, error) {
	// Impersonation binds to the OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if r1, _, err := procImpersonateNamedPipeClient.Call(uintptr(pipe)); r1 == 0 {
		return 0, fmt.Errorf("ImpersonateNamedPipeClient: %w", err)
	}

	var token windows.Token
	openErr := windows.OpenThreadToken(windows.CurrentThread(), windows.TOKEN_QUERY, true, &token)
	if revertErr := windows.RevertToSelf(); revertErr != nil {
		if openErr == nil {
			token.Close()
		}
		// A thread stuck impersonating a client must not keep serving.
		panic(fmt.Sprintf("authz: RevertToSelf failed: %v", revertErr))
	}
	if openErr != nil {
		return 0, fmt.Errorf("OpenThreadToken: %w", openErr)
	}
	return token, nil
}

// isAdminMember reports whether the token carries the built-in
// administrators group.
func isAdminMember(token windows.Token) (bool, error) {
	var adminSid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&adminSid,
	)
	if err != nil {
		return false, fmt.Errorf("allocating administrators SID: %w", err)
	}
	defer windows.FreeSid(adminSid)

	return token.IsMember(adminSid)
}

// tokenIntegrity reads the mandatory label and maps its RID. The label SID
// has the form S-1-16-<rid>.
func tokenIntegrity(token windows.Token) (IntegrityLevel, error) {
	var size uint32
	err := windows.GetTokenInformation(token, tokenIntegrityLevelClass, nil, 0, &size)
	if err != windows.ERROR_INSUFFICIENT_BUFFER {
		return IntegrityUntrusted, fmt.Errorf("sizing token label: %w", err)
	}

	buf := make([]byte, size)
	if err := windows.GetTokenInformation(token, tokenIntegrityLevelClass, &buf[0], size, &size); err != nil {
		return IntegrityUntrusted, fmt.Errorf("reading token label: %w", err)
	}

	label := (*tokenMandatoryLabel)(unsafe.Pointer(&buf[0]))
	sid := label.Label.Sid.String()
	idx := strings.LastIndex(sid, "-")
	if idx < 0 {
		return IntegrityUntrusted, fmt.Errorf("malformed label SID %q", sid)
	}
	rid, err := strconv.ParseUint(sid[idx+1:], 10, 32)
	if err != nil {
		return IntegrityUntrusted, fmt.Errorf("parsing label SID %q: %w", sid, err)
	}
	return IntegrityFromRID(uint32(rid)), nil
}

// clientProcess resolves the pipe client's pid and image path.
func clientProcess(pipe windows.Handle) (uint32, string, error) {
	var pid uint32
	if r1, _, err := procGetNamedPipeClientProcessId.Call(uintptr(pipe), uintptr(unsafe.Pointer(&pid))); r1 == 0 {
		return 0, "", fmt.Errorf("GetNamedPipeClientProcessId: %w", err)
	}

	proc, err := windows.OpenProcess(processQueryLimitedInformation, false, pid)
	if err != nil {
		return pid, "", fmt.Errorf("opening process %d: %w", pid, err)
	}
	defer windows.CloseHandle(proc)

	buf := make([]uint16, imagePathBufferLen)
	size := uint32(len(buf))
	r1, _, err := procQueryFullProcessImageNameW.Call(
		uintptr(proc),
		0,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&size)),
	)
	if r1 == 0 {
		return pid, "", fmt.Errorf("QueryFullProcessImageName: %w", err)
	}
	return pid, windows.UTF16ToString(buf[:size]), nil
}
