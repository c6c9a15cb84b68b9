package authz

import (
	"context"
	"net"
)

// IntegrityLevel is the mandatory integrity level of a caller's process
// token, ordered from least to most trusted.
type IntegrityLevel int

const (
	IntegrityUntrusted IntegrityLevel = iota
	IntegrityLow
	IntegrityMedium
	IntegrityHigh
	IntegritySystem
)

func (l IntegrityLevel) String() string {
	switch l {
	case IntegrityUntrusted:
		return "untrusted"
	case IntegrityLow:
		return "low"
	case IntegrityMedium:
		return "medium"
	case IntegrityHigh:
		return "high"
	case IntegritySystem:
		return "system"
	default:
		return "unknown"
	}
}

// Integrity RID bands. The token label SID is S-1-16-<rid>.
const (
	ridLowIntegrity    = 0x1000
	ridMediumIntegrity = 0x2000
	ridHighIntegrity   = 0x3000
	ridSystemIntegrity = 0x4000
)

// IntegrityFromRID maps a mandatory label RID onto the level scale.
// Unknown bands collapse downward, never upward.
func IntegrityFromRID(rid uint32) IntegrityLevel {
	switch {
	case rid >= ridSystemIntegrity:
		return IntegritySystem
	case rid >= ridHighIntegrity:
		return IntegrityHigh
	case rid >= ridMediumIntegrity:
		return IntegrityMedium
	case rid >= ridLowIntegrity:
		return IntegrityLow
	default:
		return IntegrityUntrusted
	}
}

// Identity describes the principal behind one connection, as observed from
// its process token or socket credentials. Fields default to the least
// privileged reading.
type Identity struct {
	// SID is the caller's security identifier (uid:<n> on unix).
	SID string

	// Account is the resolved account name, for logging only. Never used
	// in authorization decisions.
	Account string

	// SessionLocal is true when the connection cannot have crossed a
	// machine boundary.
	SessionLocal bool

	// Authenticated is true when the token or socket credentials were
	// actually read, not assumed.
	Authenticated bool

	// AdminMember is true when the token carries the built-in
	// administrators group (root on unix).
	AdminMember bool

	// IntegrityLevel is the token's mandatory integrity level.
	IntegrityLevel IntegrityLevel

	// ProcessID is the caller's process id, for logging.
	ProcessID uint32

	// ProcessPath is the caller binary's image path, used for signature
	// verification on mutate commands.
	ProcessPath string
}

// Inspector resolves the identity behind an accepted connection.
// Implementations must fail closed: when credentials cannot be read they
// return an error rather than a partially trusted Identity.
type Inspector interface {
	Inspect(ctx context.Context, conn net.Conn) (*Identity, error)
}

// StaticInspector returns a fixed identity or error. Test use.
type StaticInspector struct {
	Identity *Identity
	Err      error
}

func (s *StaticInspector) Inspect(_ context.Context, _ net.Conn) (*Identity, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Identity, nil
}
