package authz

import (
	"context"
	"log/slog"

	"palisade-hq/palisade/pkg/winsys"
)

// Tier is the privilege level a command demands.
type Tier string

const (
	// TierRead covers state observation.
	TierRead Tier = "read"

	// TierMutate covers anything that changes host state.
	TierMutate Tier = "mutate"
)

// Config controls the Authorizer.
type Config struct {
	// RequireSignature demands a trusted Authenticode signature on the
	// caller's binary for mutate commands. Disable only on hosts where
	// client binaries are unsigned, such as development machines.
	// Default: true.
	RequireSignature bool
}

// Authorizer applies the tier policy to inspected identities. Mutate-tier
// access requires administrator membership, high-or-better integrity and a
// trusted caller signature, each checked independently.
type Authorizer struct {
	verifier         winsys.SignatureVerifier
	requireSignature bool
	logger           *slog.Logger
}

// NewAuthorizer builds an Authorizer. verifier may be nil only when
// cfg.RequireSignature is false.
func NewAuthorizer(cfg Config, verifier winsys.SignatureVerifier) *Authorizer {
	return &Authorizer{
		verifier:         verifier,
		requireSignature: cfg.RequireSignature,
		logger:           slog.Default().With("component", "authz"),
	}
}

// Authorize returns nil when id may run a command of the given tier, and
// ErrNotAuthorized otherwise. The denial reason is logged, never returned.
func (a *Authorizer) Authorize(ctx context.Context, tier Tier, id *Identity) error {
	if id == nil {
		return a.deny(&Identity{}, tier, "no identity")
	}

	if !id.Authenticated {
		return a.deny(id, tier, "caller not authenticated")
	}
	if !id.SessionLocal {
		return a.deny(id, tier, "caller session not local")
	}
	if tier == TierRead {
		return nil
	}

	// Mutate tier: three independent gates. All of them must pass; the
	// first failure decides, but none is ever skipped by configuration
	// except the signature check.
	if !id.AdminMember {
		return a.deny(id, tier, "caller not an administrator")
	}
	if id.IntegrityLevel < IntegrityHigh {
		return a.deny(id, tier, "integrity level "+id.IntegrityLevel.String()+" below high")
	}
	if a.requireSignature {
		if a.verifier == nil {
			return a.deny(id, tier, "signature verifier unavailable")
		}
		if id.ProcessPath == "" {
			return a.deny(id, tier, "caller process path unknown")
		}
		if err := a.verifier.Verify(ctx, id.ProcessPath); err != nil {
			return a.deny(id, tier, "caller signature rejected: "+err.Error())
		}
	}

	a.logger.Debug("mutate access granted",
		"sid", id.SID,
		"account", id.Account,
		"pid", id.ProcessID)
	return nil
}

func (a *Authorizer) deny(id *Identity, tier Tier, reason string) error {
	a.logger.Warn("access denied",
		"tier", string(tier),
		"reason", reason,
		"sid", id.SID,
		"account", id.Account,
		"pid", id.ProcessID,
		"integrity", id.IntegrityLevel.String())
	return ErrNotAuthorized
}
