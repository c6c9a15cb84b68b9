package authz

import (
	"context"
	"errors"
	"testing"

	"palisade-hq/palisade/internal/winfake"
)

func trustedIdentity() *Identity {
	return &Identity{
		SID:            "S-1-5-21-1111-2222-3333-500",
		Account:        `HOST\operator`,
		SessionLocal:   true,
		Authenticated:  true,
		AdminMember:    true,
		IntegrityLevel: IntegrityHigh,
		ProcessID:      4242,
		ProcessPath:    `C:\Program Files\Palisade\palisade.exe`,
	}
}

func newTestAuthorizer(t *testing.T, trusted ...string) *Authorizer {
	t.Helper()

	verifier := winfake.NewSignature()
	for _, path := range trusted {
		verifier.Trust(path)
	}
	return NewAuthorizer(Config{RequireSignature: true}, verifier)
}

func TestAuthorizer_MutateAllThreeGates(t *testing.T) {
	id := trustedIdentity()
	auth := newTestAuthorizer(t, id.ProcessPath)

	if err := auth.Authorize(context.Background(), TierMutate, id); err != nil {
		t.Fatalf("Authorize() failed for fully trusted caller: %v", err)
	}
}

func TestAuthorizer_MutateIndependentRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(id *Identity)
	}{
		{"not admin", func(id *Identity) { id.AdminMember = false }},
		{"medium integrity", func(id *Identity) { id.IntegrityLevel = IntegrityMedium }},
		{"low integrity", func(id *Identity) { id.IntegrityLevel = IntegrityLow }},
		{"untrusted binary", func(id *Identity) { id.ProcessPath = `C:\Temp\evil.exe` }},
		{"missing process path", func(id *Identity) { id.ProcessPath = "" }},
		{"not authenticated", func(id *Identity) { id.Authenticated = false }},
		{"remote session", func(id *Identity) { id.SessionLocal = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := trustedIdentity()
			tt.mutate(id)
			auth := newTestAuthorizer(t, trustedIdentity().ProcessPath)

			err := auth.Authorize(context.Background(), TierMutate, id)
			if !errors.Is(err, ErrNotAuthorized) {
				t.Fatalf("Authorize() error = %v, want ErrNotAuthorized", err)
			}
			// The denial must not leak which gate failed.
			if err.Error() != ErrNotAuthorized.Error() {
				t.Errorf("denial message = %q, leaks the failed check", err.Error())
			}
		})
	}
}

func TestAuthorizer_ReadTier(t *testing.T) {
	auth := newTestAuthorizer(t)

	t.Run("local authenticated non-admin allowed", func(t *testing.T) {
		id := &Identity{
			SID:            "S-1-5-21-1111-2222-3333-1001",
			SessionLocal:   true,
			Authenticated:  true,
			IntegrityLevel: IntegrityMedium,
		}
		if err := auth.Authorize(context.Background(), TierRead, id); err != nil {
			t.Errorf("Authorize() failed: %v", err)
		}
	})

	t.Run("unauthenticated denied", func(t *testing.T) {
		id := &Identity{SessionLocal: true}
		if err := auth.Authorize(context.Background(), TierRead, id); !errors.Is(err, ErrNotAuthorized) {
			t.Errorf("Authorize() error = %v, want ErrNotAuthorized", err)
		}
	})

	t.Run("remote denied", func(t *testing.T) {
		id := &Identity{Authenticated: true}
		if err := auth.Authorize(context.Background(), TierRead, id); !errors.Is(err, ErrNotAuthorized) {
			t.Errorf("Authorize() error = %v, want ErrNotAuthorized", err)
		}
	})
}

func TestAuthorizer_NilIdentity(t *testing.T) {
	auth := newTestAuthorizer(t)

	for _, tier := range []Tier{TierRead, TierMutate} {
		if err := auth.Authorize(context.Background(), tier, nil); !errors.Is(err, ErrNotAuthorized) {
			t.Errorf("Authorize(%s, nil) error = %v, want ErrNotAuthorized", tier, err)
		}
	}
}

func TestAuthorizer_SignatureNotRequired(t *testing.T) {
	auth := NewAuthorizer(Config{RequireSignature: false}, nil)

	id := trustedIdentity()
	id.ProcessPath = ""
	if err := auth.Authorize(context.Background(), TierMutate, id); err != nil {
		t.Errorf("Authorize() failed with signature checking disabled: %v", err)
	}

	// Admin and integrity gates still hold.
	id = trustedIdentity()
	id.AdminMember = false
	if err := auth.Authorize(context.Background(), TierMutate, id); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Authorize() error = %v, want ErrNotAuthorized without admin", err)
	}
}

func TestAuthorizer_SignatureRequiredButNoVerifier(t *testing.T) {
	auth := NewAuthorizer(Config{RequireSignature: true}, nil)

	err := auth.Authorize(context.Background(), TierMutate, trustedIdentity())
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Authorize() error = %v, want fail-closed denial", err)
	}
}

func TestIntegrityFromRID(t *testing.T) {
	tests := []struct {
		rid  uint32
		want IntegrityLevel
	}{
		{0, IntegrityUntrusted},
		{0x0999, IntegrityUntrusted},
		{0x1000, IntegrityLow},
		{0x2000, IntegrityMedium},
		{0x2100, IntegrityMedium},
		{0x3000, IntegrityHigh},
		{0x3fff, IntegrityHigh},
		{0x4000, IntegritySystem},
		{0x5000, IntegritySystem},
	}

	for _, tt := range tests {
		if got := IntegrityFromRID(tt.rid); got != tt.want {
			t.Errorf("IntegrityFromRID(%#x) = %v, want %v", tt.rid, got, tt.want)
		}
	}
}

func TestIntegrityLevel_Ordering(t *testing.T) {
	if !(IntegrityUntrusted < IntegrityLow && IntegrityLow < IntegrityMedium &&
		IntegrityMedium < IntegrityHigh && IntegrityHigh < IntegritySystem) {
		t.Error("integrity levels are not strictly ordered")
	}
	if IntegritySystem < IntegrityHigh {
		t.Error("system must satisfy a high-or-better requirement")
	}
}
