// Package authz decides whether a connected caller may run a command. It
// separates identity inspection (who is on the other end of the socket)
// from authorization (is that identity allowed this tier of operation).
//
// # Tiers
//
// Read-tier commands observe state and require an authenticated, local
// caller. Mutate-tier commands change host state and additionally require
// administrator membership, a high-or-better integrity level, and a trusted
// signature on the calling binary.
//
// # Fail-Closed
//
// Every internal failure (unreadable token, missing process path, verifier
// error) denies. Denials carry the generic ErrNotAuthorized; the concrete
// reason is logged server-side only, never returned to the caller.
package authz
