// Palisade is a declarative OS-hardening policy engine.
//
// It applies, audits, reverts, and tracks drift for hardening policies on a
// single machine under a privilege-separated architecture: a privileged
// daemon mutates OS state and unprivileged client commands request actions
// over a local control endpoint.
//
// Usage:
//
//	# Start the privileged daemon with default configuration
//	palisade run
//
//	# Start with custom configuration file
//	palisade run --config /etc/palisade/config.yaml
//
//	# Apply a set of policies
//	palisade apply disable-guest-account smb-signing
//
//	# Revert everything applied on this host
//	palisade revert --all
//
//	# Report live policy state without mutating anything
//	palisade audit
//
//	# Compare the latest snapshot against observed host state
//	palisade drift
//
//	# Query the change ledger
//	palisade history --policy disable-guest-account
//
// For complete documentation, see: https://github.com/palisade-hq/palisade
package main

func main() {
	Execute()
}
