// Package winsys isolates every interaction with the operating system
// behind narrow interfaces so the executors and engine stay testable off
// a real host.
//
// # Facilities
//
// Each hardening mechanism gets its own interface: RegistryStore,
// ServiceManager, TaskStore and FirewallStore. CheckpointCreator,
// SignatureVerifier, Prober, Resolver and Runner cover the supporting
// concerns: restore checkpoints, Authenticode checks, host fact
// collection, name resolution and script execution.
//
// The Shell* implementations drive PowerShell through a single Shell
// runner. Commands run with -NoProfile -NonInteractive and a deadline;
// stderr is classified into the package sentinels (ErrNotFound,
// ErrAccessDenied, ErrTimeout) so callers can branch on errors.Is rather
// than scraping text.
//
// # Error Classification
//
// Adapters report an absent key, value, service, task or rule as
// ErrNotFound wrapped in a CommandError carrying the command name, exit
// code and truncated stderr. Permission failures map to ErrAccessDenied.
// Callers should treat any other error as transient infrastructure
// failure.
package winsys
