// Package engine orchestrates policy batches: it resolves a request into an
// execution order, gates mutation behind a whole-engine lock, drives the
// per-mechanism executors, and persists every batch atomically to the change
// ledger.
//
// # Batches
//
// Apply and Revert each run one batch. A batch moves through a small
// lifecycle: pending, checkpoint_created once a restore checkpoint exists,
// executing while policies run, persisted once the ledger transaction
// commits, and finally completed or aborted. Every policy the batch touches
// lands in exactly one of the result's Applied, Failed, Skipped or Aborted
// lists; Aborted holds policies the batch never reached because it stopped
// early.
//
// Failed policy changes are data, not errors: executors report every outcome
// as a change record and the engine decides batch-level consequences. A
// batch stops at the first failed record unless the request sets
// ContinueOnError. Cancellation is honored between policies, never mid
// mutation, and the partial batch still persists.
//
// # Mutual exclusion
//
// At most one mutating batch runs at a time. A second Apply or Revert while
// one is in flight fails immediately with ErrBatchInProgress rather than
// queueing; callers retry when the engine is no longer busy. Dry runs,
// audits and drift scans read live state without taking the gate.
//
// # Audits and drift
//
// Audit reports the observed state of policies without mutating anything.
// Drift compares a stored snapshot against a fresh observation and reports
// divergences with a severity taken from each policy's risk class. Monitor
// runs drift scans on a cron schedule against the most recent snapshot.
package engine
