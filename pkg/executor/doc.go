// Package executor translates policies into concrete system changes, one
// executor per mechanism.
//
// # Contract
//
// Apply and Revert never return a Go error. Every attempt produces a
// ledger.ChangeRecord: successful records carry the captured previous
// state and the new state in the mechanism's canonical encoding, failed
// records carry an error message and a category (not_found, access_denied,
// timeout, invalid_state, resolve_failed). The engine decides what a
// failure means for the rest of the batch; executors only report.
//
// Previous-state capture is what makes revert possible. Each executor
// reads the live state before mutating and encodes it so its own Revert
// can restore the exact original:
//
//   - registry: "type:data" with the original value type, nil when the
//     value did not exist (revert then deletes)
//   - service: "startMode,runState", e.g. "2,running"
//   - scheduled task: "enabled"/"disabled", or the full definition XML
//     before delete and trigger changes
//   - firewall: rule ownership JSON naming created versus pre-existing
//     rules, so revert removes only what the apply created
//   - script: output of the optional snapshot script
//
// # Registration
//
// Executors register in a Registry keyed by mechanism tag, built once at
// startup. Lookup of an unregistered mechanism is an error, not a panic;
// the catalog guarantees every loaded policy's mechanism resolves.
package executor
