// Package server is the daemon side of the control protocol. It accepts
// local connections, resolves the caller's identity, and dispatches framed
// commands to the hardening engine, the policy catalog and the change
// ledger.
//
// # Connection lifecycle
//
// The platform listener produces connections from a named pipe (windows) or
// a unix socket (elsewhere). Each accepted connection is identity-inspected
// once, then served by one goroutine that reads a command frame, dispatches
// it, and writes any progress frames followed by exactly one terminal
// response. A connection may carry several commands in sequence; the read
// timeout doubles as the idle limit between them.
//
// Connections beyond the configured maximum are turned away immediately
// with a busy response. Connections whose identity cannot be established
// are turned away with a not_authorized response; the reason stays in the
// daemon log.
//
// # Dispatch
//
// Inbound frames are schema-validated before decoding, and authorization is
// checked per command, since the required tier depends on the command type.
// Engine and store errors map onto the wire error codes; anything
// unrecognized becomes a generic internal error with the detail logged
// server-side only.
//
// # Shutdown
//
// Shutdown stops the listener, poisons reads so idle connections drain, and
// grants in-flight commands a grace period. Commands still running when the
// period lapses are cancelled; a cancelled batch persists the work it
// completed before stopping.
package server
