// Package wire defines the command protocol spoken over the local control
// endpoint: JSON envelopes, per-command payloads, and the length-prefixed
// framing that carries them.
//
// # Envelopes
//
// Clients send a Command; the daemon answers with zero or more Progress
// frames followed by exactly one Response. Every frame the daemon emits is
// wrapped in a ServerFrame whose Kind field discriminates the two.
//
// # Validation
//
// Inbound commands are validated against JSON Schemas before any field is
// trusted. Validator compiles the schemas once and rejects malformed input
// with a ValidationError listing every violation, so callers never see a
// half-decoded command.
//
// # Framing
//
// Frames are a 4-byte big-endian length followed by that many bytes of JSON.
// Both directions enforce a maximum frame size; an oversized length prefix
// fails fast without allocating the payload.
package wire
