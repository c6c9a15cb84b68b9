package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"palisade-hq/palisade/pkg/wire"
)

const defaultDialTimeout = 5 * time.Second

// Options configures a Client. The zero value targets the daemon's default
// endpoint.
type Options struct {
	// PipeName overrides the daemon's named pipe path on Windows.
	PipeName string

	// SocketPath overrides the daemon's socket path on other platforms.
	SocketPath string

	// DialTimeout bounds connection establishment.
	// Default: 5s.
	DialTimeout time.Duration

	// MaxFrameBytes bounds protocol frames in either direction. A
	// non-positive value uses the wire default.
	MaxFrameBytes int

	// Dialer overrides the platform dialer. Test use.
	Dialer func(ctx context.Context) (net.Conn, error)
}

// ProgressFunc receives interim progress frames during a command.
type ProgressFunc func(*wire.Progress)

// CommandError is a failure response from the daemon.
type CommandError struct {
	Type   wire.CommandType
	Errors []wire.Error
}

func (e *CommandError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%s failed", e.Type)
	}
	first := e.Errors[0]
	msg := fmt.Sprintf("%s failed: %s", e.Type, first.Message)
	if first.PolicyID != "" {
		msg += " (policy " + first.PolicyID + ")"
	}
	if len(e.Errors) > 1 {
		msg += fmt.Sprintf(" and %d more", len(e.Errors)-1)
	}
	return msg
}

// Code returns the first wire error code, or internal when none came back.
func (e *CommandError) Code() string {
	if len(e.Errors) == 0 {
		return wire.CodeInternal
	}
	return e.Errors[0].Code
}

// Client talks to the daemon over its local control endpoint. The connection
// is dialed lazily on the first command and reused afterwards; a failed
// command drops it so the next one redials. Do serializes concurrent
// callers.
type Client struct {
	opts Options

	mu    sync.Mutex
	conn  net.Conn
	codec *wire.Codec
}

// New builds a Client. No connection is made until the first command.
func New(opts Options) *Client {
	return &Client{opts: opts}
}

// Connect dials the daemon eagerly. Commands dial on demand, so calling
// Connect is only useful to fail fast.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	return c.connectLocked(ctx)
}

// Close drops the connection. The Client may be reused; the next command
// redials.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetLocked()
}

func (c *Client) connectLocked(ctx context.Context) error {
	dialer := c.opts.Dialer
	if dialer == nil {
		dialer = func(ctx context.Context) (net.Conn, error) {
			return dial(ctx, c.opts)
		}
	}

	timeout := c.opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer(dialCtx)
	if err != nil {
		return fmt.Errorf("connecting to daemon: %w", err)
	}
	c.conn = conn
	c.codec = wire.NewCodec(conn, c.opts.MaxFrameBytes)
	return nil
}

func (c *Client) resetLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.codec = nil
	return err
}

// Do sends one command and reads frames until its terminal response.
// Progress frames for the command are handed to onProgress as they arrive;
// frames for other commands are dropped. Cancelling ctx abandons the
// connection, since a half-read stream cannot be reused.
func (c *Client) Do(ctx context.Context, cmd *wire.Command, onProgress ProgressFunc) (*wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(ctx); err != nil {
			return nil, err
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func(conn net.Conn) {
		select {
		case <-ctx.Done():
			// Poison pending IO; Do maps the resulting error to ctx.Err.
			conn.SetDeadline(time.Now())
		case <-done:
		}
	}(c.conn)

	c.conn.SetDeadline(time.Time{})
	if err := c.codec.WriteJSON(cmd); err != nil {
		c.resetLocked()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("sending %s command: %w", cmd.Type, err)
	}

	for {
		frame, err := c.codec.ReadServerFrame()
		if err != nil {
			c.resetLocked()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("reading %s response: %w", cmd.Type, err)
		}

		switch frame.Kind {
		case wire.FrameProgress:
			if frame.Progress.CommandID != cmd.ID {
				continue
			}
			if onProgress != nil {
				onProgress(frame.Progress)
			}
		case wire.FrameResponse:
			resp := frame.Response
			// Connection-level rejections carry no command id.
			if resp.CommandID != "" && resp.CommandID != cmd.ID {
				continue
			}
			return resp, nil
		}
	}
}

// do marshals a payload, wraps it in a fresh envelope and runs it.
func (c *Client) do(ctx context.Context, typ wire.CommandType, payload any, onProgress ProgressFunc) (*wire.Response, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", typ, err)
		}
		raw = b
	}
	return c.Do(ctx, wire.NewCommand(typ, raw), onProgress)
}

// decodeResult unpacks a response body. On a failure response the decoded
// partial result, when present, accompanies the *CommandError.
func decodeResult[T any](typ wire.CommandType, resp *wire.Response) (*T, error) {
	var out *T
	if len(resp.Result) > 0 {
		out = new(T)
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return nil, fmt.Errorf("decoding %s result: %w", typ, err)
		}
	}
	if !resp.Success {
		return out, &CommandError{Type: typ, Errors: resp.Errors}
	}
	if out == nil {
		return nil, fmt.Errorf("%s response carried no result", typ)
	}
	return out, nil
}

// Apply runs an apply batch. On cancellation the partial result is returned
// together with the error.
func (c *Client) Apply(ctx context.Context, p wire.ApplyPayload, onProgress ProgressFunc) (*wire.BatchResult, error) {
	resp, err := c.do(ctx, wire.CommandApply, p, onProgress)
	if err != nil {
		return nil, err
	}
	return decodeResult[wire.BatchResult](wire.CommandApply, resp)
}

// Revert runs a revert batch. On cancellation the partial result is
// returned together with the error.
func (c *Client) Revert(ctx context.Context, p wire.RevertPayload, onProgress ProgressFunc) (*wire.BatchResult, error) {
	resp, err := c.do(ctx, wire.CommandRevert, p, onProgress)
	if err != nil {
		return nil, err
	}
	return decodeResult[wire.BatchResult](wire.CommandRevert, resp)
}

// Audit reports the live state of the selected policies.
func (c *Client) Audit(ctx context.Context, p wire.AuditPayload) (*wire.AuditResult, error) {
	resp, err := c.do(ctx, wire.CommandAudit, p, nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[wire.AuditResult](wire.CommandAudit, resp)
}

// Drift compares observed state against a recorded snapshot.
func (c *Client) Drift(ctx context.Context, p wire.DriftPayload) (*wire.DriftResult, error) {
	resp, err := c.do(ctx, wire.CommandDrift, p, nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[wire.DriftResult](wire.CommandDrift, resp)
}

// History queries the change ledger.
func (c *Client) History(ctx context.Context, p wire.HistoryPayload) (*wire.HistoryResult, error) {
	resp, err := c.do(ctx, wire.CommandHistory, p, nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[wire.HistoryResult](wire.CommandHistory, resp)
}

// ListPolicies lists the daemon's catalog, optionally filtered.
func (c *Client) ListPolicies(ctx context.Context, p wire.ListPoliciesPayload) (*wire.ListPoliciesResult, error) {
	resp, err := c.do(ctx, wire.CommandListPolicies, p, nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[wire.ListPoliciesResult](wire.CommandListPolicies, resp)
}

// GetState reports daemon status.
func (c *Client) GetState(ctx context.Context) (*wire.StateResult, error) {
	resp, err := c.do(ctx, wire.CommandGetState, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[wire.StateResult](wire.CommandGetState, resp)
}

// Ping checks liveness and protocol compatibility.
func (c *Client) Ping(ctx context.Context) (*wire.PingResult, error) {
	resp, err := c.do(ctx, wire.CommandPing, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[wire.PingResult](wire.CommandPing, resp)
}
