package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"palisade-hq/palisade/pkg/telemetry/logging"
	"palisade-hq/palisade/pkg/wire"
)

// progressSender writes one interim progress frame to the client.
type progressSender func(*wire.Progress) error

// handleConn serves one connection: identity inspection once, then a
// read/dispatch/respond loop until the peer disconnects, a timeout fires,
// or shutdown drains the connection.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.quit:
			// Poison reads so an idle connection drains. An in-flight
			// command is unaffected: writes keep their own deadline.
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	caller, err := s.inspector.Inspect(ctx, conn)
	if err != nil {
		s.metrics.RecordConnectionRejected("identity")
		s.logger.Warn("rejecting connection, identity unavailable", "error", err)
		s.writeResponse(conn, wire.NewCodec(conn, s.cfg.MaxFrameBytes), &wire.Response{
			Success: false,
			Errors:  []wire.Error{{Code: wire.CodeNotAuthorized, Message: "not authorized"}},
		})
		return
	}

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	logger := s.logger.With("sid", caller.SID, "pid", caller.ProcessID)
	logger.Info("connection established", "account", caller.Account)
	defer logger.Debug("connection closed")

	codec := wire.NewCodec(conn, s.cfg.MaxFrameBytes)
	send := func(p *wire.Progress) error {
		s.setWriteDeadline(conn)
		return codec.WriteProgress(p)
	}

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		s.setReadDeadline(conn)
		raw, err := codec.ReadFrame()
		if err != nil {
			s.endRead(logger, conn, codec, err)
			return
		}

		started := time.Now()
		cmd, err := s.validator.Decode(raw)
		if err != nil {
			hintID, hintType := commandHints(raw)
			logger.Warn("command rejected by validation",
				"type", hintType,
				"command_id", hintID,
				"error", err)
			ok := s.writeResponse(conn, codec, &wire.Response{
				CommandID: hintID,
				Success:   false,
				Errors:    []wire.Error{{Code: wire.CodeValidation, Message: validationMessage(err)}},
			})
			s.metrics.RecordCommand(hintType, wire.CodeValidation, time.Since(started))
			if !ok {
				return
			}
			continue
		}

		cmdCtx := logging.WithCommandID(ctx, cmd.ID)
		cmdCtx = logging.WithCommandType(cmdCtx, string(cmd.Type))
		cmdCtx = logging.WithCaller(cmdCtx, caller.Account)

		logger.With(logging.Fields(cmdCtx)...).Info("command received")
		resp := s.dispatch(cmdCtx, cmd, caller, send)
		ok := s.writeResponse(conn, codec, resp)
		s.metrics.RecordCommand(string(cmd.Type), responseCode(resp), time.Since(started))
		if !ok {
			logger.Warn("response write failed", "command_id", cmd.ID)
			return
		}
	}
}

// endRead logs why the read loop stopped and, for oversized frames, tells
// the peer before the connection closes.
func (s *Server) endRead(logger *slog.Logger, conn net.Conn, codec *wire.Codec, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("peer disconnected")
	case errors.Is(err, wire.ErrFrameTooLarge):
		logger.Warn("closing connection", "error", err)
		s.writeResponse(conn, codec, &wire.Response{
			Success: false,
			Errors:  []wire.Error{{Code: wire.CodeValidation, Message: err.Error()}},
		})
	case isTimeout(err):
		select {
		case <-s.quit:
			logger.Debug("connection drained for shutdown")
		default:
			logger.Debug("connection idle timeout")
		}
	default:
		logger.Debug("read failed", "error", err)
	}
}

// writeResponse writes the terminal frame under the write deadline and
// reports whether the connection is still usable.
func (s *Server) writeResponse(conn net.Conn, codec *wire.Codec, resp *wire.Response) bool {
	s.setWriteDeadline(conn)
	if err := codec.WriteResponse(resp); err != nil {
		s.logger.Debug("response write failed", "error", err)
		return false
	}
	return true
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// commandHints best-effort extracts the id and type from a frame that
// failed validation, so the response and metrics still correlate.
func commandHints(raw []byte) (id, cmdType string) {
	var probe struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Type == "" {
		return probe.ID, "unknown"
	}
	return probe.ID, probe.Type
}

// validationMessage renders a validation failure with every issue listed.
func validationMessage(err error) string {
	var ve *wire.ValidationError
	if errors.As(err, &ve) && len(ve.Issues) > 0 {
		return "command validation failed: " + ve.Details()
	}
	return err.Error()
}

// responseCode is the metrics label for a finished command.
func responseCode(resp *wire.Response) string {
	if resp.Success {
		return "ok"
	}
	if len(resp.Errors) > 0 {
		return resp.Errors[0].Code
	}
	return wire.CodeInternal
}
