package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrame bounds frame payloads when no limit is configured. Large
// enough for a full-catalog batch result, small enough to stop a hostile
// peer from ballooning memory.
const DefaultMaxFrame = 4 << 20

// Codec frames JSON messages over a byte stream: a 4-byte big-endian length
// prefix followed by the payload. One Codec serves one connection; it is not
// safe for concurrent use.
type Codec struct {
	rw  io.ReadWriter
	max int
}

// NewCodec wraps rw with the given frame size limit. A non-positive limit
// falls back to DefaultMaxFrame.
func NewCodec(rw io.ReadWriter, maxFrame int) *Codec {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	return &Codec{rw: rw, max: maxFrame}
}

// ReadFrame reads one length-prefixed payload. An oversized or zero length
// prefix fails before any payload byte is read.
func (c *Codec) ReadFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.rw, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("reading frame header: %w", io.ErrUnexpectedEOF)
		}
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, errors.New("wire: empty frame")
	}
	if int64(size) > int64(c.max) {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, size, c.max)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(c.rw, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed payload.
func (c *Codec) WriteFrame(payload []byte) error {
	if len(payload) == 0 {
		return errors.New("wire: empty frame")
	}
	if len(payload) > c.max {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, len(payload), c.max)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := c.rw.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := c.rw.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// WriteJSON marshals v and writes it as one frame.
func (c *Codec) WriteJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}
	return c.WriteFrame(payload)
}

// ReadServerFrame reads and decodes one daemon-to-client frame.
func (c *Codec) ReadServerFrame() (*ServerFrame, error) {
	payload, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	var frame ServerFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("decoding server frame: %w", err)
	}
	switch frame.Kind {
	case FrameProgress:
		if frame.Progress == nil {
			return nil, errors.New("wire: progress frame without body")
		}
	case FrameResponse:
		if frame.Response == nil {
			return nil, errors.New("wire: response frame without body")
		}
	default:
		return nil, fmt.Errorf("wire: unknown frame kind %q", frame.Kind)
	}
	return &frame, nil
}

// WriteProgress writes an interim progress frame.
func (c *Codec) WriteProgress(p *Progress) error {
	return c.WriteJSON(&ServerFrame{Kind: FrameProgress, Progress: p})
}

// WriteResponse writes the terminal response frame.
func (c *Codec) WriteResponse(r *Response) error {
	return c.WriteJSON(&ServerFrame{Kind: FrameResponse, Response: r})
}
