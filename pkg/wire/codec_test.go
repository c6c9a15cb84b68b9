package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestCodec_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf, 0)

	payloads := [][]byte{
		[]byte(`{"a":1}`),
		[]byte(`{"b":"two"}`),
		bytes.Repeat([]byte("x"), 1024),
	}
	for _, p := range payloads {
		if err := codec.WriteFrame(p); err != nil {
			t.Fatalf("WriteFrame() failed: %v", err)
		}
	}

	for i, want := range payloads {
		got, err := codec.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() #%d failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame #%d = %q, want %q", i, got, want)
		}
	}
}

func TestCodec_ReadFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 1<<30)
	buf.Write(header[:])

	codec := NewCodec(&buf, 1024)
	_, err := codec.ReadFrame()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("ReadFrame() error = %v, want ErrFrameTooLarge", err)
	}
	// The oversized payload must not have been consumed or allocated.
	if buf.Len() != 0 {
		t.Errorf("buffer has %d unread bytes, want 0 (header only)", buf.Len())
	}
}

func TestCodec_WriteFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf, 8)

	err := codec.WriteFrame(bytes.Repeat([]byte("y"), 9))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("WriteFrame() error = %v, want ErrFrameTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes despite limit, want 0", buf.Len())
	}
}

func TestCodec_ReadFrame_EmptyAndTruncated(t *testing.T) {
	t.Run("zero length prefix", func(t *testing.T) {
		var buf bytes.Buffer
		buf.Write([]byte{0, 0, 0, 0})
		codec := NewCodec(&buf, 1024)
		if _, err := codec.ReadFrame(); err == nil {
			t.Error("ReadFrame() error = nil, want error for empty frame")
		}
	})

	t.Run("truncated payload", func(t *testing.T) {
		var buf bytes.Buffer
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 10)
		buf.Write(header[:])
		buf.WriteString("short")

		codec := NewCodec(&buf, 1024)
		_, err := codec.ReadFrame()
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("ReadFrame() error = %v, want io.ErrUnexpectedEOF", err)
		}
	})

	t.Run("clean EOF before header", func(t *testing.T) {
		codec := NewCodec(&bytes.Buffer{}, 1024)
		_, err := codec.ReadFrame()
		if !errors.Is(err, io.EOF) {
			t.Errorf("ReadFrame() error = %v, want io.EOF", err)
		}
	})
}

func TestCodec_ServerFrames(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf, 0)

	if err := codec.WriteProgress(&Progress{CommandID: "c1", Percent: 40, Message: "applying disable-smbv1"}); err != nil {
		t.Fatalf("WriteProgress() failed: %v", err)
	}
	if err := codec.WriteResponse(&Response{CommandID: "c1", Success: true}); err != nil {
		t.Fatalf("WriteResponse() failed: %v", err)
	}

	first, err := codec.ReadServerFrame()
	if err != nil {
		t.Fatalf("ReadServerFrame() failed: %v", err)
	}
	if first.Kind != FrameProgress || first.Progress == nil {
		t.Fatalf("first frame = %+v, want progress", first)
	}
	if first.Progress.Percent != 40 {
		t.Errorf("Percent = %d, want 40", first.Progress.Percent)
	}

	second, err := codec.ReadServerFrame()
	if err != nil {
		t.Fatalf("ReadServerFrame() failed: %v", err)
	}
	if second.Kind != FrameResponse || second.Response == nil {
		t.Fatalf("second frame = %+v, want response", second)
	}
	if second.Response.CommandID != "c1" || !second.Response.Success {
		t.Errorf("Response = %+v, want success for c1", second.Response)
	}
}

func TestCodec_ReadServerFrame_UnknownKind(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf, 0)
	if err := codec.WriteFrame([]byte(`{"kind":"mystery"}`)); err != nil {
		t.Fatalf("WriteFrame() failed: %v", err)
	}
	if _, err := codec.ReadServerFrame(); err == nil {
		t.Error("ReadServerFrame() error = nil, want error for unknown kind")
	}
}
