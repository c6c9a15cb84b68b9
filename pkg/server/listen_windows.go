//go:build windows

package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"palisade-hq/palisade/pkg/config"
)

// pipeSDDL grants the control pipe to SYSTEM and the built-in
// administrators group only. The DACL is protected so nothing inherits
// wider access; remote callers are rejected at the pipe mode level.
const pipeSDDL = "D:P(A;;GA;;;SY)(A;;GA;;;BA)"

// FILE_FLAG_FIRST_PIPE_INSTANCE is not exported by x/sys/windows. Creating
// the first instance with it fails if the name is already claimed, so the
// daemon can never attach to a squatter's pipe.
const fileFlagFirstPipeInstance = 0x00080000

const pipeBufferSize = 64 * 1024

// listen opens the control named pipe. Connections are produced by
// pipeListener; each carries its instance handle for client token queries.
func listen(cfg *config.ServerConfig) (net.Listener, error) {
	if cfg.PipeName == "" {
		return nil, errors.New("server: pipe name not configured")
	}
	return newPipeListener(cfg.PipeName)
}

// EndpointName is the human-readable control endpoint for this platform.
func EndpointName(cfg *config.ServerConfig) string {
	return cfg.PipeName
}

type pipeListener struct {
	path string
	sa   *windows.SecurityAttributes

	// closeEvent wakes a pending Accept when the listener closes.
	closeEvent windows.Handle

	mu sync.Mutex

	// pending is the pre-created instance the next Accept will serve, so
	// the pipe name never goes un-listened between clients.
	pending windows.Handle
	first   bool
	closed  bool
	wg      sync.WaitGroup
}

func newPipeListener(path string) (*pipeListener, error) {
	sd, err := windows.SecurityDescriptorFromString(pipeSDDL)
	if err != nil {
		return nil, fmt.Errorf("building pipe security descriptor: %w", err)
	}
	sa := &windows.SecurityAttributes{
		Length:             uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		SecurityDescriptor: sd,
	}

	closeEvent, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("creating listener event: %w", err)
	}

	l := &pipeListener{
		path:       path,
		sa:         sa,
		closeEvent: closeEvent,
		pending:    windows.InvalidHandle,
		first:      true,
	}

	// Claim the name now so startup fails loudly when another process
	// holds it, rather than on the first client connection.
	h, err := l.createInstance()
	if err != nil {
		windows.CloseHandle(closeEvent)
		return nil, fmt.Errorf("creating pipe %s: %w", path, err)
	}
	l.pending = h

	return l, nil
}

func (l *pipeListener) createInstance() (windows.Handle, error) {
	name, err := windows.UTF16PtrFromString(l.path)
	if err != nil {
		return windows.InvalidHandle, err
	}

	flags := uint32(windows.PIPE_ACCESS_DUPLEX | windows.FILE_FLAG_OVERLAPPED)
	l.mu.Lock()
	if l.first {
		flags |= fileFlagFirstPipeInstance
		l.first = false
	}
	l.mu.Unlock()

	mode := uint32(windows.PIPE_TYPE_BYTE | windows.PIPE_READMODE_BYTE |
		windows.PIPE_WAIT | windows.PIPE_REJECT_REMOTE_CLIENTS)

	return windows.CreateNamedPipe(
		name,
		flags,
		mode,
		windows.PIPE_UNLIMITED_INSTANCES,
		pipeBufferSize,
		pipeBufferSize,
		0,
		l.sa,
	)
}

// Accept waits for the next client on the staged instance, then stages a
// fresh instance for the client after it.
func (l *pipeListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, net.ErrClosed
	}
	h := l.pending
	l.pending = windows.InvalidHandle
	l.wg.Add(1)
	l.mu.Unlock()
	defer l.wg.Done()

	if h == windows.InvalidHandle {
		var err error
		h, err = l.createInstance()
		if err != nil {
			return nil, &net.OpError{Op: "accept", Net: "pipe", Addr: l.Addr(), Err: err}
		}
	}

	if err := l.connect(h); err != nil {
		windows.CloseHandle(h)
		return nil, err
	}

	if next, err := l.createInstance(); err == nil {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			windows.CloseHandle(next)
			windows.CloseHandle(h)
			return nil, net.ErrClosed
		}
		l.pending = next
		l.mu.Unlock()
	}

	return newPipeConn(h, l.path), nil
}

// connect waits for a client on one instance handle, or for Close.
func (l *pipeListener) connect(h windows.Handle) error {
	event, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return &net.OpError{Op: "accept", Net: "pipe", Addr: l.Addr(), Err: err}
	}
	defer windows.CloseHandle(event)

	ov := &windows.Overlapped{HEvent: event}
	err = windows.ConnectNamedPipe(h, ov)
	switch err {
	case nil, windows.ERROR_PIPE_CONNECTED:
		// Client connected between instance creation and the call.
		return nil
	case windows.ERROR_IO_PENDING:
	default:
		return &net.OpError{Op: "accept", Net: "pipe", Addr: l.Addr(), Err: err}
	}

	which, err := windows.WaitForMultipleObjects(
		[]windows.Handle{event, l.closeEvent}, false, windows.INFINITE)
	if err != nil {
		windows.CancelIoEx(h, ov)
		return &net.OpError{Op: "accept", Net: "pipe", Addr: l.Addr(), Err: err}
	}
	if which == windows.WAIT_OBJECT_0+1 {
		windows.CancelIoEx(h, ov)
		var done uint32
		windows.GetOverlappedResult(h, ov, &done, true)
		return net.ErrClosed
	}

	var done uint32
	if err := windows.GetOverlappedResult(h, ov, &done, false); err != nil {
		if err == windows.ERROR_PIPE_CONNECTED {
			return nil
		}
		return &net.OpError{Op: "accept", Net: "pipe", Addr: l.Addr(), Err: err}
	}
	return nil
}

// Close stops the listener. A blocked Accept returns net.ErrClosed.
func (l *pipeListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	pending := l.pending
	l.pending = windows.InvalidHandle
	l.mu.Unlock()

	windows.SetEvent(l.closeEvent)
	l.wg.Wait()
	windows.CloseHandle(l.closeEvent)
	if pending != windows.InvalidHandle {
		windows.CloseHandle(pending)
	}
	return nil
}

func (l *pipeListener) Addr() net.Addr { return pipeAddr(l.path) }

type pipeAddr string

func (pipeAddr) Network() string  { return "pipe" }
func (a pipeAddr) String() string { return string(a) }

// pipeConn is one connected pipe instance. Reads and writes run overlapped
// so deadlines can cancel them; the instance handle stays available for
// client token queries.
type pipeConn struct {
	handle windows.Handle
	path   string

	closeOnce sync.Once
	closedCh  chan struct{}

	read  pipeDirection
	write pipeDirection
}

func newPipeConn(h windows.Handle, path string) *pipeConn {
	c := &pipeConn{
		handle:   h,
		path:     path,
		closedCh: make(chan struct{}),
	}
	c.read.init(h)
	c.write.init(h)
	return c
}

// PipeHandle exposes the instance handle for caller identity inspection.
func (c *pipeConn) PipeHandle() windows.Handle { return c.handle }

func (c *pipeConn) Read(p []byte) (int, error) {
	n, err := c.read.do(p, c.isClosed, func(buf []byte, done *uint32, ov *windows.Overlapped) error {
		return windows.ReadFile(c.handle, buf, done, ov)
	})
	if err != nil {
		return n, c.opError("read", err)
	}
	return n, nil
}

func (c *pipeConn) Write(p []byte) (int, error) {
	var total int
	for total < len(p) {
		n, err := c.write.do(p[total:], c.isClosed, func(buf []byte, done *uint32, ov *windows.Overlapped) error {
			return windows.WriteFile(c.handle, buf, done, ov)
		})
		total += n
		if err != nil {
			return total, c.opError("write", err)
		}
		if n == 0 {
			return total, c.opError("write", errors.New("pipe wrote no data"))
		}
	}
	return total, nil
}

// opError normalizes windows pipe errors onto net.Conn conventions.
func (c *pipeConn) opError(op string, err error) error {
	switch err {
	case nil:
		return nil
	case io.EOF, os.ErrDeadlineExceeded:
		return err
	case windows.ERROR_BROKEN_PIPE, windows.ERROR_PIPE_NOT_CONNECTED:
		if op == "read" {
			return io.EOF
		}
	case windows.ERROR_OPERATION_ABORTED:
		err = net.ErrClosed
	}
	return &net.OpError{Op: op, Net: "pipe", Addr: pipeAddr(c.path), Err: err}
}

func (c *pipeConn) isClosed() bool {
	select {
	case <-c.closedCh:
		return true
	default:
		return false
	}
}

// Close cancels in-flight operations, waits for them to drain, then closes
// the instance handle. Response bytes already written stay readable by the
// client.
func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closedCh)
		windows.CancelIoEx(c.handle, nil)

		// Taking both direction locks guarantees no operation still
		// touches the handle.
		c.read.mu.Lock()
		c.write.mu.Lock()
		windows.CloseHandle(c.handle)
		c.read.destroy()
		c.write.destroy()
		c.write.mu.Unlock()
		c.read.mu.Unlock()
	})
	return nil
}

func (c *pipeConn) LocalAddr() net.Addr  { return pipeAddr(c.path) }
func (c *pipeConn) RemoteAddr() net.Addr { return pipeAddr(c.path) }

func (c *pipeConn) SetDeadline(t time.Time) error {
	c.read.setDeadline(t)
	c.write.setDeadline(t)
	return nil
}

func (c *pipeConn) SetReadDeadline(t time.Time) error {
	c.read.setDeadline(t)
	return nil
}

func (c *pipeConn) SetWriteDeadline(t time.Time) error {
	c.write.setDeadline(t)
	return nil
}

// pipeDirection serializes one direction of pipe IO and carries its
// deadline. A firing deadline cancels the in-flight operation through
// CancelIoEx, which surfaces as ERROR_OPERATION_ABORTED.
type pipeDirection struct {
	handle windows.Handle
	event  windows.Handle

	// mu serializes operations in this direction.
	mu sync.Mutex

	// state guards the deadline bookkeeping below.
	state    sync.Mutex
	timer    *time.Timer
	expired  bool
	inflight *windows.Overlapped
}

func (d *pipeDirection) init(h windows.Handle) {
	d.handle = h
	// Event creation failing leaves event zero; do falls back to waiting
	// on the file handle, which is safe only because operations in each
	// direction are serialized.
	d.event, _ = windows.CreateEvent(nil, 1, 0, nil)
}

// destroy releases the completion event. Callers hold d.mu.
func (d *pipeDirection) destroy() {
	d.state.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.state.Unlock()
	if d.event != 0 {
		windows.CloseHandle(d.event)
		d.event = 0
	}
}

func (d *pipeDirection) setDeadline(t time.Time) {
	d.state.Lock()
	defer d.state.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.expired = false
	if t.IsZero() {
		return
	}

	wait := time.Until(t)
	if wait <= 0 {
		d.expireLocked()
		return
	}
	d.timer = time.AfterFunc(wait, func() {
		d.state.Lock()
		defer d.state.Unlock()
		d.expireLocked()
	})
}

// expireLocked marks the deadline hit and aborts any in-flight operation.
// Callers hold d.state.
func (d *pipeDirection) expireLocked() {
	d.expired = true
	if d.inflight != nil {
		windows.CancelIoEx(d.handle, d.inflight)
	}
}

// do runs one overlapped operation under the direction lock.
func (d *pipeDirection) do(p []byte, closed func() bool, issue func([]byte, *uint32, *windows.Overlapped) error) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if closed() {
		return 0, net.ErrClosed
	}

	ov := &windows.Overlapped{HEvent: d.event}
	d.state.Lock()
	if d.expired {
		d.state.Unlock()
		return 0, os.ErrDeadlineExceeded
	}
	d.inflight = ov
	d.state.Unlock()

	defer func() {
		d.state.Lock()
		d.inflight = nil
		d.state.Unlock()
	}()

	if d.event != 0 {
		windows.ResetEvent(d.event)
	}

	var done uint32
	err := issue(p, &done, ov)
	if err == windows.ERROR_IO_PENDING {
		err = windows.GetOverlappedResult(d.handle, ov, &done, true)
	}
	if err == windows.ERROR_OPERATION_ABORTED {
		d.state.Lock()
		expired := d.expired
		d.state.Unlock()
		if expired && !closed() {
			return int(done), os.ErrDeadlineExceeded
		}
	}
	return int(done), err
}
