package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"palisade-hq/palisade/pkg/authz"
	"palisade-hq/palisade/pkg/config"
	"palisade-hq/palisade/pkg/engine"
	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/telemetry/metrics"
	"palisade-hq/palisade/pkg/wire"
)

// Options wires a Server's collaborators.
type Options struct {
	Engine     *engine.Engine
	Catalog    *policy.Catalog
	Store      ledger.Store
	Authorizer *authz.Authorizer

	// Inspector resolves the identity behind each accepted connection.
	Inspector authz.Inspector

	// Metrics may be nil; a nil collector records nothing.
	Metrics *metrics.Collector

	// Version is reported by ping and get_state.
	Version string

	// LedgerBackend is the configured backend name, reported by get_state.
	LedgerBackend string
}

// Server is the privileged control endpoint. One Server serves one listener
// for the lifetime of the process.
type Server struct {
	cfg        *config.ServerConfig
	engine     *engine.Engine
	catalog    *policy.Catalog
	store      ledger.Store
	authorizer *authz.Authorizer
	inspector  authz.Inspector
	metrics    *metrics.Collector
	validator  *wire.Validator
	version    string
	backend    string
	startedAt  time.Time
	logger     *slog.Logger

	listener net.Listener
	sem      chan struct{}
	wg       sync.WaitGroup

	// quit is closed when shutdown begins: connection loops stop reading
	// further commands and blocked reads are poisoned.
	quit chan struct{}

	// forceCtx parents every command dispatch. Cancelling it aborts
	// commands that outlive the shutdown grace period.
	forceCtx    context.Context
	forceCancel context.CancelFunc

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a control server. The listener is not created until Start.
func New(cfg *config.ServerConfig, opts Options) (*Server, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("server: config is required")
	case opts.Engine == nil:
		return nil, errors.New("server: engine is required")
	case opts.Catalog == nil:
		return nil, errors.New("server: catalog is required")
	case opts.Store == nil:
		return nil, errors.New("server: ledger store is required")
	case opts.Authorizer == nil:
		return nil, errors.New("server: authorizer is required")
	case opts.Inspector == nil:
		return nil, errors.New("server: identity inspector is required")
	}

	validator, err := wire.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("compiling command schemas: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 1
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	forceCtx, forceCancel := context.WithCancel(context.Background())
	return &Server{
		cfg:         cfg,
		engine:      opts.Engine,
		catalog:     opts.Catalog,
		store:       opts.Store,
		authorizer:  opts.Authorizer,
		inspector:   opts.Inspector,
		metrics:     opts.Metrics,
		validator:   validator,
		version:     version,
		backend:     opts.LedgerBackend,
		startedAt:   time.Now().UTC(),
		logger:      slog.Default().With("component", "server"),
		sem:         make(chan struct{}, maxConns),
		quit:        make(chan struct{}),
		forceCtx:    forceCtx,
		forceCancel: forceCancel,
	}, nil
}

// Start opens the platform listener and blocks until the context is
// cancelled, Shutdown is called, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	ln, err := listen(s.cfg)
	if err != nil {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return fmt.Errorf("opening control endpoint: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("control endpoint listening",
		"address", ln.Addr().String(),
		"max_connections", cap(s.sem))

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.acceptLoop(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		if err != nil {
			return err
		}
		// Listener closed by Shutdown; nothing left to do here.
		return s.Shutdown(context.Background())
	}
}

// acceptLoop accepts and hands off connections until the listener closes.
func (s *Server) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-s.quit:
				return nil
			default:
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.metrics.RecordConnectionRejected("limit")
			s.logger.Warn("connection limit reached, rejecting")
			// Reject off the accept path so a stalled peer cannot hold
			// up further accepts.
			go s.rejectBusy(conn)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.handleConn(s.forceCtx, conn)
		}()
	}
}

// rejectBusy tells a connection the server is full, then closes it.
func (s *Server) rejectBusy(conn net.Conn) {
	defer conn.Close()

	s.setWriteDeadline(conn)
	codec := wire.NewCodec(conn, s.cfg.MaxFrameBytes)
	resp := &wire.Response{
		Success: false,
		Errors:  []wire.Error{{Code: wire.CodeBusy, Message: "connection limit reached"}},
	}
	if err := codec.WriteResponse(resp); err != nil {
		s.logger.Debug("writing busy rejection failed", "error", err)
	}
}

// Shutdown stops accepting, drains idle connections and grants in-flight
// commands the configured grace period before cancelling them. It is safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		ln := s.listener
		s.mu.Unlock()

		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

		// Stop reading new commands. Connection watchers poison blocked
		// reads so idle connections drain immediately; in-flight commands
		// keep running.
		close(s.quit)

		if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				shutdownErr = fmt.Errorf("closing listener: %w", err)
			}
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		graceCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		select {
		case <-done:
		case <-graceCtx.Done():
			s.logger.Warn("grace period lapsed, cancelling in-flight commands")
			s.forceCancel()
			<-done
		}
		s.forceCancel()

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("control endpoint stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// setReadDeadline arms the per-command read deadline when one is configured.
func (s *Server) setReadDeadline(conn net.Conn) {
	if s.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
}

// setWriteDeadline arms the per-frame write deadline when one is configured.
func (s *Server) setWriteDeadline(conn net.Conn) {
	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
}
