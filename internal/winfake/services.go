package winfake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/winsys"
)

// Services is an in-memory winsys.ServiceManager.
type Services struct {
	mu sync.Mutex

	services map[string]winsys.ServiceStatus

	// StopErr is returned from Stop when non-nil; the service then stays
	// in its prior state.
	StopErr error

	// QueryErr is returned from Query when non-nil.
	QueryErr error

	// Ops records mutations in order, e.g. "stop Spooler".
	Ops []string
}

// NewServices creates an empty fake service manager.
func NewServices() *Services {
	return &Services{services: make(map[string]winsys.ServiceStatus)}
}

// Seed primes one service.
func (s *Services) Seed(name string, mode policy.ServiceStartMode, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[name] = winsys.ServiceStatus{StartMode: mode, State: state}
}

// Query implements winsys.ServiceManager.
func (s *Services) Query(ctx context.Context, name string) (winsys.ServiceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.QueryErr != nil {
		return winsys.ServiceStatus{}, s.QueryErr
	}
	status, ok := s.services[name]
	if !ok {
		return winsys.ServiceStatus{}, fmt.Errorf("%w: service %s", winsys.ErrNotFound, name)
	}
	return status, nil
}

// SetStartMode implements winsys.ServiceManager.
func (s *Services) SetStartMode(ctx context.Context, name string, mode policy.ServiceStartMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.services[name]
	if !ok {
		return fmt.Errorf("%w: service %s", winsys.ErrNotFound, name)
	}
	status.StartMode = mode
	s.services[name] = status
	s.Ops = append(s.Ops, fmt.Sprintf("set-start-mode %s %d", name, int(mode)))
	return nil
}

// Stop implements winsys.ServiceManager.
func (s *Services) Stop(ctx context.Context, name string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.services[name]
	if !ok {
		return fmt.Errorf("%w: service %s", winsys.ErrNotFound, name)
	}
	if s.StopErr != nil {
		return s.StopErr
	}
	status.State = "stopped"
	s.services[name] = status
	s.Ops = append(s.Ops, "stop "+name)
	return nil
}

// Start implements winsys.ServiceManager.
func (s *Services) Start(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.services[name]
	if !ok {
		return fmt.Errorf("%w: service %s", winsys.ErrNotFound, name)
	}
	status.State = winsys.ServiceRunning
	s.services[name] = status
	s.Ops = append(s.Ops, "start "+name)
	return nil
}
