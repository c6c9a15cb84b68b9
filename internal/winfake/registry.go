package winfake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"palisade-hq/palisade/pkg/winsys"
)

// Registry is an in-memory winsys.RegistryStore.
type Registry struct {
	mu sync.Mutex

	// keys maps normalized key path to a map of value name to value. A key
	// present with an empty map exists but holds no values.
	keys map[string]map[string]winsys.RegistryValue

	// names preserves the original casing of key paths for inspection.
	names map[string]string

	// SetErr, GetErr and DeleteErr are returned verbatim from the
	// corresponding operations when non-nil.
	SetErr    error
	GetErr    error
	DeleteErr error

	// Ops records each mutation in order, e.g. "set HKLM\...\Start".
	Ops []string
}

// NewRegistry creates an empty fake registry.
func NewRegistry() *Registry {
	return &Registry{
		keys:  make(map[string]map[string]winsys.RegistryValue),
		names: make(map[string]string),
	}
}

// Seed primes a value, creating the key.
func (r *Registry) Seed(path, name string, value winsys.RegistryValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureKey(path)[name] = value
}

// SeedKey primes an empty key.
func (r *Registry) SeedKey(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureKey(path)
}

func (r *Registry) ensureKey(path string) map[string]winsys.RegistryValue {
	np := normPath(path)
	if r.keys[np] == nil {
		r.keys[np] = make(map[string]winsys.RegistryValue)
		r.names[np] = path
	}
	return r.keys[np]
}

// GetValue implements winsys.RegistryStore.
func (r *Registry) GetValue(ctx context.Context, path, name string) (winsys.RegistryValue, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.GetErr != nil {
		return winsys.RegistryValue{}, false, r.GetErr
	}
	values, ok := r.keys[normPath(path)]
	if !ok {
		return winsys.RegistryValue{}, false, nil
	}
	value, ok := values[name]
	if !ok {
		return winsys.RegistryValue{}, false, nil
	}
	return value, true, nil
}

// SetValue implements winsys.RegistryStore.
func (r *Registry) SetValue(ctx context.Context, path, name string, value winsys.RegistryValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.SetErr != nil {
		return r.SetErr
	}
	r.ensureKey(path)[name] = value
	r.Ops = append(r.Ops, fmt.Sprintf("set %s!%s", path, name))
	return nil
}

// DeleteValue implements winsys.RegistryStore.
func (r *Registry) DeleteValue(ctx context.Context, path, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	values, ok := r.keys[normPath(path)]
	if !ok {
		return fmt.Errorf("%w: key %s", winsys.ErrNotFound, path)
	}
	if _, ok := values[name]; !ok {
		return fmt.Errorf("%w: value %s!%s", winsys.ErrNotFound, path, name)
	}
	delete(values, name)
	r.Ops = append(r.Ops, fmt.Sprintf("delete-value %s!%s", path, name))
	return nil
}

// DeleteKey implements winsys.RegistryStore. Subkeys go with the key.
func (r *Registry) DeleteKey(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	np := normPath(path)
	if _, ok := r.keys[np]; !ok {
		return fmt.Errorf("%w: key %s", winsys.ErrNotFound, path)
	}
	for existing := range r.keys {
		if existing == np || strings.HasPrefix(existing, np+`\`) {
			delete(r.keys, existing)
			delete(r.names, existing)
		}
	}
	r.Ops = append(r.Ops, "delete-key "+path)
	return nil
}

// KeyExists implements winsys.RegistryStore.
func (r *Registry) KeyExists(ctx context.Context, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.GetErr != nil {
		return false, r.GetErr
	}
	_, ok := r.keys[normPath(path)]
	return ok, nil
}
