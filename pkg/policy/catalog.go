package policy

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Catalog provides thread-safe storage for loaded policy definitions.
// Replace swaps the entire content atomically so readers always see a
// complete, validated catalog.
type Catalog struct {
	mu       sync.RWMutex
	policies map[string]*PolicyDefinition
	version  string
	loadTime time.Time
	logger   *slog.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		policies: make(map[string]*PolicyDefinition),
		logger:   slog.Default().With("component", "policy.catalog"),
	}
}

// Replace atomically replaces the catalog contents. The incoming set is
// validated as a whole before the swap: every definition must be valid on
// its own, IDs must be unique, dependency targets must exist, and the
// required and prerequisite edges must form a DAG. On any failure the
// previous contents stay in place.
func (c *Catalog) Replace(defs []*PolicyDefinition) error {
	next := make(map[string]*PolicyDefinition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return err
		}
		if _, exists := next[def.ID]; exists {
			return NewDefinitionError(def.ID, "id", "duplicate policy id")
		}
		next[def.ID] = def
	}

	for _, def := range next {
		for _, dep := range def.Dependencies {
			if _, ok := next[dep.PolicyID]; !ok {
				return NewDefinitionError(def.ID, "dependencies",
					fmt.Sprintf("dependency target %q does not exist", dep.PolicyID))
			}
		}
	}

	if err := detectCycles(next); err != nil {
		return err
	}

	version := computeVersion(defs)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.policies = next
	c.version = version
	c.loadTime = time.Now()

	c.logger.Info("catalog replaced",
		"policy_count", len(next),
		"version", version)

	return nil
}

// Get returns the policy with the given ID.
func (c *Catalog) Get(id string) (*PolicyDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.policies[id]
	if !ok {
		return nil, NewNotFoundError(id)
	}
	return def, nil
}

// All returns every policy, sorted by ID.
func (c *Catalog) All() []*PolicyDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	defs := make([]*PolicyDefinition, 0, len(c.policies))
	for _, def := range c.policies {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// IDs returns every policy ID, sorted.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.policies))
	for id := range c.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of policies in the catalog.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.policies)
}

// Version returns the content hash of the current catalog.
func (c *Catalog) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// LoadTime returns when the catalog was last replaced.
func (c *Catalog) LoadTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadTime
}

// computeVersion hashes the catalog content into a short stable version
// string. Definitions are hashed in ID order so the version does not depend
// on load order.
func computeVersion(defs []*PolicyDefinition) string {
	sorted := make([]*PolicyDefinition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, def := range sorted {
		fmt.Fprintf(h, "%s|%s|%s|%s|%t\n", def.ID, def.Name, def.Mechanism, def.Risk, def.Reversible)
		for _, dep := range def.Dependencies {
			fmt.Fprintf(h, "dep:%s|%s|%t\n", dep.PolicyID, dep.Kind, dep.Overridable)
		}
		if payload, err := json.Marshal(def.Details); err == nil {
			h.Write(payload)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// detectCycles walks the required and prerequisite edges of every policy
// looking for cycles. Recommended and conflict edges never force inclusion,
// so they cannot deadlock resolution and are ignored here.
func detectCycles(policies map[string]*PolicyDefinition) error {
	walker := &cycleWalker{
		policies: policies,
		visited:  make(map[string]bool),
		visiting: make(map[string]bool),
	}

	ids := make([]string, 0, len(policies))
	for id := range policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := walker.walk(id); err != nil {
			return err
		}
	}
	return nil
}

type cycleWalker struct {
	policies  map[string]*PolicyDefinition
	visited   map[string]bool
	visiting  map[string]bool
	pathStack []string
}

func (w *cycleWalker) walk(id string) error {
	if w.visiting[id] {
		start := 0
		for i, p := range w.pathStack {
			if p == id {
				start = i
				break
			}
		}
		cycle := append([]string{}, w.pathStack[start:]...)
		cycle = append(cycle, id)
		return &CycleError{Cycle: cycle}
	}
	if w.visited[id] {
		return nil
	}

	w.visiting[id] = true
	w.pathStack = append(w.pathStack, id)

	def := w.policies[id]
	for _, dep := range def.Dependencies {
		if dep.Kind != DependencyRequired && dep.Kind != DependencyPrerequisite {
			continue
		}
		if err := w.walk(dep.PolicyID); err != nil {
			return err
		}
	}

	w.pathStack = w.pathStack[:len(w.pathStack)-1]
	w.visiting[id] = false
	w.visited[id] = true

	return nil
}
