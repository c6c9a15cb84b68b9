package policy

import (
	"fmt"
	"log/slog"
	"sort"
)

// Resolver expands a requested policy set into a deterministic execution
// order with all dependency edges honored.
type Resolver struct {
	catalog *Catalog
	logger  *slog.Logger
}

// NewResolver creates a resolver over the given catalog.
func NewResolver(catalog *Catalog) *Resolver {
	return &Resolver{
		catalog: catalog,
		logger:  slog.Default().With("component", "policy.resolver"),
	}
}

// ResolveOptions tunes a single resolution.
type ResolveOptions struct {
	// SkipRecommended disables automatic inclusion of recommended
	// dependencies for this request. Required and prerequisite edges are
	// always honored.
	SkipRecommended bool
}

// Warning flags a non-fatal condition discovered during resolution.
type Warning struct {
	// PolicyID is the policy the warning is about.
	PolicyID string `json:"policy_id"`

	// ConflictsWith names the conflicting policy for conflict warnings.
	ConflictsWith string `json:"conflicts_with,omitempty"`

	// Message describes the condition.
	Message string `json:"message"`
}

// ResolveResult is the outcome of dependency resolution.
type ResolveResult struct {
	// Order lists every policy to execute, dependencies before dependents.
	Order []string

	// AutoIncluded lists the policies pulled in by dependency edges rather
	// than the original request, in execution order.
	AutoIncluded []string

	// Warnings lists conflict findings. Conflicts never fail resolution;
	// the caller decides whether to proceed.
	Warnings []Warning
}

// Resolve expands the requested IDs over the catalog's dependency graph.
// Unknown IDs fail with NotFoundError before any expansion happens. The
// returned order is deterministic for a given catalog and request.
func (r *Resolver) Resolve(requested []string, opts ResolveOptions) (*ResolveResult, error) {
	policies := make(map[string]*PolicyDefinition)
	for _, def := range r.catalog.All() {
		policies[def.ID] = def
	}

	requestedSet := make(map[string]bool, len(requested))
	for _, id := range requested {
		if _, ok := policies[id]; !ok {
			return nil, NewNotFoundError(id)
		}
		requestedSet[id] = true
	}

	walker := &resolveWalker{
		policies:        policies,
		skipRecommended: opts.SkipRecommended,
		visited:         make(map[string]bool),
		visiting:        make(map[string]bool),
	}

	roots := make([]string, 0, len(requestedSet))
	for id := range requestedSet {
		roots = append(roots, id)
	}
	sort.Strings(roots)
	for _, id := range roots {
		walker.visit(id)
	}

	result := &ResolveResult{Order: walker.order}

	selected := make(map[string]bool, len(walker.order))
	for _, id := range walker.order {
		selected[id] = true
	}
	for _, id := range walker.order {
		if !requestedSet[id] {
			result.AutoIncluded = append(result.AutoIncluded, id)
		}
		for _, dep := range policies[id].Dependencies {
			if dep.Kind == DependencyConflict && selected[dep.PolicyID] {
				result.Warnings = append(result.Warnings, Warning{
					PolicyID:      id,
					ConflictsWith: dep.PolicyID,
					Message: fmt.Sprintf("policy %q conflicts with %q and both are selected",
						id, dep.PolicyID),
				})
			}
		}
	}

	r.logger.Debug("resolved policy set",
		"requested", len(requested),
		"resolved", len(result.Order),
		"auto_included", len(result.AutoIncluded),
		"warnings", len(result.Warnings))

	return result, nil
}

// resolveWalker performs the depth-first expansion. Dependencies are visited
// in sorted ID order so the resulting topological order is stable.
type resolveWalker struct {
	policies        map[string]*PolicyDefinition
	skipRecommended bool
	visited         map[string]bool
	visiting        map[string]bool
	order           []string
}

func (w *resolveWalker) visit(id string) {
	// A node already on the stack is reachable through a recommended edge
	// back into the current path. Hard edges cannot cycle; the catalog
	// rejects those at load time.
	if w.visited[id] || w.visiting[id] {
		return
	}

	def, ok := w.policies[id]
	if !ok {
		return
	}

	w.visiting[id] = true

	deps := make([]Dependency, len(def.Dependencies))
	copy(deps, def.Dependencies)
	sort.Slice(deps, func(i, j int) bool { return deps[i].PolicyID < deps[j].PolicyID })

	for _, dep := range deps {
		switch dep.Kind {
		case DependencyRequired, DependencyPrerequisite:
			w.visit(dep.PolicyID)
		case DependencyRecommended:
			if !w.skipRecommended {
				w.visit(dep.PolicyID)
			}
		}
	}

	w.visiting[id] = false
	w.visited[id] = true
	w.order = append(w.order, id)
}
