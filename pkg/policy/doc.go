// Package policy defines the hardening policy model: typed definitions with
// mechanism-specific detail payloads, a thread-safe catalog, and dependency
// resolution over the policy graph.
//
// # Policy Model
//
// A PolicyDefinition describes one reversible system change. Every definition
// carries a mechanism tag (registry, service, scheduled_task, firewall,
// script) and a Details payload typed for that mechanism. Payloads are
// decoded exactly once when the definition is parsed; nothing downstream
// ever re-parses raw YAML or JSON at apply time. Unknown mechanisms and
// malformed payloads are load-time errors.
//
// # Core Components
//
// Catalog provides thread-safe in-memory storage for loaded definitions
// with copy-on-write semantics. Replace validates the incoming set as a
// whole (per-definition validity, unique IDs, resolvable dependency
// targets, acyclic hard edges) before atomically swapping it in, so
// readers never observe a partially loaded catalog.
//
// Resolver expands a requested policy set into a deterministic execution
// order. Required and prerequisite dependencies are pulled in transitively
// and ordered before their dependents. Recommended dependencies are
// included by default and can be skipped per request. Conflict edges
// produce warnings, never hard failures.
//
// # Basic Usage
//
// Loading definitions into a catalog and resolving an execution order:
//
//	catalog := policy.NewCatalog()
//	if err := catalog.Replace(defs); err != nil {
//	    log.Fatal(err)
//	}
//
//	resolver := policy.NewResolver(catalog)
//	result, err := resolver.Resolve([]string{"disable-smbv1"}, policy.ResolveOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, id := range result.Order {
//	    fmt.Println(id)
//	}
//
// # Error Handling
//
// The package provides typed errors for the failure scenarios callers need
// to distinguish:
//
// DefinitionError: a definition failed validation (bad field, duplicate ID,
// missing dependency target)
//
// CycleError: required or prerequisite edges form a cycle; the error lists
// the cycle path
//
// NotFoundError: a requested policy ID is not in the catalog
//
// # Thread Safety
//
// Catalog reads and Replace are safe for concurrent use. The resolver takes
// a consistent snapshot of the catalog per call, so a concurrent reload
// cannot produce an order mixing two catalog generations.
package policy
