// Package winfake provides in-memory implementations of the winsys
// facility interfaces for tests. Each fake records the operations applied
// to it and can be primed with state and injected failures.
package winfake

import "strings"

// normPath lowercases a registry or task path for case-insensitive lookup,
// matching how Windows treats these namespaces.
func normPath(p string) string {
	return strings.ToLower(p)
}
