// Package source loads policy definitions from the file system and keeps a
// catalog current as files change.
//
// Definitions live in YAML files carrying any number of policies under a
// top-level policies key. A source loads a single file or a directory tree,
// validates the complete set, and atomically replaces the catalog contents.
// A load that fails validation leaves the previous catalog serving.
//
// With watching enabled, file changes trigger a debounced reload so rapid
// save bursts collapse into one catalog swap.
package source
