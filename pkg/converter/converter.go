// Package converter provides the obfuscation pipeline: named pure
// string→string transforms, validated converter chains, and a chain
// executor with per-converter effectiveness tracking.
package converter

import (
	"fmt"
	"sort"
)

// Converter is a pure payload transform. Convert must be deterministic:
// the same input always yields the same output (or the same error).
type Converter interface {
	Name() string
	Convert(s string) (string, error)
}

// entry pairs a converter with its registry metadata.
type entry struct {
	conv Converter
	// idempotent means applying the converter to its own output is a
	// no-op. Chains may repeat a converter only when a non-idempotent
	// converter sits between the repetitions.
	idempotent bool
}

// Registry resolves converter names. It is populated at construction and
// immutable afterwards, so lookups need no locking.
type Registry struct {
	entries map[string]entry
}

// NewRegistry builds a registry containing all built-in converters.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]entry)}
	for _, b := range builtins() {
		r.entries[b.conv.Name()] = b
	}
	return r
}

// Get resolves a converter by name.
func (r *Registry) Get(name string) (Converter, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("unknown converter %q", name)
	}
	return e.conv, nil
}

// MustGet resolves a converter or panics. For use with built-in names only.
func (r *Registry) MustGet(name string) Converter {
	c, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Has reports whether name resolves.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Idempotent reports whether the named converter is idempotent. Unknown
// names report false.
func (r *Registry) Idempotent(name string) bool {
	return r.entries[name].idempotent
}

// List returns all registered converter names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
