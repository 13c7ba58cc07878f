package blocks

import (
	"maps"
	"slices"
)

// Mode selects the output form a render pass produces.
type Mode string

const (
	// ModeHTML renders HTML fragments for the final email body.
	ModeHTML Mode = "html"
	// ModeText renders the plain-text alternative.
	ModeText Mode = "text"
)

// RenderFunc produces an output fragment from sanitized props and
// pre-compiled child fragments. Implementations must be pure: identical
// inputs always yield identical output, with no clocks, randomness, or
// shared state involved.
//
// Components whose schema declares a slot field receive their children via
// that prop (see Props.Fragments); the children argument is then empty.
type RenderFunc func(mode Mode, props Props, children []string) string

// Definition is one entry in the component registry.
type Definition struct {
	Label    string
	Defaults Props
	Fields   Fields
	Render   RenderFunc
}

// Registry maps component type names to their definitions. It is immutable
// after construction and safe for concurrent use.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry builds a registry from the given definitions.
func NewRegistry(defs map[string]Definition) *Registry {
	return &Registry{defs: maps.Clone(defs)}
}

// Lookup resolves a type name to its definition. The second return value
// reports whether the type is registered.
func (r *Registry) Lookup(typeName string) (Definition, bool) {
	def, ok := r.defs[typeName]
	return def, ok
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	return slices.Sorted(maps.Keys(r.defs))
}
