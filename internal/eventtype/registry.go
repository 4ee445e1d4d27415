package eventtype

import "fmt"

// Registry maps event type names to payload descriptors. It is built once at
// startup and never mutated afterwards, so concurrent reads need no locking.
type Registry struct {
	descriptors map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register adds a descriptor under its type name. Registering the same name
// twice is a configuration error and must be treated as fatal by the caller.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("descriptor has no type name")
	}
	if _, exists := r.descriptors[d.Name]; exists {
		return fmt.Errorf("event type %q registered twice", d.Name)
	}
	r.descriptors[d.Name] = d
	return nil
}

// Resolve returns the descriptor for a type name, if one is registered.
func (r *Registry) Resolve(name string) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// Known reports whether a type name has a registered descriptor.
func (r *Registry) Known(name string) bool {
	_, ok := r.descriptors[name]
	return ok
}
