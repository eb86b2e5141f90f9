package schema

import (
	"fmt"
	"slices"
)

// Registry maps table names to their descriptors.
type Registry struct {
	metas map[string]*Meta
}

// NewRegistry builds a registry from descriptors. Duplicate names are an
// error.
func NewRegistry(metas ...*Meta) (*Registry, error) {
	r := &Registry{metas: make(map[string]*Meta, len(metas))}
	for _, m := range metas {
		if _, dup := r.metas[m.Name()]; dup {
			return nil, fmt.Errorf("duplicate table %q", m.Name())
		}
		r.metas[m.Name()] = m
	}
	return r, nil
}

// Lookup returns the descriptor for table.
func (r *Registry) Lookup(table string) (*Meta, bool) {
	m, ok := r.metas[table]
	return m, ok
}

// Tables returns the registered table names, sorted.
func (r *Registry) Tables() []string {
	names := make([]string, 0, len(r.metas))
	for name := range r.metas {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
