// Package registry holds the run's package records. The registry is
// the single owner of every Package: stages mutate records in place,
// one stage at a time, while readers may inspect the set concurrently.
package registry

import (
	"sync"

	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/types"
)

// Registry maps package names to their mutable records, with a reverse
// index from full name. Records are never removed during a run, only
// advanced or stalled.
type Registry struct {
	mu         sync.RWMutex
	packages   map[string]*types.Package
	byFullName map[string]string
	order      []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		packages:   make(map[string]*types.Package),
		byFullName: make(map[string]string),
	}
}

// Add inserts a package. Packages are unique per full name per run.
func (r *Registry) Add(p *types.Package) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.packages[p.Name]; ok {
		return errors.Newf(errors.ErrInvalidInput, "package %s already registered", p.Name)
	}
	if existing, ok := r.byFullName[p.FullName]; ok {
		return errors.Newf(errors.ErrInvalidInput, "full name %s already registered as %s", p.FullName, existing)
	}

	r.packages[p.Name] = p
	r.byFullName[p.FullName] = p.Name
	r.order = append(r.order, p.Name)
	return nil
}

// Get returns the package for a name.
func (r *Registry) Get(name string) (*types.Package, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.packages[name]
	return p, ok
}

// GetByFullName returns the package for a full name.
func (r *Registry) GetByFullName(fullName string) (*types.Package, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byFullName[fullName]
	if !ok {
		return nil, false
	}
	p, ok := r.packages[name]
	return p, ok
}

// Has reports whether a name is already registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.packages[name]
	return ok
}

// Len returns the number of registered packages.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.packages)
}

// All returns the packages in discovery order. The slice is a
// snapshot; the records it points to are the live ones.
func (r *Registry) All() []*types.Package {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Package, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.packages[name])
	}
	return out
}

// Ready returns the packages that should be processed by a stage
// requiring at least the given completed stage: not failed, and
// advanced far enough.
func (r *Registry) Ready(stage types.Stage) []*types.Package {
	var out []*types.Package
	for _, p := range r.All() {
		if p.Ready(stage) {
			out = append(out, p)
		}
	}
	return out
}

// Failed returns the packages that stalled with errors, in discovery
// order, for the final summary.
func (r *Registry) Failed() []*types.Package {
	var out []*types.Package
	for _, p := range r.All() {
		if p.Failed() {
			out = append(out, p)
		}
	}
	return out
}
