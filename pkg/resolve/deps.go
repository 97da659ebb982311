// Package resolve implements the resolution stages of the install
// pipeline: dependency discovery, bottle selection, and download-size
// probing. Each resolver operates on the shared registry and stalls
// individual packages instead of aborting the run.
package resolve

import (
	"github.com/rs/zerolog"

	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/logging"
	"github.com/pourtree/pourtree/pkg/registry"
	"github.com/pourtree/pourtree/pkg/types"
)

// DependencyResolver walks the formula graph breadth-first and
// populates the registry with one package per resolvable formula.
type DependencyResolver struct {
	store    types.FormulaStore
	registry *registry.Registry
	logger   zerolog.Logger
}

// NewDependencyResolver creates a resolver over the given store and
// registry.
func NewDependencyResolver(store types.FormulaStore, reg *registry.Registry) *DependencyResolver {
	return &DependencyResolver{
		store:    store,
		registry: reg,
		logger:   logging.GetLogger("resolve.deps"),
	}
}

type workItem struct {
	name       string
	requiredBy string
}

// Resolve seeds the work queue with the requested names and drains it.
// Every resolvable transitive dependency ends up in the registry
// exactly once; names missing from the store are returned as
// UnresolvedName errors and do not block their siblings.
func (r *DependencyResolver) Resolve(names []string) []error {
	var unresolved []error

	queue := make([]workItem, 0, len(names))
	for _, name := range names {
		queue = append(queue, workItem{name: name})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if p, ok := r.registry.Get(item.name); ok {
			// Already discovered; only record the extra dependent.
			if item.requiredBy != "" {
				addRequiredBy(p, item.requiredBy)
			}
			continue
		}

		f, ok := r.store.Lookup(item.name)
		if !ok {
			r.logger.Error().Str("package", item.name).Msg("formula not found")
			unresolved = append(unresolved,
				errors.Newf(errors.ErrUnresolvedName, "package %q not found", item.name).
					WithDetail("package", item.name))
			continue
		}

		p := &types.Package{
			Name:     f.Name,
			FullName: f.FullName,
			Version:  f.Versions.Stable,
			Revision: f.Revision,
			Stage:    types.StageResolved,
			Explicit: item.requiredBy == "",
		}
		if item.requiredBy != "" {
			p.RequiredBy = []string{item.requiredBy}
		}

		r.logger.Debug().
			Str("package", f.Name).
			Str("version", p.Version).
			Strs("dependencies", f.Dependencies).
			Msg("resolved")

		if err := r.registry.Add(p); err != nil {
			// Distinct name but colliding full name; surface and move on.
			unresolved = append(unresolved, err)
			continue
		}

		for _, dep := range r.store.Dependencies(f) {
			queue = append(queue, workItem{name: dep, requiredBy: f.Name})
		}
	}

	return unresolved
}

func addRequiredBy(p *types.Package, name string) {
	for _, existing := range p.RequiredBy {
		if existing == name {
			return
		}
	}
	p.RequiredBy = append(p.RequiredBy, name)
}
