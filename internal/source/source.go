// Package source defines the enrichment source contract, the registry that
// maps names to sources, and the invoker that calls them with retries.
package source

import (
	"context"
	"slices"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

var (
	// ErrUnknownSource is returned for a name with no registered source.
	ErrUnknownSource = eris.New("source: unknown source")
	// ErrNotApplicable is returned when a source does not serve an entity type.
	ErrNotApplicable = eris.New("source: not applicable to entity type")
)

// Response is what a source returns for one record.
type Response struct {
	Fields model.Fields
	// Verified marks fields the source independently confirmed.
	Verified   map[string]bool
	Confidence float64
}

// Source is one external lookup capability.
type Source interface {
	// Name is the identifier strategies refer to.
	Name() string
	// AppliesTo reports whether the source serves an entity type.
	AppliesTo(et model.EntityType) bool
	// ReferenceURL is the provenance link recorded when a lookup succeeds.
	ReferenceURL(rec model.Record) string
	// Lookup queries the source. Implementations must honor ctx.
	Lookup(ctx context.Context, rec model.Record, et model.EntityType) (*Response, error)
}

// Registry maps names to sources. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry holding srcs.
func NewRegistry(srcs ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source, len(srcs))}
	for _, s := range srcs {
		r.Register(s)
	}
	return r
}

// Register adds s, replacing any source with the same name.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get returns the named source or ErrUnknownSource.
func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownSource, "%q", name)
	}
	return s, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[name]
	return ok
}

// List returns registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
