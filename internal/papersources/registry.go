package papersources

import (
	"sync"

	"github.com/helixir/research-finder/internal/domain"
)

// Registry manages the configured sources.
// It provides thread-safe registration and retrieval; listings follow the
// canonical source order so dispatch and discovery order are stable.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]Source
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]Source),
	}
}

// Register adds a source to the registry.
// If a source with the same type already exists, it will be replaced.
func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type.
func (r *Registry) Get(sourceType domain.SourceType) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[sourceType]
	return s, ok
}

// Sources returns all registered sources in canonical order.
// The returned slice is a snapshot.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, 0, len(r.sources))
	for _, st := range domain.AllSourceTypes() {
		if s, ok := r.sources[st]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Types returns the registered source types in canonical order.
func (r *Registry) Types() []domain.SourceType {
	sources := r.Sources()
	out := make([]domain.SourceType, len(sources))
	for i, s := range sources {
		out[i] = s.SourceType()
	}
	return out
}

// EnabledTypes returns the types of enabled sources in canonical order.
func (r *Registry) EnabledTypes() []domain.SourceType {
	var out []domain.SourceType
	for _, s := range r.Sources() {
		if s.IsEnabled() {
			out = append(out, s.SourceType())
		}
	}
	return out
}
