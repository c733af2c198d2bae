package catalog

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Registry maps source ids to their configs, preserving registration order.
// It is built once at startup and only read afterwards.
type Registry struct {
	sources map[string]SourceConfig
	order   []string
}

// NewRegistry validates and registers the given sources. A later source with
// the same id replaces the earlier one in place.
func NewRegistry(sources ...SourceConfig) (*Registry, error) {
	r := &Registry{sources: make(map[string]SourceConfig, len(sources))}
	for _, s := range sources {
		if err := r.register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(s SourceConfig) error {
	s.ID = strings.ToLower(strings.TrimSpace(s.ID))
	s.Jurisdiction = strings.ToUpper(strings.TrimSpace(s.Jurisdiction))
	if err := s.Validate(); err != nil {
		return err
	}
	if _, exists := r.sources[s.ID]; !exists {
		r.order = append(r.order, s.ID)
	}
	r.sources[s.ID] = s
	return nil
}

// Get returns a source by id.
func (r *Registry) Get(id string) (SourceConfig, error) {
	s, ok := r.sources[strings.ToLower(id)]
	if !ok {
		return SourceConfig{}, eris.Errorf("catalog: unknown source %q", id)
	}
	return s, nil
}

// Lookup returns a source by id and whether it exists.
func (r *Registry) Lookup(id string) (SourceConfig, bool) {
	s, ok := r.sources[strings.ToLower(id)]
	return s, ok
}

// All returns every source in registration order.
func (r *Registry) All() []SourceConfig {
	out := make([]SourceConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sources[id])
	}
	return out
}

// Enabled returns enabled sources in registration order.
func (r *Registry) Enabled() []SourceConfig {
	var out []SourceConfig
	for _, id := range r.order {
		if s := r.sources[id]; s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Indexed returns enabled sources that are ingested into an index.
func (r *Registry) Indexed() []SourceConfig {
	var out []SourceConfig
	for _, s := range r.Enabled() {
		if !s.Live() {
			out = append(out, s)
		}
	}
	return out
}

// ForJurisdiction returns the enabled source of a family serving a state.
func (r *Registry) ForJurisdiction(family Family, state string) (SourceConfig, bool) {
	state = strings.ToUpper(strings.TrimSpace(state))
	for _, s := range r.Enabled() {
		if s.Family == family && s.Jurisdiction == state {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// IDs returns all registered ids in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
