package providers

import (
	"fmt"

	"github.com/virtuline/virtuline-backend/pkg/enums"
)

// Registry resolves the active provider for an order by explicit configuration.
type Registry struct {
	byID  map[enums.ProviderID]Provider
	order []enums.ProviderID
}

// NewRegistry builds a registry from the provided conformances. Nil entries are
// skipped; duplicate IDs are rejected.
func NewRegistry(list ...Provider) (*Registry, error) {
	r := &Registry{byID: map[enums.ProviderID]Provider{}}
	for _, p := range list {
		if p == nil {
			continue
		}
		id := p.ID()
		if !id.IsValid() {
			return nil, fmt.Errorf("provider with invalid id %q", id)
		}
		if _, exists := r.byID[id]; exists {
			return nil, fmt.Errorf("duplicate provider %q", id)
		}
		r.byID[id] = p
		r.order = append(r.order, id)
	}
	return r, nil
}

// Get returns the provider registered under id.
func (r *Registry) Get(id enums.ProviderID) (Provider, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", id)
	}
	return p, nil
}

// Enabled returns every registered provider whose enable flag is set, in
// registration order.
func (r *Registry) Enabled() []Provider {
	var out []Provider
	for _, id := range r.order {
		if p := r.byID[id]; p.Enabled() {
			out = append(out, p)
		}
	}
	return out
}
