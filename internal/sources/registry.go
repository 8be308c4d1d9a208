package sources

import (
	"sort"
	"sync"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// Registry manages the set of registered source providers.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry, replacing any provider with the
// same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not registered.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// Enabled returns a snapshot of all enabled providers, sorted by tier and
// then by name so that iteration order is deterministic.
func (r *Registry) Enabled() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if p.Enabled() {
			providers = append(providers, p)
		}
	}
	sort.Slice(providers, func(i, j int) bool {
		if providers[i].Tier() != providers[j].Tier() {
			return providers[i].Tier() < providers[j].Tier()
		}
		return providers[i].Name() < providers[j].Name()
	})
	return providers
}

// CriticalNames returns the names of enabled providers in the critical tier.
// The orchestrator's early-stop policy waits on exactly this set.
func (r *Registry) CriticalNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, p := range r.providers {
		if p.Enabled() && p.Tier() == domain.TierCritical {
			names = append(names, p.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered providers, enabled or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
