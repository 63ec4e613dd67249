package provider

import (
	"fmt"
	"sync"
)

// Default model table per provider and tier. Config can override entries.
var defaultModels = map[string]map[Tier]string{
	"anthropic": {
		TierStrong: "claude-sonnet-4-20250514",
		TierFast:   "claude-haiku-4-5-20251001",
	},
	"openai": {
		TierStrong: "gpt-4o",
		TierFast:   "gpt-4o-mini",
	},
	"google": {
		TierStrong: "gemini-2.5-flash",
		TierFast:   "gemini-2.5-flash-lite",
	},
}

// Handle is a resolved (provider, model) pair ready to invoke.
type Handle struct {
	Provider Provider
	Name     string
	Model    string
	Tier     Tier
}

// Registry holds the configured providers in a fixed order. The order matters:
// retry rotation in the selector walks it to guarantee a retry lands on a
// different provider than the previous attempt.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]Provider
	models    map[string]map[Tier]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: map[string]Provider{},
		models:    map[string]map[Tier]string{},
	}
}

// Register adds a provider with its tier→model table. Registration order
// defines the rotation order. Models may be nil to use the defaults.
func (r *Registry) Register(p Provider, tierModels map[Tier]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p

	merged := map[Tier]string{}
	for tier, model := range defaultModels[name] {
		merged[tier] = model
	}
	for tier, model := range tierModels {
		if model != "" {
			merged[tier] = model
		}
	}
	r.models[name] = merged
}

// Order returns the provider names in registration order.
func (r *Registry) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Has reports whether a provider is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Resolve returns a Handle for the named provider at the given tier.
func (r *Registry) Resolve(name string, tier Tier) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider: unknown provider %q", name)
	}
	model := r.models[name][tier]
	if model == "" {
		return nil, fmt.Errorf("provider: no %s-tier model configured for %q", tier, name)
	}
	return &Handle{Provider: p, Name: name, Model: model, Tier: tier}, nil
}
