package providers

import (
	"fmt"
	"sync"

	"github.com/meshcrew/groupchat/config"
)

// Registry resolves a provider_id to a live Gateway, constructing and
// caching gateways lazily from the provider configuration document it was
// built with. The document is not re-read per request: a gateway, once
// constructed, is reused until Close. Grounded on llms/registry.go's
// LLMRegistry.
type Registry struct {
	mu        sync.Mutex
	providers config.ProviderConfigs
	cache     map[string]Gateway
}

// NewRegistry builds a Registry over a resolved ProviderConfigs document.
func NewRegistry(providers config.ProviderConfigs) *Registry {
	return &Registry{
		providers: providers,
		cache:     make(map[string]Gateway),
	}
}

// Get resolves providerID to a Gateway, constructing it on first use.
func (r *Registry) Get(providerID string) (Gateway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gw, ok := r.cache[providerID]; ok {
		return gw, nil
	}

	cfg, ok := r.providers.LLMs[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown provider_id %q", providerID)
	}

	gw, err := FromConfig(&cfg)
	if err != nil {
		return nil, fmt.Errorf("constructing gateway for %q: %w", providerID, err)
	}
	r.cache[providerID] = gw
	return gw, nil
}

// FromConfig constructs the vendor-specific Gateway implementation named
// by cfg.Type. The gateway is the only place that knows provider flavor
// (§4.A).
func FromConfig(cfg *config.LLMProviderConfig) (Gateway, error) {
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicGateway(cfg)
	case "openai":
		return NewOpenAIGateway(cfg)
	case "ollama":
		return NewOllamaGateway(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider type %q", cfg.Type)
	}
}

// Close releases every cached gateway.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, gw := range r.cache {
		if err := gw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
