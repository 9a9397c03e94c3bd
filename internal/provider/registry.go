package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/pkg/types"
)

// Registry holds the configured providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry creates an empty registry.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider, wrapped with the retry policy.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = WithRetry(p)
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return p, nil
}

// List returns all providers sorted by ID.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// GetModel resolves a model within a provider, honoring the provider's
// whitelist and blacklist from config.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	p, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}
	for _, m := range p.Models() {
		if m.ID != modelID {
			continue
		}
		if !r.modelAllowed(providerID, modelID) {
			return nil, fmt.Errorf("model not allowed by config: %s/%s", providerID, modelID)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

func (r *Registry) modelAllowed(providerID, modelID string) bool {
	if r.config == nil {
		return true
	}
	cfg, ok := r.config.Provider[providerID]
	if !ok {
		return true
	}
	for _, blocked := range cfg.Blacklist {
		if blocked == modelID {
			return false
		}
	}
	if len(cfg.Whitelist) > 0 {
		for _, allowed := range cfg.Whitelist {
			if allowed == modelID {
				return true
			}
		}
		return false
	}
	return true
}

// AllModels returns every allowed model across providers.
func (r *Registry) AllModels() []types.Model {
	var models []types.Model
	for _, p := range r.List() {
		for _, m := range p.Models() {
			if r.modelAllowed(p.ID(), m.ID) {
				models = append(models, m)
			}
		}
	}
	return models
}

// DefaultModel resolves the configured default, falling back to the
// first available model.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.config != nil && r.config.Model != "" {
		providerID, modelID := ParseModelString(r.config.Model)
		return r.GetModel(providerID, modelID)
	}
	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ParseModelString splits a "provider/model" selection.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// Initialize builds the registry from config. Providers with no
// credentials are skipped, not fatal; a misconfigured key surfaces on
// first use instead.
func Initialize(ctx context.Context, config *types.Config) *Registry {
	registry := NewRegistry(config)

	register := func(id string, build func(cfg types.ProviderConfig) (Provider, error)) {
		cfg, ok := config.Provider[id]
		if !ok || cfg.Disable {
			return
		}
		p, err := build(cfg)
		if err != nil {
			logging.Warn().Err(err).Str("provider", id).Msg("provider not configured")
			return
		}
		registry.Register(p)
	}

	register("anthropic", func(cfg types.ProviderConfig) (Provider, error) {
		return NewAnthropic(ctx, &AnthropicConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	})
	register("openai", func(cfg types.ProviderConfig) (Provider, error) {
		return NewOpenAI(ctx, &OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	})
	register("ark", func(cfg types.ProviderConfig) (Provider, error) {
		return NewArk(ctx, &ArkConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	})
	register("mock", func(cfg types.ProviderConfig) (Provider, error) {
		return NewMock(), nil
	})

	return registry
}
