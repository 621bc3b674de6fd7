package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/soyeahso/tripdesk/internal/config"
	"github.com/soyeahso/tripdesk/internal/logging"
)

// Registry maps provider names, and model names aliased to them, onto
// clients. Models it cannot place go to the default provider, if one is set.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Client
	models    map[string]string
	dflt      string
	log       *logging.Logger
}

func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Client),
		models:    make(map[string]string),
		log:       log.Sub("llm.registry"),
	}
}

func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	r.providers[name] = client
	r.mu.Unlock()
	r.log.Debug().Str("provider", name).Msg("provider registered")
}

// Alias routes requests for model to provider.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model] = provider
}

// SetFallback names the provider that serves unknown models.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dflt = provider
}

// Resolve looks model up as a provider name, then as an alias, then falls
// back to the default provider.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range []string{model, r.models[model], r.dflt} {
		if c, ok := r.providers[name]; ok && name != "" {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no LLM provider for model %q", model)
}

func (r *Registry) has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewProvider constructs the SDK-backed client for a provider name.
func NewProvider(ctx context.Context, provider, model, apiKey, baseURL string) (Client, error) {
	switch strings.ToLower(provider) {
	case "gemini":
		return NewGeminiClient(ctx, apiKey, model, baseURL)
	case "openai":
		return NewOpenAIClient(apiKey, model, baseURL), nil
	case "claude":
		return NewClaudeClient(apiKey, model, baseURL), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// NewRegistryFromConfig registers the configured provider and every fallback.
// Each entry's model is aliased to its provider so a failover chain can be
// expressed purely in model names (see ModelChain).
func NewRegistryFromConfig(ctx context.Context, cfg config.LLMConfig, log *logging.Logger) (*Registry, error) {
	reg := NewRegistry(log)

	primary, err := NewProvider(ctx, cfg.Provider, cfg.Model, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	reg.Register(cfg.Provider, primary)
	reg.Alias(cfg.Model, cfg.Provider)
	reg.SetFallback(cfg.Provider)

	for i, fb := range cfg.Fallbacks {
		name := fb.Provider
		if reg.has(name) {
			name = fmt.Sprintf("%s-%d", fb.Provider, i+1)
		}
		client, err := NewProvider(ctx, fb.Provider, fb.Model, fb.APIKey, fb.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("fallback %d: %w", i, err)
		}
		reg.Register(name, client)
		reg.Alias(fb.Model, name)
	}

	return reg, nil
}

// ModelChain returns the primary model followed by fallback models.
func ModelChain(cfg config.LLMConfig) (string, []string) {
	fallbacks := make([]string, 0, len(cfg.Fallbacks))
	for _, fb := range cfg.Fallbacks {
		fallbacks = append(fallbacks, fb.Model)
	}
	return cfg.Model, fallbacks
}
