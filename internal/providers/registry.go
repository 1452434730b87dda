package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds references to LLM clients and image providers.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu             sync.RWMutex
	llmClients     map[string]LLMClient
	imageProviders map[string]ImageProvider
	llmCfgs        map[string]LLMProviderConfig
	imageCfgs      map[string]ImageProviderConfig
	logger         *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llmClients:     make(map[string]LLMClient),
		imageProviders: make(map[string]ImageProvider),
		llmCfgs:        make(map[string]LLMProviderConfig),
		imageCfgs:      make(map[string]ImageProviderConfig),
		logger:         slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterLLM registers an LLM client by name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmClients[name] = client
	if r.logger != nil {
		r.logger.Info("registered LLM client", "name", name)
	}
}

// RegisterImage registers an image provider by name.
func (r *Registry) RegisterImage(name string, provider ImageProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imageProviders[name] = provider
	if r.logger != nil {
		r.logger.Info("registered image provider", "name", name)
	}
}

// GetLLM returns an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.llmClients[name]
	if !ok {
		return nil, fmt.Errorf("LLM client %q: %w", name, ErrNotConfigured)
	}
	return client, nil
}

// GetImage returns an image provider by name.
func (r *Registry) GetImage(name string) (ImageProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.imageProviders[name]
	if !ok {
		return nil, fmt.Errorf("image provider %q: %w", name, ErrNotConfigured)
	}
	return provider, nil
}

// ListLLM returns all registered LLM client names, sorted.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llmClients))
	for name := range r.llmClients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListImage returns all registered image provider names, sorted.
func (r *Registry) ListImage() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.imageProviders))
	for name := range r.imageProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasLLM checks if an LLM client is registered.
func (r *Registry) HasLLM(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llmClients[name]
	return ok
}

// HasImage checks if an image provider is registered.
func (r *Registry) HasImage(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.imageProviders[name]
	return ok
}

// LLMFor returns an LLMClient that resolves the named client on every call,
// so config reloads take effect without rewiring callers.
func (r *Registry) LLMFor(name string) LLMClient {
	return &registryLLM{registry: r, name: name}
}

// ImageFor returns an ImageProvider that resolves the named provider on every call.
func (r *Registry) ImageFor(name string) ImageProvider {
	return &registryImage{registry: r, name: name}
}

type registryLLM struct {
	registry *Registry
	name     string
}

func (l *registryLLM) Name() string { return l.name }

func (l *registryLLM) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	client, err := l.registry.GetLLM(l.name)
	if err != nil {
		return nil, err
	}
	return client.Chat(ctx, req)
}

type registryImage struct {
	registry *Registry
	name     string
}

func (p *registryImage) Name() string { return p.name }

func (p *registryImage) Submit(ctx context.Context, req *ImageRequest) (*ImageJob, error) {
	provider, err := p.registry.GetImage(p.name)
	if err != nil {
		return nil, err
	}
	return provider.Submit(ctx, req)
}

func (p *registryImage) Status(ctx context.Context, jobID string) (*ImageJob, error) {
	provider, err := p.registry.GetImage(p.name)
	if err != nil {
		return nil, err
	}
	return provider.Status(ctx, jobID)
}

// RegistryConfig defines the providers to instantiate from config.
// This mirrors the config.Config structure for provider setup.
type RegistryConfig struct {
	// LLMProviders maps provider names to their config
	LLMProviders map[string]LLMProviderConfig

	// ImageProviders maps provider names to their config
	ImageProviders map[string]ImageProviderConfig
}

// LLMProviderConfig matches config.LLMProviderCfg with resolved API key.
type LLMProviderConfig struct {
	Type      string  // "openrouter", "openai", "gemini"
	Model     string  // Model name
	APIKey    string  // Resolved API key
	BaseURL   string  // Optional endpoint override
	RateLimit float64 // Requests per second
	Enabled   bool
}

// ImageProviderConfig matches config.ImageProviderCfg with resolved API key.
type ImageProviderConfig struct {
	Type      string  // "leonardo"
	Model     string  // Provider model id
	APIKey    string  // Resolved API key
	BaseURL   string  // Optional endpoint override
	RateLimit float64 // Requests per second
	Enabled   bool
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers with valid API keys will be registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured will be unregistered.
// Providers with changed settings will be re-registered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wantLLM := make(map[string]bool)
	wantImage := make(map[string]bool)

	for name, provCfg := range cfg.LLMProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		wantLLM[name] = true

		prev, hasExisting := r.llmCfgs[name]
		if hasExisting && prev == provCfg {
			continue
		}
		client := createLLMClient(provCfg)
		if client == nil {
			r.logWarn("unknown LLM provider type", "name", name, "type", provCfg.Type)
			wantLLM[name] = false
			continue
		}
		r.llmClients[name] = client
		r.llmCfgs[name] = provCfg
		if hasExisting {
			r.logInfo("updated LLM client", "name", name, "type", provCfg.Type)
		} else {
			r.logInfo("registered LLM client", "name", name, "type", provCfg.Type)
		}
	}

	for name, provCfg := range cfg.ImageProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		wantImage[name] = true

		prev, hasExisting := r.imageCfgs[name]
		if hasExisting && prev == provCfg {
			continue
		}
		provider := createImageProvider(provCfg)
		if provider == nil {
			r.logWarn("unknown image provider type", "name", name, "type", provCfg.Type)
			wantImage[name] = false
			continue
		}
		r.imageProviders[name] = provider
		r.imageCfgs[name] = provCfg
		if hasExisting {
			r.logInfo("updated image provider", "name", name, "type", provCfg.Type)
		} else {
			r.logInfo("registered image provider", "name", name, "type", provCfg.Type)
		}
	}

	// Remove providers that are no longer configured
	for name := range r.llmClients {
		if !wantLLM[name] {
			delete(r.llmClients, name)
			delete(r.llmCfgs, name)
			r.logInfo("unregistered LLM client", "name", name)
		}
	}
	for name := range r.imageProviders {
		if !wantImage[name] {
			delete(r.imageProviders, name)
			delete(r.imageCfgs, name)
			r.logInfo("unregistered image provider", "name", name)
		}
	}
}

func (r *Registry) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Registry) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

// createLLMClient creates an LLM client based on provider type.
func createLLMClient(cfg LLMProviderConfig) LLMClient {
	switch cfg.Type {
	case OpenRouterName:
		return NewOpenRouterClient(OpenRouterConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			RPS:          cfg.RateLimit,
		})
	case OpenAIName:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			RPS:          cfg.RateLimit,
		})
	case GeminiName:
		return NewGeminiClient(GeminiConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			RPS:          cfg.RateLimit,
		})
	default:
		return nil
	}
}

// createImageProvider creates an image provider based on provider type.
func createImageProvider(cfg ImageProviderConfig) ImageProvider {
	switch cfg.Type {
	case LeonardoName:
		return NewLeonardoClient(LeonardoConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			ModelID: cfg.Model,
			RPS:     cfg.RateLimit,
		})
	default:
		return nil
	}
}
