package config

import "time"

// Config holds picturebook configuration.
// Stored at: {home}/config.yaml
type Config struct {
	LLMProviders   map[string]LLMProviderCfg   `mapstructure:"llm_providers" yaml:"llm_providers"`
	ImageProviders map[string]ImageProviderCfg `mapstructure:"image_providers" yaml:"image_providers"`
	Defaults       DefaultsCfg                 `mapstructure:"defaults" yaml:"defaults"`
	Story          StoryCfg                    `mapstructure:"story" yaml:"story"`
	Illustration   IllustrationCfg             `mapstructure:"illustration" yaml:"illustration"`
	Storage        StorageCfg                  `mapstructure:"storage" yaml:"storage"`
	Queue          QueueCfg                    `mapstructure:"queue" yaml:"queue"`
	NATS           NATSCfg                     `mapstructure:"nats" yaml:"nats"`
}

// LLMProviderCfg configures a text-generation provider.
type LLMProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "openrouter", "openai", "gemini"
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url"`     // Optional endpoint override
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// ImageProviderCfg configures an image-generation provider.
type ImageProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "leonardo"
	Model     string  `mapstructure:"model" yaml:"model"`           // Provider model id
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url"`     // Optional endpoint override
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	LLMProvider   string `mapstructure:"llm_provider" yaml:"llm_provider"`     // Provider used for stories
	ImageProvider string `mapstructure:"image_provider" yaml:"image_provider"` // Provider used for illustrations
	MaxWorkers    int    `mapstructure:"max_workers" yaml:"max_workers"`       // Task worker goroutines
}

// StoryCfg tunes story generation requests.
type StoryCfg struct {
	MaxTokens    int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature"`
	InlinePhotos bool    `mapstructure:"inline_photos" yaml:"inline_photos"` // Download photos and send bytes instead of URLs
}

// IllustrationCfg tunes image generation. Durations use Go syntax ("10s", "5m").
type IllustrationCfg struct {
	PollInterval   string  `mapstructure:"poll_interval" yaml:"poll_interval"`
	PollTimeout    string  `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	PlaceholderURL string  `mapstructure:"placeholder_url" yaml:"placeholder_url"`
	Width          int     `mapstructure:"width" yaml:"width"`
	Height         int     `mapstructure:"height" yaml:"height"`
	Contrast       float64 `mapstructure:"contrast" yaml:"contrast"`
	MaxConcurrency int     `mapstructure:"max_concurrency" yaml:"max_concurrency"` // 0 = all pages at once
}

// StorageCfg selects where records and image bytes live.
type StorageCfg struct {
	Records       string `mapstructure:"records" yaml:"records"`                 // "memory" or "nats"
	Blobs         string `mapstructure:"blobs" yaml:"blobs"`                     // "fs", "nats" or "gcs"
	Dir           string `mapstructure:"dir" yaml:"dir"`                         // fs root (default {home}/blobs)
	Bucket        string `mapstructure:"bucket" yaml:"bucket"`                   // nats object store or gcs bucket
	RecordBucket  string `mapstructure:"record_bucket" yaml:"record_bucket"`     // nats key-value bucket
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"` // prefix for returned blob urls
}

// QueueCfg selects the task queue backend.
type QueueCfg struct {
	Backend  string `mapstructure:"backend" yaml:"backend"` // "memory" or "nats"
	Stream   string `mapstructure:"stream" yaml:"stream"`
	Subject  string `mapstructure:"subject" yaml:"subject"`
	Consumer string `mapstructure:"consumer" yaml:"consumer"`
	Size     int    `mapstructure:"size" yaml:"size"` // memory queue capacity
}

// NATSCfg holds the NATS connection used by nats-backed queue and storage.
type NATSCfg struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:    "openrouter",
				Model:   "openai/gpt-4o",
				APIKey:  "${OPENROUTER_API_KEY}",
				Enabled: true,
			},
			"openai": {
				Type:    "openai",
				Model:   "gpt-4o",
				APIKey:  "${OPENAI_API_KEY}",
				Enabled: false,
			},
			"gemini": {
				Type:    "gemini",
				Model:   "gemini-2.5-flash",
				APIKey:  "${GEMINI_API_KEY}",
				Enabled: false,
			},
		},
		ImageProviders: map[string]ImageProviderCfg{
			"leonardo": {
				Type:      "leonardo",
				APIKey:    "${LEONARDO_API_KEY}",
				RateLimit: 2.0,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider:   "openrouter",
			ImageProvider: "leonardo",
			MaxWorkers:    2,
		},
		Story: StoryCfg{
			MaxTokens:    2000,
			Temperature:  0.8,
			InlinePhotos: false,
		},
		Illustration: IllustrationCfg{
			PollInterval:   "10s",
			PollTimeout:    "5m",
			PlaceholderURL: "/static/placeholder-illustration.png",
			Width:          1024,
			Height:         1024,
			Contrast:       3.5,
		},
		Storage: StorageCfg{
			Records:       "memory",
			Blobs:         "fs",
			Bucket:        "picturebook-illustrations",
			RecordBucket:  "picturebook-narratives",
			PublicBaseURL: "/blobs",
		},
		Queue: QueueCfg{
			Backend:  "memory",
			Stream:   "PICTUREBOOK_TASKS",
			Subject:  "picturebook.tasks",
			Consumer: "picturebook-workers",
			Size:     1000,
		},
		NATS: NATSCfg{
			URL: "nats://127.0.0.1:4222",
		},
	}
}

// PollIntervalOr returns the parsed poll interval, or def if unset or invalid.
func (c IllustrationCfg) PollIntervalOr(def time.Duration) time.Duration {
	return parseDuration(c.PollInterval, def)
}

// PollTimeoutOr returns the parsed poll timeout, or def if unset or invalid.
func (c IllustrationCfg) PollTimeoutOr(def time.Duration) time.Duration {
	return parseDuration(c.PollTimeout, def)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// GetImageProvider returns an image provider config by name.
func (c *Config) GetImageProvider(name string) (ImageProviderCfg, bool) {
	cfg, ok := c.ImageProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// EnabledImageProviders returns all enabled image providers.
func (c *Config) EnabledImageProviders() map[string]ImageProviderCfg {
	result := make(map[string]ImageProviderCfg)
	for name, cfg := range c.ImageProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
