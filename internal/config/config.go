// Package config provides configuration loading for evidenced.
//
// Configuration is resolved in three layers, lowest precedence first:
// hardcoded defaults, a YAML config file, and EVIDENCED_-prefixed
// environment variables. The resulting Config is treated as immutable
// once loaded.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Supported language-model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrInvalidConfig indicates a configuration value that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete evidenced configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	LLM        LLMConfig        `koanf:"llm"`
	Literature LiteratureConfig `koanf:"literature"`
	Context    ContextConfig    `koanf:"context"`
	Memory     MemoryConfig     `koanf:"memory"`
	Moderation ModerationConfig `koanf:"moderation"`
	DrugEvents DrugEventsConfig `koanf:"drug_events"`
	Cache      CacheConfig      `koanf:"cache"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// LLMConfig holds language-model client configuration.
type LLMConfig struct {
	Provider  string        `koanf:"provider"` // openai or anthropic
	Model     string        `koanf:"model"`
	APIKey    Secret        `koanf:"api_key"`
	BaseURL   string        `koanf:"base_url"`
	MaxTokens int           `koanf:"max_tokens"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"` // requests per second
	Burst     int           `koanf:"burst"`
}

// LiteratureConfig holds Europe PMC retrieval configuration.
type LiteratureConfig struct {
	BaseURL        string        `koanf:"base_url"`
	RateLimit      float64       `koanf:"rate_limit"` // requests per second, shared across sessions
	Burst          int           `koanf:"burst"`
	PageSize       int           `koanf:"page_size"`
	MaxPerQuery    int           `koanf:"max_per_query"`
	MaxTotal       int           `koanf:"max_total"`
	OpenAccessOnly bool          `koanf:"open_access_only"`
	Timeout        time.Duration `koanf:"timeout"`
	MaxRetries     int           `koanf:"max_retries"`
}

// ContextConfig holds evidence-context assembly configuration.
type ContextConfig struct {
	TokenBudget   int `koanf:"token_budget"`
	MaxSpanTokens int `koanf:"max_span_tokens"`
}

// MemoryConfig holds conversation memory configuration.
type MemoryConfig struct {
	MaxTurns    int    `koanf:"max_turns"`
	HistoryDir  string `koanf:"history_dir"`
	RecentTurns int    `koanf:"recent_turns"` // turns included in the model prompt
}

// ModerationConfig holds the pre-retrieval moderation gate configuration.
type ModerationConfig struct {
	Enabled bool `koanf:"enabled"`
}

// DrugEventsConfig holds the openFDA adverse-event client configuration.
type DrugEventsConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// CacheConfig holds the article excerpt cache configuration. The cache is
// optional; when disabled every question triggers live retrieval.
type CacheConfig struct {
	Enabled    bool            `koanf:"enabled"`
	Path       string          `koanf:"path"` // empty keeps the cache in memory
	Collection string          `koanf:"collection"`
	TopK       int             `koanf:"top_k"`
	Threshold  float64         `koanf:"threshold"`
	Embedding  EmbeddingConfig `koanf:"embedding"`
}

// EmbeddingConfig holds the embedding provider used by the cache. Any
// OpenAI-compatible endpoint works, including local TEI servers.
type EmbeddingConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8086,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		LLM: LLMConfig{
			Provider:  ProviderOpenAI,
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
			Timeout:   30 * time.Second,
			RateLimit: 2,
			Burst:     4,
		},
		Literature: LiteratureConfig{
			BaseURL:        "https://www.ebi.ac.uk/europepmc/webservices/rest",
			RateLimit:      5,
			Burst:          10,
			PageSize:       25,
			MaxPerQuery:    5,
			MaxTotal:       12,
			OpenAccessOnly: true,
			Timeout:        10 * time.Second,
			MaxRetries:     3,
		},
		Context: ContextConfig{
			TokenBudget:   3000,
			MaxSpanTokens: 600,
		},
		Memory: MemoryConfig{
			MaxTurns:    50,
			RecentTurns: 3,
		},
		Moderation: ModerationConfig{
			Enabled: true,
		},
		DrugEvents: DrugEventsConfig{
			BaseURL: "https://api.fda.gov/drug/event.json",
			Timeout: 20 * time.Second,
		},
		Cache: CacheConfig{
			Collection: "articles",
			TopK:       5,
			Threshold:  0.75,
			Embedding: EmbeddingConfig{
				BaseURL: "https://api.openai.com/v1",
				Model:   "text-embedding-3-small",
			},
		},
	}
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("%w: llm max_tokens must be positive", ErrInvalidConfig)
	}
	if c.Literature.RateLimit <= 0 {
		return fmt.Errorf("%w: literature rate_limit must be positive", ErrInvalidConfig)
	}
	if c.Literature.MaxPerQuery <= 0 || c.Literature.MaxTotal <= 0 {
		return fmt.Errorf("%w: literature result caps must be positive", ErrInvalidConfig)
	}
	if c.Literature.PageSize <= 0 {
		return fmt.Errorf("%w: literature page_size must be positive", ErrInvalidConfig)
	}
	if c.Context.TokenBudget <= 0 {
		return fmt.Errorf("%w: context token_budget must be positive", ErrInvalidConfig)
	}
	if c.Context.MaxSpanTokens <= 0 {
		return fmt.Errorf("%w: context max_span_tokens must be positive", ErrInvalidConfig)
	}
	if c.Memory.MaxTurns <= 0 {
		return fmt.Errorf("%w: memory max_turns must be positive", ErrInvalidConfig)
	}
	if c.Memory.RecentTurns < 0 {
		return fmt.Errorf("%w: memory recent_turns cannot be negative", ErrInvalidConfig)
	}
	if c.Cache.Enabled {
		if c.Cache.TopK <= 0 {
			return fmt.Errorf("%w: cache top_k must be positive", ErrInvalidConfig)
		}
		if c.Cache.Threshold <= 0 || c.Cache.Threshold > 1 {
			return fmt.Errorf("%w: cache threshold must be in (0, 1]", ErrInvalidConfig)
		}
	}
	return nil
}
