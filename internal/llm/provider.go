package llm

import (
	"context"
	"time"

	"github.com/ppiankov/islamcheck/internal/model"
)

// Provider defines the interface for LLM completion endpoints
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends a single user prompt and returns the raw completion text
	Complete(ctx context.Context, prompt string) (string, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openrouter", "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey is sent as the bearer credential
	APIKey string

	// BaseURL for the completion endpoint
	BaseURL string

	// Referer and Title are sent as HTTP-Referer / X-Title (OpenRouter attribution)
	Referer string
	Title   string

	// Timeout for a single API request
	Timeout time.Duration

	// MaxTokens for response generation (0 = provider default)
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns the OpenRouter defaults
func DefaultConfig() Config {
	return ConfigFromModel(model.DefaultConfig().Upstream)
}

// ConfigFromModel converts model.UpstreamConfig to llm.Config
func ConfigFromModel(up model.UpstreamConfig) Config {
	return Config{
		Provider:   up.Provider,
		Model:      up.Model,
		APIKey:     up.APIKey,
		BaseURL:    up.BaseURL,
		Referer:    up.Referer,
		Title:      up.Title,
		Timeout:    up.Timeout,
		MaxTokens:  up.MaxTokens,
		HTTPProxy:  up.HTTPProxy,
		HTTPSProxy: up.HTTPSProxy,
		NoProxy:    up.NoProxy,
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return fallback
}
