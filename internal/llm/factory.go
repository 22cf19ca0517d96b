package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// NewProvider creates a provider based on configuration. A missing credential
// yields an error wrapping model.ErrConfiguration.
func NewProvider(config Config, logger *zap.Logger) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openrouter", "openai", "":
		return NewOpenAIProvider(config, logger)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openrouter, openai, anthropic, ollama)", config.Provider)
	}
}
