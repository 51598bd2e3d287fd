package providers

import (
	"fmt"

	"github.com/finsightai/finsight/internal/agent"
	"github.com/finsightai/finsight/internal/config"
)

// New builds the model provider selected by the configuration.
func New(cfg config.LLMConfig) (agent.ModelProvider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:       cfg.AnthropicAPIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:       cfg.OpenAIAPIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}
