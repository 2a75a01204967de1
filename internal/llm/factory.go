package llm

import (
	"fmt"
	"os"

	"github.com/hyperjump/shirabe/internal/config"
	"go.uber.org/zap"
)

// NewFromConfig builds the configured backend wrapped in Throttled.
func NewFromConfig(cfg *config.LLMConfig, logger *zap.Logger) (Backend, error) {
	timeout := cfg.TimeoutDuration()
	ollama := NewOllamaClient(OllamaConfig{
		BaseURL:        cfg.BaseURL,
		EmbeddingModel: cfg.EmbeddingModel,
		ChatModel:      cfg.ChatModel,
		Timeout:        timeout,
	}, WithLogger(logger))

	var backend Backend
	switch cfg.Provider {
	case config.ProviderOllama, "":
		backend = ollama
	case config.ProviderAnthropic:
		chat, err := NewAnthropicChat(AnthropicConfig{
			APIKey: os.Getenv(cfg.AnthropicAPIKeyEnv),
			Model:  cfg.AnthropicModel,
		}, WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("anthropic (set %s): %w", cfg.AnthropicAPIKeyEnv, err)
		}
		backend = NewHybrid(ollama, chat, cfg.AnthropicModel)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	return NewThrottled(backend, cfg.RequestsPerSecond, cfg.Burst, timeout, WithLogger(logger)), nil
}
