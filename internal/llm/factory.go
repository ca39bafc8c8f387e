package llm

import (
	"context"
	"fmt"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/config"
)

// Factory builds a Client for the model and key chosen at session
// configuration. An empty apiKey falls back to the environment credential.
type Factory func(ctx context.Context, modelName, apiKey string) (Client, error)

// NewFactory selects the transport named by cfg.Provider.
func NewFactory(cfg config.LLMConfig) (Factory, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return func(_ context.Context, _ string, apiKey string) (Client, error) {
			if apiKey == "" {
				apiKey = cfg.OpenAIAPIKey
			}
			if apiKey == "" {
				return nil, fmt.Errorf("OpenAI API key is missing")
			}
			return NewOpenAIClient(apiKey, cfg.OpenAIBaseURL, cfg.Timeout), nil
		}, nil
	case config.ProviderArk:
		return func(ctx context.Context, modelName, apiKey string) (Client, error) {
			chatModel, err := cfg.NewArkChatModel(ctx, modelName, apiKey)
			if err != nil {
				return nil, fmt.Errorf("failed to create chat model: %w", err)
			}
			return NewArkClient(chatModel), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// StaticFactory always returns client; used when the transport is injected.
func StaticFactory(client Client) Factory {
	return func(context.Context, string, string) (Client, error) {
		return client, nil
	}
}
