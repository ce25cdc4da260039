// Package llm holds the language model gateways used by the fallback generator.
package llm

import (
	"context"
	"fmt"

	"github.com/efuayankey/aimes-sub001/internal/config"
	"github.com/efuayankey/aimes-sub001/internal/fallback"
)

// New builds the gateway selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (fallback.Gateway, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, GeminiConfig{
			APIKey:    cfg.APIKey,
			Project:   cfg.Project,
			Location:  cfg.Location,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case "claude":
		return NewClaude(cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	case "mock", "":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
