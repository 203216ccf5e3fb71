// Package llm wraps the text generation backends used to author plans.
package llm

import (
	"context"
	"fmt"

	"github.com/pageza/platecoach/backend/config"
)

// Request is one generation call.
type Request struct {
	System    string
	Prompt    string
	Model     string
	MaxTokens int
}

// Result is the generated text and the token usage the backend reported.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider generates text. Failures worth retrying wrap apperrors.ErrProviderTransient.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// New builds the provider selected by cfg.
func New(ctx context.Context, cfg config.GenerationConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, cfg.APIKey)
	case config.ProviderFixture:
		return NewFixtureProvider(), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
