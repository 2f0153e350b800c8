package provider

import (
	"context"
	"errors"

	"github.com/studybuddy/backend/config"
	openai_provider "github.com/studybuddy/backend/provider/openai"
)

// ErrProvider marks any upstream LLM/embedding failure. Callers surface it as
// a query or ingestion failure; they must not retry silently.
var ErrProvider = errors.New("provider error")

// Provider is the interface that all LLM implementations must satisfy.
// Conversation history is baked into the prompt by the caller; every call is
// single-turn and keeps no provider-side state.
type Provider interface {
	// Generate produces a completion for prompt, bounded by maxOutputTokens.
	Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error)

	// Embed returns one fixed-length vector per input text, index-aligned.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider creates a new LLM client based on the provided configuration.
func NewProvider(cfg config.OpenAIConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("providers.openai.api_key not configured")
	}
	return openai_provider.NewClient(cfg), nil
}
