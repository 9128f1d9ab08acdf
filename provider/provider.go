package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/mohammad-safakhou/researcher/config"
	openai_provider "github.com/mohammad-safakhou/researcher/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
)

// ErrMissingAPIKey is returned when neither the user nor the server supplies a key.
var ErrMissingAPIKey = errors.New("llm api key not configured")

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	// Chat returns the assistant reply as plain text.
	Chat(ctx context.Context, system, user string) (string, error)
	// ChatJSON asks for a JSON object reply and decodes it into out.
	ChatJSON(ctx context.Context, system, user string, out any) error
}

// NewProvider creates a new LLM client. apiKey overrides the configured key when set.
func NewProvider(client Client, cfg config.OpenAIConfig, apiKey string) (Provider, error) {
	switch client {
	case OpenAI:
		key := strings.TrimSpace(apiKey)
		if key == "" {
			key = strings.TrimSpace(cfg.APIKey)
		}
		if key == "" {
			return nil, ErrMissingAPIKey
		}
		return openai_provider.NewOpenAIClient(openai_provider.Options{
			APIKey:      key,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
			MaxRetries:  cfg.MaxRetries,
		}), nil
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}
