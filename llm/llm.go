// Package llm abstracts chat completion providers.
package llm

import (
	"context"
	"fmt"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// GenerateOptions bound a single completion call.
type GenerateOptions struct {
	Temperature float32
	MaxTokens   int
}

// Client generates a completion for an ordered conversation. Provider
// errors propagate to the caller; no retries happen at this layer.
type Client interface {
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
}

// Provider names accepted by NewClient.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderFake   = "fake"
)

// Options carries provider selection and credentials.
type Options struct {
	Provider string
	Model    string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewClient constructs the configured chat provider.
func NewClient(opts Options) (Client, error) {
	switch opts.Provider {
	case ProviderOllama:
		return NewOllamaClient(opts), nil
	case ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	case ProviderFake:
		return NewFakeClient(""), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}
