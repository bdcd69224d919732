// Package embeddings abstracts text embedding providers behind a small
// capability interface so the orchestrator and ingestion pipeline never
// depend on a concrete vendor.
package embeddings

import (
	"context"
	"fmt"
)

// Embedder converts batches of text into fixed-dimension vectors.
// Implementations must be order-preserving: result i corresponds to
// texts[i]. A provider failure fails the whole batch.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Provider names accepted by NewEmbedder.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderFake   = "fake"
)

// Options carries provider selection and credentials.
type Options struct {
	Provider  string
	Model     string
	Dimension int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewEmbedder constructs the configured embedding provider.
func NewEmbedder(opts Options) (Embedder, error) {
	switch opts.Provider {
	case ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIEmbedder(opts), nil
	case ProviderFake:
		return NewFakeEmbedder(opts.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
}
