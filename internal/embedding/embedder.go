// Package embedding provides text embedding generation with multiple backend support.
package embedding

import (
	"context"
	"fmt"
)

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// Embed generates an embedding vector for a search query.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for documents being indexed.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	// Must match the vector index dimension of the chunk store.
	Dimension() int
}

// ProviderType identifies the embedding provider.
type ProviderType string

const (
	// ProviderGemini uses the Gemini API (text-embedding-004).
	ProviderGemini ProviderType = "gemini"

	// ProviderOllama uses a local Ollama server through langchaingo.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API through langchaingo.
	ProviderOpenAI ProviderType = "openai"

	// ProviderBedrock uses Amazon Titan text embeddings on Bedrock.
	ProviderBedrock ProviderType = "bedrock"
)

// Config holds configuration for creating an Embedder.
type Config struct {
	// Provider specifies which embedding backend to use.
	Provider ProviderType

	// Model is the embedding model name (provider-specific).
	// Gemini: "text-embedding-004" (768-dim)
	// Ollama: "nomic-embed-text" (768-dim)
	// Bedrock: "amazon.titan-embed-text-v2:0" (256, 512 or 1024-dim)
	Model string

	// Dimension is the required output dimension.
	// Set to 0 to use the provider's default.
	Dimension int

	GeminiAPIKey string
	OpenAIAPIKey string

	// Ollama-specific (uses OLLAMA_HOST env var if empty)
	OllamaHost string

	// Bedrock-specific (falls back to the AWS default chain if empty)
	AWSRegion string

	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// New creates an Embedder based on the provided configuration.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini embedding provider requires an API key")
		}
		return NewGeminiEmbedder(ctx, cfg)

	case ProviderOllama, ProviderOpenAI:
		return NewLangchainEmbedder(cfg)

	case ProviderBedrock:
		return NewBedrockEmbedder(ctx, cfg)

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

func checkDimension(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("dimension mismatch: got %d, want %d", len(vec), want)
	}
	return nil
}
