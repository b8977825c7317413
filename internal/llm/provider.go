// Package llm provides structured JSON generation over several LLM backends.
package llm

import (
	"context"
	"fmt"
)

// Provider generates JSON documents that follow a response schema.
type Provider interface {
	// Generate sends one system and user message pair and returns every
	// candidate the backend produced. Candidates are returned unvalidated.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Model returns the model identifier in use.
	Model() string
}

// Request describes a single structured generation call.
type Request struct {
	System string
	User   string

	// Schema is a self-contained JSON schema (no $ref) for the response.
	Schema map[string]any

	// SchemaName identifies the schema in logs and provider payloads.
	SchemaName string

	// Temperature is left to the provider default when nil.
	Temperature *float32
}

// Response holds the raw candidate texts of one call.
type Response struct {
	Candidates []string
	Model      string
	Usage      Usage
}

// Usage reports token consumption when the backend provides it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ProviderType identifies the generation backend.
type ProviderType string

const (
	ProviderGemini    ProviderType = "gemini"
	ProviderOllama    ProviderType = "ollama"
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
)

// DefaultGeminiModel is the generation model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Config selects and configures a Provider.
type Config struct {
	Provider ProviderType
	Model    string

	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string

	// BaseURL overrides the Gemini API endpoint.
	BaseURL string

	// RequestsPerSecond limits outgoing calls. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// New creates the configured provider, rate limited when requested.
func New(ctx context.Context, cfg Config) (Provider, error) {
	var p Provider
	var err error

	switch cfg.Provider {
	case ProviderGemini, "":
		p, err = NewGeminiProvider(ctx, cfg)
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic:
		p, err = NewLangchainProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond > 0 {
		p = NewRateLimited(p, cfg.RequestsPerSecond, cfg.Burst)
	}
	return p, nil
}
