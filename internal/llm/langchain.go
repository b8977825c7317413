package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainProvider wraps a langchaingo model. The backend runs in JSON mode
// and the response schema is appended to the system prompt.
type LangchainProvider struct {
	llm       llms.Model
	modelName string
}

// NewLangchainProvider creates an Ollama, OpenAI or Anthropic provider.
func NewLangchainProvider(cfg Config) (*LangchainProvider, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model), ollama.WithFormat("json")}
		if cfg.OllamaHost != "" {
			opts = append(opts, ollama.WithServerURL(cfg.OllamaHost))
		}
		model, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	return &LangchainProvider{llm: model, modelName: cfg.Model}, nil
}

// Generate runs one JSON-mode chat call.
func (m *LangchainProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	system, err := systemWithSchema(req.System, req.Schema)
	if err != nil {
		return nil, err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, req.User),
	}
	opts := []llms.CallOption{llms.WithJSONMode()}
	if req.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*req.Temperature)))
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages, opts...)
	duration := time.Since(start)
	if err != nil {
		slog.Warn("generate failed", "model", m.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, wrapFatalError(fmt.Errorf("generate with system: %w", err))
	}

	resp := &Response{Model: m.modelName}
	for _, choice := range response.Choices {
		resp.Candidates = append(resp.Candidates, choice.Content)
		resp.Usage.InputTokens += intInfo(choice.GenerationInfo, "PromptTokens", "input_tokens")
		resp.Usage.OutputTokens += intInfo(choice.GenerationInfo, "CompletionTokens", "output_tokens")
	}

	slog.Debug("generate complete", "model", m.modelName, "candidates", len(resp.Candidates), "duration_ms", duration.Milliseconds())
	return resp, nil
}

// Model returns the LLM model name.
func (m *LangchainProvider) Model() string {
	return m.modelName
}

func systemWithSchema(system string, schema map[string]any) (string, error) {
	if schema == nil {
		return system, nil
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode response schema: %w", err)
	}
	return fmt.Sprintf("%s\n\nSvara med ett enda JSON-objekt som följer detta JSON-schema:\n%s", system, data), nil
}

// intInfo reads the first integer found under keys in a GenerationInfo map.
func intInfo(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
