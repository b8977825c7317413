package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

const (
	// DefaultGeminiModel is the Gemini embedding model used for chunks and queries.
	DefaultGeminiModel = "text-embedding-004"

	// DefaultGeminiDimension is the output dimension of DefaultGeminiModel.
	DefaultGeminiDimension = 768

	// geminiBatchLimit is the maximum number of contents per batchEmbedContents call.
	geminiBatchLimit = 100
)

// GeminiEmbedder generates embeddings through the Gemini API.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGeminiEmbedder creates a Gemini embedding client.
func NewGeminiEmbedder(ctx context.Context, cfg Config) (*GeminiEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = DefaultGeminiDimension
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiEmbedder{client: client, model: model, dimension: dim}, nil
}

// Embed generates a query embedding.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates document embeddings, splitting into API-sized batches.
func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(texts))
		vecs, err := g.embed(ctx, texts[start:end], "RETRIEVAL_DOCUMENT")
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (g *GeminiEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	dim := int32(g.dimension)
	start := time.Now()
	result, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dim,
	})
	duration := time.Since(start)
	if err != nil {
		slog.Warn("embedding failed", "model", g.model, "count", len(texts), "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}

	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("count mismatch: got %d, want %d", got, len(texts))
	}

	vecs := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("embedding %d missing", i)
		}
		if err := checkDimension(e.Values, g.dimension); err != nil {
			return nil, fmt.Errorf("embedding %d: %w", i, err)
		}
		vecs[i] = e.Values
	}

	slog.Debug("embedding complete", "model", g.model, "count", len(texts), "duration_ms", duration.Milliseconds())
	return vecs, nil
}

// Model returns the embedding model name.
func (g *GeminiEmbedder) Model() string {
	return g.model
}

// Dimension returns the expected embedding dimension.
func (g *GeminiEmbedder) Dimension() int {
	return g.dimension
}
