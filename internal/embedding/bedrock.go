package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	// DefaultBedrockModel is Amazon Titan Text Embeddings V2.
	DefaultBedrockModel = "amazon.titan-embed-text-v2:0"

	// DefaultBedrockDimension is the largest Titan V2 output size.
	DefaultBedrockDimension = 1024
)

// modelInvoker is the subset of the Bedrock runtime client used here.
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockEmbedder generates embeddings with Titan models on Amazon Bedrock.
type BedrockEmbedder struct {
	client    modelInvoker
	model     string
	dimension int
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// NewBedrockEmbedder loads the default AWS configuration and creates a client.
func NewBedrockEmbedder(ctx context.Context, cfg Config) (*BedrockEmbedder, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newBedrockEmbedder(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

func newBedrockEmbedder(client modelInvoker, cfg Config) *BedrockEmbedder {
	model := cfg.Model
	if model == "" {
		model = DefaultBedrockModel
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = DefaultBedrockDimension
	}
	return &BedrockEmbedder{client: client, model: model, dimension: dim}
}

// Embed generates an embedding for one text.
func (b *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanRequest{InputText: text, Dimensions: b.dimension, Normalize: true})
	if err != nil {
		return nil, fmt.Errorf("encode titan request: %w", err)
	}

	start := time.Now()
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	duration := time.Since(start)
	if err != nil {
		slog.Warn("embedding failed", "model", b.model, "text_len", len(text), "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("invoke %s: %w", b.model, err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode titan response: %w", err)
	}
	if err := checkDimension(resp.Embedding, b.dimension); err != nil {
		return nil, err
	}

	slog.Debug("embedding complete", "model", b.model, "tokens", resp.InputTextTokenCount, "duration_ms", duration.Milliseconds())
	return resp.Embedding, nil
}

// EmbedBatch embeds texts one at a time; Titan has no batch endpoint.
func (b *BedrockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := b.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embedding %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Model returns the Bedrock model id.
func (b *BedrockEmbedder) Model() string {
	return b.model
}

// Dimension returns the requested output dimension.
func (b *BedrockEmbedder) Dimension() int {
	return b.dimension
}
