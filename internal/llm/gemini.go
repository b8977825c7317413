package llm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider using the Gemini API with native
// structured output.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
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

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Generate requests JSON output constrained by req.Schema.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      req.Temperature,
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.Schema != nil {
		schema, err := BuildGeminiSchema(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("convert %s schema: %w", req.SchemaName, err)
		}
		config.ResponseSchema = schema
	}

	contents := []*genai.Content{genai.NewContentFromText(req.User, genai.RoleUser)}

	start := time.Now()
	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	duration := time.Since(start)
	if err != nil {
		slog.Warn("gemini generate failed", "model", p.model, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, wrapFatalError(fmt.Errorf("gemini generate: %w", err))
	}

	resp := &Response{Model: p.model}
	for _, c := range result.Candidates {
		resp.Candidates = append(resp.Candidates, candidateText(c))
	}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}

	slog.Debug("gemini generate complete",
		"model", p.model,
		"candidates", len(resp.Candidates),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration_ms", duration.Milliseconds())
	return resp, nil
}

// Model returns the Gemini model id.
func (p *GeminiProvider) Model() string {
	return p.model
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range c.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// BuildGeminiSchema converts a self-contained JSON schema map to a
// genai.Schema. A two-branch anyOf with a null branch becomes the non-null
// branch marked nullable. Unresolved references are rejected.
func BuildGeminiSchema(def map[string]any) (*genai.Schema, error) {
	if ref, ok := def["$ref"].(string); ok {
		return nil, fmt.Errorf("unresolved reference %s", ref)
	}

	if branches, ok := def["anyOf"].([]any); ok {
		return buildAnyOf(def, branches)
	}

	schema := &genai.Schema{}

	if t, ok := def["type"].(string); ok {
		schema.Type = mapGeminiType(t)
	}
	if title, ok := def["title"].(string); ok {
		schema.Title = title
	}
	if desc, ok := def["description"].(string); ok {
		schema.Description = desc
	}

	if props, ok := def["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			propDef, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("property %s: not an object", k)
			}
			prop, err := BuildGeminiSchema(propDef)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", k, err)
			}
			schema.Properties[k] = prop
		}
	}

	schema.Required = stringList(def["required"])
	if len(schema.Properties) > 0 {
		schema.PropertyOrdering = propertyOrder(schema.Properties, schema.Required)
	}

	if enums, ok := def["enum"].([]any); ok {
		for _, e := range enums {
			schema.Enum = append(schema.Enum, fmt.Sprint(e))
		}
	}

	if items, ok := def["items"].(map[string]any); ok {
		item, err := BuildGeminiSchema(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		schema.Items = item
	}

	return schema, nil
}

func buildAnyOf(def map[string]any, branches []any) (*genai.Schema, error) {
	var nonNull []map[string]any
	hasNull := false
	for _, b := range branches {
		m, ok := b.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("anyOf branch is not an object")
		}
		if t, _ := m["type"].(string); t == "null" {
			hasNull = true
			continue
		}
		nonNull = append(nonNull, m)
	}

	if hasNull && len(nonNull) == 1 {
		schema, err := BuildGeminiSchema(nonNull[0])
		if err != nil {
			return nil, err
		}
		nullable := true
		schema.Nullable = &nullable
		if desc, ok := def["description"].(string); ok && schema.Description == "" {
			schema.Description = desc
		}
		return schema, nil
	}

	schema := &genai.Schema{}
	if desc, ok := def["description"].(string); ok {
		schema.Description = desc
	}
	for i, b := range nonNull {
		s, err := BuildGeminiSchema(b)
		if err != nil {
			return nil, fmt.Errorf("anyOf[%d]: %w", i, err)
		}
		schema.AnyOf = append(schema.AnyOf, s)
	}
	if hasNull {
		nullable := true
		schema.Nullable = &nullable
	}
	return schema, nil
}

// propertyOrder lists required properties first, in schema order, then the
// rest alphabetically.
func propertyOrder(props map[string]*genai.Schema, required []string) []string {
	order := make([]string, 0, len(props))
	seen := make(map[string]bool, len(props))
	for _, r := range required {
		if _, ok := props[r]; ok && !seen[r] {
			order = append(order, r)
			seen[r] = true
		}
	}
	var rest []string
	for k := range props {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(order, rest...)
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return slices.Clone(list)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func mapGeminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	case "null":
		return genai.TypeNULL
	default:
		return genai.TypeUnspecified
	}
}
