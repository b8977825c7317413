package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/raphaelgruber/kursgen/internal/schema"
)

func TestBuildGeminiSchema_Activity(t *testing.T) {
	def, err := schema.Activity()
	require.NoError(t, err)

	s, err := BuildGeminiSchema(def)
	require.NoError(t, err)

	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"response_id", "explanation", "quiz", "flashcards"}, s.PropertyOrdering)

	quiz := s.Properties["quiz"]
	require.NotNil(t, quiz)
	require.NotNil(t, quiz.Nullable)
	assert.True(t, *quiz.Nullable, "anyOf with null becomes nullable")
	assert.Equal(t, genai.TypeObject, quiz.Type)

	question := quiz.Properties["questions"].Items
	require.NotNil(t, question)
	assert.Equal(t, []string{"multiple_choice"}, question.Properties["type"].Enum)

	ref := question.Properties["source_reference"]
	assert.Equal(t, genai.TypeString, ref.Type)
	require.NotNil(t, ref.Nullable)
	assert.True(t, *ref.Nullable)
}

func TestBuildGeminiSchema_Errors(t *testing.T) {
	_, err := BuildGeminiSchema(map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"$ref": "#/$defs/X"}},
	})
	assert.ErrorContains(t, err, "unresolved reference")

	_, err = BuildGeminiSchema(map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": "string"},
	})
	assert.ErrorContains(t, err, "not an object")
}

func TestBuildGeminiSchema_MultiBranchAnyOf(t *testing.T) {
	s, err := BuildGeminiSchema(map[string]any{
		"anyOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "integer"},
			map[string]any{"type": "null"},
		},
	})
	require.NoError(t, err)
	require.Len(t, s.AnyOf, 2)
	assert.Equal(t, genai.TypeInteger, s.AnyOf[1].Type)
	require.NotNil(t, s.Nullable)
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewGeminiProvider(context.Background(), Config{GeminiAPIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	return p
}

func TestGeminiProvider_Generate(t *testing.T) {
	var body string
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, DefaultGeminiModel+":generateContent") {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [
				{"content": {"role": "model", "parts": [{"text": "{\"response_id\":"}, {"text": "\"r1\"}"}]}, "finishReason": "STOP"},
				{"content": {"role": "model", "parts": [{"text": "{}"}]}, "finishReason": "STOP"}
			],
			"usageMetadata": {"promptTokenCount": 120, "candidatesTokenCount": 40}
		}`)
	})

	def, err := schema.Activity()
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), Request{
		System:     "Du är en lärare.",
		User:       "Skapa en quiz.",
		Schema:     def,
		SchemaName: schema.ActivityName,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{`{"response_id":"r1"}`, "{}"}, resp.Candidates)
	assert.Equal(t, Usage{InputTokens: 120, OutputTokens: 40}, resp.Usage)
	assert.Contains(t, body, "responseSchema")
	assert.Contains(t, body, "application/json")
	assert.Contains(t, body, "Du är en lärare.")
}

func TestGeminiProvider_FatalError(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"code": 401, "message": "API key not valid", "status": "UNAUTHENTICATED"}}`)
	})

	_, err := p.Generate(context.Background(), Request{User: "hej"})
	require.Error(t, err)
	assert.True(t, IsFatal(err), "401 should be fatal: %v", err)
}

func TestGeminiProvider_RateLimitNotFatal(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error": {"code": 429, "message": "Quota exceeded for quota metric", "status": "RESOURCE_EXHAUSTED"}}`)
	})

	_, err := p.Generate(context.Background(), Request{User: "hej"})
	require.Error(t, err)
	assert.False(t, IsFatal(err), "429 should be retried: %v", err)

	var apiErr genai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Code)
}

func TestNew_Providers(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{Provider: "palm"})
	assert.ErrorContains(t, err, "unsupported LLM provider")

	_, err = New(ctx, Config{Provider: ProviderGemini})
	assert.ErrorContains(t, err, "API key is required")

	_, err = New(ctx, Config{Provider: ProviderAnthropic})
	assert.ErrorContains(t, err, "Anthropic API key required")

	p, err := New(ctx, Config{Provider: ProviderOllama, Model: "llama3.1", RequestsPerSecond: 2})
	require.NoError(t, err)
	assert.IsType(t, &RateLimited{}, p)
	assert.Equal(t, "llama3.1", p.Model())
}
