package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"unknown provider", Config{Provider: "word2vec"}, "unknown embedding provider"},
		{"gemini without key", Config{Provider: ProviderGemini}, "requires an API key"},
		{"default is gemini", Config{}, "requires an API key"},
		{"openai without key", Config{Provider: ProviderOpenAI}, "OpenAI API key required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(ctx, tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("ollama defaults", func(t *testing.T) {
		e, err := New(ctx, Config{Provider: ProviderOllama, Dimension: 768})
		require.NoError(t, err)
		assert.Equal(t, DefaultOllamaModel, e.Model())
		assert.Equal(t, 768, e.Dimension())
	})
}

// geminiServer answers batchEmbedContents with vectors of the given dimension.
func geminiServer(t *testing.T, dim int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, ":batchEmbedContents") {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		var body struct {
			Requests []map[string]any `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type values struct {
			Values []float32 `json:"values"`
		}
		resp := struct {
			Embeddings []values `json:"embeddings"`
		}{}
		for i := range body.Requests {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			resp.Embeddings = append(resp.Embeddings, values{Values: vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiEmbedder(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	srv := geminiServer(t, 4, &calls)

	e, err := NewGeminiEmbedder(ctx, Config{GeminiAPIKey: "test-key", Dimension: 4, BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, DefaultGeminiModel, e.Model())

	vec, err := e.Embed(ctx, "fotosyntes")
	require.NoError(t, err)
	assert.Len(t, vec, 4)

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = "chunk"
	}
	calls.Store(0)
	vecs, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	assert.Len(t, vecs, 150)
	assert.Equal(t, int32(2), calls.Load(), "150 texts should take two API calls")
	assert.Equal(t, float32(1), vecs[100][0], "second batch restarts numbering")

	empty, err := e.EmbedBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGeminiEmbedder_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	srv := geminiServer(t, 3, &calls)

	e, err := NewGeminiEmbedder(ctx, Config{GeminiAPIKey: "test-key", Dimension: 768, BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.Embed(ctx, "kraft")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

type fakeInvoker struct {
	requests []titanRequest
	err      error
	dim      int
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	var req titanRequest
	if err := json.Unmarshal(in.Body, &req); err != nil {
		return nil, err
	}
	f.requests = append(f.requests, req)

	body, _ := json.Marshal(titanResponse{Embedding: make([]float32, f.dim), InputTextTokenCount: 3})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func TestBedrockEmbedder(t *testing.T) {
	ctx := context.Background()
	fake := &fakeInvoker{dim: 256}
	e := newBedrockEmbedder(fake, Config{Dimension: 256})

	assert.Equal(t, DefaultBedrockModel, e.Model())

	vecs, err := e.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	require.Len(t, fake.requests, 2)
	assert.Equal(t, titanRequest{InputText: "b", Dimensions: 256, Normalize: true}, fake.requests[1])

	fake.dim = 128
	_, err = e.Embed(ctx, "c")
	assert.ErrorContains(t, err, "dimension mismatch")

	fake.err = errors.New("throttled")
	_, err = e.Embed(ctx, "d")
	assert.ErrorContains(t, err, "throttled")
}
