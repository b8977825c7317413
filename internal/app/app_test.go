package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/kursgen/internal/config"
	"github.com/raphaelgruber/kursgen/internal/embedding"
	"github.com/raphaelgruber/kursgen/internal/llm"
	"github.com/raphaelgruber/kursgen/internal/models"
	"github.com/raphaelgruber/kursgen/internal/service"
)

// keywordEmbedder maps texts mentioning photosynthesis close to each other.
type keywordEmbedder struct{}

func (keywordEmbedder) vector(text string) []float32 {
	if strings.Contains(strings.ToLower(text), "fotosyntes") {
		return []float32{1, 0, 0}
	}
	return []float32{0, 1, 0}
}

func (e keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (keywordEmbedder) Model() string  { return "keyword" }
func (keywordEmbedder) Dimension() int { return 3 }

const biologiText = `Kommentarer till kursplanens syfte
Biologi handlar om livet.

Kommentarer till kursplanens centrala innehåll
Innehåll i årskurserna 1–3
Djur och växter i närmiljön.
Innehåll i årskurserna 7–9
Fotosyntes och cellandning i gröna växter.
`

func quizJSON(t *testing.T) string {
	t.Helper()
	resp := models.LearningActivityResponse{
		ResponseID:  "resp-app",
		Explanation: "Fotosyntesen binder koldioxid.",
		Quiz: &models.QuizActivity{Topic: "Fotosyntes", Questions: []models.QuizQuestion{{
			ID:     1,
			Type:   "multiple_choice",
			Prompt: "Vilken gas tar växten upp?",
			Alternatives: []models.Alternative{
				{ID: "a", Text: "Koldioxid", IsCorrect: true},
				{ID: "b", Text: "Kväve"},
			},
			ExplanationCorrect:   "Rätt.",
			ExplanationIncorrect: "Fel, det är koldioxid.",
		}}},
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(data)
}

func stubFactories(t *testing.T, provider llm.Provider) {
	t.Helper()
	origEmb, origProv := newEmbedder, newProvider
	newEmbedder = func(context.Context, embedding.Config) (embedding.Embedder, error) {
		return keywordEmbedder{}, nil
	}
	newProvider = func(context.Context, llm.Config) (llm.Provider, error) {
		return provider, nil
	}
	t.Cleanup(func() { newEmbedder, newProvider = origEmb, origProv })
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "biologi.txt"), []byte(biologiText), 0o644))
	return config.Config{
		Backend:       config.BackendSQLite,
		SQLitePath:    ":memory:",
		DataDir:       dataDir,
		Workers:       1,
		QueueSize:     4,
		SweepSchedule: "@every 1h",
		StaleAfter:    15 * time.Minute,
	}
}

func TestOpen_IndexThenGenerate(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{Candidates: []string{quizJSON(t)}})
	stubFactories(t, provider)
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	a, err := Open(ctx, cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, a.Sweeper)
	require.NoError(t, a.Start())
	defer func() { assert.NoError(t, a.Close(ctx)) }()

	res, err := a.Indexer.IndexSubjects(ctx, []string{"biologi"}, service.IndexOptions{DataDir: cfg.DataDir})
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	counts, err := a.Store.ChunkCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.SubjectCount{{Subject: "biologi", Count: 3}}, counts)

	id, err := a.Orchestrator.CreateJob(ctx, models.ActivityRequest{Query: "fotosyntes", QuizQuestions: 1, Subject: "biologi"})
	require.NoError(t, err)

	var status *models.JobStatusResponse
	require.Eventually(t, func() bool {
		status, err = a.Orchestrator.GetStatus(ctx, id)
		return err == nil && status.Status.Terminal()
	}, 3*time.Second, 5*time.Millisecond)

	require.Equal(t, models.JobStatusCompleted, status.Status, "error: %v", status.ErrorMessage)
	require.NotNil(t, status.Result.Quiz)
	assert.Len(t, status.Result.Quiz.Questions, 1)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "Fotosyntes och cellandning i gröna växter.")
	assert.NotContains(t, calls[0].User, "Djur och växter i närmiljön.", "only grade 7-9 chunks are retrieved")
}

func TestOpenIndexer_NoJobProcessing(t *testing.T) {
	stubFactories(t, nil)
	a, err := OpenIndexer(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Nil(t, a.Orchestrator)
	assert.Error(t, a.Start())
	assert.Error(t, a.WipeData(context.Background()), "sqlite does not wipe")
}

func TestOpenStore_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := OpenStore(ctx, config.Config{Backend: config.BackendSurrealDB}, 0, nil)
	assert.ErrorIs(t, err, errUnknownDimension)

	_, err = OpenStore(ctx, config.Config{Backend: config.BackendPostgres, PostgresDSN: "postgres://x"}, 0, nil)
	assert.ErrorIs(t, err, errUnknownDimension)

	_, err = OpenStore(ctx, config.Config{Backend: "mongo"}, 768, nil)
	assert.Error(t, err)
}

func TestLoadSubjects(t *testing.T) {
	subjects, err := loadSubjects("")
	require.NoError(t, err)
	assert.Contains(t, subjects.Names(), "biologi")

	_, err = loadSubjects(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
