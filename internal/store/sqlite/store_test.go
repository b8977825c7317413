package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/kursgen/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func pendingJob(id string, created time.Time) *models.Job {
	return &models.Job{
		ID:        id,
		Status:    models.JobStatusPending,
		Request:   models.ActivityRequest{Query: "fotosyntes", QuizQuestions: 2, Subject: "biologi"},
		CreatedAt: created,
	}
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateJob(ctx, pendingJob("a", created)))

	job, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "fotosyntes", job.Request.Query)
	assert.True(t, job.CreatedAt.Equal(created))
	assert.Nil(t, job.Result)
	assert.Nil(t, job.CompletedAt)

	result := &models.LearningActivityResponse{
		ResponseID:  "r1",
		Explanation: "Om fotosyntes",
		Quiz:        &models.QuizActivity{Topic: "Fotosyntes", Questions: []models.QuizQuestion{{ID: 1}, {ID: 2}}},
	}
	done := created.Add(5 * time.Second)
	require.NoError(t, s.CompleteJob(ctx, "a", result, done))

	job, err = s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Len(t, job.Result.Quiz.Questions, 2)
	assert.Nil(t, job.Result.Flashcards)
	require.NotNil(t, job.CompletedAt)
	assert.True(t, job.CompletedAt.Equal(done))
}

func TestTerminalWritesArePendingOnly(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateJob(ctx, pendingJob("a", time.Now())))
	require.NoError(t, s.FailJob(ctx, "a", "no relevant curriculum text found", time.Now()))

	err := s.CompleteJob(ctx, "a", &models.LearningActivityResponse{}, time.Now())
	assert.ErrorIs(t, err, models.ErrJobNotPending)
	err = s.FailJob(ctx, "a", "second", time.Now())
	assert.ErrorIs(t, err, models.ErrJobNotPending)

	job, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "no relevant curriculum text found", *job.ErrorMessage)
}

func TestMissingJob(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetJob(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.FailJob(ctx, "nope", "x", time.Now()), models.ErrNotFound)
}

func TestListJobsAndStalePending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now()
	require.NoError(t, s.CreateJob(ctx, pendingJob("old", now.Add(-2*time.Hour))))
	require.NoError(t, s.CreateJob(ctx, pendingJob("mid", now.Add(-time.Hour))))
	require.NoError(t, s.CreateJob(ctx, pendingJob("new", now)))
	require.NoError(t, s.FailJob(ctx, "mid", "boom", now))

	jobs, err := s.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "new", jobs[0].ID)
	assert.Equal(t, "mid", jobs[1].ID)

	stale, err := s.ListStalePending(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, stale)
}

func TestMatchChunks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	g79, g46 := "7-9", "4-6"
	chunks := []models.EmbeddedChunk{
		{TextChunk: models.TextChunk{Subject: "biologi", Heading: "H1", Grade: &g79, Content: "celler"}, Embedding: []float32{1, 0, 0}},
		{TextChunk: models.TextChunk{Subject: "biologi", Heading: "H2", Grade: &g79, Content: "fotosyntes"}, Embedding: []float32{0.1, 1, 0}},
		{TextChunk: models.TextChunk{Subject: "biologi", Heading: "H2", Grade: &g46, Content: "växter"}, Embedding: []float32{0, 1, 0}},
		{TextChunk: models.TextChunk{Subject: "biologi", Heading: "H3", Grade: &g79, Content: "ekologi"}, Embedding: []float32{0, 0.7, 0.7}},
	}
	require.NoError(t, s.ReplaceSubjectChunks(ctx, "biologi", chunks))
	require.NoError(t, s.ReplaceSubjectChunks(ctx, "kemi", []models.EmbeddedChunk{
		{TextChunk: models.TextChunk{Subject: "kemi", Heading: "K", Grade: &g79, Content: "atomer"}, Embedding: []float32{0, 1, 0}},
	}))

	matches, err := s.MatchChunks(ctx, []float32{0, 1, 0}, 2, models.ChunkFilter{Subject: "biologi", GradeLevel: "7-9"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "fotosyntes", matches[0].Content)
	assert.Equal(t, "ekologi", matches[1].Content)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
	assert.Equal(t, "biologi_0001", matches[0].ID)

	none, err := s.MatchChunks(ctx, []float32{0, 1, 0}, 8, models.ChunkFilter{Subject: "fysik", GradeLevel: "7-9"})
	require.NoError(t, err)
	assert.Empty(t, none)

	counts, err := s.ChunkCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.SubjectCount{{Subject: "biologi", Count: 4}, {Subject: "kemi", Count: 1}}, counts)

	require.NoError(t, s.ReplaceSubjectChunks(ctx, "biologi", chunks[:1]))
	counts, err = s.ChunkCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[0].Count)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kursgen.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateJob(context.Background(), pendingJob("a", time.Now())))
	require.NoError(t, s.Close(context.Background()))

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close(context.Background())
	_, err = s.GetJob(context.Background(), "a")
	assert.NoError(t, err)
}

func TestVectorHelpers(t *testing.T) {
	v := []float32{1.5, -2, 0, 3.25}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)

	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 2}))
}
