package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/kursgen/internal/models"
)

// memStore is an in-memory JobStore and ChunkStore with the same
// conditional terminal writes as the real stores.
type memStore struct {
	mu     sync.Mutex
	jobs   map[string]*models.Job
	chunks map[string][]models.EmbeddedChunk

	createErr error
	failErr   error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:   make(map[string]*models.Job),
		chunks: make(map[string][]models.EmbeddedChunk),
	}
}

func (s *memStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, id)
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) finish(id string, apply func(*models.Job)) error {
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", models.ErrNotFound, id)
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("%w: job %s", models.ErrJobNotPending, id)
	}
	apply(job)
	return nil
}

func (s *memStore) CompleteJob(_ context.Context, id string, result *models.LearningActivityResponse, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finish(id, func(j *models.Job) {
		j.Status = models.JobStatusCompleted
		j.Result = result
		j.CompletedAt = &at
	})
}

func (s *memStore) FailJob(_ context.Context, id, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	return s.finish(id, func(j *models.Job) {
		j.Status = models.JobStatusFailed
		j.ErrorMessage = &message
		j.CompletedAt = &at
	})
}

func (s *memStore) ListJobs(_ context.Context, limit int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	slices.SortFunc(out, func(a, b models.Job) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListStalePending(_ context.Context, before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, j := range s.jobs {
		if j.Status == models.JobStatusPending && j.CreatedAt.Before(before) {
			ids = append(ids, j.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *memStore) ReplaceSubjectChunks(_ context.Context, subject string, chunks []models.EmbeddedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[subject] = chunks
	return nil
}

func (s *memStore) MatchChunks(context.Context, []float32, int, models.ChunkFilter) ([]models.ChunkMatch, error) {
	return []models.ChunkMatch{}, nil
}

func (s *memStore) ChunkCounts(context.Context) ([]models.SubjectCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.SubjectCount{}
	for subject, chunks := range s.chunks {
		out = append(out, models.SubjectCount{Subject: subject, Count: len(chunks)})
	}
	return out, nil
}

func (s *memStore) put(job models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &job
}

type fakeRetriever struct {
	chunks []string
	err    error
	block  chan struct{}

	mu         sync.Mutex
	calls      int
	matchCount int
}

func (f *fakeRetriever) Fetch(ctx context.Context, _, _ string, matchCount int) ([]string, error) {
	f.mu.Lock()
	f.calls++
	f.matchCount = matchCount
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.chunks, f.err
}

type fakeGenerator struct {
	result *models.LearningActivityResponse
	err    error
	panic  bool

	mu     sync.Mutex
	calls  int
	chunks []string
}

func (f *fakeGenerator) Generate(_ context.Context, chunks []string, _ models.ActivityRequest) (*models.LearningActivityResponse, error) {
	f.mu.Lock()
	f.calls++
	f.chunks = chunks
	f.mu.Unlock()
	if f.panic {
		panic("boom")
	}
	return f.result, f.err
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// activityJSON builds a schema-valid model response.
func activityJSON(t *testing.T, quiz, cards int) string {
	t.Helper()
	resp := models.LearningActivityResponse{
		ResponseID:  "resp-e2e",
		Explanation: "Fotosyntesen omvandlar ljusenergi till kemisk energi.",
	}
	if quiz > 0 {
		resp.Quiz = &models.QuizActivity{Topic: "Fotosyntes"}
		for i := range quiz {
			resp.Quiz.Questions = append(resp.Quiz.Questions, models.QuizQuestion{
				ID:     i + 1,
				Type:   "multiple_choice",
				Prompt: "Vilken gas tar växten upp?",
				Alternatives: []models.Alternative{
					{ID: "a", Text: "Koldioxid", IsCorrect: true},
					{ID: "b", Text: "Kväve"},
				},
				ExplanationCorrect:   "Rätt.",
				ExplanationIncorrect: "Fel, det är koldioxid.",
			})
		}
	}
	if cards > 0 {
		resp.Flashcards = &models.FlashcardActivity{Topic: "Fotosyntes"}
		for i := range cards {
			resp.Flashcards.Items = append(resp.Flashcards.Items, models.FlashcardItem{
				CardID:                i + 1,
				Term:                  "Klorofyll",
				Definition:            "Grönt färgämne.",
				ImageGenerationPrompt: "green chlorophyll",
			})
		}
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(data)
}
