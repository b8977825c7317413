// Package service runs activity generation jobs and curriculum indexing.
package service

import (
	"context"
	"time"

	"github.com/raphaelgruber/kursgen/internal/models"
)

// JobStore persists jobs. Terminal writes must only apply to PENDING jobs
// and otherwise fail with models.ErrJobNotPending. Unknown ids fail with
// models.ErrNotFound.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	CompleteJob(ctx context.Context, id string, result *models.LearningActivityResponse, at time.Time) error
	FailJob(ctx context.Context, id, message string, at time.Time) error
	ListJobs(ctx context.Context, limit int) ([]models.Job, error)
	ListStalePending(ctx context.Context, before time.Time) ([]string, error)
}

// ChunkStore holds embedded curriculum chunks.
type ChunkStore interface {
	ReplaceSubjectChunks(ctx context.Context, subject string, chunks []models.EmbeddedChunk) error
	MatchChunks(ctx context.Context, embedding []float32, matchCount int, filter models.ChunkFilter) ([]models.ChunkMatch, error)
	ChunkCounts(ctx context.Context) ([]models.SubjectCount, error)
}
