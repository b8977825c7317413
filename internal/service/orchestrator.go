package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/kursgen/internal/metrics"
	"github.com/raphaelgruber/kursgen/internal/models"
)

// ErrNoRelevantText is the failure recorded when retrieval finds nothing.
var ErrNoRelevantText = errors.New("no relevant curriculum text found")

// DefaultListLimit bounds ListJobs when no limit is given.
const DefaultListLimit = 20

// Retriever returns curriculum text relevant to a query. A matchCount of
// zero asks for the retriever's configured count.
type Retriever interface {
	Fetch(ctx context.Context, query, subject string, matchCount int) ([]string, error)
}

// ActivityGenerator turns curriculum text into learning activities.
type ActivityGenerator interface {
	Generate(ctx context.Context, chunks []string, req models.ActivityRequest) (*models.LearningActivityResponse, error)
}

// Options configures the orchestrator.
type Options struct {
	Workers   int
	QueueSize int

	// MatchCount is passed to the retriever; zero keeps its default.
	MatchCount int

	// PersistTimeout bounds each job store write made from a worker.
	PersistTimeout time.Duration
}

// Orchestrator creates jobs and drives each one from PENDING to a terminal
// state exactly once.
type Orchestrator struct {
	store     JobStore
	retriever Retriever
	generator ActivityGenerator
	pool      *Pool
	metrics   *metrics.Collector
	opts      Options

	now   func() time.Time
	newID func() string

	mu     sync.Mutex
	active map[string]struct{} // queued or running in this process
}

// NewOrchestrator wires the collaborators. mc may be nil.
func NewOrchestrator(store JobStore, retriever Retriever, generator ActivityGenerator, opts Options, mc *metrics.Collector) *Orchestrator {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	o := &Orchestrator{
		store:     store,
		retriever: retriever,
		generator: generator,
		metrics:   mc,
		opts:      opts,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		active:    make(map[string]struct{}),
	}
	o.pool = NewPool(opts.Workers, opts.QueueSize, o.ProcessJob)
	return o
}

// Start launches the worker pool.
func (o *Orchestrator) Start() {
	o.pool.Start()
}

// Stop stops taking queued jobs and waits for running ones to finish and
// record their terminal state.
func (o *Orchestrator) Stop() {
	o.pool.Stop()
}

// CreateJob validates req, stores a PENDING job and queues it for
// processing. It returns as soon as the job is queued. Validation failures
// wrap models.ErrValidation and store failures wrap models.ErrPersistence;
// in both cases no job exists.
func (o *Orchestrator) CreateJob(ctx context.Context, req models.ActivityRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	job := &models.Job{
		ID:        o.newID(),
		Status:    models.JobStatusPending,
		Request:   req,
		CreatedAt: o.now().UTC(),
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}
	o.metrics.Inc(metrics.CounterJobsCreated)

	o.setActive(job.ID, true)
	if err := o.pool.Submit(JobMessage{JobID: job.ID, Request: req}); err != nil {
		o.setActive(job.ID, false)
		slog.Error("could not queue job", "job_id", job.ID, "error", err)
		o.fail(ctx, job.ID, err)
		return job.ID, nil
	}

	slog.Info("job created", "job_id", job.ID, "subject", req.Subject,
		"quiz_questions", req.QuizQuestions, "flashcard_items", req.FlashcardItems)
	return job.ID, nil
}

// ProcessJob retrieves curriculum text, generates activities and records
// the outcome. Every error, including a panic, ends as a FAILED job.
func (o *Orchestrator) ProcessJob(ctx context.Context, msg JobMessage) {
	start := time.Now()
	defer func() {
		o.setActive(msg.JobID, false)
		o.metrics.RecordTiming(metrics.OpJob, time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "job_id", msg.JobID, "panic", r)
			o.fail(ctx, msg.JobID, fmt.Errorf("internal error: %v", r))
		}
	}()

	slog.Info("processing job", "job_id", msg.JobID, "subject", msg.Request.Subject)

	result, err := o.run(ctx, msg.Request)
	if err != nil {
		o.fail(ctx, msg.JobID, err)
		return
	}
	o.complete(ctx, msg.JobID, result)
}

func (o *Orchestrator) run(ctx context.Context, req models.ActivityRequest) (*models.LearningActivityResponse, error) {
	chunks, err := o.retriever.Fetch(ctx, req.Query, req.Subject, o.opts.MatchCount)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoRelevantText
	}
	return o.generator.Generate(ctx, chunks, req)
}

func (o *Orchestrator) complete(ctx context.Context, id string, result *models.LearningActivityResponse) {
	wctx, cancel := o.persistContext(ctx)
	defer cancel()

	if err := o.store.CompleteJob(wctx, id, result, o.now().UTC()); err != nil {
		slog.Error("could not record job completion", "job_id", id, "error", err)
		if errors.Is(err, models.ErrJobNotPending) {
			return
		}
		// Still try to leave the job terminal.
		o.fail(ctx, id, fmt.Errorf("%w: %w", models.ErrPersistence, err))
		return
	}
	o.metrics.Inc(metrics.CounterJobsCompleted)
	slog.Info("job completed", "job_id", id)
}

func (o *Orchestrator) fail(ctx context.Context, id string, cause error) {
	wctx, cancel := o.persistContext(ctx)
	defer cancel()

	slog.Warn("job failed", "job_id", id, "error", cause)
	if err := o.store.FailJob(wctx, id, cause.Error(), o.now().UTC()); err != nil {
		// The job stays PENDING until a sweep picks it up.
		slog.Error("could not record job failure", "job_id", id, "error", err, "cause", cause)
		return
	}
	o.metrics.Inc(metrics.CounterJobsFailed)
}

// persistContext detaches store writes from the caller's cancellation and
// bounds them by PersistTimeout.
func (o *Orchestrator) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.opts.PersistTimeout)
}

// GetStatus returns the stored status of a job. Unknown ids wrap
// models.ErrNotFound.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*models.JobStatusResponse, error) {
	job, err := o.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := job.StatusResponse()
	return &resp, nil
}

// ListJobs returns summaries of the most recent jobs.
func (o *Orchestrator) ListJobs(ctx context.Context, limit int) ([]models.JobSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	jobs, err := o.store.ListJobs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]models.JobSummary, len(jobs))
	for i := range jobs {
		out[i] = jobs[i].Summary()
	}
	return out, nil
}

// IsActive reports whether the job is queued or running in this process.
func (o *Orchestrator) IsActive(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[id]
	return ok
}

func (o *Orchestrator) setActive(id string, active bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if active {
		o.active[id] = struct{}{}
	} else {
		delete(o.active, id)
	}
}
