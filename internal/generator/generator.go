// Package generator turns retrieved curriculum text into validated learning
// activities through an LLM.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/kursgen/internal/llm"
	"github.com/raphaelgruber/kursgen/internal/metrics"
	"github.com/raphaelgruber/kursgen/internal/models"
	"github.com/raphaelgruber/kursgen/internal/schema"
)

// Defaults for Options.
const (
	DefaultAttempts       = 3
	DefaultAttemptTimeout = 30 * time.Second
	DefaultBackoffUnit    = time.Second
)

// Options tunes the retry loop.
type Options struct {
	Attempts       int
	AttemptTimeout time.Duration
	// BackoffUnit is the wait after the first failed attempt; it doubles
	// after each further failure.
	BackoffUnit time.Duration
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
	if o.BackoffUnit <= 0 {
		o.BackoffUnit = DefaultBackoffUnit
	}
	return o
}

// GenerationError is returned once every attempt has failed. Err wraps
// models.ErrLLMTransport or models.ErrLLMValidation for the last attempt.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("activity generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Generator produces LearningActivityResponses.
type Generator struct {
	provider llm.Provider
	opts     Options
	metrics  *metrics.Collector

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Generator. mc may be nil.
func New(provider llm.Provider, opts Options, mc *metrics.Collector) *Generator {
	return &Generator{
		provider: provider,
		opts:     opts.withDefaults(),
		metrics:  mc,
		sleep:    sleepContext,
	}
}

// Generate asks the LLM for the requested activities grounded on chunks.
func (g *Generator) Generate(ctx context.Context, chunks []string, req models.ActivityRequest) (*models.LearningActivityResponse, error) {
	responseSchema, err := schema.Activity()
	if err != nil {
		return nil, fmt.Errorf("load activity schema: %w", err)
	}

	llmReq := llm.Request{
		System:     SystemPrompt(req),
		User:       UserMessage(chunks, req),
		Schema:     responseSchema,
		SchemaName: schema.ActivityName,
	}

	var lastErr error
	for attempt := 1; attempt <= g.opts.Attempts; attempt++ {
		result, err := g.attempt(ctx, llmReq, req)
		if err == nil {
			if attempt > 1 {
				slog.Info("generation succeeded after retry", "attempt", attempt, "subject", req.Subject)
			}
			return result, nil
		}
		lastErr = err

		if llm.IsFatal(err) {
			slog.Error("generation stopped on fatal provider error", "attempt", attempt, "error", err)
			return nil, &GenerationError{Attempts: attempt, Err: err}
		}
		if attempt == g.opts.Attempts {
			break
		}

		wait := g.opts.BackoffUnit << (attempt - 1)
		slog.Warn("generation attempt failed", "attempt", attempt, "max_attempts", g.opts.Attempts, "retry_in", wait, "error", err)
		g.metrics.Inc(metrics.CounterLLMRetries)

		if err := g.sleep(ctx, wait); err != nil {
			return nil, &GenerationError{Attempts: attempt, Err: fmt.Errorf("%w: %w", models.ErrLLMTransport, err)}
		}
	}

	return nil, &GenerationError{Attempts: g.opts.Attempts, Err: lastErr}
}

// attempt runs one bounded LLM call and validates its first candidate.
func (g *Generator) attempt(ctx context.Context, llmReq llm.Request, req models.ActivityRequest) (*models.LearningActivityResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.opts.AttemptTimeout)
	defer cancel()

	start := time.Now()
	resp, err := g.provider.Generate(attemptCtx, llmReq)
	duration := time.Since(start)
	if err != nil {
		g.metrics.RecordTiming(metrics.OpLLMGenerate, duration)
		return nil, fmt.Errorf("%w: %w", models.ErrLLMTransport, err)
	}
	g.metrics.RecordLLMUsage(metrics.OpLLMGenerate, duration, int64(resp.Usage.InputTokens), int64(resp.Usage.OutputTokens))

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: response has no candidates", models.ErrLLMValidation)
	}

	result, err := ParseActivity(resp.Candidates[0], req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrLLMValidation, err)
	}
	return result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
