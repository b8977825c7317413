package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/raphaelgruber/kursgen/internal/metrics"
	"github.com/raphaelgruber/kursgen/internal/models"
)

// DefaultStaleAfter is how long a job may stay PENDING before a sweep
// fails it.
const DefaultStaleAfter = 15 * time.Minute

// Sweeper periodically fails PENDING jobs that no worker in this process
// owns and that are older than the stale threshold.
type Sweeper struct {
	store      JobStore
	isActive   func(id string) bool
	staleAfter time.Duration
	cron       *cron.Cron
	metrics    *metrics.Collector
	now        func() time.Time
}

// NewSweeper creates a sweeper. isActive may be nil when no jobs run in
// this process.
func NewSweeper(store JobStore, isActive func(id string) bool, staleAfter time.Duration, mc *metrics.Collector) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if isActive == nil {
		isActive = func(string) bool { return false }
	}
	return &Sweeper{
		store:      store,
		isActive:   isActive,
		staleAfter: staleAfter,
		cron:       cron.New(),
		metrics:    mc,
		now:        time.Now,
	}
}

// Start schedules sweeps using a cron spec such as "@every 5m".
func (s *Sweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			slog.Error("stale job sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	slog.Info("stale job sweeper started", "schedule", schedule, "stale_after", s.staleAfter)
	return nil
}

// Stop stops scheduling and waits for a running sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep fails stale PENDING jobs and returns how many it transitioned.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	ids, err := s.store.ListStalePending(ctx, now.Add(-s.staleAfter))
	if err != nil {
		return 0, err
	}

	msg := fmt.Sprintf("job abandoned: no result after %s", s.staleAfter)
	swept := 0
	for _, id := range ids {
		if s.isActive(id) {
			continue
		}
		err := s.store.FailJob(ctx, id, msg, now)
		switch {
		case err == nil:
			swept++
			s.metrics.Inc(metrics.CounterJobsSwept)
			slog.Warn("failed abandoned job", "job_id", id)
		case errors.Is(err, models.ErrJobNotPending):
			// Finished between listing and update.
		default:
			return swept, fmt.Errorf("fail stale job %s: %w", id, err)
		}
	}
	if swept > 0 {
		slog.Info("stale job sweep finished", "swept", swept)
	}
	return swept, nil
}
