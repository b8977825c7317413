package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/raphaelgruber/kursgen/internal/models"
)

const jobColumns = `job_id, status, request_data, result_data, error_message, created_at, completed_at`

// CreateJob inserts a PENDING job.
func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("create job: encode request: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO activity_jobs (job_id, status, request_data, created_at) VALUES ($1, $2, $3, $4)`,
		job.ID, string(models.JobStatusPending), request, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", mapError(err))
	}
	return nil
}

// GetJob returns the job with id or models.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM activity_jobs WHERE job_id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, mapError(err))
	}
	return job, nil
}

// CompleteJob stores the result if the job is still PENDING.
func (s *Store) CompleteJob(ctx context.Context, id string, result *models.LearningActivityResponse, at time.Time) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("complete job: encode result: %w", err)
	}
	return s.finishJob(ctx, id,
		`UPDATE activity_jobs SET status = 'COMPLETED', result_data = $2, completed_at = $3
		 WHERE job_id = $1 AND status = 'PENDING'`,
		id, payload, at)
}

// FailJob records message if the job is still PENDING.
func (s *Store) FailJob(ctx context.Context, id, message string, at time.Time) error {
	return s.finishJob(ctx, id,
		`UPDATE activity_jobs SET status = 'FAILED', error_message = $2, completed_at = $3
		 WHERE job_id = $1 AND status = 'PENDING'`,
		id, message, at)
}

func (s *Store) finishJob(ctx context.Context, id, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, mapError(err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s", models.ErrJobNotPending, id)
}

// ListJobs returns up to limit jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM activity_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListStalePending returns ids of PENDING jobs created before the given time.
func (s *Store) ListStalePending(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id FROM activity_jobs WHERE status = 'PENDING' AND created_at < $1 ORDER BY created_at`,
		before)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return ids, nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		job     models.Job
		status  string
		request []byte
		result  []byte
	)
	if err := row.Scan(&job.ID, &status, &request, &result, &job.ErrorMessage, &job.CreatedAt, &job.CompletedAt); err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	if err := json.Unmarshal(request, &job.Request); err != nil {
		return nil, fmt.Errorf("job %s request_data: %w", job.ID, err)
	}
	if result != nil {
		job.Result = &models.LearningActivityResponse{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, fmt.Errorf("job %s result_data: %w", job.ID, err)
		}
	}
	return &job, nil
}
