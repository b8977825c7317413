package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/kursgen/internal/models"
)

const jobColumns = `id, status, request_data, result_data, error_message, created_at, completed_at`

// CreateJob inserts a PENDING job.
func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("create job: encode request: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activity_jobs (id, status, request_data, created_at) VALUES (?, ?, ?, ?)`,
		job.ID, string(models.JobStatusPending), string(request), job.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob returns the job with id or models.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM activity_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
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
		`UPDATE activity_jobs SET status = 'COMPLETED', result_data = ?, completed_at = ?
		 WHERE id = ? AND status = 'PENDING'`,
		string(payload), at.UnixNano(), id)
}

// FailJob records message if the job is still PENDING.
func (s *Store) FailJob(ctx context.Context, id, message string, at time.Time) error {
	return s.finishJob(ctx, id,
		`UPDATE activity_jobs SET status = 'FAILED', error_message = ?, completed_at = ?
		 WHERE id = ? AND status = 'PENDING'`,
		message, at.UnixNano(), id)
}

func (s *Store) finishJob(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s", models.ErrJobNotPending, id)
}

// ListJobs returns up to limit jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM activity_jobs ORDER BY created_at DESC LIMIT ?`, limit)
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM activity_jobs WHERE status = 'PENDING' AND created_at < ? ORDER BY created_at`,
		before.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list stale jobs: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.Job, error) {
	var (
		job         models.Job
		status      string
		request     string
		result      sql.NullString
		errMsg      sql.NullString
		createdAt   int64
		completedAt sql.NullInt64
	)
	if err := row.Scan(&job.ID, &status, &request, &result, &errMsg, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(request), &job.Request); err != nil {
		return nil, fmt.Errorf("job %s request_data: %w", job.ID, err)
	}
	if result.Valid {
		job.Result = &models.LearningActivityResponse{}
		if err := json.Unmarshal([]byte(result.String), job.Result); err != nil {
			return nil, fmt.Errorf("job %s result_data: %w", job.ID, err)
		}
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		job.CompletedAt = &t
	}
	return &job, nil
}
