package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/kursgen/internal/models"
)

// jobRecord is the activity_job row as stored. Request and result payloads
// are opaque objects.
type jobRecord struct {
	ID           surrealmodels.RecordID `json:"id"`
	Status       string                 `json:"status"`
	RequestData  map[string]any         `json:"request_data"`
	ResultData   map[string]any         `json:"result_data,omitempty"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

func (r jobRecord) toJob() (*models.Job, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return nil, err
	}
	job := &models.Job{
		ID:           id,
		Status:       models.JobStatus(r.Status),
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		CompletedAt:  r.CompletedAt,
	}
	if err := fromObject(r.RequestData, &job.Request); err != nil {
		return nil, fmt.Errorf("job %s request_data: %w", id, err)
	}
	if r.ResultData != nil {
		job.Result = &models.LearningActivityResponse{}
		if err := fromObject(r.ResultData, job.Result); err != nil {
			return nil, fmt.Errorf("job %s result_data: %w", id, err)
		}
	}
	return job, nil
}

// toObject converts v to a plain object through its JSON encoding.
func toObject(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func fromObject(obj map[string]any, v any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// CreateJob inserts a PENDING job.
func (c *Client) CreateJob(ctx context.Context, job *models.Job) error {
	request, err := toObject(job.Request)
	if err != nil {
		return fmt.Errorf("create job: encode request: %w", err)
	}

	_, err = surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("activity_job", $id) SET
			status = $status,
			request_data = $request,
			created_at = type::datetime($created)
	`, map[string]any{
		"id":      job.ID,
		"status":  string(models.JobStatusPending),
		"request": request,
		"created": formatTime(job.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("create job: %w", wrapQueryError(err))
	}
	return nil
}

// GetJob returns the job with id or ErrNotFound.
func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, c.db, `
		SELECT * FROM type::record("activity_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return (*results)[0].Result[0].toJob()
}

// CompleteJob stores the result and marks the job COMPLETED. It fails with
// models.ErrJobNotPending when the job already reached a terminal state.
func (c *Client) CompleteJob(ctx context.Context, id string, result *models.LearningActivityResponse, at time.Time) error {
	payload, err := toObject(result)
	if err != nil {
		return fmt.Errorf("complete job: encode result: %w", err)
	}
	return c.finishJob(ctx, id, `
		UPDATE type::record("activity_job", $id) SET
			status = "COMPLETED",
			result_data = $result,
			completed_at = type::datetime($at)
		WHERE status = "PENDING"
		RETURN AFTER
	`, map[string]any{"id": id, "result": payload, "at": formatTime(at)})
}

// FailJob records message and marks the job FAILED. It fails with
// models.ErrJobNotPending when the job already reached a terminal state.
func (c *Client) FailJob(ctx context.Context, id, message string, at time.Time) error {
	return c.finishJob(ctx, id, `
		UPDATE type::record("activity_job", $id) SET
			status = "FAILED",
			error_message = $message,
			completed_at = type::datetime($at)
		WHERE status = "PENDING"
		RETURN AFTER
	`, map[string]any{"id": id, "message": message, "at": formatTime(at)})
}

func (c *Client) finishJob(ctx context.Context, id, sql string, vars map[string]any) error {
	results, err := surrealdb.Query[[]jobRecord](ctx, c.db, sql, vars)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, wrapQueryError(err))
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return nil
	}

	// Nothing updated: either no such job or it is no longer pending.
	if _, err := c.GetJob(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s", models.ErrJobNotPending, id)
}

// ListJobs returns up to limit jobs, newest first.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, c.db, `
		SELECT * FROM activity_job ORDER BY created_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return recordsToJobs(results)
}

// ListStalePending returns the ids of jobs still PENDING that were created
// before the given time.
func (c *Client) ListStalePending(ctx context.Context, before time.Time) ([]string, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, c.db, `
		SELECT * FROM activity_job
		WHERE status = "PENDING" AND created_at < type::datetime($before)
		ORDER BY created_at
	`, map[string]any{"before": formatTime(before)})
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	jobs, err := recordsToJobs(results)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids, nil
}

func recordsToJobs(results *[]surrealdb.QueryResult[[]jobRecord]) ([]models.Job, error) {
	if results == nil || len(*results) == 0 {
		return []models.Job{}, nil
	}
	rows := (*results)[0].Result
	jobs := make([]models.Job, 0, len(rows))
	for _, r := range rows {
		job, err := r.toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}
