package models

import "time"

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is a persisted generation job.
type Job struct {
	ID           string                    `json:"job_id"`
	Status       JobStatus                 `json:"status"`
	Request      ActivityRequest           `json:"request_data"`
	Result       *LearningActivityResponse `json:"result_data,omitempty"`
	ErrorMessage *string                   `json:"error_message,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	CompletedAt  *time.Time                `json:"completed_at,omitempty"`
}

// JobStatusResponse is what clients see when polling a job.
type JobStatusResponse struct {
	JobID        string                    `json:"job_id"`
	Status       JobStatus                 `json:"status"`
	Result       *LearningActivityResponse `json:"result,omitempty"`
	ErrorMessage *string                   `json:"error_message,omitempty"`
}

// StatusResponse returns the client view of the job.
func (j *Job) StatusResponse() JobStatusResponse {
	return JobStatusResponse{
		JobID:        j.ID,
		Status:       j.Status,
		Result:       j.Result,
		ErrorMessage: j.ErrorMessage,
	}
}

// JobSummary is a compact listing entry.
type JobSummary struct {
	JobID       string     `json:"job_id"`
	Status      JobStatus  `json:"status"`
	Subject     string     `json:"subject"`
	Query       string     `json:"query"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Summary returns the listing view of the job.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		JobID:       j.ID,
		Status:      j.Status,
		Subject:     j.Request.Subject,
		Query:       j.Request.Query,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
	}
}
