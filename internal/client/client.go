// Package client provides an HTTP client for the kursgen server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/kursgen/internal/metrics"
	"github.com/raphaelgruber/kursgen/internal/models"
)

// RequestIDHeader carries a per-request id the server echoes into its logs.
const RequestIDHeader = "X-Request-ID"

// Client talks to the kursgen job API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses KURSGEN_URL or defaults to localhost:8080.
// Timeout can be configured via KURSGEN_CLIENT_TIMEOUT (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("KURSGEN_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("KURSGEN_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// do sends a request and decodes a JSON response into result.
// Error statuses map back onto the models sentinels.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return responseError(resp.StatusCode, data)
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func responseError(status int, data []byte) error {
	msg := strings.TrimSpace(string(data))
	var env errorEnvelope
	if json.Unmarshal(data, &env) == nil && env.Error.Message != "" {
		msg = env.Error.Message
	}

	var sentinel error
	switch status {
	case http.StatusBadRequest:
		sentinel = models.ErrValidation
	case http.StatusNotFound:
		sentinel = models.ErrNotFound
	}
	if sentinel != nil {
		// Server messages usually start with the sentinel text already.
		if rest, ok := strings.CutPrefix(msg, sentinel.Error()); ok {
			return fmt.Errorf("%w%s", sentinel, rest)
		}
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("server error: %d %s: %s", status, http.StatusText(status), msg)
}

// CreateJob submits an activity request and returns the new job id.
func (c *Client) CreateJob(ctx context.Context, req models.ActivityRequest) (string, error) {
	var resp struct {
		Status models.JobStatus `json:"status"`
		JobID  string           `json:"job_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/create-job", req, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", errors.New("server returned no job id")
	}
	return resp.JobID, nil
}

// GetStatus fetches the current status of a job.
func (c *Client) GetStatus(ctx context.Context, id string) (*models.JobStatusResponse, error) {
	var resp models.JobStatusResponse
	if err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitForJob polls until the job is terminal or ctx is done.
// onPoll, if set, is called with every status seen.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration, onPoll func(*models.JobStatusResponse)) (*models.JobStatusResponse, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *models.JobStatusResponse
	for {
		status, err := c.GetStatus(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return nil, err
		}
		last = status
		if onPoll != nil {
			onPoll(status)
		}
		if status.Status.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ListJobs returns recent jobs, newest first. limit <= 0 uses the server default.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]models.JobSummary, error) {
	path := "/jobs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Jobs []models.JobSummary `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Metrics fetches the server's runtime statistics.
func (c *Client) Metrics(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/metrics", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
