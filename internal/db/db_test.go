//go:build integration

package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/kursgen/internal/models"
)

const testDimension = 8

var testDB *Client

// TestMain starts one SurrealDB container for the package.
func TestMain(m *testing.M) {
	// ryuk breaks in some CI environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v2.3.7",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start SurrealDB container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("container port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	if err := testDB.InitSchema(ctx, testDimension); err != nil {
		log.Fatalf("init schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func unitVector(axis int) []float32 {
	v := make([]float32, testDimension)
	v[axis%testDimension] = 1
	return v
}

func newPendingJob(id string) *models.Job {
	return &models.Job{
		ID:        id,
		Status:    models.JobStatusPending,
		Request:   models.ActivityRequest{Query: "fotosyntes", QuizQuestions: 2, Subject: "biologi"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	job := newPendingJob("job-complete")
	require.NoError(t, testDB.CreateJob(ctx, job))

	got, err := testDB.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, job.Request, got.Request)

	result := &models.LearningActivityResponse{ResponseID: "r", Explanation: "e"}
	require.NoError(t, testDB.CompleteJob(ctx, job.ID, result, time.Now()))

	got, err = testDB.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "r", got.Result.ResponseID)
	assert.NotNil(t, got.CompletedAt)

	err = testDB.FailJob(ctx, job.ID, "late failure", time.Now())
	assert.True(t, errors.Is(err, models.ErrJobNotPending), "got %v", err)
}

func TestJobNotFound(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.GetJob(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = testDB.FailJob(ctx, "missing", "x", time.Now())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListJobsAndStale(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	old := newPendingJob("job-old")
	old.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, testDB.CreateJob(ctx, old))

	fresh := newPendingJob("job-fresh")
	require.NoError(t, testDB.CreateJob(ctx, fresh))

	jobs, err := testDB.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-fresh", jobs[0].ID)

	stale, err := testDB.ListStalePending(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"job-old"}, stale)
}

func TestMatchChunks(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	grade79, grade46 := "7-9", "4-6"
	chunks := []models.EmbeddedChunk{
		{TextChunk: models.TextChunk{Subject: "biologi", Heading: "Kropp och hälsa", Grade: &grade79, Content: "Celler och organ"}, Embedding: unitVector(0)},
		{TextChunk: models.TextChunk{Subject: "biologi", Heading: "Natur och samhälle", Grade: &grade79, Content: "Fotosyntes och ekosystem"}, Embedding: unitVector(1)},
		{TextChunk: models.TextChunk{Subject: "biologi", Heading: "Natur och samhälle", Grade: &grade46, Content: "Växters livscykel"}, Embedding: unitVector(1)},
	}
	require.NoError(t, testDB.ReplaceSubjectChunks(ctx, "biologi", chunks))

	matches, err := testDB.MatchChunks(ctx, unitVector(1), 2, models.ChunkFilter{Subject: "biologi", GradeLevel: "7-9"})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "Fotosyntes och ekosystem", matches[0].Content)
	for _, m := range matches {
		assert.Equal(t, "7-9", m.GradeLevel)
	}

	counts, err := testDB.ChunkCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.SubjectCount{{Subject: "biologi", Count: 3}}, counts)

	// Re-indexing replaces the previous set.
	require.NoError(t, testDB.ReplaceSubjectChunks(ctx, "biologi", chunks[:1]))
	counts, err = testDB.ChunkCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[0].Count)

	none, err := testDB.MatchChunks(ctx, unitVector(1), 5, models.ChunkFilter{Subject: "fysik"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
