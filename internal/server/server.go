// Package server exposes the activity job API over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/kursgen/internal/metrics"
	"github.com/raphaelgruber/kursgen/internal/models"
)

// JobService is the part of the orchestrator the HTTP layer needs.
type JobService interface {
	CreateJob(ctx context.Context, req models.ActivityRequest) (string, error)
	GetStatus(ctx context.Context, id string) (*models.JobStatusResponse, error)
	ListJobs(ctx context.Context, limit int) ([]models.JobSummary, error)
}

// Server wraps the gin engine with its dependencies and lifecycle.
type Server struct {
	engine  *gin.Engine
	jobs    JobService
	metrics *metrics.Collector
	logger  *slog.Logger
	version string
}

// New creates a server with routes and middleware registered.
func New(version string, jobs JobService, mc *metrics.Collector, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggingMiddleware(logger))

	s := &Server{
		engine:  engine,
		jobs:    jobs,
		metrics: mc,
		logger:  logger,
		version: version,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)
	s.engine.GET("/metrics", s.stats)

	s.engine.POST("/create-job", s.createJob)
	s.engine.GET("/status/:job_id", s.getStatus)
	s.engine.GET("/jobs", s.listJobs)
}

// Handler returns the HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr, "version", s.version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
