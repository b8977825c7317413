// Package app wires configuration into stores, model clients and services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/kursgen/internal/config"
	"github.com/raphaelgruber/kursgen/internal/db"
	"github.com/raphaelgruber/kursgen/internal/embedding"
	"github.com/raphaelgruber/kursgen/internal/generator"
	"github.com/raphaelgruber/kursgen/internal/llm"
	"github.com/raphaelgruber/kursgen/internal/metrics"
	"github.com/raphaelgruber/kursgen/internal/parser"
	"github.com/raphaelgruber/kursgen/internal/retrieval"
	"github.com/raphaelgruber/kursgen/internal/service"
	"github.com/raphaelgruber/kursgen/internal/store/postgres"
	"github.com/raphaelgruber/kursgen/internal/store/sqlite"
)

// Store is a job and chunk store backend.
type Store interface {
	service.JobStore
	service.ChunkStore
	Close(ctx context.Context) error
}

// Overridable in tests.
var (
	newEmbedder = embedding.New
	newProvider = llm.New
)

// App holds the running components.
type App struct {
	Config       config.Config
	Store        Store
	Embedder     embedding.Embedder
	Provider     llm.Provider
	Subjects     *parser.Subjects
	Metrics      *metrics.Collector
	Orchestrator *service.Orchestrator
	Sweeper      *service.Sweeper
	Indexer      *service.Indexer

	logger *slog.Logger
}

// Open builds everything the job server needs. Call Start to begin
// processing and Close when done.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a, err := OpenIndexer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(ctx, llm.Config{
		Provider:          llm.ProviderType(cfg.LLMProvider),
		Model:             cfg.LLMModel,
		GeminiAPIKey:      cfg.GeminiAPIKey,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		AnthropicAPIKey:   cfg.AnthropicAPIKey,
		OllamaHost:        cfg.OllamaHost,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
		Burst:             cfg.LLMBurst,
	})
	if err != nil {
		_ = a.Store.Close(ctx)
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	a.Provider = provider

	retriever := retrieval.New(a.Embedder, a.Store, retrieval.Options{
		MatchCount:   cfg.MatchCount,
		GradeLevel:   cfg.GradeLevel,
		EmbedTimeout: cfg.EmbedTimeout,
	}, a.Metrics)
	gen := generator.New(provider, generator.Options{
		AttemptTimeout: cfg.LLMAttemptTimeout,
		BackoffUnit:    cfg.LLMBackoffUnit,
	}, a.Metrics)

	a.Orchestrator = service.NewOrchestrator(a.Store, retriever, gen, service.Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	}, a.Metrics)

	if cfg.SweepSchedule != "" {
		a.Sweeper = service.NewSweeper(a.Store, a.Orchestrator.IsActive, cfg.StaleAfter, a.Metrics)
	}

	logger.Info("app ready",
		"backend", cfg.Backend,
		"embedding_model", a.Embedder.Model(),
		"llm_model", provider.Model(),
		"workers", cfg.Workers)
	return a, nil
}

// OpenIndexer builds the store, embedder and indexer without an LLM
// provider or job processing.
func OpenIndexer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	subjects, err := loadSubjects(cfg.SubjectsFile)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(ctx, embeddingConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	store, err := OpenStore(ctx, cfg, embedder.Dimension(), logger)
	if err != nil {
		return nil, err
	}

	mc := metrics.NewCollector()
	return &App{
		Config:   cfg,
		Store:    store,
		Embedder: embedder,
		Subjects: subjects,
		Metrics:  mc,
		Indexer:  service.NewIndexer(subjects, embedder, store, mc),
		logger:   logger,
	}, nil
}

func embeddingConfig(cfg config.Config) embedding.Config {
	return embedding.Config{
		Provider:     embedding.ProviderType(cfg.EmbeddingProvider),
		Model:        cfg.EmbeddingModel,
		Dimension:    cfg.EmbeddingDimension,
		GeminiAPIKey: cfg.GeminiAPIKey,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OllamaHost:   cfg.OllamaHost,
		AWSRegion:    cfg.AWSRegion,
	}
}

func loadSubjects(path string) (*parser.Subjects, error) {
	if path == "" {
		return parser.DefaultSubjects()
	}
	subjects, err := parser.LoadSubjects(path)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	return subjects, nil
}

// OpenStore connects to the configured backend and prepares its schema.
// dimension sizes the vector index; SQLite ignores it.
func OpenStore(ctx context.Context, cfg config.Config, dimension int, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil

	case config.BackendPostgres:
		if dimension <= 0 {
			return nil, errUnknownDimension
		}
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := s.InitSchema(ctx, dimension); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		return s, nil

	case config.BackendSurrealDB, "":
		if dimension <= 0 {
			return nil, errUnknownDimension
		}
		c, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := c.InitSchema(ctx, dimension); err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

var errUnknownDimension = errors.New("embedding dimension unknown: set KURSGEN_EMBEDDING_DIMENSION")

// Start launches the job workers and, if configured, the stale job sweep.
func (a *App) Start() error {
	if a.Orchestrator == nil {
		return errors.New("app opened without job processing")
	}
	a.Orchestrator.Start()
	if a.Sweeper != nil {
		if err := a.Sweeper.Start(a.Config.SweepSchedule); err != nil {
			a.Orchestrator.Stop()
			return fmt.Errorf("start sweeper: %w", err)
		}
		a.logger.Info("stale job sweep enabled", "schedule", a.Config.SweepSchedule, "stale_after", a.Config.StaleAfter)
	}
	return nil
}

// Close stops processing and closes the store. Running jobs get their
// terminal write before the store closes.
func (a *App) Close(ctx context.Context) error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.Orchestrator != nil {
		a.Orchestrator.Stop()
	}
	return a.Store.Close(ctx)
}

// WipeData deletes all jobs and chunks. Only the SurrealDB backend supports it.
func (a *App) WipeData(ctx context.Context) error {
	w, ok := a.Store.(interface{ WipeData(context.Context) error })
	if !ok {
		return fmt.Errorf("backend %s does not support wiping", a.Config.Backend)
	}
	return w.WipeData(ctx)
}
