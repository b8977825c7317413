package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/kursgen/internal/embedding"
	"github.com/raphaelgruber/kursgen/internal/metrics"
	"github.com/raphaelgruber/kursgen/internal/models"
	"github.com/raphaelgruber/kursgen/internal/parser"
)

// IndexOptions configures indexing.
type IndexOptions struct {
	// DataDir holds the <subject>.txt files.
	DataDir string
	// Concurrency bounds how many subjects are indexed at once (default 2).
	Concurrency int
	// DryRun chunks the text without embedding or storing it.
	DryRun bool
	Chunk  parser.ChunkOptions
}

// SubjectIndexResult summarizes one indexed subject.
type SubjectIndexResult struct {
	Subject  string        `json:"subject"`
	Chunks   int           `json:"chunks"`
	Graded   int           `json:"graded"`
	Duration time.Duration `json:"duration"`
}

// IndexResult summarizes an indexing run.
type IndexResult struct {
	Subjects []SubjectIndexResult `json:"subjects"`
	Errors   []string             `json:"errors,omitempty"`
}

// Indexer chunks subject texts, embeds the chunks and replaces them in the
// chunk store.
type Indexer struct {
	subjects *parser.Subjects
	embedder embedding.Embedder
	store    ChunkStore
	metrics  *metrics.Collector
}

// NewIndexer creates an indexer. embedder and store may be nil for dry runs.
func NewIndexer(subjects *parser.Subjects, embedder embedding.Embedder, store ChunkStore, mc *metrics.Collector) *Indexer {
	return &Indexer{subjects: subjects, embedder: embedder, store: store, metrics: mc}
}

// IndexSubjects indexes each subject concurrently. A failing subject is
// reported in Errors and does not stop the others; only cancellation
// aborts the run.
func (ix *Indexer) IndexSubjects(ctx context.Context, subjects []string, opts IndexOptions) (*IndexResult, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if !opts.DryRun && (ix.embedder == nil || ix.store == nil) {
		return nil, fmt.Errorf("indexing needs an embedder and a chunk store")
	}

	var (
		mu     sync.Mutex
		result = &IndexResult{Subjects: []SubjectIndexResult{}}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, subject := range subjects {
		g.Go(func() error {
			res, err := ix.IndexSubject(gctx, subject, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", subject, err))
				return nil
			}
			result.Subjects = append(result.Subjects, *res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	slog.Info("indexing complete", "subjects", len(result.Subjects), "errors", len(result.Errors))
	return result, nil
}

// IndexSubject indexes one subject. Existing chunks for the subject are
// replaced.
func (ix *Indexer) IndexSubject(ctx context.Context, subject string, opts IndexOptions) (*SubjectIndexResult, error) {
	start := time.Now()
	cfg, err := ix.subjects.Get(subject)
	if err != nil {
		return nil, err
	}
	text, err := parser.LoadSubjectText(opts.DataDir, cfg)
	if err != nil {
		return nil, err
	}

	chunks, err := ix.ChunkText(cfg, text, opts.Chunk)
	if err != nil {
		return nil, err
	}
	chunks = slices.DeleteFunc(chunks, func(ch models.TextChunk) bool {
		return strings.TrimSpace(ch.Content) == ""
	})
	res := &SubjectIndexResult{Subject: subject, Chunks: len(chunks)}
	for _, ch := range chunks {
		if ch.Grade != nil {
			res.Graded++
		}
	}
	slog.Info("chunked subject", "subject", subject, "chunks", res.Chunks, "graded", res.Graded)

	if opts.DryRun {
		res.Duration = time.Since(start)
		return res, nil
	}

	embedded := make([]models.EmbeddedChunk, len(chunks))
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Content
		}
		embedStart := time.Now()
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		ix.metrics.RecordTiming(metrics.OpEmbedding, time.Since(embedStart))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrEmbedding, err)
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbedding, len(vectors), len(chunks))
		}
		for i, ch := range chunks {
			embedded[i] = models.EmbeddedChunk{TextChunk: ch, Embedding: vectors[i]}
		}
	}
	if err := ix.store.ReplaceSubjectChunks(ctx, subject, embedded); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	return res, nil
}

// ChunkText runs the subject's chunker over text.
func (ix *Indexer) ChunkText(cfg models.SubjectConfig, text string, opts parser.ChunkOptions) ([]models.TextChunk, error) {
	chunker, err := parser.NewChunker(cfg, opts)
	if err != nil {
		return nil, err
	}
	return chunker.Chunk(text), nil
}
