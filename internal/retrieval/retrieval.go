// Package retrieval finds curriculum passages relevant to a query.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/kursgen/internal/embedding"
	"github.com/raphaelgruber/kursgen/internal/metrics"
	"github.com/raphaelgruber/kursgen/internal/models"
)

// Defaults for Options.
const (
	DefaultMatchCount   = 8
	DefaultGradeLevel   = "7-9"
	DefaultEmbedTimeout = 10 * time.Second
)

// ChunkSearcher runs a filtered nearest-neighbour search over stored chunks.
type ChunkSearcher interface {
	MatchChunks(ctx context.Context, embedding []float32, matchCount int, filter models.ChunkFilter) ([]models.ChunkMatch, error)
}

// Options tunes retrieval.
type Options struct {
	MatchCount   int
	GradeLevel   string
	EmbedTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MatchCount <= 0 {
		o.MatchCount = DefaultMatchCount
	}
	if o.GradeLevel == "" {
		o.GradeLevel = DefaultGradeLevel
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = DefaultEmbedTimeout
	}
	return o
}

// Client embeds queries and searches the chunk store.
type Client struct {
	embedder embedding.Embedder
	store    ChunkSearcher
	opts     Options
	metrics  *metrics.Collector
}

// New creates a retrieval client. mc may be nil.
func New(embedder embedding.Embedder, store ChunkSearcher, opts Options, mc *metrics.Collector) *Client {
	return &Client{embedder: embedder, store: store, opts: opts.withDefaults(), metrics: mc}
}

// Fetch returns the content of at most matchCount chunks closest to query
// within subject at the configured grade level. A matchCount of zero or
// less uses Options.MatchCount. An empty result is not an error.
func (c *Client) Fetch(ctx context.Context, query, subject string, matchCount int) ([]string, error) {
	if matchCount <= 0 {
		matchCount = c.opts.MatchCount
	}

	embedCtx, cancel := context.WithTimeout(ctx, c.opts.EmbedTimeout)
	start := time.Now()
	vec, err := c.embedder.Embed(embedCtx, query)
	cancel()
	c.metrics.RecordTiming(metrics.OpEmbedding, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: could not embed query: %w", models.ErrEmbedding, err)
	}

	filter := models.ChunkFilter{Subject: subject, GradeLevel: c.opts.GradeLevel}
	slog.Debug("searching chunks", "subject", filter.Subject, "grade_level", filter.GradeLevel, "match_count", matchCount)

	start = time.Now()
	matches, err := c.store.MatchChunks(ctx, vec, matchCount, filter)
	c.metrics.RecordTiming(metrics.OpVectorSearch, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: could not search the chunk store, check that the match_chunks search function exists and matches its expected definition: %w", models.ErrRetrieval, err)
	}

	if len(matches) == 0 {
		slog.Warn("no matching chunks", "subject", subject, "grade_level", filter.GradeLevel)
		return []string{}, nil
	}

	contents := make([]string, len(matches))
	for i, m := range matches {
		contents[i] = m.Content
	}
	return contents, nil
}
