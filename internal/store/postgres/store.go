// Package postgres stores jobs and chunks in a Supabase-compatible Postgres
// database with pgvector. Similarity search goes through the match_chunks
// SQL function.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raphaelgruber/kursgen/internal/models"
)

// ErrConflict indicates a unique constraint violation.
var ErrConflict = errors.New("conflicting record")

// Store holds the connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the pool.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// InitSchema creates the pgvector extension, tables and match_chunks.
func (s *Store) InitSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("init schema: invalid embedding dimension %d", dimension)
	}
	slog.Info("initializing postgres schema", "dimension", dimension)
	if _, err := s.pool.Exec(ctx, SchemaSQL(dimension)); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// SchemaSQL returns the schema with embedding columns sized to dimension.
func SchemaSQL(dimension int) string {
	return strings.ReplaceAll(schemaTemplate, "{{dim}}", strconv.Itoa(dimension))
}

const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS activity_jobs (
	job_id        text PRIMARY KEY,
	status        text NOT NULL CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED')),
	request_data  jsonb NOT NULL,
	result_data   jsonb,
	error_message text,
	created_at    timestamptz NOT NULL DEFAULT now(),
	completed_at  timestamptz
);
CREATE INDEX IF NOT EXISTS activity_jobs_status_idx ON activity_jobs (status, created_at);

CREATE TABLE IF NOT EXISTS curriculum_chunks (
	id        text PRIMARY KEY,
	content   text NOT NULL,
	metadata  jsonb NOT NULL,
	embedding vector({{dim}}) NOT NULL
);
CREATE INDEX IF NOT EXISTS curriculum_chunks_metadata_idx ON curriculum_chunks USING gin (metadata);
CREATE INDEX IF NOT EXISTS curriculum_chunks_embedding_idx ON curriculum_chunks
	USING hnsw (embedding vector_cosine_ops);

CREATE OR REPLACE FUNCTION match_chunks(
	query_embedding vector({{dim}}),
	match_count int DEFAULT 8,
	filter jsonb DEFAULT '{}'
) RETURNS TABLE (id text, content text, metadata jsonb, similarity float)
LANGUAGE sql STABLE AS $$
	SELECT c.id, c.content, c.metadata, 1 - (c.embedding <=> query_embedding) AS similarity
	FROM curriculum_chunks c
	WHERE c.metadata @> filter
	ORDER BY c.embedding <=> query_embedding
	LIMIT match_count;
$$;
`

// mapError maps driver errors onto models and package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", models.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.TrimSpace(pgErr.Code) == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
	}
	return err
}

// vectorLiteral renders v in pgvector's text format.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
