package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/raphaelgruber/kursgen/internal/models"
)

// ReplaceSubjectChunks deletes the subject's chunks and inserts the new set
// in one transaction.
func (s *Store) ReplaceSubjectChunks(ctx context.Context, subject string, chunks []models.EmbeddedChunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace chunks: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM curriculum_chunks WHERE metadata->>'subject' = $1`, subject); err != nil {
		return fmt.Errorf("replace chunks: delete %s: %w", subject, err)
	}

	batch := &pgx.Batch{}
	for i, ch := range chunks {
		meta, err := json.Marshal(ch.Metadata())
		if err != nil {
			return fmt.Errorf("replace chunks: encode metadata: %w", err)
		}
		batch.Queue(
			`INSERT INTO curriculum_chunks (id, content, metadata, embedding) VALUES ($1, $2, $3, $4::vector)`,
			fmt.Sprintf("%s_%04d", subject, i), ch.Content, meta, vectorLiteral(ch.Embedding),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("replace chunks: insert: %w", mapError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace chunks: commit: %w", err)
	}
	return nil
}

// filterJSON builds the match_chunks containment filter from the non-empty
// fields of f.
func filterJSON(f models.ChunkFilter) ([]byte, error) {
	filter := map[string]string{}
	if f.Subject != "" {
		filter["subject"] = f.Subject
	}
	if f.GradeLevel != "" {
		filter["grade_level"] = f.GradeLevel
	}
	return json.Marshal(filter)
}

// MatchChunks calls match_chunks and returns its rows in order.
func (s *Store) MatchChunks(ctx context.Context, embedding []float32, matchCount int, filter models.ChunkFilter) ([]models.ChunkMatch, error) {
	if matchCount <= 0 {
		return []models.ChunkMatch{}, nil
	}
	f, err := filterJSON(filter)
	if err != nil {
		return nil, fmt.Errorf("match chunks: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, content, metadata, similarity FROM match_chunks($1::vector, $2, $3::jsonb)`,
		vectorLiteral(embedding), matchCount, f)
	if err != nil {
		return nil, fmt.Errorf("match chunks: %w", err)
	}
	defer rows.Close()

	matches := []models.ChunkMatch{}
	for rows.Next() {
		var (
			m    models.ChunkMatch
			meta map[string]string
		)
		if err := rows.Scan(&m.ID, &m.Content, &meta, &m.Similarity); err != nil {
			return nil, fmt.Errorf("match chunks: %w", err)
		}
		m.Subject = meta["subject"]
		m.Heading = meta["heading"]
		m.GradeLevel = meta["grade_level"]
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match chunks: %w", err)
	}
	return matches, nil
}

// ChunkCounts returns the number of stored chunks per subject.
func (s *Store) ChunkCounts(ctx context.Context) ([]models.SubjectCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT metadata->>'subject' AS subject, count(*)::int AS count
		FROM curriculum_chunks GROUP BY 1 ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("chunk counts: %w", err)
	}
	counts, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.SubjectCount])
	if err != nil {
		return nil, fmt.Errorf("chunk counts: %w", err)
	}
	return counts, nil
}
