package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/kursgen/internal/models"
)

type chunkMatchRecord struct {
	ID         surrealmodels.RecordID `json:"id"`
	Subject    string                 `json:"subject"`
	Heading    string                 `json:"heading"`
	GradeLevel string                 `json:"grade_level"`
	Content    string                 `json:"content"`
	Similarity float64                `json:"similarity"`
}

// chunkID is the record key for the chunk at position within subject.
func chunkID(subject string, position int) string {
	return fmt.Sprintf("%s_%04d", subject, position)
}

// ReplaceSubjectChunks deletes the subject's chunks and inserts the new set
// in one transaction.
func (c *Client) ReplaceSubjectChunks(ctx context.Context, subject string, chunks []models.EmbeddedChunk) error {
	rows := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		rows[i] = map[string]any{
			"id":           chunkID(subject, i),
			"subject":      subject,
			"heading":      ch.Heading,
			"grade_level":  ch.GradeLabel(),
			"content_type": ch.ContentType,
			"content":      ch.Content,
			"position":     i,
			"embedding":    ch.Embedding,
		}
	}

	sql := `
		BEGIN TRANSACTION;
		DELETE chunk WHERE subject = $subject;
		INSERT INTO chunk $rows;
		COMMIT TRANSACTION;
	`
	if len(rows) == 0 {
		sql = `DELETE chunk WHERE subject = $subject;`
	}

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"subject": subject,
		"rows":    rows,
	})
	if err != nil {
		return fmt.Errorf("replace chunks for %s: %w", subject, wrapQueryError(err))
	}
	c.logger.Info("stored chunks", "subject", subject, "count", len(rows))
	return nil
}

// MatchChunks returns up to matchCount chunks nearest to embedding that
// satisfy filter, most similar first. An empty filter field matches all.
func (c *Client) MatchChunks(ctx context.Context, embedding []float32, matchCount int, filter models.ChunkFilter) ([]models.ChunkMatch, error) {
	if matchCount <= 0 {
		return []models.ChunkMatch{}, nil
	}

	filterClause := ""
	vars := map[string]any{
		"emb":   embedding,
		"limit": matchCount,
	}
	if filter.Subject != "" {
		filterClause += " AND subject = $subject"
		vars["subject"] = filter.Subject
	}
	if filter.GradeLevel != "" {
		filterClause += " AND grade_level = $grade"
		vars["grade"] = filter.GradeLevel
	}

	// The HNSW candidate set is widened so metadata filtering still leaves
	// matchCount rows in most cases. ef=40 as for other vector searches.
	sql := fmt.Sprintf(`
		SELECT id, subject, heading, grade_level, content,
			vector::similarity::cosine(embedding, $emb) AS similarity
		FROM chunk
		WHERE embedding <|%d,40|> $emb %s
		ORDER BY similarity DESC
		LIMIT $limit
	`, matchCount*4, filterClause)

	results, err := surrealdb.Query[[]chunkMatchRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("match chunks: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.ChunkMatch{}, nil
	}

	rows := (*results)[0].Result
	matches := make([]models.ChunkMatch, 0, len(rows))
	for _, r := range rows {
		id, err := models.RecordIDString(r.ID)
		if err != nil {
			return nil, fmt.Errorf("match chunks: %w", err)
		}
		matches = append(matches, models.ChunkMatch{
			ID:         id,
			Subject:    r.Subject,
			Heading:    r.Heading,
			GradeLevel: r.GradeLevel,
			Content:    r.Content,
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

// ChunkCounts returns the number of stored chunks per subject.
func (c *Client) ChunkCounts(ctx context.Context) ([]models.SubjectCount, error) {
	results, err := surrealdb.Query[[]models.SubjectCount](ctx, c.db, `
		SELECT subject, count() AS count FROM chunk GROUP BY subject ORDER BY subject
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("chunk counts: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.SubjectCount{}, nil
	}
	return (*results)[0].Result, nil
}
