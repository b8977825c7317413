package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/raphaelgruber/kursgen/internal/models"
)

// ReplaceSubjectChunks deletes the subject's chunks and inserts the new set
// in one transaction.
func (s *Store) ReplaceSubjectChunks(ctx context.Context, subject string, chunks []models.EmbeddedChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace chunks: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE subject = ?`, subject); err != nil {
		return fmt.Errorf("replace chunks: delete %s: %w", subject, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, subject, heading, grade_level, content_type, content, position, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("replace chunks: prepare: %w", err)
	}
	defer stmt.Close()

	for i, ch := range chunks {
		id := fmt.Sprintf("%s_%04d", subject, i)
		if _, err := stmt.ExecContext(ctx, id, subject, ch.Heading, ch.GradeLabel(), ch.ContentType,
			ch.Content, i, encodeVector(ch.Embedding)); err != nil {
			return fmt.Errorf("replace chunks: insert %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace chunks: commit: %w", err)
	}
	return nil
}

// MatchChunks scores every chunk passing filter by cosine similarity and
// returns the best matchCount, most similar first.
func (s *Store) MatchChunks(ctx context.Context, embedding []float32, matchCount int, filter models.ChunkFilter) ([]models.ChunkMatch, error) {
	if matchCount <= 0 {
		return []models.ChunkMatch{}, nil
	}

	query := `SELECT id, subject, heading, grade_level, content, embedding FROM chunks WHERE 1 = 1`
	var args []any
	if filter.Subject != "" {
		query += ` AND subject = ?`
		args = append(args, filter.Subject)
	}
	if filter.GradeLevel != "" {
		query += ` AND grade_level = ?`
		args = append(args, filter.GradeLevel)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("match chunks: %w", err)
	}
	defer rows.Close()

	matches := []models.ChunkMatch{}
	for rows.Next() {
		var m models.ChunkMatch
		var blob []byte
		if err := rows.Scan(&m.ID, &m.Subject, &m.Heading, &m.GradeLevel, &m.Content, &blob); err != nil {
			return nil, fmt.Errorf("match chunks: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("match chunks: chunk %s: %w", m.ID, err)
		}
		m.Similarity = cosine(embedding, vec)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match chunks: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > matchCount {
		matches = matches[:matchCount]
	}
	return matches, nil
}

// ChunkCounts returns the number of stored chunks per subject.
func (s *Store) ChunkCounts(ctx context.Context) ([]models.SubjectCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT subject, COUNT(*) FROM chunks GROUP BY subject ORDER BY subject`)
	if err != nil {
		return nil, fmt.Errorf("chunk counts: %w", err)
	}
	defer rows.Close()

	counts := []models.SubjectCount{}
	for rows.Next() {
		var c models.SubjectCount
		if err := rows.Scan(&c.Subject, &c.Count); err != nil {
			return nil, fmt.Errorf("chunk counts: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
