package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/kursgen/internal/models"
	"github.com/raphaelgruber/kursgen/internal/parser"
)

type fakeEmbedder struct {
	err     error
	batches [][]string
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, f.err
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Dimension() int { return 2 }

const biologiText = `Kommentarer till kursplanens syfte
Biologi handlar om livet.

Kommentarer till kursplanens centrala innehåll
Innehåll i årskurserna 1–3
Djur och växter i närmiljön.
Innehåll i årskurserna 7–9
Fotosyntes och cellandning.
`

func writeSubjectFile(t *testing.T, dir, subject, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, subject+".txt"), []byte(text), 0o644))
}

func TestIndexSubjects(t *testing.T) {
	dir := t.TempDir()
	writeSubjectFile(t, dir, "biologi", biologiText)

	subjects, err := parser.DefaultSubjects()
	require.NoError(t, err)
	store := newMemStore()
	ix := NewIndexer(subjects, &fakeEmbedder{}, store, nil)

	res, err := ix.IndexSubjects(context.Background(), []string{"biologi", "kemi", "matematik"}, IndexOptions{DataDir: dir})
	require.NoError(t, err)

	require.Len(t, res.Subjects, 1)
	assert.Equal(t, "biologi", res.Subjects[0].Subject)
	assert.Equal(t, 3, res.Subjects[0].Chunks)
	assert.Equal(t, 2, res.Subjects[0].Graded)
	assert.Len(t, res.Errors, 2, "missing text file and unknown subject are reported")

	stored := store.chunks["biologi"]
	require.Len(t, stored, 3)
	assert.Equal(t, "7-9", stored[2].GradeLabel())
	assert.Equal(t, "Fotosyntes och cellandning.", stored[2].Content)
	assert.Equal(t, []float32{2, 1}, stored[2].Embedding)
}

func TestIndexSubject_DryRun(t *testing.T) {
	dir := t.TempDir()
	writeSubjectFile(t, dir, "biologi", biologiText)
	subjects, err := parser.DefaultSubjects()
	require.NoError(t, err)

	ix := NewIndexer(subjects, nil, nil, nil)
	res, err := ix.IndexSubject(context.Background(), "biologi", IndexOptions{DataDir: dir, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Chunks)

	_, err = ix.IndexSubjects(context.Background(), []string{"biologi"}, IndexOptions{DataDir: dir})
	assert.Error(t, err, "a real run needs an embedder and store")
}

func TestIndexSubject_EmbeddingFailure(t *testing.T) {
	dir := t.TempDir()
	writeSubjectFile(t, dir, "biologi", biologiText)
	subjects, err := parser.DefaultSubjects()
	require.NoError(t, err)

	store := newMemStore()
	ix := NewIndexer(subjects, &fakeEmbedder{err: errors.New("quota")}, store, nil)
	_, err = ix.IndexSubject(context.Background(), "biologi", IndexOptions{DataDir: dir})
	assert.ErrorIs(t, err, models.ErrEmbedding)
	assert.Empty(t, store.chunks)

	_, err = ix.IndexSubject(context.Background(), "historia", IndexOptions{DataDir: dir})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIndexSubject_SkipsBlankChunks(t *testing.T) {
	dir := t.TempDir()
	subjects, err := parser.DefaultSubjects()
	require.NoError(t, err)

	tests := []struct {
		name       string
		text       string
		wantChunks int
	}{
		{"blank file", "\n \n", 0},
		{"markers without body", "Kommentarer till kursplanens centrala innehåll\nI årskurserna 1–3 och årskurserna 4–6\n", 0},
		{"marker at end", "Kommentarer till kursplanens centrala innehåll\nInnehåll i årskurserna 7–9\nFotosyntes.\nårskurserna 1–3\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeSubjectFile(t, dir, "kemi", tt.text)
			emb := &fakeEmbedder{}
			store := newMemStore()
			ix := NewIndexer(subjects, emb, store, nil)

			res, err := ix.IndexSubject(context.Background(), "kemi", IndexOptions{DataDir: dir})
			require.NoError(t, err)
			assert.Equal(t, tt.wantChunks, res.Chunks)
			assert.Len(t, store.chunks["kemi"], tt.wantChunks)
			for _, batch := range emb.batches {
				for _, text := range batch {
					assert.NotEmpty(t, strings.TrimSpace(text), "blank text sent for embedding")
				}
			}
			if tt.wantChunks == 0 {
				assert.Empty(t, emb.batches)
			}
		})
	}
}
