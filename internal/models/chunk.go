package models

// FullDocumentHeading labels the single chunk produced when no heading matches.
const FullDocumentHeading = "FULL_DOCUMENT"

// TextChunk is a labeled segment of curriculum text.
// Grade is nil until a grade-level marker has been seen in the document.
type TextChunk struct {
	Subject     string  `json:"subject"`
	Heading     string  `json:"heading"`
	Grade       *string `json:"grade_level"`
	ContentType string  `json:"content_type"`
	Content     string  `json:"content"`
}

// GradeLabel returns the grade or an empty string.
func (c TextChunk) GradeLabel() string {
	if c.Grade == nil {
		return ""
	}
	return *c.Grade
}

// Metadata returns the searchable metadata stored alongside the chunk.
func (c TextChunk) Metadata() map[string]any {
	return map[string]any{
		"subject":      c.Subject,
		"grade_level":  c.GradeLabel(),
		"content_type": c.ContentType,
		"heading":      c.Heading,
	}
}

// EmbeddedChunk is a chunk with its embedding, ready to be stored.
type EmbeddedChunk struct {
	TextChunk
	Embedding []float32
}

// ChunkFilter restricts a similarity search.
type ChunkFilter struct {
	Subject    string `json:"subject"`
	GradeLevel string `json:"grade_level"`
}

// GradePattern maps a grade-level marker pattern to its label.
type GradePattern struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Label   string `yaml:"label" json:"label"`
}

// SubjectConfig describes how one subject's text is segmented.
// Heading pattern priority is list order.
type SubjectConfig struct {
	Subject     string         `yaml:"subject" json:"subject"`
	Filename    string         `yaml:"filename" json:"filename"`
	ContentType string         `yaml:"content_type" json:"content_type"`
	Headings    []string       `yaml:"headings" json:"headings"`
	GradeLevels []GradePattern `yaml:"grade_levels" json:"grade_levels"`
}

// ChunkMatch is one similarity search hit.
type ChunkMatch struct {
	ID         string  `json:"id"`
	Subject    string  `json:"subject"`
	Heading    string  `json:"heading"`
	GradeLevel string  `json:"grade_level"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// SubjectCount is the number of stored chunks for one subject.
type SubjectCount struct {
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}
