// Package parser segments curriculum commentary text into labeled chunks.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/kursgen/internal/models"
)

// ChunkOptions tunes the segmentation passes.
type ChunkOptions struct {
	// MaxChars bounds chunk length in runes for the size pass. Zero disables it.
	MaxChars int
}

// DefaultChunkOptions returns the options used for indexing.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{MaxChars: 1200}
}

// HeadingSection is the span of text owned by one heading match.
type HeadingSection struct {
	Heading string
	Start   int
	End     int
	Content string // text[Start:End], heading line included
}

// GradeSection is the text following one grade-level marker.
type GradeSection struct {
	Label      string
	MarkStart  int // start of the marker within the heading section
	MarkEnd    int
	ContentEnd int
	Content    string
}

type gradeMatcher struct {
	re    *regexp.Regexp
	label string
}

// Chunker applies one subject's heading and grade patterns.
type Chunker struct {
	cfg      models.SubjectConfig
	headings *regexp.Regexp
	grades   []gradeMatcher
	opts     ChunkOptions
}

// NewChunker compiles the subject's patterns.
func NewChunker(cfg models.SubjectConfig, opts ChunkOptions) (*Chunker, error) {
	c := &Chunker{cfg: cfg, opts: opts}

	if len(cfg.Headings) > 0 {
		alts := make([]string, len(cfg.Headings))
		for i, h := range cfg.Headings {
			if _, err := regexp.Compile(h); err != nil {
				return nil, fmt.Errorf("subject %s: heading pattern %q: %w", cfg.Subject, h, err)
			}
			alts[i] = "(?:" + h + ")"
		}
		// Alternation is leftmost-first, so list order decides overlapping patterns.
		re, err := regexp.Compile(`(?m)^[ \t]*(` + strings.Join(alts, "|") + `)[ \t]*$`)
		if err != nil {
			return nil, fmt.Errorf("subject %s: combine heading patterns: %w", cfg.Subject, err)
		}
		c.headings = re
	}

	for _, g := range cfg.GradeLevels {
		re, err := regexp.Compile("(?i)" + g.Pattern)
		if err != nil {
			return nil, fmt.Errorf("subject %s: grade pattern %q: %w", cfg.Subject, g.Pattern, err)
		}
		c.grades = append(c.grades, gradeMatcher{re: re, label: g.Label})
	}

	return c, nil
}

// Chunk runs the heading, grade-level and size passes over text.
//
// Chunk content is trimmed of surrounding whitespace, except for an
// ungraded FULL_DOCUMENT chunk, which holds the input text unchanged unless
// the size pass splits it. Grade sections
// without body text are dropped: an empty section, or the text between two
// markers on the same line. The marker still sets the grade inherited by
// later sections.
func (c *Chunker) Chunk(text string) []models.TextChunk {
	var chunks []models.TextChunk
	var lastGrade *string

	emit := func(heading string, grade *string, content string) {
		chunks = append(chunks, models.TextChunk{
			Subject:     c.cfg.Subject,
			Heading:     heading,
			Grade:       grade,
			ContentType: c.cfg.ContentType,
			Content:     content,
		})
	}

	for _, section := range c.SplitHeadings(text) {
		grades := c.SplitGrades(section.Content)
		if len(grades) == 0 {
			content := section.Content
			if section.Heading != models.FullDocumentHeading {
				content = strings.TrimSpace(content)
			}
			emit(section.Heading, lastGrade, content)
			continue
		}

		// Keep body text that precedes the first grade marker's line.
		if pre, ok := preamble(section.Content[:grades[0].MarkStart], section.Heading); ok {
			emit(section.Heading, lastGrade, pre)
		}

		for i, g := range grades {
			label := g.Label
			lastGrade = &label
			body := strings.TrimSpace(g.Content)
			if body == "" {
				continue
			}
			if i+1 < len(grades) && !strings.Contains(g.Content, "\n") {
				// Shares its line with the next marker.
				continue
			}
			emit(section.Heading, &label, body)
		}
	}

	if c.opts.MaxChars <= 0 {
		return chunks
	}

	sized := make([]models.TextChunk, 0, len(chunks))
	for _, ch := range chunks {
		if utf8.RuneCountInString(ch.Content) <= c.opts.MaxChars {
			sized = append(sized, ch)
			continue
		}
		for _, piece := range SplitBySize(ch.Content, c.opts.MaxChars) {
			part := ch
			part.Content = piece
			sized = append(sized, part)
		}
	}
	return sized
}

// SplitHeadings cuts text at each whole-line heading match. Each section runs
// from its heading to the next heading or the end of text. Without any match
// the whole text is one FULL_DOCUMENT section.
func (c *Chunker) SplitHeadings(text string) []HeadingSection {
	var locs [][]int
	if c.headings != nil {
		locs = c.headings.FindAllStringSubmatchIndex(text, -1)
	}
	if len(locs) == 0 {
		return []HeadingSection{{
			Heading: models.FullDocumentHeading,
			Start:   0,
			End:     len(text),
			Content: text,
		}}
	}

	sections := make([]HeadingSection, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections[i] = HeadingSection{
			Heading: strings.TrimSpace(text[loc[2]:loc[3]]),
			Start:   loc[0],
			End:     end,
			Content: text[loc[0]:end],
		}
	}
	return sections
}

// SplitGrades finds every grade-level marker in content, across all patterns,
// and returns the text after each marker up to the next one. Markers are
// ordered by position; on equal positions the earlier pattern wins, and a
// marker overlapping the previous one is ignored.
func (c *Chunker) SplitGrades(content string) []GradeSection {
	type mark struct {
		start, end, order int
		label             string
	}

	var marks []mark
	for order, g := range c.grades {
		for _, loc := range g.re.FindAllStringIndex(content, -1) {
			marks = append(marks, mark{start: loc[0], end: loc[1], order: order, label: g.label})
		}
	}
	if len(marks) == 0 {
		return nil
	}

	sort.Slice(marks, func(i, j int) bool {
		if marks[i].start != marks[j].start {
			return marks[i].start < marks[j].start
		}
		return marks[i].order < marks[j].order
	})

	kept := marks[:0]
	prevEnd := -1
	for _, m := range marks {
		if m.start < prevEnd {
			continue
		}
		kept = append(kept, m)
		prevEnd = m.end
	}

	sections := make([]GradeSection, len(kept))
	for i, m := range kept {
		end := len(content)
		if i+1 < len(kept) {
			end = kept[i+1].start
		}
		sections[i] = GradeSection{
			Label:      m.label,
			MarkStart:  m.start,
			MarkEnd:    m.end,
			ContentEnd: end,
			Content:    content[m.end:end],
		}
	}
	return sections
}

// SplitBySize packs whitespace-separated words into pieces whose
// space-joined length stays within maxChars runes. A single longer word
// becomes its own piece.
func SplitBySize(text string, maxChars int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{text}
	}

	var pieces []string
	var current []string
	currentLen := 0 // runes in current, spaces excluded

	for _, w := range words {
		wl := utf8.RuneCountInString(w)
		if len(current) > 0 && currentLen+wl+len(current) > maxChars {
			pieces = append(pieces, strings.Join(current, " "))
			current = current[:0]
			currentLen = 0
		}
		current = append(current, w)
		currentLen += wl
	}
	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}
	return pieces
}

// preamble returns the text before a grade marker's line, trimmed. ok is
// false when nothing but the heading line precedes the marker.
func preamble(pre, heading string) (string, bool) {
	nl := strings.LastIndexByte(pre, '\n')
	if nl < 0 {
		return "", false
	}
	pre = strings.TrimSpace(pre[:nl])
	if strings.TrimSpace(strings.TrimPrefix(pre, heading)) == "" {
		return "", false
	}
	return pre, true
}

// LoadSubjectText reads the subject's text file from dir.
func LoadSubjectText(dir string, cfg models.SubjectConfig) (string, error) {
	name := cfg.Filename
	if name == "" {
		name = cfg.Subject + ".txt"
	}
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: no text file for subject %s: %s", models.ErrNotFound, cfg.Subject, path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
