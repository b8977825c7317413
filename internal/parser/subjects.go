package parser

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/kursgen/internal/models"
)

//go:embed subjects.yaml
var defaultSubjectsYAML []byte

type subjectsFile struct {
	HeadingSets map[string][]string    `yaml:"heading_sets"`
	GradeLevels []models.GradePattern  `yaml:"grade_levels"`
	Subjects    []models.SubjectConfig `yaml:"subjects"`
}

// Subjects is the set of known subject configurations in file order.
type Subjects struct {
	byName map[string]models.SubjectConfig
	order  []string
}

// DefaultSubjects returns the embedded subject configurations.
func DefaultSubjects() (*Subjects, error) {
	return ParseSubjects(defaultSubjectsYAML)
}

// LoadSubjects reads subject configurations from path, or the embedded
// defaults when path is empty.
func LoadSubjects(path string) (*Subjects, error) {
	if path == "" {
		return DefaultSubjects()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subjects file: %w", err)
	}
	return ParseSubjects(data)
}

// ParseSubjects decodes a subjects document, expands heading set references
// and checks that every pattern compiles.
func ParseSubjects(data []byte) (*Subjects, error) {
	var f subjectsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse subjects: %w", err)
	}

	s := &Subjects{byName: make(map[string]models.SubjectConfig, len(f.Subjects))}
	for _, cfg := range f.Subjects {
		if cfg.Subject == "" {
			return nil, fmt.Errorf("parse subjects: entry without subject name")
		}
		if _, dup := s.byName[cfg.Subject]; dup {
			return nil, fmt.Errorf("parse subjects: duplicate subject %s", cfg.Subject)
		}

		headings, err := expandHeadings(cfg.Headings, f.HeadingSets)
		if err != nil {
			return nil, fmt.Errorf("subject %s: %w", cfg.Subject, err)
		}
		cfg.Headings = headings
		if len(cfg.GradeLevels) == 0 {
			cfg.GradeLevels = f.GradeLevels
		}

		if _, err := NewChunker(cfg, ChunkOptions{}); err != nil {
			return nil, err
		}

		s.byName[cfg.Subject] = cfg
		s.order = append(s.order, cfg.Subject)
	}
	return s, nil
}

func expandHeadings(entries []string, sets map[string][]string) ([]string, error) {
	var out []string
	for _, e := range entries {
		name, isSet := strings.CutPrefix(e, "@")
		if !isSet {
			out = append(out, e)
			continue
		}
		set, ok := sets[name]
		if !ok {
			return nil, fmt.Errorf("unknown heading set %q", name)
		}
		out = append(out, set...)
	}
	return out, nil
}

// Get returns the configuration for subject.
func (s *Subjects) Get(subject string) (models.SubjectConfig, error) {
	cfg, ok := s.byName[subject]
	if !ok {
		return models.SubjectConfig{}, fmt.Errorf("%w: unknown subject %s", models.ErrNotFound, subject)
	}
	return cfg, nil
}

// Names returns the subject names in file order.
func (s *Subjects) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// List returns all configurations in file order.
func (s *Subjects) List() []models.SubjectConfig {
	out := make([]models.SubjectConfig, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}
