package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raphaelgruber/kursgen/internal/models"
)

func TestDefaultSubjects(t *testing.T) {
	subjects, err := DefaultSubjects()
	if err != nil {
		t.Fatalf("DefaultSubjects() error = %v", err)
	}

	want := []string{"historia", "samhallskunskap", "geografi", "religionskunskap", "fysik", "kemi", "biologi"}
	got := subjects.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	bio, err := subjects.Get("biologi")
	if err != nil {
		t.Fatalf("Get(biologi) error = %v", err)
	}
	if bio.Headings[0] != "^Kommentarer till kursplanens syfte" {
		t.Errorf("first heading = %q, want generic syfte heading", bio.Headings[0])
	}
	if bio.Headings[3] != "^Om skolämnet biologi" {
		t.Errorf("heading[3] = %q, want subject intro heading", bio.Headings[3])
	}
	if len(bio.GradeLevels) != 3 || bio.GradeLevels[2].Label != "7-9" {
		t.Errorf("GradeLevels = %+v, want the three standard levels", bio.GradeLevels)
	}

	for _, cfg := range subjects.List() {
		if cfg.ContentType != "kommentar" {
			t.Errorf("%s content_type = %q", cfg.Subject, cfg.ContentType)
		}
		for _, h := range cfg.Headings {
			if strings.HasPrefix(h, "@") {
				t.Errorf("%s has unexpanded heading set %q", cfg.Subject, h)
			}
		}
	}
}

func TestSubjects_GetUnknown(t *testing.T) {
	subjects, err := DefaultSubjects()
	if err != nil {
		t.Fatal(err)
	}
	_, err = subjects.Get("matematik")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get(matematik) error = %v, want ErrNotFound", err)
	}
}

func TestParseSubjects_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "unknown heading set",
			doc:     "subjects:\n  - subject: kemi\n    headings: ['@missing']\n",
			wantErr: "unknown heading set",
		},
		{
			name:    "bad heading pattern",
			doc:     "subjects:\n  - subject: kemi\n    headings: ['(unclosed']\n",
			wantErr: "heading pattern",
		},
		{
			name:    "bad grade pattern",
			doc:     "subjects:\n  - subject: kemi\n    grade_levels:\n      - {pattern: '[', label: x}\n",
			wantErr: "grade pattern",
		},
		{
			name:    "duplicate subject",
			doc:     "subjects:\n  - subject: kemi\n  - subject: kemi\n",
			wantErr: "duplicate subject",
		},
		{
			name:    "missing name",
			doc:     "subjects:\n  - content_type: kommentar\n",
			wantErr: "without subject name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSubjects([]byte(tt.doc))
			if err == nil {
				t.Fatalf("ParseSubjects() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseSubjects() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadSubjects_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subjects.yaml")
	doc := `heading_sets:
  intro: ['^Inledning']
grade_levels:
  - {pattern: 'steg 1', label: '1'}
subjects:
  - subject: teknik
    content_type: kursplan
    headings: ['@intro', 'Programmering']
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	subjects, err := LoadSubjects(path)
	if err != nil {
		t.Fatalf("LoadSubjects() error = %v", err)
	}
	cfg, err := subjects.Get("teknik")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(cfg.Headings, "|") != "^Inledning|Programmering" {
		t.Errorf("Headings = %v", cfg.Headings)
	}
	if len(cfg.GradeLevels) != 1 || cfg.GradeLevels[0].Label != "1" {
		t.Errorf("GradeLevels = %+v, want inherited default", cfg.GradeLevels)
	}

	if _, err := LoadSubjects(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadSubjects() on a missing file should fail")
	}
}
