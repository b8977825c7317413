package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kursgen/internal/models"
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "List configured curriculum subjects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		subjects, err := loadSubjects(cfg.SubjectsFile)
		if err != nil {
			return err
		}
		printSubjects(cmd.OutOrStdout(), subjects.List())
		return nil
	},
}

func printSubjects(w io.Writer, subjects []models.SubjectConfig) {
	fmt.Fprintf(w, "%-18s %-24s %-9s %s\n", "SUBJECT", "FILE", "HEADINGS", "GRADES")
	for _, s := range subjects {
		grades := make([]string, 0, len(s.GradeLevels))
		for _, g := range s.GradeLevels {
			grades = append(grades, g.Label)
		}
		file := s.Filename
		if file == "" {
			file = s.Subject + ".txt"
		}
		fmt.Fprintf(w, "%-18s %-24s %-9d %s\n", s.Subject, file, len(s.Headings), strings.Join(grades, ", "))
	}
}
