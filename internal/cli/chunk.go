package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kursgen/internal/models"
	"github.com/raphaelgruber/kursgen/internal/parser"
	"github.com/raphaelgruber/kursgen/internal/service"
)

var (
	chunkDataDir  string
	chunkMaxChars int
	chunkJSON     bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <subject>",
	Short: "Chunk a subject text and print the result",
	Long: `Run the chunker over <data-dir>/<subject>.txt without embedding or
storing anything. Useful for checking heading and grade patterns.

Examples:
  kursgen chunk biologi
  kursgen chunk historia --max-chars 0 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().StringVar(&chunkDataDir, "data-dir", "", "directory with subject text files (default from config)")
	chunkCmd.Flags().IntVar(&chunkMaxChars, "max-chars", parser.DefaultChunkOptions().MaxChars, "maximum chunk length, 0 disables size splitting")
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "print chunks as JSON")
}

func runChunk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if chunkDataDir == "" {
		chunkDataDir = cfg.DataDir
	}

	subjects, err := loadSubjects(cfg.SubjectsFile)
	if err != nil {
		return err
	}
	subjectCfg, err := subjects.Get(args[0])
	if err != nil {
		return err
	}
	text, err := parser.LoadSubjectText(chunkDataDir, subjectCfg)
	if err != nil {
		return err
	}

	ix := service.NewIndexer(subjects, nil, nil, nil)
	chunks, err := ix.ChunkText(subjectCfg, text, parser.ChunkOptions{MaxChars: chunkMaxChars})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if chunkJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(chunks)
	}
	printChunks(out, chunks)
	return nil
}

func printChunks(w io.Writer, chunks []models.TextChunk) {
	for i, c := range chunks {
		grade := c.GradeLabel()
		if grade == "" {
			grade = "-"
		}
		fmt.Fprintf(w, "[%d] %s | %s | %d chars\n", i, c.Heading, grade, len([]rune(c.Content)))
		fmt.Fprintf(w, "    %s\n", truncate(c.Content, 100))
	}
	fmt.Fprintf(w, "\n%d chunks\n", len(chunks))
}

func loadSubjects(path string) (*parser.Subjects, error) {
	if path == "" {
		return parser.DefaultSubjects()
	}
	return parser.LoadSubjects(path)
}
