package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kursgen/internal/app"
	"github.com/raphaelgruber/kursgen/internal/parser"
	"github.com/raphaelgruber/kursgen/internal/service"
)

var (
	indexAll         bool
	indexDryRun      bool
	indexConcurrency int
	indexMaxChars    int
	indexDataDir     string
)

var indexCmd = &cobra.Command{
	Use:   "index [subject...]",
	Short: "Chunk, embed and store subject texts",
	Long: `Chunk each subject text, embed the chunks and replace the subject's
chunks in the configured store.

Examples:
  kursgen index biologi kemi
  kursgen index --all
  kursgen index --all --dry-run`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexAll, "all", false, "index every configured subject")
	indexCmd.Flags().BoolVar(&indexDryRun, "dry-run", false, "chunk only, no embedding or storage")
	indexCmd.Flags().IntVarP(&indexConcurrency, "concurrency", "c", 2, "subjects indexed in parallel")
	indexCmd.Flags().IntVar(&indexMaxChars, "max-chars", parser.DefaultChunkOptions().MaxChars, "maximum chunk length, 0 disables size splitting")
	indexCmd.Flags().StringVar(&indexDataDir, "data-dir", "", "directory with subject text files (default from config)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if indexDataDir == "" {
		indexDataDir = cfg.DataDir
	}

	var indexer *service.Indexer
	var subjects *parser.Subjects
	if indexDryRun {
		subjects, err = loadSubjects(cfg.SubjectsFile)
		if err != nil {
			return err
		}
		indexer = service.NewIndexer(subjects, nil, nil, nil)
	} else {
		a, err := app.OpenIndexer(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
			}
		}()
		subjects, indexer = a.Subjects, a.Indexer
	}

	names := args
	if indexAll {
		names = subjects.Names()
	}
	if len(names) == 0 {
		return fmt.Errorf("no subjects given (use --all for every subject)")
	}

	res, err := indexer.IndexSubjects(ctx, names, service.IndexOptions{
		DataDir:     indexDataDir,
		Concurrency: indexConcurrency,
		DryRun:      indexDryRun,
		Chunk:       parser.ChunkOptions{MaxChars: indexMaxChars},
	})
	if err != nil {
		return err
	}

	printIndexResult(cmd.OutOrStdout(), res, indexDryRun)
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d of %d subjects failed", len(res.Errors), len(names))
	}
	return nil
}

func printIndexResult(w io.Writer, res *service.IndexResult, dryRun bool) {
	verb := "Indexed"
	if dryRun {
		verb = "Chunked"
	}
	for _, s := range res.Subjects {
		fmt.Fprintf(w, "%s %-18s %4d chunks (%d with grade level) in %s\n",
			verb, s.Subject, s.Chunks, s.Graded, s.Duration.Round(time.Millisecond))
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  ✗ %s\n", e)
	}
}
