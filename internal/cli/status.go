package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kursgen/internal/models"
)

var (
	statusWait bool
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status of a job",
	Long: `Show the status of a job. Completed jobs print their quiz and flashcards.

Examples:
  kursgen status 2f6c...
  kursgen status 2f6c... --wait
  kursgen status 2f6c... --json`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWait, "wait", "w", false, "wait for the job to finish")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status response")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := args[0]

	if statusWait && !statusJSON {
		return waitForJob(ctx, cmd, id)
	}

	var status *models.JobStatusResponse
	var err error
	if statusWait {
		status, err = apiClient.WaitForJob(ctx, id, pollInterval, nil)
	} else {
		status, err = apiClient.GetStatus(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	printStatus(out, status)
	return nil
}

func printStatus(w io.Writer, s *models.JobStatusResponse) {
	fmt.Fprintf(w, "Job: %s\n", s.JobID)
	fmt.Fprintf(w, "  Status: %s\n", s.Status)
	if s.ErrorMessage != nil && *s.ErrorMessage != "" {
		fmt.Fprintf(w, "  Error: %s\n", *s.ErrorMessage)
	}
	if s.Result != nil {
		fmt.Fprintln(w)
		printActivity(w, s.Result)
	}
}

// printActivity renders a generated activity as plain text.
func printActivity(w io.Writer, r *models.LearningActivityResponse) {
	if r.Explanation != "" {
		fmt.Fprintf(w, "%s\n\n", r.Explanation)
	}

	if r.Quiz != nil {
		fmt.Fprintf(w, "Quiz: %s\n", r.Quiz.Topic)
		for _, q := range r.Quiz.Questions {
			fmt.Fprintf(w, "\n  %d. %s\n", q.ID, q.Prompt)
			for _, a := range q.Alternatives {
				mark := " "
				if a.IsCorrect {
					mark = "*"
				}
				fmt.Fprintf(w, "     [%s] %s) %s\n", mark, a.ID, a.Text)
			}
			if q.SourceReference != nil {
				fmt.Fprintf(w, "     Källa: %s\n", *q.SourceReference)
			}
		}
		fmt.Fprintln(w)
	}

	if r.Flashcards != nil {
		fmt.Fprintf(w, "Flashcards: %s\n", r.Flashcards.Topic)
		for _, c := range r.Flashcards.Items {
			fmt.Fprintf(w, "\n  %d. %s\n", c.CardID, c.Term)
			fmt.Fprintf(w, "     %s\n", c.Definition)
		}
		fmt.Fprintln(w)
	}
}
