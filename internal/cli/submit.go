package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kursgen/internal/models"
)

var (
	submitSubject    string
	submitQuiz       int
	submitFlashcards int
	submitWait       bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <query>",
	Short: "Submit a quiz/flashcard generation job",
	Long: `Submit a generation job to the server and print its id.

Examples:
  kursgen submit "fotosyntes" --subject biologi --quiz 2
  kursgen submit "franska revolutionen" --subject historia --quiz 3 --flashcards 2 --wait`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitSubject, "subject", "s", "", "curriculum subject (required)")
	submitCmd.Flags().IntVarP(&submitQuiz, "quiz", "q", 0, "number of quiz questions (0-5)")
	submitCmd.Flags().IntVarP(&submitFlashcards, "flashcards", "f", 0, "number of flashcards (0-5)")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "wait for the job to finish")
	_ = submitCmd.MarkFlagRequired("subject")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	req := models.ActivityRequest{
		Query:          strings.Join(args, " "),
		QuizQuestions:  submitQuiz,
		FlashcardItems: submitFlashcards,
		Subject:        submitSubject,
	}
	// Catch bad counts before a round trip.
	if err := req.Validate(); err != nil {
		return err
	}

	id, err := apiClient.CreateJob(ctx, req)
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}

	out := cmd.OutOrStdout()
	if !submitWait {
		fmt.Fprintf(out, "Job %s submitted\n", id)
		fmt.Fprintf(out, "Use 'kursgen status %s' to check status.\n", id)
		return nil
	}
	return waitForJob(ctx, cmd, id)
}
