package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kursgen/internal/models"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent jobs",
	Long: `List recent generation jobs, newest first.

Examples:
  kursgen jobs
  kursgen jobs --limit 50`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "maximum number of jobs")
}

func runJobs(cmd *cobra.Command, args []string) error {
	jobs, err := apiClient.ListJobs(context.Background(), jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	printJobs(cmd.OutOrStdout(), jobs)
	return nil
}

func printJobs(w io.Writer, jobs []models.JobSummary) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return
	}

	fmt.Fprintf(w, "%-36s %-10s %-18s %-20s %s\n", "ID", "STATUS", "SUBJECT", "CREATED", "QUERY")
	fmt.Fprintln(w, "------------------------------------------------------------------------------------------------------")

	for _, job := range jobs {
		created := job.CreatedAt.Local().Format("2006-01-02 15:04:05")
		fmt.Fprintf(w, "%-36s %-10s %-18s %-20s %s\n", job.JobID, job.Status, job.Subject, created, truncate(job.Query, 40))
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}
