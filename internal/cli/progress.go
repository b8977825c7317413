package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/kursgen/internal/client"
	"github.com/raphaelgruber/kursgen/internal/models"
)

const pollInterval = time.Second

// Theme holds the color scheme for the wait display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobUpdateMsg carries the updated job status
type jobUpdateMsg struct {
	status *models.JobStatusResponse
	err    error
}

// statusFetcher is the part of the client the wait UI polls.
type statusFetcher interface {
	GetStatus(ctx context.Context, id string) (*models.JobStatusResponse, error)
}

// waitModel is the bubbletea model shown while a job is PENDING.
type waitModel struct {
	client   statusFetcher
	jobID    string
	status   *models.JobStatusResponse
	spinner  spinner.Model
	theme    Theme
	started  time.Time
	done     bool
	quitting bool
	err      error
}

func newWaitModel(c statusFetcher, jobID string) waitModel {
	return waitModel{
		client:  c,
		jobID:   jobID,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		theme:   defaultTheme,
		started: time.Now(),
	}
}

// Init starts the spinner and the first poll.
func (m waitModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchStatus())
}

// Update handles messages and returns the updated model.
func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchStatus()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.status = msg.status
		switch m.status.Status {
		case models.JobStatusCompleted:
			m.done = true
			return m, tea.Quit
		case models.JobStatusFailed:
			m.done = true
			m.err = jobError(m.status)
			return m, tea.Quit
		}
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the wait display.
func (m waitModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m waitModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	status := models.JobStatusPending
	if m.status != nil {
		status = m.status.Status
	}
	elapsed := time.Since(m.started).Round(time.Second)
	line := fmt.Sprintf("%s %s generating activities (%s)",
		m.spinner.View(), m.theme.statusStyle().Render(fmt.Sprintf("[%s]", status)), elapsed)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")
	return line + "\n" + hint + "\n"
}

func (m waitModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'kursgen status %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ Job failed: %s", m.err)) + "\n"
	}
	return m.theme.completedStyle().Render("✓ Completed") + "\n"
}

// fetchStatus polls the server in a command so Update never blocks.
func (m waitModel) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		status, err := m.client.GetStatus(ctx, m.jobID)
		return jobUpdateMsg{status: status, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func jobError(s *models.JobStatusResponse) error {
	if s.ErrorMessage != nil && *s.ErrorMessage != "" {
		return errors.New(*s.ErrorMessage)
	}
	return errors.New("job failed with unknown error")
}

// waitForJob waits for a job and prints the result. The spinner UI runs
// only when stdout is a terminal; otherwise it polls quietly.
func waitForJob(ctx context.Context, cmd *cobra.Command, id string) error {
	out := cmd.OutOrStdout()

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		status, quitting, err := runWaitUI(apiClient, id)
		if err != nil || quitting {
			return err
		}
		printActivity(out, status.Result)
		return nil
	}

	status, err := apiClient.WaitForJob(ctx, id, pollInterval, nil)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}
	printStatus(out, status)
	if status.Status == models.JobStatusFailed {
		return jobError(status)
	}
	return nil
}

// runWaitUI runs the spinner until the job is terminal or the user leaves.
func runWaitUI(c *client.Client, id string) (*models.JobStatusResponse, bool, error) {
	p := tea.NewProgram(newWaitModel(c, id))
	final, err := p.Run()
	if err != nil {
		return nil, false, fmt.Errorf("wait UI error: %w", err)
	}

	m, ok := final.(waitModel)
	if !ok {
		return nil, false, errors.New("wait UI returned an unexpected model")
	}
	if m.quitting {
		return nil, true, nil
	}
	if m.err != nil {
		return nil, false, m.err
	}
	return m.status, false, nil
}
