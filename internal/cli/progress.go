package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/graphscribe/internal/client"
	"github.com/raphaelgruber/graphscribe/internal/service"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
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

// tickMsg triggers polling the task status
type tickMsg time.Time

// taskUpdateMsg carries the updated task data
type taskUpdateMsg struct {
	task service.Task
	err  error
}

// progressModel is the bubbletea model for build task progress.
type progressModel struct {
	client   *client.Client
	taskID   string
	task     service.Task
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(c *client.Client, taskID string) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   c,
		taskID:   taskID,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchTask()

	case taskUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch task status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.task = msg.task

		switch m.task.Status {
		case service.TaskCompleted:
			m.done = true
			return m, tea.Quit
		case service.TaskFailed:
			m.done = true
			if m.task.Error != "" {
				m.err = fmt.Errorf("%s", m.task.Error)
			} else {
				m.err = fmt.Errorf("task failed with unknown error")
			}
			return m, tea.Quit
		}

		// Continue polling for running tasks
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.task.ID == "" {
		return "Loading task status...\n"
	}

	pct := float64(m.task.Progress) / 100

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.task.Status))
	progressBar := m.progress.ViewAs(pct)
	message := m.task.Message
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, message, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nTask %s continues in background.\nUse 'graphscribe tasks %s' to check status.\n",
			m.taskID, m.taskID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		out := m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Build failed: %s\n", m.err))
		// A failed build may still have merged earlier chunks.
		if r := m.task.Result; r != nil {
			if merged, ok := r["nodes_merged"].(float64); ok && merged > 0 {
				out += m.theme.hintStyle().Render(
					fmt.Sprintf("Partial data retained in %v (%v nodes).\n", r["graph_id"], merged))
			}
		}
		return out
	}

	if r := m.task.Result; r != nil {
		var output string
		output += m.theme.completedStyle().Render("✓ Completed") + "\n\n"
		output += fmt.Sprintf("  Graph:         %v\n", r["graph_id"])
		output += fmt.Sprintf("  Chunks:        %v\n", r["chunks_processed"])
		output += fmt.Sprintf("  Nodes merged:  %v\n", r["nodes_merged"])
		output += fmt.Sprintf("  Edges merged:  %v\n", r["edges_merged"])
		if dropped, ok := r["edges_dropped"].(float64); ok && dropped > 0 {
			output += fmt.Sprintf("  Edges dropped: %v\n", r["edges_dropped"])
		}
		if errs, ok := r["merge_errors"].(float64); ok && errs > 0 {
			output += m.theme.errorStyle().Render(fmt.Sprintf("\n  Merge errors: %.0f\n", errs))
		}
		return output
	}

	return m.theme.completedStyle().Render("✓ Completed\n")
}

// fetchTask fetches the current task status from the server.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchTask() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		task, err := m.client.GetTask(ctx, m.taskID)
		return taskUpdateMsg{task: task, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunTaskProgress runs the interactive progress UI for a build task.
// Returns nil on success or Ctrl+C (background), error on task failure.
func RunTaskProgress(c *client.Client, taskID string) error {
	model := newProgressModel(c, taskID)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		// If user quit with Ctrl+C, the build continues in background - not an error
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
