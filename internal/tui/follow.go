// Package tui provides the terminal follow view for a running task.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/forgeworks/squadron/pkg/models"
)

// maxLogLines bounds the scrollback kept in the event log panel.
const maxLogLines = 12

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Bold(true)
	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFC857")).
			Bold(true)
	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96E6A1")).
			Bold(true)
	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)
	barFillStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#45B7D1"))
	barEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	logStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// EventMsg wraps one task progress event for the view.
type EventMsg struct {
	Event models.ProgressEvent
}

// StreamClosedMsg signals the event stream has ended.
type StreamClosedMsg struct{}

// Follow is the bubbletea model that renders a task's progress stream.
type Follow struct {
	taskID   string
	events   <-chan models.ProgressEvent
	state    models.TaskState
	progress int
	step     string
	log      []string
	width    int
	err      string
	done     bool
	quitting bool
}

// NewFollow creates a follow view over a task's event channel.
func NewFollow(taskID string, events <-chan models.ProgressEvent) *Follow {
	return &Follow{
		taskID: taskID,
		events: events,
		state:  models.TaskStateQueued,
		width:  80,
	}
}

// Init implements tea.Model.
func (f *Follow) Init() tea.Cmd {
	return f.waitForEvent()
}

// waitForEvent blocks on the event channel and converts the result into
// a bubbletea message.
func (f *Follow) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-f.events
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Update implements tea.Model.
func (f *Follow) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			f.quitting = true
			return f, tea.Quit
		}

	case tea.WindowSizeMsg:
		f.width = msg.Width

	case EventMsg:
		f.apply(msg.Event)
		if f.done {
			return f, tea.Quit
		}
		return f, f.waitForEvent()

	case StreamClosedMsg:
		f.done = true
		return f, tea.Quit
	}
	return f, nil
}

// apply folds one event into the view state.
func (f *Follow) apply(ev models.ProgressEvent) {
	if ev.State != "" {
		f.state = ev.State
	}
	if ev.Progress > 0 || f.state == models.TaskStateFixing {
		f.progress = ev.Progress
	}
	if ev.Step != "" {
		f.step = ev.Step
	}

	line := f.describe(ev)
	if line != "" {
		stamp := ev.Timestamp
		if stamp.IsZero() {
			stamp = time.Now()
		}
		f.log = append(f.log, fmt.Sprintf("%s %s", stamp.Format("15:04:05"), line))
		if len(f.log) > maxLogLines {
			f.log = f.log[len(f.log)-maxLogLines:]
		}
	}

	switch ev.Kind {
	case models.EventTaskCompleted:
		f.progress = 100
		f.done = true
	case models.EventTaskFailed:
		f.err = ev.Error
		f.done = true
	case models.EventTaskCancelled:
		f.done = true
	}
}

func (f *Follow) describe(ev models.ProgressEvent) string {
	switch ev.Kind {
	case models.EventConnectionEstablished:
		return fmt.Sprintf("following task %s (%s, %d%%)", ev.TaskID, ev.State, ev.Progress)
	case models.EventTaskStarted:
		return ev.Message
	case models.EventAgentsWorking:
		return fmt.Sprintf("squad %s working on %s", ev.Squad, ev.Step)
	case models.EventProgressUpdate:
		if ev.Message != "" {
			return ev.Message
		}
		return fmt.Sprintf("progress %d%% (%s)", ev.Progress, ev.Step)
	case models.EventQualityGateRunning:
		return ev.Message
	case models.EventTaskCompleted:
		return "task completed"
	case models.EventTaskFailed:
		return fmt.Sprintf("task failed: %s", ev.Error)
	case models.EventTaskCancelled:
		return "task cancelled"
	}
	return ""
}

// View implements tea.Model.
func (f *Follow) View() string {
	if f.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("squadron task %s", f.taskID)))
	b.WriteString("\n\n")

	state := stateStyle.Render(string(f.state))
	switch f.state {
	case models.TaskStateCompleted:
		state = doneStyle.Render(string(f.state))
	case models.TaskStateFailed, models.TaskStateCancelled:
		state = failStyle.Render(string(f.state))
	}
	b.WriteString(fmt.Sprintf("state: %s", state))
	if f.step != "" {
		b.WriteString(fmt.Sprintf("  step: %s", f.step))
	}
	b.WriteString("\n")
	b.WriteString(f.renderBar())
	b.WriteString("\n\n")

	for _, line := range f.log {
		b.WriteString(logStyle.Render(line))
		b.WriteString("\n")
	}
	if f.err != "" {
		b.WriteString("\n")
		b.WriteString(failStyle.Render(f.err))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q to quit"))
	b.WriteString("\n")
	return b.String()
}

// renderBar draws the progress bar sized to the terminal width.
func (f *Follow) renderBar() string {
	width := f.width - 10
	if width < 10 {
		width = 10
	}
	if width > 60 {
		width = 60
	}
	filled := f.progress * width / 100
	bar := barFillStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3d%%", bar, f.progress)
}
