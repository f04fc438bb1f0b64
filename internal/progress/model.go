// Package progress observes a run through its progress channel, either as a
// bubbletea display or as a plain log sink.
package progress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"courtsync/internal/portal"
)

// recentLimit is how many finished cases stay on screen.
const recentLimit = 8

type eventMsg portal.ProgressEvent

type doneMsg struct{}

// waitForEvent reads the next event; a closed channel ends the display.
func waitForEvent(events <-chan portal.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

// Model is the bubbletea model of a running query loop.
type Model struct {
	events   <-chan portal.ProgressEvent
	onCancel func()

	bar     progress.Model
	spinner spinner.Model
	styles  Styles
	width   int

	tribunal portal.Tribunal
	total    int
	current  string
	stats    portal.RunStats
	recent   []string
	message  string
	done     bool
}

// NewModel builds a display over events. onCancel, if set, runs when the user
// asks to stop.
func NewModel(events <-chan portal.ProgressEvent, onCancel func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		events:   events,
		onCancel: onCancel,
		bar:      progress.New(progress.WithDefaultGradient()),
		spinner:  sp,
		styles:   DefaultStyles(),
		width:    80,
	}
}

// Init starts the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.onCancel != nil {
				m.onCancel()
			}
			m.message = "stopping after the current case..."
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, msg.Width-4)
		return m, nil

	case eventMsg:
		m.apply(portal.ProgressEvent(msg))
		return m, waitForEvent(m.events)

	case doneMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(ev portal.ProgressEvent) {
	m.stats = ev.Stats
	if ev.Stats.Tribunal != "" {
		m.tribunal = ev.Stats.Tribunal
	}
	if ev.Total > 0 {
		m.total = ev.Total
	}
	switch ev.Kind {
	case portal.EventCaseStarted:
		m.current = ev.Case.ID
	case portal.EventCaseFinished:
		m.current = ""
		if ev.Outcome != nil {
			m.recent = append(m.recent, m.outcomeLine(*ev.Outcome))
			if len(m.recent) > recentLimit {
				m.recent = m.recent[len(m.recent)-recentLimit:]
			}
		}
	case portal.EventRunFinished:
		m.current = ""
	}
	if ev.Message != "" {
		m.message = ev.Message
	}
}

func (m Model) outcomeLine(o portal.Outcome) string {
	switch o.Terminal {
	case portal.TerminalSuccess:
		detail := o.Fields.Movement
		if o.Detected != "" {
			detail = string(o.Detected)
		}
		return m.styles.Success.Render(fmt.Sprintf(" ✓ %s  %s", o.Case.ID, truncate(detail, 50)))
	case portal.TerminalNotFound:
		return m.styles.Warning.Render(fmt.Sprintf(" - %s  not found", o.Case.ID))
	}
	reason := "error"
	if o.Err != nil {
		reason = portal.KindOf(o.Err).String()
	}
	return m.styles.Error.Render(fmt.Sprintf(" ✗ %s  %s", o.Case.ID, reason))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Percent is the share of the worklist that reached a terminal state.
func (m Model) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.stats.Processed()) / float64(m.total)
}

// Stats returns the last tally received.
func (m Model) Stats() portal.RunStats { return m.stats }

// Done reports whether the event channel was closed.
func (m Model) Done() bool { return m.done }

// View renders the display.
func (m Model) View() string {
	var b strings.Builder

	title := m.styles.Header.Render(fmt.Sprintf("courtsync %s", m.tribunal))
	counts := fmt.Sprintf("%d/%d", m.stats.Processed(), m.total)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", m.styles.Bold.Render(counts)) + "\n\n")
	b.WriteString(m.bar.ViewAs(m.Percent()) + "\n\n")

	tally := fmt.Sprintf("success %d  |  not found %d  |  errors %d  |  multiple %d  |  changes %d",
		m.stats.Success, m.stats.NotFound, m.stats.Errors, m.stats.Multiple, m.stats.StatusChanges)
	b.WriteString(m.styles.Info.Render(tally) + "\n\n")

	if m.current != "" {
		b.WriteString(fmt.Sprintf("%s querying %s\n\n", m.spinner.View(), m.current))
	}
	for _, line := range m.recent {
		b.WriteString(line + "\n")
	}
	if m.message != "" {
		b.WriteString("\n" + m.styles.Muted.Render(m.message) + "\n")
	}
	if !m.done {
		b.WriteString("\n" + m.styles.Muted.Render("q: stop after the current case") + "\n")
	}
	return b.String()
}
