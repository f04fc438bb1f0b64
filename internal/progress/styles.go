package progress

import "github.com/charmbracelet/lipgloss"

// Semantic colors shared with the report renderer.
var (
	Success = lipgloss.Color("#8BC34A")
	Warning = lipgloss.Color("#FFC107")
	Info    = lipgloss.Color("#2196F3")
	Danger  = lipgloss.Color("#e53935")
	Muted   = lipgloss.Color("#6b7785")
)

// Styles holds the lipgloss styles of the progress display.
type Styles struct {
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Info    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f2f2f2")).Background(lipgloss.Color("#101F38")).Padding(0, 1),
		Bold:    lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(Muted),
		Info:    lipgloss.NewStyle().Foreground(Info),
		Success: lipgloss.NewStyle().Foreground(Success),
		Warning: lipgloss.NewStyle().Foreground(Warning),
		Error:   lipgloss.NewStyle().Foreground(Danger),
	}
}
