package tui

import "github.com/charmbracelet/lipgloss"

const (
	boxChecked   = "[x]"
	boxUnchecked = "[ ]"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	selectedStyle = cellStyle.Bold(true).Reverse(true)
	doneStyle     = cellStyle.Faint(true).Strikethrough(true)
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	labelStyle    = lipgloss.NewStyle().Bold(true)
	borderColor   = lipgloss.Color("8")
)

// panel draws a rounded box around inner.
func panel(inner string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Render(inner)
}
