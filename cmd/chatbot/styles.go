package main

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(13)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle = lipgloss.NewStyle().Faint(true)
)

// field renders one "label value" line of a report
func field(label, value string) string {
	return "  " + labelStyle.Render(label+":") + valueStyle.Render(value)
}
