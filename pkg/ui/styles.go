package ui

import "github.com/charmbracelet/lipgloss"

// theme groups reusable styles for terminal prompts and bot cards.
type theme struct {
	cardTitle lipgloss.Style
	cardMeta  lipgloss.Style
	card      lipgloss.Style
	label     lipgloss.Style
	hint      lipgloss.Style
	prompt    lipgloss.Style
	errorLine lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		cardTitle: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("88")),
		cardMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("223")),
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("130")).
			Padding(0, 1),
		label: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		prompt: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")),
		errorLine: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
	}
}
