package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"debotbrowser/pkg/engine"
)

// RenderInfo formats a bot description as a bordered card.
func RenderInfo(address string, info engine.Info) string {
	th := defaultTheme()

	name := info.Name
	if name == "" {
		name = "unnamed bot"
	}
	header := th.cardTitle.Render(name)
	if info.Version != "" {
		header = lipgloss.JoinHorizontal(lipgloss.Center, header, th.cardMeta.Render(" v"+info.Version))
	}

	lines := []string{header, th.hint.Render(address)}
	for _, field := range []struct{ label, value string }{
		{"Author", info.Author},
		{"Publisher", info.Publisher},
		{"Support", info.Support},
		{"Language", info.Language},
		{"Caption", info.Caption},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		lines = append(lines, th.label.Render(field.label+": ")+field.value)
	}
	if info.Hello != "" {
		lines = append(lines, "", info.Hello)
	}

	return th.card.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
