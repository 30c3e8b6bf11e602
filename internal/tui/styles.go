package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/ssdp/internal/ui"
	"github.com/muurk/ssdp/internal/version"
)

// AppName is shown in the monitor header.
const AppName = "SSDP MONITOR"

// Layout constants for responsive terminal width
const (
	MinTerminalWidth = 72
	MinTableHeight   = 5
	EventLogLines    = 6 // Recent messages shown under the table
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor).
			Italic(true)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor).
			Padding(0, 1)

	EventLogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.MutedColor).
			Padding(0, 1)
)

// BuildHeaderContent renders the app name, version and search target.
func BuildHeaderContent(target string) string {
	left := lipgloss.NewStyle().
		Foreground(ui.TextColor).
		Bold(true).
		Render(AppName + " " + version.Version)

	right := SubtitleStyle.Render("target " + target)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}

// RenderApplicationContainer frames content with a header and a footer and
// fills the terminal.
func RenderApplicationContainer(header, content, footer string, width, height int) string {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	headerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4).
		Padding(0, 1)

	footerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4).
		Padding(0, 1)

	inner := lipgloss.JoinVertical(
		lipgloss.Left,
		headerStyle.Render(header),
		lipgloss.NewStyle().Width(width-4).Render(content),
		footerStyle.Render(footer),
	)

	outer := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(ui.PrimaryColor).
		Width(width - 2)
	if height > 2 {
		outer = outer.Height(height - 2).AlignVertical(lipgloss.Top)
	}

	return lipgloss.Place(width, height, lipgloss.Left, lipgloss.Top, outer.Render(inner))
}
