package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"
)

var (
	green  = lipgloss.Color("#04B575")
	red    = lipgloss.Color("#FF5F87")
	gray   = lipgloss.Color("#888888")
	yellow = lipgloss.Color("#ECFD65")

	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("#5A56E0")).Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(gray)
	statusStyle  = lipgloss.NewStyle().Foreground(yellow)
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8E8E8E"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	cardStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(gray).
			Padding(1, 4).
			Bold(true)
)

// headerView shows the host classification and volume.
func (m model) headerView() string {
	p := m.player.Profile()

	speech := lipgloss.NewStyle().Foreground(green).Render("✓ speech")
	if !p.SpeechSupported {
		speech = lipgloss.NewStyle().Foreground(red).Render("✗ speech")
	}

	label := p.BrowserLabel
	if label == "" {
		label = "Unknown"
	}
	return fmt.Sprintf("%s %s  %s  %s",
		titleStyle.Render("cuecast drill"),
		dimStyle.Render(label),
		speech,
		dimStyle.Render(fmt.Sprintf("vol %d%%", percent(m.player.Volume()))),
	)
}

func (m model) helpView() string {
	if !m.showHelp {
		return helpStyle.Render("\n  space play · ←/→ move · y right · x wrong · ? help · q quit")
	}

	rows := [][2]string{
		{"space", "pronounce"},
		{"←/h", "previous"},
		{"→/l", "next"},
		{"y", "answered right"},
		{"x", "answered wrong"},
		{"s", "stop all audio"},
		{"+/-", "volume"},
		{"q", "quit"},
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(r[0])
		b.WriteString(strings.Repeat(" ", max(9-runewidth.StringWidth(r[0]), 1)))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	s := indent(b.String(), 2)

	// Fill up empty cells with spaces for background coloring
	if m.width > 0 {
		lines := strings.Split(s, "\n")
		for i := range lines {
			n := max(m.width-runewidth.StringWidth(lines[i]), 0)
			lines[i] += strings.Repeat(" ", n)
		}
		s = strings.Join(lines, "\n")
	}
	return helpStyle.Render(s)
}
