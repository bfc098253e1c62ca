package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
)

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	filterBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	helpBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(0, 1)

	liveDotStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pausedDotStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	alertStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	timeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	symStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// renderStatus renders the top bar: what is being watched, the scope, and
// the event counters.
func (m model) renderStatus() string {
	dot := liveDotStyle.Render("●")
	if m.paused {
		dot = pausedDotStyle.Render("●")
	}

	parts := []string{dot + " watching " + m.watching}
	if m.scope != "" {
		parts = append(parts, "window:"+m.scope)
	}
	parts = append(parts, fmt.Sprintf("events:%d", m.total))
	if m.filterVisible() {
		parts = append(parts, fmt.Sprintf("shown:%d", m.shown))
	}
	if m.paused {
		parts = append(parts, pausedDotStyle.Render(fmt.Sprintf("paused (%d missed)", m.missed)))
	}
	if m.dropped != nil {
		if d := m.dropped.Load(); d > 0 {
			parts = append(parts, alertStyle.Render(fmt.Sprintf("dropped:%d", d)))
		}
	}
	if m.keymapErr != nil {
		parts = append(parts, alertStyle.Render("keysyms unavailable"))
	}

	return statusBarStyle.Width(m.width).Render(strings.Join(parts, "  "))
}

// renderFilterBar renders the name filter input line.
func renderFilterBar(ti textinput.Model, width int) string {
	return filterBarStyle.Width(width).Render("filter " + ti.View())
}

// renderHelpBar renders the bottom keybinding bar.
func renderHelpBar(filtering bool, width int) string {
	help := "/: filter  p: pause  c: clear  m: monitors  g/G: top/bottom  q: quit"
	if filtering {
		help = "enter: apply filter  esc: clear filter  ctrl+c: quit"
	}
	return helpBarStyle.Width(width).Render(help)
}
