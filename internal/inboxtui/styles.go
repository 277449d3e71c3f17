package inboxtui

import "github.com/charmbracelet/lipgloss"

// Theme defines the inbox color tokens (ANSI-256 codes).
type Theme struct {
	Foreground string
	Muted      string
	Accent     string
	Error      string
	Own        string
	Border     string
	Selected   string
}

// DefaultTheme is the default palette.
var DefaultTheme = Theme{
	Foreground: "252",
	Muted:      "244",
	Accent:     "203",
	Error:      "196",
	Own:        "210",
	Border:     "238",
	Selected:   "236",
}

type styles struct {
	header     lipgloss.Style
	muted      lipgloss.Style
	accent     lipgloss.Style
	err        lipgloss.Style
	own        lipgloss.Style
	other      lipgloss.Style
	selected   lipgloss.Style
	pane       lipgloss.Style
	activePane lipgloss.Style
}

func newStyles(t Theme) styles {
	pane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(t.Border)).
		Padding(0, 1)

	return styles{
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)).Bold(true),
		muted:      lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		accent:     lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)).Bold(true),
		err:        lipgloss.NewStyle().Foreground(lipgloss.Color(t.Error)),
		own:        lipgloss.NewStyle().Foreground(lipgloss.Color(t.Own)),
		other:      lipgloss.NewStyle().Foreground(lipgloss.Color(t.Foreground)),
		selected:   lipgloss.NewStyle().Background(lipgloss.Color(t.Selected)).Bold(true),
		pane:       pane,
		activePane: pane.BorderForeground(lipgloss.Color(t.Accent)),
	}
}
