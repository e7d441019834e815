package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	dir      lipgloss.Style
	file     lipgloss.Style
	exec     lipgloss.Style
	link     lipgloss.Style
	errMark  lipgloss.Style
	selected lipgloss.Style
	pane     lipgloss.Style
	title    lipgloss.Style
	status   lipgloss.Style
	note     map[string]lipgloss.Style
}

func newStyles(dark bool) styles {
	fg, muted, border, bar := lipgloss.Color("235"), lipgloss.Color("244"), lipgloss.Color("250"), lipgloss.Color("254")
	if dark {
		fg, muted, border, bar = lipgloss.Color("252"), lipgloss.Color("243"), lipgloss.Color("238"), lipgloss.Color("236")
	}
	return styles{
		dir:      lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Bold(true),
		file:     lipgloss.NewStyle().Foreground(fg),
		exec:     lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		link:     lipgloss.NewStyle().Foreground(lipgloss.Color("37")).Italic(true),
		errMark:  lipgloss.NewStyle().Foreground(lipgloss.Color("160")),
		selected: lipgloss.NewStyle().Reverse(true),
		pane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border),
		title: lipgloss.NewStyle().Foreground(muted).Bold(true),
		status: lipgloss.NewStyle().
			Background(bar).
			Foreground(fg).
			Padding(0, 1),
		note: map[string]lipgloss.Style{
			"info":    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
			"success": lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
			"error":   lipgloss.NewStyle().Foreground(lipgloss.Color("160")),
			"fatal":   lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
		},
	}
}

func plainStyles() styles {
	p := lipgloss.NewStyle()
	return styles{
		dir: p, file: p, exec: p, link: p, errMark: p, selected: p,
		pane: p, title: p, status: p,
		note: map[string]lipgloss.Style{"info": p, "success": p, "error": p, "fatal": p},
	}
}
