package tui

import "github.com/charmbracelet/lipgloss"

// Палитра интерфейса.
var (
	colorAccent    = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	colorSuccess   = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	colorError     = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	colorWarning   = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	colorText      = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	colorSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	colorMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
)

type styles struct {
	title     lipgloss.Style
	label     lipgloss.Style
	focused   lipgloss.Style
	hint      lipgloss.Style
	notice    lipgloss.Style
	info      lipgloss.Style
	slot      lipgloss.Style
	slotOn    lipgloss.Style
	panel     lipgloss.Style
	warning   lipgloss.Style
	countdown lipgloss.Style
}

func defaultStyles() styles {
	slot := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorMuted).
		Foreground(colorText).
		Width(3).
		Align(lipgloss.Center)

	return styles{
		title:   lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
		label:   lipgloss.NewStyle().Foreground(colorSecondary),
		focused: lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
		hint:    lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		notice:  lipgloss.NewStyle().Foreground(colorError),
		info:    lipgloss.NewStyle().Foreground(colorSuccess),
		slot:    slot,
		slotOn:  slot.BorderForeground(colorAccent),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(1, 3),
		warning: lipgloss.NewStyle().
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(colorWarning).
			Padding(1, 3).
			Align(lipgloss.Center),
		countdown: lipgloss.NewStyle().Foreground(colorWarning).Bold(true),
	}
}
