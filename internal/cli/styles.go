package cli

import (
	"charm.land/lipgloss/v2"
)

// Styles colours CLI output. The zero value prints plain text.
type Styles struct {
	Header lipgloss.Style
	Name   lipgloss.Style
	Muted  lipgloss.Style
	OK     lipgloss.Style
	Bad    lipgloss.Style
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Header: s, Name: s, Muted: s, OK: s, Bad: s}
}

// ColorStyles returns the styles used on a terminal.
func ColorStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().Bold(true).Underline(true),
		Name:   lipgloss.NewStyle().Foreground(lipgloss.Color("#7dcfff")).Bold(true),
		Muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("#737aa2")),
		OK:     lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
		Bad:    lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true),
	}
}
