package cli

import "github.com/charmbracelet/lipgloss"

var (
	green = lipgloss.Color("#10B981")
	red   = lipgloss.Color("#EF4444")
	dim   = lipgloss.Color("#6B7280")

	title     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	bold      = lipgloss.NewStyle().Bold(true)
	healthy   = lipgloss.NewStyle().Foreground(green).Bold(true)
	unhealthy = lipgloss.NewStyle().Foreground(red).Bold(true)
	dimText   = lipgloss.NewStyle().Foreground(dim)

	dotHealthy   = healthy.Render("●")
	dotUnhealthy = unhealthy.Render("●")

	card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 2)
	cardHealthy   = card.BorderForeground(green)
	cardUnhealthy = card.BorderForeground(red)
)
