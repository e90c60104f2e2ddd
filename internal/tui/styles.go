package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	header   lipgloss.Style
	userTag  lipgloss.Style
	botTag   lipgloss.Style
	system   lipgloss.Style
	muted    lipgloss.Style
	badge    lipgloss.Style
	spinner  lipgloss.Style
	errText  lipgloss.Style
	helpLine lipgloss.Style

	queryBorder   lipgloss.Color
	answerBorder  lipgloss.Color
	confirmBorder lipgloss.Color
	busyBorder    lipgloss.Color
}

func defaultStyles() styles {
	cyan := lipgloss.Color("6")
	green := lipgloss.Color("2")
	yellow := lipgloss.Color("3")
	magenta := lipgloss.Color("5")
	red := lipgloss.Color("1")
	gray := lipgloss.Color("8")

	return styles{
		header:   lipgloss.NewStyle().Foreground(cyan).Bold(true),
		userTag:  lipgloss.NewStyle().Foreground(green).Bold(true),
		botTag:   lipgloss.NewStyle().Foreground(cyan).Bold(true),
		system:   lipgloss.NewStyle().Foreground(gray),
		muted:    lipgloss.NewStyle().Foreground(gray),
		badge:    lipgloss.NewStyle().Foreground(cyan).Bold(true),
		spinner:  lipgloss.NewStyle().Foreground(yellow),
		errText:  lipgloss.NewStyle().Foreground(red),
		helpLine: lipgloss.NewStyle().Foreground(gray),

		queryBorder:   cyan,
		answerBorder:  magenta,
		confirmBorder: magenta,
		busyBorder:    yellow,
	}
}
