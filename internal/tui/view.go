package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()
	chatView := m.viewport.View()
	inputArea := m.renderInput()
	footer := m.renderStatusBar()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		inputArea,
		footer,
	)
}

func (m Model) renderHeader() string {
	title := m.styles.header.Render(" Fathom Research ")
	var state string
	if m.processing {
		state = m.styles.spinner.Render("● working")
	} else {
		state = m.styles.muted.Render("● ready")
	}
	return title + " " + state + "\n"
}

// renderInput draws the input box. Its border and title track the phase so
// the user always knows what kind of input is expected.
func (m Model) renderInput() string {
	var (
		border lipgloss.Color
		title  string
	)

	switch m.phase {
	case PhaseClarifying:
		border = m.styles.answerBorder
		title = " Answer "
		if m.qIndex < len(m.questions) && m.questions[m.qIndex].Label != "" {
			title = " " + m.questions[m.qIndex].Label + " "
		}
	case PhaseConfirming:
		border = m.styles.confirmBorder
		title = " Confirm "
	case PhaseAwaitingClarification, PhaseResearching:
		border = m.styles.busyBorder
		title = " Processing... "
	default:
		border = m.styles.queryBorder
		title = " Query "
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(max(m.width-2, 10))

	var body string
	if m.phase == PhaseResearching || m.phase == PhaseAwaitingClarification {
		body = m.styles.muted.Italic(true).Render(m.statusOrDefault())
	} else {
		body = m.textinput.View()
	}

	return style.Render(title + "\n" + body)
}

func (m Model) renderStatusBar() string {
	var sb strings.Builder
	if m.processing {
		sb.WriteString(m.styles.spinner.Render(m.spinner.View()))
	} else {
		sb.WriteString("  ")
	}
	sb.WriteString(m.styles.badge.Render("[" + m.phase.label() + "] "))
	sb.WriteString(m.styles.helpLine.Render(m.statusOrDefault()))
	return sb.String()
}

func (m Model) statusOrDefault() string {
	if m.status != "" {
		return m.status
	}
	switch m.phase {
	case PhaseIdle:
		return "Enter to submit, Esc to quit, Up/Down to scroll"
	case PhaseResearching:
		return "Researching... Esc to stop"
	case PhaseClarifying:
		return "Answer each question, Enter to continue"
	case PhaseConfirming:
		return "yes to proceed, no to cancel"
	default:
		return ""
	}
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return m.styles.muted.Render("\nWelcome to Fathom.\n\nEnter a research query below to get started.")
	}

	var sb strings.Builder
	for _, msg := range m.history {
		switch msg.role {
		case roleUser:
			sb.WriteString(m.styles.userTag.Render("You") + "\n")
			sb.WriteString(msg.content)
			sb.WriteString("\n\n")
		case roleSystem:
			sb.WriteString(m.styles.system.Render("→ " + msg.content))
			sb.WriteString("\n")
		case roleAssistant:
			sb.WriteString(m.styles.botTag.Render("Fathom") + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.content))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// safeRenderMarkdown falls back to plain text if glamour fails or panics.
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}
