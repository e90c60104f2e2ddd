package tui

import (
	"io"
	"log/slog"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"fathom/internal/config"
	"fathom/internal/protocol"
	"fathom/internal/session"
)

func testModel(t *testing.T, auto bool) Model {
	t.Helper()
	cfg, err := config.Load(config.Overrides{NoAutoDecide: !auto})
	require.NoError(t, err)
	m := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.ready = true
	return m
}

func pressEnter(t *testing.T, m Model) Model {
	t.Helper()
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model)
}

// enterClarifying walks a model into a two-question round without a live
// worker behind it.
func enterClarifying(t *testing.T, m Model) Model {
	t.Helper()
	m.phase = PhaseAwaitingClarification
	m.processing = true
	m.handleEvent(protocol.ClarifyingQuestions{Questions: []protocol.ClarifyingQuestion{
		{Label: "Scope", Question: "Which time period?"},
		{Label: "Depth", Question: "Summary or detailed?"},
	}})
	require.Equal(t, PhaseClarifying, m.phase)
	return m
}

func TestSubmitQueryStartsProcessing(t *testing.T) {
	m := testModel(t, true)
	m.textinput.SetValue("what is fathom")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)

	require.Equal(t, PhaseAwaitingClarification, m.phase)
	require.True(t, m.processing)
	require.Len(t, m.history, 1)
	require.Equal(t, roleUser, m.history[0].role)
}

func TestEmptyQueryIsIgnored(t *testing.T) {
	m := testModel(t, true)
	m.textinput.SetValue("   ")

	m = pressEnter(t, m)

	require.Equal(t, PhaseIdle, m.phase)
	require.False(t, m.processing)
	require.Empty(t, m.history)
}

func TestNewQueryWhileProcessingIsNoOp(t *testing.T) {
	m := testModel(t, true)
	m.phase = PhaseResearching
	m.processing = true
	m.textinput.SetValue("another query")

	before := len(m.history)
	m = pressEnter(t, m)

	require.Equal(t, PhaseResearching, m.phase)
	require.Equal(t, before, len(m.history))
}

func TestNewRunDoesNotReplayStaleMessages(t *testing.T) {
	m := testModel(t, true)

	// A warning left queued after the previous run finished.
	stale := m.msgs
	stale <- warningMsg("left over")

	m.textinput.SetValue("fresh query")
	m = pressEnter(t, m)

	require.Equal(t, PhaseAwaitingClarification, m.phase)
	require.NotEqual(t, stale, m.msgs)
	require.Len(t, stale, 1)
}

func TestClarifyingCollectsOneAnswerPerEnter(t *testing.T) {
	m := enterClarifying(t, testModel(t, true))

	m.textinput.SetValue("2024")
	m = pressEnter(t, m)
	require.Equal(t, PhaseClarifying, m.phase)
	require.Equal(t, []string{"2024"}, m.answers)

	m.textinput.SetValue("detailed")
	m = pressEnter(t, m)

	// Auto-decide forwards the answers and resumes without confirmation.
	require.Equal(t, PhaseResearching, m.phase)
	require.Equal(t, []string{"2024", "detailed"}, m.answers)
}

func TestClarifyingLeadsToConfirmationWhenAutoDecideOff(t *testing.T) {
	m := enterClarifying(t, testModel(t, false))

	m.textinput.SetValue("a")
	m = pressEnter(t, m)
	m.textinput.SetValue("b")
	m = pressEnter(t, m)

	require.Equal(t, PhaseConfirming, m.phase)
}

func TestConfirmationTokens(t *testing.T) {
	cases := []struct {
		input string
		want  Phase
	}{
		{"", PhaseResearching},
		{"Y", PhaseResearching},
		{"yes", PhaseResearching},
		{"Confirm", PhaseResearching},
		{"continue", PhaseResearching},
		{"PROCEED", PhaseResearching},
		{"n", PhaseCompleted},
		{"No", PhaseCompleted},
		{"cancel", PhaseCompleted},
		{"STOP", PhaseCompleted},
		{"quit", PhaseCompleted},
		{"maybe", PhaseConfirming},
	}

	for _, tc := range cases {
		t.Run("input_"+tc.input, func(t *testing.T) {
			m := enterClarifying(t, testModel(t, false))
			m.textinput.SetValue("a")
			m = pressEnter(t, m)
			m.textinput.SetValue("b")
			m = pressEnter(t, m)
			require.Equal(t, PhaseConfirming, m.phase)

			m.textinput.SetValue(tc.input)
			m = pressEnter(t, m)
			require.Equal(t, tc.want, m.phase)
		})
	}
}

func TestRepeatedClarifyingRoundIgnored(t *testing.T) {
	m := enterClarifying(t, testModel(t, true))
	require.Len(t, m.questions, 2)

	m.handleEvent(protocol.ClarifyingQuestions{Questions: []protocol.ClarifyingQuestion{
		{Label: "X", Question: "again?"},
	}})

	require.Len(t, m.questions, 2)
	require.Equal(t, PhaseClarifying, m.phase)
}

func TestProgressEventsSkipClarification(t *testing.T) {
	m := testModel(t, true)
	m.phase = PhaseAwaitingClarification
	m.processing = true

	m.handleEvent(protocol.Prompt{Agent: "Triage", Sequence: 1, Content: "p"})

	require.Equal(t, PhaseResearching, m.phase)
	require.Contains(t, m.status, "Triage")
}

func TestDecisionUpdatesStatusWithoutLeavingConfirming(t *testing.T) {
	m := enterClarifying(t, testModel(t, false))
	m.textinput.SetValue("a")
	m = pressEnter(t, m)
	m.textinput.SetValue("b")
	m = pressEnter(t, m)
	require.Equal(t, PhaseConfirming, m.phase)

	m.handleEvent(protocol.Decision{Action: "continue", Reason: "r", RemainingSearches: 2, RemainingIterations: 5})

	require.Equal(t, PhaseConfirming, m.phase)
	require.Contains(t, m.status, "continue")
}

func TestReportAddsAssistantMessage(t *testing.T) {
	m := testModel(t, true)
	m.phase = PhaseResearching
	m.processing = true

	m.handleEvent(protocol.Report{ShortSummary: "sum", MarkdownReport: "# Body"})

	require.NotEmpty(t, m.history)
	last := m.history[len(m.history)-1]
	require.Equal(t, roleAssistant, last.role)
	require.Contains(t, last.content, "sum")
}

func TestFinishRunOutcomes(t *testing.T) {
	m := testModel(t, true)
	m.phase = PhaseResearching
	m.processing = true

	m.finishRun(session.Outcome{RunID: "0123456789", Success: true, Dir: "runs/x"})
	require.Equal(t, PhaseCompleted, m.phase)
	require.False(t, m.processing)

	m.phase = PhaseResearching
	m.finishRun(session.Outcome{RunID: "0123456789"})
	require.Equal(t, PhaseError, m.phase)

	m.phase = PhaseResearching
	m.finishRun(session.Outcome{RunID: "0123456789", Cancelled: true})
	require.Equal(t, PhaseCompleted, m.phase)
}

func TestPhaseLabels(t *testing.T) {
	require.Equal(t, "idle", PhaseIdle.label())
	require.Equal(t, "clarifying", PhaseClarifying.label())
	require.Equal(t, "confirming", PhaseConfirming.label())
	require.Equal(t, "researching", PhaseResearching.label())
	require.Equal(t, "done", PhaseCompleted.label())
	require.Equal(t, "error", PhaseError.label())
}
