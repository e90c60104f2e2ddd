package console

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fathom/internal/protocol"
)

type fakeRounds struct {
	submitted [][]string
	cancelled int
}

func (f *fakeRounds) SubmitAnswers(answers []string) { f.submitted = append(f.submitted, answers) }
func (f *fakeRounds) CancelRound()                   { f.cancelled++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func autoDecideConfig(auto bool) protocol.RequestConfig {
	return protocol.RequestConfig{
		Model: "gpt-4o", SearchCount: 5, MaxIterations: 10, MaxSearches: 15, AutoDecide: auto,
	}
}

func newTestConsole(t *testing.T, input string, auto bool) (*Console, *fakeRounds, *bytes.Buffer) {
	t.Helper()
	var prompts bytes.Buffer
	out := NewOutput(false, true, io.Discard, io.Discard)
	c := New(out, strings.NewReader(input), &prompts, autoDecideConfig(auto), testLogger())
	rounds := &fakeRounds{}
	c.Bind(rounds)
	return c, rounds, &prompts
}

func TestAnswerRoundCollectsOneAnswerPerQuestion(t *testing.T) {
	c, rounds, prompts := newTestConsole(t, "2024\ndetailed\n", true)

	c.answerRound([]protocol.ClarifyingQuestion{
		{Label: "Scope", Question: "Which time period?"},
		{Label: "Depth", Question: "Summary or detailed?"},
	})

	require.Len(t, rounds.submitted, 1)
	require.Equal(t, []string{"2024", "detailed"}, rounds.submitted[0])
	require.Zero(t, rounds.cancelled)
	require.Contains(t, prompts.String(), "Which time period?")
	require.Contains(t, prompts.String(), "[2/2]")
}

func TestAnswerRoundConfirmationAffirms(t *testing.T) {
	c, rounds, prompts := newTestConsole(t, "a1\nYES\n", false)

	c.answerRound([]protocol.ClarifyingQuestion{{Label: "Q", Question: "?"}})

	require.Len(t, rounds.submitted, 1)
	require.Equal(t, []string{"a1"}, rounds.submitted[0])
	require.Contains(t, prompts.String(), "Proceed with research?")
}

func TestAnswerRoundConfirmationCancels(t *testing.T) {
	c, rounds, _ := newTestConsole(t, "a1\ncancel\n", false)

	c.answerRound([]protocol.ClarifyingQuestion{{Label: "Q", Question: "?"}})

	require.Empty(t, rounds.submitted)
	require.Equal(t, 1, rounds.cancelled)
}

func TestAnswerRoundConfirmationRepromptsOnUnknownInput(t *testing.T) {
	c, rounds, prompts := newTestConsole(t, "a1\nmaybe\nperhaps\ny\n", false)

	c.answerRound([]protocol.ClarifyingQuestion{{Label: "Q", Question: "?"}})

	require.Len(t, rounds.submitted, 1)
	require.Equal(t, 3, strings.Count(prompts.String(), "Proceed with research?"))
}

func TestAnswerRoundEmptyLineConfirms(t *testing.T) {
	c, rounds, _ := newTestConsole(t, "a1\n\n", false)

	c.answerRound([]protocol.ClarifyingQuestion{{Label: "Q", Question: "?"}})

	require.Len(t, rounds.submitted, 1)
}

func TestAnswerRoundInputClosedCancels(t *testing.T) {
	c, rounds, _ := newTestConsole(t, "only-one\n", true)

	c.answerRound([]protocol.ClarifyingQuestion{
		{Label: "A", Question: "first?"},
		{Label: "B", Question: "second?"},
	})

	require.Empty(t, rounds.submitted)
	require.Equal(t, 1, rounds.cancelled)
}
