package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"fathom/internal/config"
	"fathom/internal/protocol"
	"fathom/internal/session"
	"fathom/internal/worker"
)

// Phase is the controller's interaction state. Exactly one phase is current
// at any time and only Update mutates it.
type Phase int

const (
	PhaseIdle Phase = iota
	// PhaseAwaitingClarification covers the window between submitting a
	// query and learning whether the worker wants to clarify first.
	PhaseAwaitingClarification
	PhaseClarifying
	PhaseConfirming
	PhaseResearching
	PhaseCompleted
	PhaseError
)

func (p Phase) label() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingClarification:
		return "starting"
	case PhaseClarifying:
		return "clarifying"
	case PhaseConfirming:
		return "confirming"
	case PhaseResearching:
		return "researching"
	case PhaseCompleted:
		return "done"
	case PhaseError:
		return "error"
	}
	return "unknown"
}

type messageRole int

const (
	roleUser messageRole = iota
	roleAssistant
	roleSystem
)

type chatMessage struct {
	role    messageRole
	content string
}

// Messages for tea updates.
type (
	workerEventMsg struct{ ev protocol.Event }
	warningMsg     string
	runDoneMsg     struct{ outcome session.Outcome }
)

// channelSink bridges the session's router goroutine into the bubbletea
// update loop.
type channelSink struct {
	ch chan tea.Msg
}

func (s *channelSink) Event(ev protocol.Event) { s.ch <- workerEventMsg{ev} }
func (s *channelSink) Warning(msg string)      { s.ch <- warningMsg(msg) }

const defaultPlaceholder = "Enter a research query... (Enter to submit, Ctrl+C to quit)"

// Model is the interactive front end. It is reusable across runs: after a
// run reaches a terminal phase a new query starts the next one.
type Model struct {
	cfg    *config.Config
	logger *slog.Logger

	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    styles
	renderer  *glamour.TermRenderer

	phase      Phase
	history    []chatMessage
	status     string
	processing bool
	ready      bool
	width      int
	height     int

	// clarifying round state
	questions    []protocol.ClarifyingQuestion
	qIndex       int
	answers      []string
	roundHandled bool

	sess   *session.Session
	cancel context.CancelFunc
	msgs   chan tea.Msg
}

// New builds the interactive model.
func New(cfg *config.Config, logger *slog.Logger) Model {
	st := defaultStyles()

	ti := textinput.New()
	ti.Placeholder = defaultPlaceholder
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = st.spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	return Model{
		cfg:       cfg,
		logger:    logger,
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		styles:    st,
		renderer:  renderer,
		phase:     PhaseIdle,
		msgs:      make(chan tea.Msg, 64),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// waitForMsg re-arms delivery of the next session message into Update.
func (m Model) waitForMsg() tea.Cmd {
	ch := m.msgs
	return func() tea.Msg { return <-ch }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m.quit()

		case tea.KeyEsc:
			// While a run is underway Esc is "stop the worker", not "quit".
			// The phase holds until the worker actually terminates.
			if m.phase == PhaseResearching || m.phase == PhaseAwaitingClarification {
				if m.sess != nil {
					m.sess.Interrupt(protocol.InterruptStop)
					m.status = "Stopping..."
				}
				return m, nil
			}
			return m.quit()

		case tea.KeyEnter:
			switch m.phase {
			case PhaseIdle, PhaseCompleted, PhaseError:
				return m.submitQuery()
			case PhaseClarifying:
				return m.acceptAnswer()
			case PhaseConfirming:
				return m.resolveConfirmation()
			}
			return m, nil
		}

		// Free text goes to the input except while research is running.
		if !m.processing || m.phase == PhaseClarifying || m.phase == PhaseConfirming {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		inputHeight := 3
		footerHeight := 1

		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, msg.Height-headerHeight-inputHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = msg.Height - headerHeight - inputHeight - footerHeight
		}
		m.textinput.Width = msg.Width - 6

		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(msg.Width-8),
		)
		m.viewport.SetContent(m.renderHistory())

	case spinner.TickMsg:
		if m.processing {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case workerEventMsg:
		m.handleEvent(msg.ev)
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, m.waitForMsg()

	case warningMsg:
		m.addSystem("Warning: " + string(msg))
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, m.waitForMsg()

	case runDoneMsg:
		m.finishRun(msg.outcome)
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, nil
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

// quit stops any live worker before leaving the alternate screen.
func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.sess != nil {
		m.sess.Interrupt(protocol.InterruptStop)
	}
	if m.cancel != nil {
		m.cancel()
	}
	return m, tea.Quit
}

// submitQuery starts a run. A new query while one is active is a no-op.
func (m Model) submitQuery() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.textinput.Value())
	if query == "" || m.processing {
		return m, nil
	}

	m.addMessage(roleUser, query)
	m.textinput.Reset()
	m.textinput.Placeholder = defaultPlaceholder

	m.phase = PhaseAwaitingClarification
	m.processing = true
	m.status = "Starting research..."
	m.questions = nil
	m.qIndex = 0
	m.answers = nil
	m.roundHandled = false

	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()

	return m, tea.Batch(m.spinner.Tick, m.startRun(query), m.waitForMsg())
}

// startRun launches the session on its own goroutine; its outcome comes
// back as a runDoneMsg.
func (m *Model) startRun(query string) tea.Cmd {
	// Fresh channel per run: a warning or event straggling in from the
	// previous run must never replay into this one.
	m.msgs = make(chan tea.Msg, 64)
	sink := &channelSink{ch: m.msgs}
	sess := session.New(m.cfg, worker.StderrDiscard, sink, m.logger)

	ctx, cancel := context.WithCancel(context.Background())
	m.sess = sess
	m.cancel = cancel

	msgs := m.msgs
	go func() {
		outcome := sess.Run(ctx, query)
		msgs <- runDoneMsg{outcome: outcome}
	}()

	return nil
}

// acceptAnswer records one answer per Enter press and advances the round.
func (m Model) acceptAnswer() (tea.Model, tea.Cmd) {
	answer := strings.TrimSpace(m.textinput.Value())
	m.answers = append(m.answers, answer)
	m.addMessage(roleUser, answer)
	m.textinput.Reset()
	m.qIndex++

	if m.qIndex < len(m.questions) {
		q := m.questions[m.qIndex]
		m.addSystem(fmt.Sprintf("[%d/%d] %s", m.qIndex+1, len(m.questions), q.Question))
		m.textinput.Placeholder = q.Label
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, nil
	}

	// Round complete.
	if m.cfg.AutoDecide {
		if m.sess != nil {
			m.sess.SubmitAnswers(m.answers)
		}
		m.phase = PhaseResearching
		m.status = "Resuming research..."
		m.textinput.Placeholder = defaultPlaceholder
	} else {
		m.phase = PhaseConfirming
		m.addSystem("Proceed with research? (yes/no)")
		m.textinput.Placeholder = "yes"
	}

	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
	return m, nil
}

// resolveConfirmation applies the confirmation token table. Unrecognized
// input re-prompts without a phase change.
func (m Model) resolveConfirmation() (tea.Model, tea.Cmd) {
	input := m.textinput.Value()
	m.textinput.Reset()

	switch session.ParseConfirmation(input) {
	case session.ConfirmYes:
		if m.sess != nil {
			m.sess.SubmitAnswers(m.answers)
		}
		m.phase = PhaseResearching
		m.status = "Resuming research..."
		m.textinput.Placeholder = defaultPlaceholder

	case session.ConfirmNo:
		if m.sess != nil {
			m.sess.CancelRound()
		}
		m.answers = nil
		m.phase = PhaseCompleted
		m.status = ""
		m.addSystem("Run cancelled.")
		m.textinput.Placeholder = defaultPlaceholder

	default:
		m.addSystem("Please answer yes or no.")
	}

	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
	return m, nil
}

// handleEvent folds one worker event into the model.
func (m *Model) handleEvent(ev protocol.Event) {
	// Progress events before any clarifying round mean the worker went
	// straight to work.
	switch ev.(type) {
	case protocol.Prompt, protocol.RawResponse, protocol.Decision:
		if m.phase == PhaseAwaitingClarification {
			m.phase = PhaseResearching
		}
	}

	switch ev := ev.(type) {
	case protocol.Status:
		m.status = ev.Message

	case protocol.Trace:
		m.addSystem("Trace: " + ev.TraceURL)

	case protocol.Prompt:
		m.status = fmt.Sprintf("Running %s (step %d)", ev.Agent, ev.Sequence)

	case protocol.RawResponse:
		m.status = fmt.Sprintf("Received %s response (step %d)", ev.Agent, ev.Sequence)

	case protocol.Decision:
		// Applies to the status line only, even mid-confirmation.
		m.status = fmt.Sprintf("Decision: %s (searches: %d, iterations: %d)",
			ev.Action, ev.RemainingSearches, ev.RemainingIterations)

	case protocol.ClarifyingQuestions:
		if m.roundHandled {
			// Single-use per run; the session drops repeats too.
			return
		}
		m.roundHandled = true
		if len(ev.Questions) == 0 {
			if m.sess != nil {
				m.sess.SubmitAnswers(nil)
			}
			return
		}
		m.phase = PhaseClarifying
		m.questions = ev.Questions
		m.qIndex = 0
		m.answers = make([]string, 0, len(ev.Questions))
		m.status = "Waiting for your answers"
		m.addSystem(fmt.Sprintf("The worker has %d clarifying question(s):", len(ev.Questions)))
		m.addSystem(fmt.Sprintf("[1/%d] %s", len(ev.Questions), ev.Questions[0].Question))
		m.textinput.Placeholder = ev.Questions[0].Label

	case protocol.Report:
		m.status = ""
		m.addMessage(roleAssistant, fmt.Sprintf("**%s**\n\n%s", ev.ShortSummary, ev.MarkdownReport))

	case protocol.WorkerError:
		if ev.Code != "" {
			m.addSystem(fmt.Sprintf("Error [%s]: %s", ev.Code, ev.Message))
		} else {
			m.addSystem("Error: " + ev.Message)
		}
	}
}

// finishRun settles the terminal phase once the worker has exited.
func (m *Model) finishRun(outcome session.Outcome) {
	m.processing = false
	m.status = ""
	m.sess = nil
	m.cancel = nil
	m.textinput.Placeholder = defaultPlaceholder

	short := outcome.RunID
	if len(short) > 8 {
		short = short[:8]
	}

	switch {
	case outcome.Err != nil:
		m.phase = PhaseError
		m.addSystem("Error: " + outcome.Err.Error())
	case outcome.Cancelled:
		m.phase = PhaseCompleted
		m.addSystem(fmt.Sprintf("Run cancelled (%s)", short))
	case outcome.Success:
		m.phase = PhaseCompleted
		m.addSystem(fmt.Sprintf("Research complete (%s)", short))
		if outcome.Dir != "" {
			m.addSystem("Artifacts: " + outcome.Dir)
		}
	default:
		m.phase = PhaseError
		m.addSystem("Research failed")
	}
}

func (m *Model) addMessage(role messageRole, content string) {
	m.history = append(m.history, chatMessage{role: role, content: content})
}

func (m *Model) addSystem(content string) {
	m.history = append(m.history, chatMessage{role: roleSystem, content: content})
}

// Run enters the alternate screen and blocks until the user quits.
func Run(cfg *config.Config, logger *slog.Logger) error {
	p := tea.NewProgram(New(cfg, logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
