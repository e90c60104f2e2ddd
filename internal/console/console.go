package console

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"fathom/internal/protocol"
	"fathom/internal/session"
)

// roundController is the slice of the session the console drives: resolving
// the clarifying round one way or the other.
type roundController interface {
	SubmitAnswers(answers []string)
	CancelRound()
}

// Console is the single-shot front end. It renders worker events through an
// Output and, when a clarifying round opens, collects answers line by line
// from its input stream.
type Console struct {
	out     *Output
	in      *bufio.Reader
	promptW io.Writer
	cfg     protocol.RequestConfig
	logger  *slog.Logger

	mu   sync.Mutex
	sess roundController
}

// New creates a console front end. promptW is where interactive question
// prompts are written; in human mode that is stderr so stdout stays clean.
func New(out *Output, in io.Reader, promptW io.Writer, cfg protocol.RequestConfig, logger *slog.Logger) *Console {
	return &Console{
		out:     out,
		in:      bufio.NewReader(in),
		promptW: promptW,
		cfg:     cfg,
		logger:  logger,
	}
}

// RunStarted prints the start banner before the first worker event.
func (c *Console) RunStarted(runID, dir string) {
	c.out.Start(runID, dir, c.cfg)
}

// Bind attaches the session whose clarifying rounds this console resolves.
// Must be called before the run starts.
func (c *Console) Bind(s roundController) {
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()
}

// Event renders one worker event. Clarifying questions hand off to a
// goroutine so event routing keeps draining while the user types.
func (c *Console) Event(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.Status:
		c.out.Status(ev.Message)
	case protocol.Trace:
		c.out.Trace(ev.TraceID, ev.TraceURL)
	case protocol.Prompt:
		c.out.Prompt(ev.Agent, ev.Sequence)
	case protocol.RawResponse:
		c.out.Response(ev.Agent, ev.Sequence)
	case protocol.Decision:
		c.out.Decision(ev.Action, ev.Reason, ev.RemainingSearches, ev.RemainingIterations)
	case protocol.Report:
		c.out.Report(ev.ShortSummary, ev.MarkdownReport, ev.FollowUpQuestions)
	case protocol.WorkerError:
		c.out.Error(ev.Code, ev.Message)
	case protocol.ClarifyingQuestions:
		c.out.Questions(ev.Questions)
		go c.answerRound(ev.Questions)
	}
}

// Warning surfaces a non-fatal problem.
func (c *Console) Warning(msg string) {
	c.out.Warning(msg)
}

// answerRound reads one answer per question, then either forwards the
// answers or, when auto-decide is off, asks for confirmation first.
func (c *Console) answerRound(questions []protocol.ClarifyingQuestion) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return
	}

	answers := make([]string, 0, len(questions))
	for i, q := range questions {
		if q.Label != "" {
			fmt.Fprintf(c.promptW, "[%d/%d] %s: %s\n> ", i+1, len(questions), q.Label, q.Question)
		} else {
			fmt.Fprintf(c.promptW, "[%d/%d] %s\n> ", i+1, len(questions), q.Question)
		}

		line, err := c.in.ReadString('\n')
		if err != nil && line == "" {
			c.logger.Warn("input closed during clarifying round", "error", err)
			sess.CancelRound()
			return
		}
		answers = append(answers, strings.TrimSpace(line))
	}

	if !c.cfg.AutoDecide && !c.confirm() {
		fmt.Fprintln(c.promptW, "Cancelled.")
		sess.CancelRound()
		return
	}

	sess.SubmitAnswers(answers)
}

// confirm loops until the user gives a recognizable yes or no.
func (c *Console) confirm() bool {
	for {
		fmt.Fprint(c.promptW, "Proceed with research? [Y/n] ")
		line, err := c.in.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		switch session.ParseConfirmation(line) {
		case session.ConfirmYes:
			return true
		case session.ConfirmNo:
			return false
		}
		// Unrecognized input re-prompts.
	}
}
