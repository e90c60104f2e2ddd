// mockworker is a scripted stand-in for the research worker, used by the
// session tests. It reads the session request on stdin and replays a named
// scenario on stdout, honoring clarifying answers and stop interrupts.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"fathom/internal/ndjson"
	"fathom/internal/protocol"
)

func main() {
	scenario := flag.String("scenario", "happy", "scenario to replay (happy, clarify, clarify-abort, error, garbled, burst, exit-nonzero)")
	exitCode := flag.Int("exit-code", 0, "process exit code after the scenario")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	w := &mockWorker{
		scenario: *scenario,
		encoder:  ndjson.NewEncoder(os.Stdout, logger),
		decoder:  ndjson.NewDecoder(os.Stdin, logger),
		logger:   logger,
	}

	if err := w.run(); err != nil {
		logger.Error("mock worker failed", "error", err)
		os.Exit(1)
	}
	os.Exit(*exitCode)
}

// inbound covers every message the launcher can write after the request.
// ClarifyingAnswers has no type tag; interrupts do.
type inbound struct {
	Type    string   `json:"type"`
	Command string   `json:"command"`
	Answers []string `json:"answers"`
}

type mockWorker struct {
	scenario string
	encoder  *ndjson.Encoder
	decoder  *ndjson.Decoder
	logger   *slog.Logger
}

func (w *mockWorker) run() error {
	var req protocol.Request
	if err := w.decoder.Decode(&req); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	if req.Version != protocol.ProtocolVersion {
		w.emit(protocol.WorkerError{Message: "unsupported protocol version " + req.Version, Code: "BAD_VERSION"})
		w.emit(protocol.Done{Success: false})
		return nil
	}

	switch w.scenario {
	case "happy", "exit-nonzero":
		return w.runHappy(req)
	case "clarify":
		return w.runClarify(req)
	case "clarify-abort":
		// Opens a round and dies without waiting for answers.
		w.emit(protocol.ClarifyingQuestions{Questions: []protocol.ClarifyingQuestion{
			{Label: "Scope", Question: "Which time period matters?"},
		}})
		return nil
	case "error":
		return w.runError()
	case "garbled":
		return w.runGarbled(req)
	case "burst":
		return w.runBurst()
	default:
		return fmt.Errorf("unknown scenario %q", w.scenario)
	}
}

func (w *mockWorker) emit(ev protocol.Event) {
	if err := w.encoder.EncodeEvent(ev); err != nil {
		w.logger.Error("failed to emit event", "type", ev.Tag(), "error", err)
	}
}

func (w *mockWorker) runHappy(req protocol.Request) error {
	w.emit(protocol.Status{Message: "Planning research"})
	w.emit(protocol.Trace{TraceID: "trace-0123456789abcdef", TraceURL: "https://traces.invalid/0123"})
	w.emit(protocol.Prompt{Agent: "Triage", Sequence: 1, Content: "Plan searches for: " + req.Query})
	tokens := 128
	w.emit(protocol.RawResponse{
		Agent: "Triage", Sequence: 1, Content: `{"plan":["search"]}`,
		TokenUsage: &protocol.TokenUsage{PromptTokens: 96, CompletionTokens: 32, TotalTokens: tokens},
	})
	w.emit(protocol.Decision{Action: "continue", Reason: "more sources needed", RemainingSearches: 4, RemainingIterations: 9})
	w.emit(protocol.Prompt{Agent: "Search", Sequence: 2, Content: "Search the web"})
	w.emit(protocol.RawResponse{Agent: "Search", Sequence: 2, Content: `{"results":3}`})
	w.emit(protocol.Report{
		ShortSummary:      "Findings for " + req.Query,
		MarkdownReport:    "# Findings\n\nEverything checks out.",
		FollowUpQuestions: []string{"Dig deeper?"},
	})
	total := 256
	w.emit(protocol.Metadata{Model: req.Config.Model, TotalTokens: &total, DurationMS: 1200})
	w.emit(protocol.Done{Success: true})
	return nil
}

func (w *mockWorker) runClarify(req protocol.Request) error {
	w.emit(protocol.Status{Message: "Reviewing query"})
	w.emit(protocol.ClarifyingQuestions{Questions: []protocol.ClarifyingQuestion{
		{Label: "Scope", Question: "Which time period matters?"},
		{Label: "Depth", Question: "Summary or detailed analysis?"},
	}})

	msg, err := w.nextInbound()
	if err != nil {
		// Input closed without answers: the round was cancelled upstream.
		w.emit(protocol.Done{Success: false})
		return nil
	}
	if msg.Type == "interrupt" {
		w.emit(protocol.Status{Message: "Stopping on request"})
		w.emit(protocol.Done{Success: false})
		return nil
	}

	w.emit(protocol.Status{Message: fmt.Sprintf("Received %d answer(s)", len(msg.Answers))})
	return w.runHappy(req)
}

func (w *mockWorker) runError() error {
	w.emit(protocol.Status{Message: "Starting"})
	w.emit(protocol.WorkerError{Message: "search backend unavailable", Code: "SEARCH_DOWN"})
	w.emit(protocol.Done{Success: false})
	return nil
}

// runGarbled interleaves unparsable lines with a valid run to exercise the
// launcher's per-line error tolerance.
func (w *mockWorker) runGarbled(req protocol.Request) error {
	w.emit(protocol.Status{Message: "Starting"})
	fmt.Println("this is not json")
	fmt.Println(`{"type":"no-such-tag","x":1}`)
	time.Sleep(10 * time.Millisecond)
	return w.runHappy(req)
}

// runBurst floods stdout and exits immediately, without waiting for the
// launcher to catch up.
func (w *mockWorker) runBurst() error {
	for i := 1; i <= 300; i++ {
		w.emit(protocol.Status{Message: fmt.Sprintf("step %d", i)})
	}
	w.emit(protocol.Done{Success: true})
	return nil
}

func (w *mockWorker) nextInbound() (*inbound, error) {
	for {
		var msg inbound
		err := w.decoder.Decode(&msg)
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		if err != nil {
			var lineErr *ndjson.LineError
			if errors.As(err, &lineErr) {
				continue
			}
			return nil, err
		}
		return &msg, nil
	}
}
