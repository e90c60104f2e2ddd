package ndjson

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"fathom/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	logger := testLogger()

	enc := NewEncoder(&buf, logger)
	req := &protocol.Request{
		Version: protocol.ProtocolVersion,
		RunID:   "run-1",
		Query:   "test query",
		Config: protocol.RequestConfig{
			Model:         "gpt-4o",
			SearchCount:   5,
			MaxIterations: 10,
			MaxSearches:   15,
			AutoDecide:    true,
		},
	}
	if err := enc.Encode(req); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("encoded message should end with newline")
	}

	dec := NewDecoder(&buf, logger)
	var decoded protocol.Request
	if err := dec.Decode(&decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.RunID != req.RunID {
		t.Errorf("run_id mismatch: got %s, want %s", decoded.RunID, req.RunID)
	}
	if decoded.Config != req.Config {
		t.Errorf("config mismatch: got %+v, want %+v", decoded.Config, req.Config)
	}
}

func TestEncodeEventInjectsTag(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, testLogger())

	if err := enc.EncodeEvent(protocol.Status{Message: "working"}); err != nil {
		t.Fatalf("encode event failed: %v", err)
	}

	line := buf.String()
	if !strings.Contains(line, `"type":"status"`) {
		t.Errorf("encoded event missing type discriminator: %s", line)
	}
	if !strings.Contains(line, `"message":"working"`) {
		t.Errorf("encoded event missing payload: %s", line)
	}
}

func TestDecodeEventRoundTrip(t *testing.T) {
	tokens := 42
	events := []protocol.Event{
		protocol.Status{Message: "planning"},
		protocol.Trace{TraceID: "abc", TraceURL: "https://traces.invalid/abc"},
		protocol.ClarifyingQuestions{Questions: []protocol.ClarifyingQuestion{
			{Label: "Scope", Question: "Which region?"},
		}},
		protocol.Prompt{Agent: "Triage", Sequence: 1, Content: "prompt body"},
		protocol.RawResponse{Agent: "Triage", Sequence: 1, Content: "response body",
			TokenUsage: &protocol.TokenUsage{PromptTokens: 30, CompletionTokens: 12, TotalTokens: tokens}},
		protocol.Decision{Action: "continue", Reason: "more needed", RemainingSearches: 3, RemainingIterations: 7},
		protocol.Report{ShortSummary: "summary", MarkdownReport: "# Report", FollowUpQuestions: []string{"q1"}},
		protocol.Metadata{Model: "gpt-4o", TotalTokens: &tokens, DurationMS: 900},
		protocol.WorkerError{Message: "boom", Code: "E1"},
		protocol.Done{Success: true},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf, testLogger())
	for _, ev := range events {
		if err := enc.EncodeEvent(ev); err != nil {
			t.Fatalf("encode %s failed: %v", ev.Tag(), err)
		}
	}

	dec := NewDecoder(&buf, testLogger())
	for _, want := range events {
		got, err := dec.DecodeEvent()
		if err != nil {
			t.Fatalf("decode %s failed: %v", want.Tag(), err)
		}
		if got.Tag() != want.Tag() {
			t.Errorf("tag mismatch: got %s, want %s", got.Tag(), want.Tag())
		}
	}

	if _, err := dec.DecodeEvent(); err != io.EOF {
		t.Errorf("expected EOF after last event, got %v", err)
	}
}

func TestDecodeEventBadLinesAreNotFatal(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"status","message":"first"}`,
		`not json at all`,
		``,
		`{"type":"mystery","x":1}`,
		`{"type":"done","success":true}`,
	}, "\n")

	dec := NewDecoder(strings.NewReader(input), testLogger())

	ev, err := dec.DecodeEvent()
	if err != nil {
		t.Fatalf("first event failed: %v", err)
	}
	if ev.(protocol.Status).Message != "first" {
		t.Errorf("unexpected first event: %+v", ev)
	}

	// The garbage line surfaces as a LineError, not a stream failure.
	_, err = dec.DecodeEvent()
	var lineErr *LineError
	if !errors.As(err, &lineErr) {
		t.Fatalf("expected LineError for garbage line, got %v", err)
	}
	if lineErr.Line != 2 {
		t.Errorf("line number: got %d, want 2", lineErr.Line)
	}

	// Unknown tag is also a LineError; the empty line before it is skipped.
	_, err = dec.DecodeEvent()
	if !errors.As(err, &lineErr) {
		t.Fatalf("expected LineError for unknown tag, got %v", err)
	}

	ev, err = dec.DecodeEvent()
	if err != nil {
		t.Fatalf("stream should recover after bad lines: %v", err)
	}
	if done, ok := ev.(protocol.Done); !ok || !done.Success {
		t.Errorf("unexpected final event: %+v", ev)
	}

	if _, err := dec.DecodeEvent(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestDecodeSkipsEmptyLines(t *testing.T) {
	input := "\n\n" + `{"type":"done","success":false}` + "\n\n"
	dec := NewDecoder(strings.NewReader(input), testLogger())

	ev, err := dec.DecodeEvent()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if _, ok := ev.(protocol.Done); !ok {
		t.Errorf("expected done event, got %+v", ev)
	}
}

func TestEncodeRejectsOversizedMessage(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, testLogger())

	huge := protocol.Status{Message: strings.Repeat("x", MaxMessageSize)}
	if err := enc.EncodeEvent(huge); err == nil {
		t.Error("expected error for oversized message")
	}
}

func TestDecodeOversizedLineIsNotFatal(t *testing.T) {
	input := strings.Repeat("x", MaxMessageSize+64) + "\n" +
		`{"type":"status","message":"after"}` + "\n"

	dec := NewDecoder(strings.NewReader(input), testLogger())

	// The oversized line costs one LineError, not the stream.
	_, err := dec.DecodeEvent()
	var lineErr *LineError
	if !errors.As(err, &lineErr) {
		t.Fatalf("expected LineError for oversized line, got %v", err)
	}
	if lineErr.Line != 1 {
		t.Errorf("line number: got %d, want 1", lineErr.Line)
	}

	ev, err := dec.DecodeEvent()
	if err != nil {
		t.Fatalf("stream should recover after oversized line: %v", err)
	}
	if ev.(protocol.Status).Message != "after" {
		t.Errorf("unexpected event after oversized line: %+v", ev)
	}

	if _, err := dec.DecodeEvent(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestDecodeInterruptAndAnswersShapes(t *testing.T) {
	// The worker side of the pipe distinguishes answers from interrupts by
	// the presence of the "type" field.
	input := `{"answers":["a","b"]}` + "\n" + `{"type":"interrupt","command":"stop"}` + "\n"
	dec := NewDecoder(strings.NewReader(input), testLogger())

	var answers protocol.ClarifyingAnswers
	if err := dec.Decode(&answers); err != nil {
		t.Fatalf("decode answers failed: %v", err)
	}
	if len(answers.Answers) != 2 {
		t.Errorf("answers length: got %d, want 2", len(answers.Answers))
	}

	var intr protocol.Interrupt
	if err := dec.Decode(&intr); err != nil {
		t.Fatalf("decode interrupt failed: %v", err)
	}
	if intr.Type != "interrupt" || intr.Command != protocol.InterruptStop {
		t.Errorf("unexpected interrupt: %+v", intr)
	}
}
