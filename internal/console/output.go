package console

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"fathom/internal/protocol"
)

// Mode selects how the single-shot front end renders a run.
type Mode int

const (
	// ModeHuman writes progress lines to stderr and the report to stdout.
	ModeHuman Mode = iota
	// ModeQuiet suppresses progress; only the report and errors appear.
	ModeQuiet
	// ModeJSON emits one JSON object per line on stdout, nothing on stderr.
	ModeJSON
)

// Output renders run progress for non-interactive use. Progress goes to
// errOut so stdout stays clean for the report (or the JSON stream).
type Output struct {
	mode   Mode
	out    io.Writer
	errOut io.Writer
}

// NewOutput picks the mode from the CLI flags. JSON wins over quiet.
func NewOutput(jsonMode, quiet bool, out, errOut io.Writer) *Output {
	mode := ModeHuman
	switch {
	case jsonMode:
		mode = ModeJSON
	case quiet:
		mode = ModeQuiet
	}
	return &Output{mode: mode, out: out, errOut: errOut}
}

// Mode returns the selected output mode.
func (o *Output) Mode() Mode { return o.mode }

func (o *Output) emitJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(o.errOut, "Warning: failed to encode output: %v\n", err)
		return
	}
	fmt.Fprintln(o.out, string(data))
}

// Start announces the run and where its artifacts will land.
func (o *Output) Start(runID, artifactsDir string, cfg protocol.RequestConfig) {
	switch o.mode {
	case ModeHuman:
		fmt.Fprintf(o.errOut, "Starting research run: %s\n", runID)
		fmt.Fprintf(o.errOut, "Model: %s, Searches: %d (max: %d), Iterations: %d\n",
			cfg.Model, cfg.SearchCount, cfg.MaxSearches, cfg.MaxIterations)
		fmt.Fprintf(o.errOut, "Artifacts: %s\n", artifactsDir)
	case ModeJSON:
		o.emitJSON(struct {
			Type          string `json:"type"`
			Version       string `json:"version"`
			RunID         string `json:"run_id"`
			ArtifactsDir  string `json:"artifacts_dir"`
			Model         string `json:"model"`
			SearchCount   int    `json:"search_count"`
			MaxIterations int    `json:"max_iterations"`
			MaxSearches   int    `json:"max_searches"`
			AutoDecide    bool   `json:"auto_decide"`
		}{"start", protocol.ProtocolVersion, runID, artifactsDir,
			cfg.Model, cfg.SearchCount, cfg.MaxIterations, cfg.MaxSearches, cfg.AutoDecide})
	}
}

// Status prints a worker progress message.
func (o *Output) Status(message string) {
	switch o.mode {
	case ModeHuman:
		fmt.Fprintf(o.errOut, "→ %s\n", message)
	case ModeJSON:
		o.emitJSON(struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}{"status", message})
	}
}

// Trace prints the observability trace reference.
func (o *Output) Trace(traceID, traceURL string) {
	switch o.mode {
	case ModeHuman:
		short := traceID
		if len(short) > 8 {
			short = short[:8]
		}
		fmt.Fprintf(o.errOut, "📊 Trace [%s]: %s\n", short, traceURL)
	case ModeJSON:
		o.emitJSON(struct {
			Type     string `json:"type"`
			TraceID  string `json:"trace_id"`
			TraceURL string `json:"trace_url"`
		}{"trace", traceID, traceURL})
	}
}

// Prompt notes that an agent prompt was captured.
func (o *Output) Prompt(agent string, sequence int) {
	switch o.mode {
	case ModeHuman:
		fmt.Fprintf(o.errOut, "📝 Prompt: %s (%d)\n", agent, sequence)
	case ModeJSON:
		o.emitJSON(struct {
			Type     string `json:"type"`
			Agent    string `json:"agent"`
			Sequence int    `json:"sequence"`
		}{"prompt", agent, sequence})
	}
}

// Response notes that an agent response was captured.
func (o *Output) Response(agent string, sequence int) {
	switch o.mode {
	case ModeHuman:
		fmt.Fprintf(o.errOut, "📥 Response: %s (%d)\n", agent, sequence)
	case ModeJSON:
		o.emitJSON(struct {
			Type     string `json:"type"`
			Agent    string `json:"agent"`
			Sequence int    `json:"sequence"`
		}{"response", agent, sequence})
	}
}

// Decision prints the worker's continue/stop call with remaining budgets.
func (o *Output) Decision(action, reason string, remainingSearches, remainingIterations int) {
	switch o.mode {
	case ModeHuman:
		fmt.Fprintf(o.errOut, "🤔 Decision: %s (searches: %d, iterations: %d)\n",
			action, remainingSearches, remainingIterations)
		fmt.Fprintf(o.errOut, "   Reason: %s\n", reason)
	case ModeJSON:
		o.emitJSON(struct {
			Type                string `json:"type"`
			Action              string `json:"action"`
			Reason              string `json:"reason"`
			RemainingSearches   int    `json:"remaining_searches"`
			RemainingIterations int    `json:"remaining_iterations"`
		}{"decision", action, reason, remainingSearches, remainingIterations})
	}
}

// Report prints the final report. This is the one thing quiet mode still
// shows, and it goes to stdout so it can be piped.
func (o *Output) Report(shortSummary, markdownReport string, followUpQuestions []string) {
	switch o.mode {
	case ModeHuman, ModeQuiet:
		fmt.Fprintf(o.out, "\n%s\n\n", strings.Repeat("=", 60))
		fmt.Fprintf(o.out, "SUMMARY: %s\n\n", shortSummary)
		fmt.Fprintln(o.out, markdownReport)
		if len(followUpQuestions) > 0 {
			fmt.Fprintln(o.out, "\nFollow-up questions:")
			for _, q := range followUpQuestions {
				fmt.Fprintf(o.out, "  - %s\n", q)
			}
		}
	case ModeJSON:
		o.emitJSON(struct {
			Type              string   `json:"type"`
			ShortSummary      string   `json:"short_summary"`
			MarkdownReport    string   `json:"markdown_report"`
			FollowUpQuestions []string `json:"follow_up_questions"`
		}{"report", shortSummary, markdownReport, followUpQuestions})
	}
}

// Questions lists a clarifying round before the answers are collected.
func (o *Output) Questions(questions []protocol.ClarifyingQuestion) {
	switch o.mode {
	case ModeHuman, ModeQuiet:
		fmt.Fprintf(o.errOut, "\nThe worker has %d clarifying question(s):\n", len(questions))
	case ModeJSON:
		o.emitJSON(struct {
			Type      string                       `json:"type"`
			Questions []protocol.ClarifyingQuestion `json:"questions"`
		}{"clarifying_questions", questions})
	}
}

// Error prints a worker-reported error. Never suppressed.
func (o *Output) Error(code, message string) {
	switch o.mode {
	case ModeHuman, ModeQuiet:
		if code != "" {
			fmt.Fprintf(o.errOut, "Error [%s]: %s\n", code, message)
		} else {
			fmt.Fprintf(o.errOut, "Error: %s\n", message)
		}
	case ModeJSON:
		o.emitJSON(struct {
			Type    string `json:"type"`
			Code    string `json:"code,omitempty"`
			Message string `json:"message"`
		}{"error", code, message})
	}
}

// Warning prints a non-fatal problem, such as a dropped protocol line.
func (o *Output) Warning(message string) {
	switch o.mode {
	case ModeHuman:
		fmt.Fprintf(o.errOut, "Warning: %s\n", message)
	case ModeJSON:
		o.emitJSON(struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}{"warning", message})
	}
}

// Complete closes out the run.
func (o *Output) Complete(success bool, runID, artifactsDir string) {
	switch o.mode {
	case ModeHuman:
		fmt.Fprintf(o.errOut, "Run complete. Artifacts saved to: %s\n", artifactsDir)
	case ModeJSON:
		o.emitJSON(struct {
			Type         string `json:"type"`
			Success      bool   `json:"success"`
			RunID        string `json:"run_id"`
			ArtifactsDir string `json:"artifacts_dir"`
		}{"complete", success, runID, artifactsDir})
	}
}
