package protocol

// ProtocolVersion is the version string sent in every session request.
// The worker rejects requests with a version it does not understand.
const ProtocolVersion = "v1"

// RequestConfig is the run configuration forwarded to the worker.
type RequestConfig struct {
	Model         string `json:"model"`
	SearchCount   int    `json:"search_count"`
	MaxIterations int    `json:"max_iterations"`
	MaxSearches   int    `json:"max_searches"`
	AutoDecide    bool   `json:"auto_decide"`
}

// Request is the session initiation message, written exactly once per run
// as the first line on the worker's stdin.
type Request struct {
	Version string        `json:"version"`
	RunID   string        `json:"run_id"`
	Query   string        `json:"query"`
	Config  RequestConfig `json:"config"`
}

// ClarifyingAnswers carries the user's answers to a clarifying round,
// sent at most once per run.
type ClarifyingAnswers struct {
	Answers []string `json:"answers"`
}

// InterruptCommand is an advisory control command for the worker.
type InterruptCommand string

const (
	InterruptStop       InterruptCommand = "stop"
	InterruptPause      InterruptCommand = "pause"
	InterruptForceWrite InterruptCommand = "force_write"
)

// Interrupt is the outbound control message wrapping an InterruptCommand.
type Interrupt struct {
	Type    string           `json:"type"`
	Command InterruptCommand `json:"command"`
}

// NewInterrupt builds an interrupt message for the given command.
func NewInterrupt(cmd InterruptCommand) Interrupt {
	return Interrupt{Type: "interrupt", Command: cmd}
}

// TokenUsage is the optional per-response token accounting triple.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ClarifyingQuestion is a single question in a clarifying round.
type ClarifyingQuestion struct {
	Label    string `json:"label"`
	Question string `json:"question"`
}

// Event is the closed set of inbound worker messages. The protocol is
// versioned and closed, so consumers switch exhaustively on the concrete
// types below rather than dispatching on strings.
type Event interface {
	// Tag returns the wire discriminator carried in the "type" field.
	Tag() string
}

// Status is a human-readable progress line.
type Status struct {
	Message string `json:"message"`
}

// Trace links the run to an external trace viewer.
type Trace struct {
	TraceID  string `json:"trace_id"`
	TraceURL string `json:"trace_url"`
}

// ClarifyingQuestions asks the user for answers before research proceeds.
// Zero or one per run.
type ClarifyingQuestions struct {
	Questions []ClarifyingQuestion `json:"questions"`
}

// Prompt is the full prompt sent to an agent, keyed by sequence number.
type Prompt struct {
	Agent    string `json:"agent"`
	Sequence int    `json:"sequence"`
	Content  string `json:"content"`
}

// RawResponse is an agent's raw output for the matching prompt sequence.
type RawResponse struct {
	Agent      string      `json:"agent"`
	Sequence   int         `json:"sequence"`
	Content    string      `json:"content"`
	TokenUsage *TokenUsage `json:"token_usage,omitempty"`
}

// Decision reports the orchestrator's next action and remaining budgets.
type Decision struct {
	Action              string `json:"action"`
	Reason              string `json:"reason"`
	RemainingSearches   int    `json:"remaining_searches"`
	RemainingIterations int    `json:"remaining_iterations"`
}

// Report is the final research report.
type Report struct {
	ShortSummary      string   `json:"short_summary"`
	MarkdownReport    string   `json:"markdown_report"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// Metadata carries run totals, emitted once near the end of a run.
type Metadata struct {
	Model       string `json:"model"`
	TotalTokens *int   `json:"total_tokens,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
}

// WorkerError is an error reported by the worker. It does not by itself
// end the run; the worker decides whether to follow with done{success:false}.
type WorkerError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Done is the worker's final verdict for the run.
type Done struct {
	Success bool `json:"success"`
}

// Wire discriminators. These are part of the protocol contract and must
// match the worker byte-for-byte.
const (
	TagStatus              = "status"
	TagTrace               = "trace"
	TagClarifyingQuestions = "clarifying_questions"
	TagPrompt              = "prompt"
	TagRawResponse         = "raw_response"
	TagDecision            = "decision"
	TagReport              = "report"
	TagMetadata            = "metadata"
	TagError               = "error"
	TagDone                = "done"
)

func (Status) Tag() string              { return TagStatus }
func (Trace) Tag() string               { return TagTrace }
func (ClarifyingQuestions) Tag() string { return TagClarifyingQuestions }
func (Prompt) Tag() string              { return TagPrompt }
func (RawResponse) Tag() string         { return TagRawResponse }
func (Decision) Tag() string            { return TagDecision }
func (Report) Tag() string              { return TagReport }
func (Metadata) Tag() string            { return TagMetadata }
func (WorkerError) Tag() string         { return TagError }
func (Done) Tag() string                { return TagDone }

// RunMetadata is the metadata.json artifact written at run end.
type RunMetadata struct {
	RunID       string `json:"run_id"`
	Model       string `json:"model,omitempty"`
	TotalTokens *int   `json:"total_tokens,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	TraceID     string `json:"trace_id,omitempty"`
	TraceURL    string `json:"trace_url,omitempty"`
}
