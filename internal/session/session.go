package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fathom/internal/artifacts"
	"fathom/internal/config"
	"fathom/internal/protocol"
	"fathom/internal/worker"
)

// Sink receives everything a front end needs to render a run: every worker
// event in arrival order, plus non-fatal warnings. Implementations must not
// block for long; the router delivers on its own goroutine.
type Sink interface {
	Event(ev protocol.Event)
	Warning(msg string)
}

// StartObserver is implemented by sinks that want the run announcement
// before the first event. Dir is empty when the run directory could not be
// created.
type StartObserver interface {
	RunStarted(runID, dir string)
}

// Outcome is the final accounting of one run.
type Outcome struct {
	RunID     string
	Dir       string
	Success   bool // worker reported done{success:true} AND exited zero
	Cancelled bool // user declined the confirmation prompt
	Report    *protocol.Report
	LastError *protocol.WorkerError
	Err       error // launch or synchronization failure; nil otherwise
}

// Session drives one run: it launches the worker, routes its events to the
// sink and the artifact store in arrival order, owns the clarifying-answer
// handoff and forwards interrupts while the worker is alive.
type Session struct {
	cfg        *config.Config
	stderrMode worker.StderrMode
	sink       Sink
	logger     *slog.Logger

	mu            sync.Mutex
	w             *worker.Worker
	round         *handoff
	roundResolved bool
	cancelled     bool

	journal *artifacts.Journal

	// metadata accumulated across the run
	start       time.Time
	traceID     string
	traceURL    string
	model       string
	totalTokens *int
	report      *protocol.Report
	lastError   *protocol.WorkerError
	doneSuccess bool
}

// New creates a session bound to one front end.
func New(cfg *config.Config, stderrMode worker.StderrMode, sink Sink, logger *slog.Logger) *Session {
	return &Session{
		cfg:        cfg,
		stderrMode: stderrMode,
		sink:       sink,
		logger:     logger,
	}
}

// Run executes one research run to completion. It blocks until the worker
// has exited and artifacts are flushed. Only launch and synchronization
// failures abort early; every other error is surfaced and the line-reading
// loop runs to end-of-stream so artifacts stay as complete as possible.
func (s *Session) Run(ctx context.Context, query string) Outcome {
	runID := uuid.New().String()
	s.start = time.Now()

	req := &protocol.Request{
		Version: protocol.ProtocolVersion,
		RunID:   runID,
		Query:   query,
		Config:  s.cfg.RequestConfig(),
	}

	outcome := Outcome{RunID: runID}

	store, err := artifacts.NewStore(s.cfg.RunsDir, runID, s.logger)
	if err != nil {
		// Persistence is best-effort; the run proceeds without it.
		s.sink.Warning("failed to create run directory: " + err.Error())
		store = nil
	} else {
		outcome.Dir = store.Dir()
		if err := store.WriteRequest(req); err != nil {
			s.sink.Warning(err.Error())
		}
		journal, err := artifacts.OpenJournal(store.Dir(), s.logger)
		if err != nil {
			s.sink.Warning(err.Error())
		} else {
			s.journal = journal
		}
	}
	defer func() {
		// Closed in finish on the normal paths; this covers launch failures.
		if s.journal != nil {
			_ = s.journal.Close()
			s.journal = nil
		}
	}()

	if so, ok := s.sink.(StartObserver); ok {
		so.RunStarted(runID, outcome.Dir)
	}

	w := worker.New(s.cfg.WorkerCmd, s.stderrMode, s.logger)
	if err := w.Start(ctx); err != nil {
		outcome.Err = err
		return outcome
	}

	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
	defer func() {
		// Revoke the interrupt and answer paths: a finished run must never
		// receive another message.
		s.mu.Lock()
		s.w = nil
		if s.round != nil {
			s.round.abandon(ErrHandoffAbandoned)
			s.round = nil
		}
		s.mu.Unlock()
	}()

	if err := w.SendRequest(req); err != nil {
		outcome.Err = err
		w.Kill()
		return outcome
	}

	go func() {
		for msg := range w.Warnings() {
			s.sink.Warning(msg)
		}
	}()

	if err := s.routeEvents(ctx, w, store); err != nil {
		outcome.Err = err
		w.Shutdown(2 * time.Second)
		s.finish(store, runID, outcome.Err)
		return outcome
	}

	// All writing is done only now that the output stream has ended.
	_ = w.CloseInput()

	exitOK, waitErr := w.Wait(ctx)
	if waitErr != nil {
		s.logger.Warn("wait for worker interrupted", "error", waitErr)
	}

	s.finish(store, runID, nil)

	outcome.Success = s.doneSuccess && exitOK
	outcome.Cancelled = s.cancelled
	outcome.Report = s.report
	outcome.LastError = s.lastError
	return outcome
}

// routeEvents drains the worker's output in arrival order. Returns nil on
// end-of-stream, or a synchronization error if a clarifying round was left
// unanswerable.
func (s *Session) routeEvents(ctx context.Context, w *worker.Worker, store *artifacts.Store) error {
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if err := s.routeEvent(ctx, w, store, ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) routeEvent(ctx context.Context, w *worker.Worker, store *artifacts.Store, ev protocol.Event) error {
	// (a) unconditional forward, before any control flow below.
	s.sink.Event(ev)

	if s.journal != nil {
		if err := s.journal.Append(ev); err != nil {
			s.sink.Warning("event journal write failed: " + err.Error())
		}
	}

	switch ev := ev.(type) {
	case protocol.Trace:
		s.traceID = ev.TraceID
		s.traceURL = ev.TraceURL

	case protocol.Prompt:
		if store != nil {
			if err := store.WritePrompt(ev); err != nil {
				s.sink.Warning(err.Error())
			}
		}

	case protocol.RawResponse:
		if store != nil {
			if err := store.WriteRawResponse(ev); err != nil {
				s.sink.Warning(err.Error())
			}
		}

	case protocol.Report:
		report := ev
		s.report = &report

	case protocol.Metadata:
		s.model = ev.Model
		s.totalTokens = ev.TotalTokens

	case protocol.WorkerError:
		we := ev
		s.lastError = &we

	case protocol.Done:
		s.doneSuccess = ev.Success

	case protocol.ClarifyingQuestions:
		return s.clarify(ctx, w, store)
	}
	return nil
}

// clarify opens the answer handoff and suspends outbound writing until the
// controller resolves it. Events that arrive while waiting are still routed
// in order; a repeated clarifying round is ignored.
func (s *Session) clarify(ctx context.Context, w *worker.Worker, store *artifacts.Store) error {
	s.mu.Lock()
	if s.roundResolved || s.round != nil {
		s.mu.Unlock()
		s.logger.Debug("ignoring repeated clarifying round")
		return nil
	}
	h := newHandoff()
	s.round = h
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.round = nil
		s.roundResolved = true
		s.mu.Unlock()
	}()

	for {
		select {
		case res := <-h.ch:
			if res.err != nil {
				if errors.Is(res.err, errRoundCancelled) {
					return s.cancelRun(w)
				}
				return res.err
			}
			if err := w.SendAnswers(res.answers); err != nil {
				s.sink.Warning("failed to send answers: " + err.Error())
				return ErrHandoffAbandoned
			}
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				// Output stream ended while the round was open: resolve the
				// wait with a failure rather than hang forever.
				h.abandon(ErrHandoffAbandoned)
				return ErrHandoffAbandoned
			}
			// Nested clarifying rounds are ignored by the guard above.
			if err := s.routeEvent(ctx, w, store, ev); err != nil {
				return err
			}

		case <-ctx.Done():
			h.abandon(ctx.Err())
			return ctx.Err()
		}
	}
}

// cancelRun tells the worker to stop and marks the run user-cancelled. No
// ClarifyingAnswers message is ever written for a cancelled round.
func (s *Session) cancelRun(w *worker.Worker) error {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()

	if err := w.SendInterrupt(protocol.InterruptStop); err != nil {
		s.logger.Warn("failed to send stop interrupt", "error", err)
	}
	_ = w.CloseInput()
	return nil
}

// SubmitAnswers fulfills the open clarifying round. No-op when no round is
// awaiting answers.
func (s *Session) SubmitAnswers(answers []string) {
	s.mu.Lock()
	h := s.round
	s.mu.Unlock()

	if h != nil {
		h.fulfill(answers)
	}
}

// CancelRound abandons the open clarifying round: the held answers are
// discarded and the worker is told to stop.
func (s *Session) CancelRound() {
	s.mu.Lock()
	h := s.round
	s.mu.Unlock()

	if h != nil {
		h.abandon(errRoundCancelled)
	}
}

// Interrupt forwards an advisory control command to the active worker.
// No-op when no run is active, so a command can never reach a stale or
// already-exited process.
func (s *Session) Interrupt(cmd protocol.InterruptCommand) {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()

	if w == nil || !w.IsRunning() {
		return
	}
	if err := w.SendInterrupt(cmd); err != nil {
		s.logger.Warn("failed to send interrupt", "command", cmd, "error", err)
	}
}

// finish flushes the end-of-run artifacts.
func (s *Session) finish(store *artifacts.Store, runID string, runErr error) {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("failed to close event journal", "error", err)
		}
		s.journal = nil
	}

	if store == nil {
		return
	}

	if s.report != nil {
		if err := store.WriteReport(s.report.MarkdownReport); err != nil {
			s.sink.Warning(err.Error())
		}
	}

	meta := &protocol.RunMetadata{
		RunID:       runID,
		Model:       s.model,
		TotalTokens: s.totalTokens,
		DurationMS:  time.Since(s.start).Milliseconds(),
		TraceID:     s.traceID,
		TraceURL:    s.traceURL,
	}
	if err := store.WriteMetadata(meta); err != nil {
		s.sink.Warning(err.Error())
	}

	if runErr != nil {
		s.logger.Error("run ended with error", "run_id", runID, "error", runErr)
	}
}
