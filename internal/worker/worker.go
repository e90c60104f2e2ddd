package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"fathom/internal/ndjson"
	"fathom/internal/protocol"
)

// ErrLaunch marks a failure to start the worker process. Launch failures
// are fatal to the run.
var ErrLaunch = errors.New("worker launch failed")

// StderrMode selects what happens to the worker's stderr.
type StderrMode int

const (
	// StderrInherit passes worker diagnostics through to the operator.
	StderrInherit StderrMode = iota
	// StderrDiscard silences the worker, used when a terminal UI owns the
	// screen.
	StderrDiscard
)

// Worker owns one research worker subprocess: its pipes, its decoded
// event stream, and its exit status. One Worker per run; it is not reused.
type Worker struct {
	cmd        []string
	stderrMode StderrMode
	logger     *slog.Logger

	mu       sync.Mutex
	process  *exec.Cmd
	encoder  *ndjson.Encoder
	stdin    io.WriteCloser
	running  bool
	sentReq  bool
	exitChan chan error
	readDone chan struct{}

	events   chan protocol.Event
	warnings chan string
}

// New creates a worker handle for the given command line.
func New(cmd []string, stderrMode StderrMode, logger *slog.Logger) *Worker {
	return &Worker{
		cmd:        cmd,
		stderrMode: stderrMode,
		logger:     logger,
		events:     make(chan protocol.Event, 100),
		warnings:   make(chan string, 100),
	}
}

// Start launches the worker process and begins reading its output.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.mu.Unlock()

	w.logger.Info("starting worker", "cmd", w.cmd)

	proc := exec.CommandContext(ctx, w.cmd[0], w.cmd[1:]...)
	proc.Env = os.Environ()

	switch w.stderrMode {
	case StderrInherit:
		proc.Stderr = os.Stderr
	case StderrDiscard:
		proc.Stderr = nil
	}

	stdin, err := proc.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrLaunch, err)
	}

	stdout, err := proc.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("%w: stdout pipe: %v", ErrLaunch, err)
	}

	if err := proc.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	w.mu.Lock()
	w.process = proc
	w.stdin = stdin
	w.encoder = ndjson.NewEncoder(stdin, w.logger)
	w.running = true
	w.exitChan = make(chan error, 1)
	w.readDone = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker started", "pid", proc.Process.Pid)

	go w.readStdout(ctx, stdout)
	go w.waitForExit()

	return nil
}

// SendRequest writes the session request as the first line on the worker's
// stdin. It must be called exactly once, before any other write.
func (w *Worker) SendRequest(req *protocol.Request) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return fmt.Errorf("worker not running")
	}
	if w.sentReq {
		return fmt.Errorf("request already sent")
	}
	w.sentReq = true

	w.logger.Debug("sending request", "run_id", req.RunID)
	return w.encoder.Encode(req)
}

// SendAnswers writes a clarifying-answers message to the worker.
func (w *Worker) SendAnswers(answers []string) error {
	return w.send(answersMessage(answers))
}

// answersMessage normalizes the answers for the wire: the "answers" field
// is always a JSON array, never null.
func answersMessage(answers []string) *protocol.ClarifyingAnswers {
	if answers == nil {
		answers = []string{}
	}
	return &protocol.ClarifyingAnswers{Answers: answers}
}

// SendInterrupt forwards an advisory control command to the worker.
func (w *Worker) SendInterrupt(cmd protocol.InterruptCommand) error {
	return w.send(protocol.NewInterrupt(cmd))
}

// send serializes any outbound control message. The mutex keeps writers
// from interleaving mid-line: the request, answers and interrupts all
// funnel through here or SendRequest.
func (w *Worker) send(msg any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return fmt.Errorf("worker not running")
	}
	if !w.sentReq {
		return fmt.Errorf("request not sent yet")
	}
	return w.encoder.Encode(msg)
}

// CloseInput closes the worker's stdin, signaling end-of-input. Callers
// must not close before all clarifying exchanges are finished; premature
// closure truncates in-flight rounds.
func (w *Worker) CloseInput() error {
	w.mu.Lock()
	stdin := w.stdin
	w.stdin = nil
	w.mu.Unlock()

	if stdin == nil {
		return nil
	}
	return stdin.Close()
}

// Events returns the decoded event stream, in arrival order. The channel
// is closed when the worker's stdout reaches end-of-stream.
func (w *Worker) Events() <-chan protocol.Event {
	return w.events
}

// Warnings returns one message per dropped protocol line.
func (w *Worker) Warnings() <-chan string {
	return w.warnings
}

// IsRunning reports whether the process is still alive.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Wait blocks until the process exits and reports whether it exited zero.
// Returns an error only if ctx expires first.
func (w *Worker) Wait(ctx context.Context) (bool, error) {
	w.mu.Lock()
	exitChan := w.exitChan
	w.mu.Unlock()

	if exitChan == nil {
		return false, fmt.Errorf("worker was never started")
	}

	select {
	case err := <-exitChan:
		// Re-arm so Wait is idempotent.
		exitChan <- err
		if err == nil {
			return true, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Kill force-terminates the process. Used only on shutdown after the
// advisory stop interrupt has been given a chance.
func (w *Worker) Kill() {
	w.mu.Lock()
	proc := w.process
	w.mu.Unlock()

	if proc != nil && proc.Process != nil {
		_ = proc.Process.Kill()
	}
}

// Shutdown sends a stop interrupt, closes stdin and waits briefly for the
// process to exit on its own before killing it.
func (w *Worker) Shutdown(grace time.Duration) {
	if w.IsRunning() {
		_ = w.SendInterrupt(protocol.InterruptStop)
	}
	_ = w.CloseInput()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if _, err := w.Wait(ctx); err != nil {
		w.logger.Warn("worker did not stop gracefully, killing")
		w.Kill()
	}
}

func (w *Worker) readStdout(ctx context.Context, stdout io.ReadCloser) {
	defer close(w.readDone)
	defer close(w.events)
	defer close(w.warnings)

	decoder := ndjson.NewDecoder(stdout, w.logger)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev, err := decoder.DecodeEvent()
		if err == io.EOF {
			w.logger.Info("worker stdout closed")
			return
		}
		if err != nil {
			var lineErr *ndjson.LineError
			if errors.As(err, &lineErr) {
				select {
				case w.warnings <- fmt.Sprintf("failed to parse response: %v", lineErr):
				default:
					// Warning backlog full; the slog record above suffices.
				}
				continue
			}
			w.logger.Error("worker stdout read failed", "error", err)
			return
		}

		select {
		case w.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) waitForExit() {
	w.mu.Lock()
	proc := w.process
	exitChan := w.exitChan
	readDone := w.readDone
	w.mu.Unlock()

	if proc == nil {
		return
	}

	// exec.Cmd.Wait closes the parent's end of the stdout pipe; calling it
	// while the reader is still draining would truncate the event stream.
	// A fast-exiting worker's trailing events are only safe once the reader
	// has hit end-of-stream.
	<-readDone

	err := proc.Wait()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	exitChan <- err

	if err != nil {
		w.logger.Warn("worker exited", "error", err)
	} else {
		w.logger.Info("worker exited cleanly")
	}
}
