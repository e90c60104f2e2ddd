package session

import (
	"errors"
	"sync"
)

// ErrHandoffAbandoned reports a clarifying round that could not complete
// because the worker's output stream ended first. Distinct from a
// worker-reported error; fatal to the run.
var ErrHandoffAbandoned = errors.New("clarifying round abandoned: worker exited before answers were sent")

// errRoundCancelled is the internal outcome of the user declining the
// confirmation prompt.
var errRoundCancelled = errors.New("clarifying round cancelled by user")

type handoffResult struct {
	answers []string
	err     error
}

// handoff is the single-use synchronization point between the controller
// (which collects answers) and the session loop (which resumes writing to
// the worker). It resolves exactly once: fulfilled with answers, or
// abandoned with an error.
type handoff struct {
	once sync.Once
	ch   chan handoffResult
}

func newHandoff() *handoff {
	return &handoff{ch: make(chan handoffResult, 1)}
}

func (h *handoff) fulfill(answers []string) {
	h.once.Do(func() {
		h.ch <- handoffResult{answers: answers}
	})
}

func (h *handoff) abandon(err error) {
	h.once.Do(func() {
		h.ch <- handoffResult{err: err}
	})
}
