package core

import (
	"fmt"
	"sync"
)

// RunStatus is the lifecycle state of a run or of a single composition node.
type RunStatus int

const (
	StatusPending RunStatus = iota
	StatusRunning
	StatusSucceeded
	StatusPartiallyFailed
	StatusFailed
	StatusExhausted
)

func (s RunStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusPartiallyFailed:
		return "partially_failed"
	case StatusFailed:
		return "failed"
	case StatusExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether s is a final state.
func (s RunStatus) Terminal() bool {
	return s >= StatusSucceeded
}

// Answered reports whether a run ending in s produced a usable response.
func (s RunStatus) Answered() bool {
	return s == StatusSucceeded || s == StatusPartiallyFailed || s == StatusExhausted
}

// RunState is the Pending → Running → terminal state machine. Terminal states
// are final; any other transition is rejected with ErrIllegalTransition.
type RunState struct {
	mu     sync.Mutex
	status RunStatus
}

// NewRunState returns a state machine in Pending.
func NewRunState() *RunState {
	return &RunState{status: StatusPending}
}

// Status returns the current state.
func (r *RunState) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Start moves Pending → Running.
func (r *RunState) Start() error {
	return r.transition(StatusRunning)
}

// Finish moves Running → to, where to must be terminal.
func (r *RunState) Finish(to RunStatus) error {
	if !to.Terminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrIllegalTransition, to)
	}
	return r.transition(to)
}

func (r *RunState) transition(to RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	legal := (r.status == StatusPending && to == StatusRunning) ||
		(r.status == StatusRunning && to.Terminal())
	if !legal {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.status, to)
	}
	r.status = to
	return nil
}
