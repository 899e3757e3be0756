package queue

import (
	"context"
	"sync"
	"time"
)

// State is the lifecycle position of a task.
type State int

const (
	StateQueued State = iota
	StateInFlight
	StateCompleted
	StateFailed
	StateCanceled
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateInFlight:
		return "in-flight"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Handle tracks one enqueued task.
type Handle struct {
	name     string
	enqueued time.Time

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

func newHandle(name string) *Handle {
	return &Handle{name: name, enqueued: time.Now(), done: make(chan struct{})}
}

// Name returns the label given at enqueue time.
func (h *Handle) Name() string {
	return h.name
}

// State returns the current state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the task error once it has failed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done is closed when the task reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task is terminal or ctx is done.
func (h *Handle) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.done:
		return h.State(), nil
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

func (h *Handle) setInFlight() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateInFlight
}

// finish moves the handle to a terminal state once; later calls are ignored.
func (h *Handle) finish(state State, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return false
	}
	h.state = state
	h.err = err
	close(h.done)
	return true
}
