package critique

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCancelled is the failure recorded when a pending critique is revoked.
var ErrCancelled = errors.New("critique cancelled")

// State is the position of a Task in its lifecycle.
type State int

const (
	AwaitingPrimary State = iota
	AwaitingCritique
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingPrimary:
		return "awaiting_primary"
	case AwaitingCritique:
		return "awaiting_critique"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// Handle revokes a scheduled action. Stop reports whether the action was
// prevented from running.
type Handle interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Handle
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) Handle {
	return time.AfterFunc(d, f)
}

// Task tracks one prompt request through the primary call and the optional
// delayed critique.
type Task struct {
	ID string

	mu       sync.Mutex
	state    State
	answer   string
	critique string
	err      error
	handle   Handle
	cancel   context.CancelFunc
	done     chan struct{}
}

func newTask() *Task {
	return &Task{
		ID:    uuid.NewString(),
		state: AwaitingPrimary,
		done:  make(chan struct{}),
	}
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Answer returns the primary answer, empty until the primary call succeeds.
func (t *Task) Answer() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.answer
}

// Critique returns the critique text once the critique call has succeeded.
func (t *Task) Critique() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.critique
}

// Err returns the failure that moved the task to Failed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task is terminal or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel revokes a pending critique. It reports false when the task had
// already finished.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	handle, cancel := t.handle, t.cancel
	t.mu.Unlock()

	if !t.finish(Failed, ErrCancelled) {
		return false
	}
	if handle != nil {
		handle.Stop()
	}
	if cancel != nil {
		cancel()
	}
	return true
}

func (t *Task) setAnswer(answer string) {
	t.mu.Lock()
	t.answer = answer
	t.mu.Unlock()
}

func (t *Task) awaitCritique(cancel context.CancelFunc) {
	t.mu.Lock()
	t.state = AwaitingCritique
	t.cancel = cancel
	t.mu.Unlock()
}

func (t *Task) setHandle(h Handle) {
	t.mu.Lock()
	t.handle = h
	t.mu.Unlock()
}

// active reports whether the task is still waiting on its critique.
func (t *Task) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == AwaitingCritique
}

// finish moves the task to a terminal state. Only the first call wins.
func (t *Task) finish(state State, err error) bool {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.state = state
	t.err = err
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(t.done)
	return true
}

func (t *Task) complete(critique string) bool {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.critique = critique
	t.mu.Unlock()
	return t.finish(Done, nil)
}
