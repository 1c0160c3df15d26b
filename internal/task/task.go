// Package task runs walks off the interactive goroutine. Each scheduled task
// gets its own goroutine and cancellation token; its single terminal
// callback is posted back to a Loop.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jward/caret/internal/walk"
)

// Token is a cooperative cancellation flag. Once set it stays set.
type Token struct {
	cancelled atomic.Bool
}

// NewToken returns an unset token.
func NewToken() *Token { return &Token{} }

// Cancel sets the token. Safe from any goroutine.
func (t *Token) Cancel() { t.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool { return t.cancelled.Load() }

// State is a task's position in its lifecycle:
// Scheduled → Running → {Completed | Cancelled | Failed}.
type State int32

const (
	Scheduled State = iota
	Running
	Completed
	Cancelled
	Failed
)

var stateNames = [...]string{
	Scheduled: "scheduled",
	Running:   "running",
	Completed: "completed",
	Cancelled: "cancelled",
	Failed:    "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Work is the body of a task. It must poll tok and return promptly once it
// is set.
type Work func(tok *Token) walk.Result

// Handle tracks one scheduled task.
type Handle struct {
	ID    uuid.UUID
	Title string

	token *Token
	state atomic.Int32
	done  chan struct{}
}

// Cancel requests cooperative cancellation.
func (h *Handle) Cancel() { h.token.Cancel() }

// Token returns the task's cancellation token.
func (h *Handle) Token() *Token { return h.token }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Done is closed after the terminal callback has returned, or after it was
// dropped because the loop had stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until Done or ctx ends, and returns the state reached.
func (h *Handle) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.done:
		return h.State(), nil
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

func (h *Handle) transition(from, to State) bool {
	return h.state.CompareAndSwap(int32(from), int32(to))
}

// Runner schedules tasks and delivers their outcome on a Loop.
type Runner struct {
	loop *Loop
	log  logrus.FieldLogger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger used for task lifecycle and faults.
func WithLogger(l logrus.FieldLogger) RunnerOption {
	return func(r *Runner) {
		r.log = l
	}
}

// NewRunner returns a Runner delivering to loop.
func NewRunner(loop *Loop, opts ...RunnerOption) *Runner {
	r := &Runner{
		loop: loop,
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schedule starts work on its own goroutine and returns immediately. The
// task's token is also set when ctx ends. Exactly one of onCancelled and
// onDone runs, on the loop: onCancelled when work reports a cancelled
// result, onDone otherwise. A panic inside work is recovered, logged, and
// delivered to onDone as a Failed result. Either callback may be nil.
func (r *Runner) Schedule(ctx context.Context, title string, work Work, onCancelled func(), onDone func(walk.Result)) *Handle {
	h := &Handle{
		ID:    uuid.New(),
		Title: title,
		token: NewToken(),
		done:  make(chan struct{}),
	}
	stop := context.AfterFunc(ctx, h.token.Cancel)
	go r.run(h, stop, work, onCancelled, onDone)
	return h
}

func (r *Runner) run(h *Handle, stop func() bool, work Work, onCancelled func(), onDone func(walk.Result)) {
	defer stop()
	log := r.log.WithFields(logrus.Fields{"task": h.ID.String(), "title": h.Title})

	h.transition(Scheduled, Running)
	log.Debug("task running")

	res, fault, stack := execute(work, h.token)

	var deliver func()
	switch {
	case fault != nil:
		log.WithField("stack", string(stack)).Errorf("task failed: %v", fault)
		h.transition(Running, Failed)
		res = walk.Result{Status: walk.Failed, Counts: walk.Counts{}, Fault: fmt.Sprint(fault)}
		deliver = func() { callDone(onDone, res) }
	case res.Status == walk.Failed:
		log.Errorf("task failed: %s", res.Fault)
		h.transition(Running, Failed)
		deliver = func() { callDone(onDone, res) }
	case res.Cancelled:
		log.WithField("visited", res.Visited).Info("task cancelled")
		h.transition(Running, Cancelled)
		deliver = func() {
			if onCancelled != nil {
				onCancelled()
			}
		}
	default:
		log.WithField("visited", res.Visited).Debug("task completed")
		h.transition(Running, Completed)
		deliver = func() { callDone(onDone, res) }
	}

	err := r.loop.Post(func() {
		defer close(h.done)
		deliver()
	})
	if err != nil {
		log.WithError(err).Warn("terminal callback dropped")
		close(h.done)
	}
}

func callDone(onDone func(walk.Result), res walk.Result) {
	if onDone != nil {
		onDone(res)
	}
}

// execute runs work, converting a panic into a fault.
func execute(work Work, tok *Token) (res walk.Result, fault any, stack []byte) {
	defer func() {
		if p := recover(); p != nil {
			fault = p
			stack = debug.Stack()
		}
	}()
	return work(tok), nil, nil
}
