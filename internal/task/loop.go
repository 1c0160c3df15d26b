package task

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopStopped is returned by Post once the loop has been stopped.
var ErrLoopStopped = errors.New("task: loop stopped")

// Loop is a single-consumer event loop. Functions passed to Post run one at
// a time, in order, on the goroutine that called Run. It stands in for the
// interactive thread: presentation state touched only from posted functions
// needs no locking.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	stopped bool

	wake chan struct{}
	quit chan struct{}
}

// NewLoop returns a loop ready for Post and Run.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
}

// Post queues fn. It never blocks. A nil error guarantees fn runs before Run
// returns.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrLoopStopped
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stop refuses further posts. Run drains what was already accepted and
// returns. Safe to call from posted functions and more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		l.stopped = true
		close(l.quit)
	}
}

// Stopped is closed once Stop has been called.
func (l *Loop) Stopped() <-chan struct{} {
	return l.quit
}

// Run executes posted functions until the loop is stopped and drained. If
// ctx ends first the loop stops itself, drains, and returns ctx.Err(). Run
// must not be called concurrently.
func (l *Loop) Run(ctx context.Context) error {
	var err error
	done := ctx.Done()
	for {
		for _, fn := range l.take() {
			fn()
		}

		l.mu.Lock()
		finished := l.stopped && len(l.pending) == 0
		l.mu.Unlock()
		if finished {
			return err
		}

		select {
		case <-l.wake:
		case <-l.quit:
		case <-done:
			err = ctx.Err()
			done = nil
			l.Stop()
		}
	}
}

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.pending
	l.pending = nil
	return batch
}
