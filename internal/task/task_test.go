package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/caret/internal/tree"
	"github.com/jward/caret/internal/walk"
)

// startLoop runs l on a goroutine and returns a channel closed when Run
// returns.
func startLoop(t *testing.T, l *Loop) <-chan struct{} {
	t.Helper()
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		_ = l.Run(context.Background())
	}()
	t.Cleanup(func() {
		l.Stop()
		<-exited
	})
	return exited
}

func waitDone(t *testing.T, h *Handle) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := h.Wait(ctx)
	require.NoError(t, err, "task %q did not finish", h.Title)
	return st
}

// blockUntilCancelled polls tok the way a walk does.
func blockUntilCancelled(tok *Token) walk.Result {
	visited := 0
	for !tok.Cancelled() {
		visited++
		time.Sleep(time.Millisecond)
	}
	return walk.Result{Status: walk.Cancelled, Cancelled: true, Counts: walk.Counts{}, Visited: visited}
}

func quietLogger() (*logrus.Logger, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func TestToken(t *testing.T) {
	tok := NewToken()
	assert.False(t, tok.Cancelled())
	tok.Cancel()
	assert.True(t, tok.Cancelled())
	tok.Cancel()
	assert.True(t, tok.Cancelled())

	var _ walk.Token = tok
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		name     string
		terminal bool
	}{
		{Scheduled, "scheduled", false},
		{Running, "running", false},
		{Completed, "completed", true},
		{Cancelled, "cancelled", true},
		{Failed, "failed", true},
		{State(42), "state(42)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.terminal, tt.state.Terminal())
		})
	}
}

func TestSchedule_CompletedDeliversOnDoneOnce(t *testing.T) {
	loop := NewLoop()
	startLoop(t, loop)
	logger, _ := quietLogger()
	r := NewRunner(loop, WithLogger(logger))

	root := tree.New(tree.Other, "").AddChild(tree.New(tree.Header, "a"), tree.New(tree.Paragraph, ""))
	var done, cancelled atomic.Int32
	var got walk.Result
	h := r.Schedule(context.Background(), "count", func(tok *Token) walk.Result {
		return walk.Traverse(root, tok)
	}, func() {
		cancelled.Add(1)
	}, func(res walk.Result) {
		done.Add(1)
		got = res
	})

	assert.Equal(t, Completed, waitDone(t, h))
	assert.Equal(t, int32(1), done.Load())
	assert.Zero(t, cancelled.Load())
	assert.Equal(t, 1, got.Counts[tree.Header])
	assert.Equal(t, 1, got.Counts[tree.Paragraph])
	assert.NotEmpty(t, h.ID.String())
	assert.Equal(t, "count", h.Title)
}

func TestSchedule_CancelDeliversOnCancelledOnce(t *testing.T) {
	loop := NewLoop()
	startLoop(t, loop)
	logger, hook := quietLogger()
	r := NewRunner(loop, WithLogger(logger))

	started := make(chan struct{})
	var done, cancelled atomic.Int32
	h := r.Schedule(context.Background(), "slow", func(tok *Token) walk.Result {
		close(started)
		return blockUntilCancelled(tok)
	}, func() {
		cancelled.Add(1)
	}, func(walk.Result) {
		done.Add(1)
	})

	<-started
	assert.Equal(t, Running, h.State())
	h.Cancel()
	h.Cancel()

	assert.Equal(t, Cancelled, waitDone(t, h))
	assert.Equal(t, int32(1), cancelled.Load())
	assert.Zero(t, done.Load())
	assert.True(t, h.Token().Cancelled())

	var sawInfo bool
	for _, e := range hook.AllEntries() {
		if e.Message == "task cancelled" {
			sawInfo = true
			assert.Equal(t, h.ID.String(), e.Data["task"])
		}
	}
	assert.True(t, sawInfo)
}

func TestSchedule_ContextCancelSetsToken(t *testing.T) {
	loop := NewLoop()
	startLoop(t, loop)
	logger, _ := quietLogger()
	r := NewRunner(loop, WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	var cancelled atomic.Bool
	h := r.Schedule(ctx, "ctx", blockUntilCancelled, func() { cancelled.Store(true) }, nil)
	cancel()

	assert.Equal(t, Cancelled, waitDone(t, h))
	assert.True(t, cancelled.Load())
}

func TestSchedule_PanicBecomesFailed(t *testing.T) {
	loop := NewLoop()
	startLoop(t, loop)
	logger, hook := quietLogger()
	r := NewRunner(loop, WithLogger(logger))

	var got walk.Result
	var calls atomic.Int32
	h := r.Schedule(context.Background(), "boom", func(*Token) walk.Result {
		panic("walk exploded")
	}, func() {
		t.Error("onCancelled must not run for a fault")
	}, func(res walk.Result) {
		calls.Add(1)
		got = res
	})

	assert.Equal(t, Failed, waitDone(t, h))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, walk.Failed, got.Status)
	assert.Equal(t, "walk exploded", got.Fault)
	assert.ErrorIs(t, got.Err(), walk.ErrTraversalFault)

	var entry *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			entry = e
		}
	}
	require.NotNil(t, entry)
	assert.Contains(t, entry.Message, "walk exploded")
	assert.Contains(t, entry.Data["stack"], "panic")
}

func TestSchedule_FailedResultIsFailedState(t *testing.T) {
	loop := NewLoop()
	startLoop(t, loop)
	logger, _ := quietLogger()
	r := NewRunner(loop, WithLogger(logger))

	h := r.Schedule(context.Background(), "fault", func(*Token) walk.Result {
		return walk.Result{Status: walk.Failed, Fault: "bad tree"}
	}, nil, nil)
	assert.Equal(t, Failed, waitDone(t, h))
}

func TestSchedule_CallbackRunsOnLoopGoroutine(t *testing.T) {
	loop := NewLoop()
	logger, _ := quietLogger()
	r := NewRunner(loop, WithLogger(logger))

	// Presentation state is only touched from posted functions; the race
	// detector flags it if delivery happens anywhere else.
	var messages []string
	h := r.Schedule(context.Background(), "ui", func(tok *Token) walk.Result {
		return walk.Traverse(tree.New(tree.Header, "x"), tok)
	}, nil, func(res walk.Result) {
		messages = append(messages, res.Status.String())
		loop.Stop()
	})

	require.NoError(t, loop.Run(context.Background()))
	<-h.Done()
	assert.Equal(t, []string{"ok"}, messages)
}

func TestSchedule_StoppedLoopDropsCallback(t *testing.T) {
	loop := NewLoop()
	loop.Stop()
	logger, hook := quietLogger()
	r := NewRunner(loop, WithLogger(logger))

	var calls atomic.Int32
	h := r.Schedule(context.Background(), "late", func(tok *Token) walk.Result {
		return walk.Traverse(tree.New(tree.Other, ""), tok)
	}, func() { calls.Add(1) }, func(walk.Result) { calls.Add(1) })

	assert.Equal(t, Completed, waitDone(t, h))
	assert.Zero(t, calls.Load())

	var dropped bool
	for _, e := range hook.AllEntries() {
		if e.Message == "terminal callback dropped" {
			dropped = true
			assert.Equal(t, logrus.WarnLevel, e.Level)
		}
	}
	assert.True(t, dropped)
}

func TestSchedule_ManyTasksEachDeliverOnce(t *testing.T) {
	loop := NewLoop()
	startLoop(t, loop)
	logger, _ := quietLogger()
	r := NewRunner(loop, WithLogger(logger))

	const n = 20
	deliveries := make([]int, n)
	handles := make([]*Handle, n)
	for i := range n {
		handles[i] = r.Schedule(context.Background(), "many", func(tok *Token) walk.Result {
			if i%2 == 0 {
				tok.Cancel()
			}
			return walk.Traverse(tree.New(tree.Paragraph, ""), tok)
		}, func() {
			deliveries[i]++
		}, func(walk.Result) {
			deliveries[i]++
		})
	}
	for i, h := range handles {
		st := waitDone(t, h)
		if i%2 == 0 {
			assert.Equal(t, Cancelled, st)
		} else {
			assert.Equal(t, Completed, st)
		}
	}
	for i, d := range deliveries {
		assert.Equal(t, 1, d, "task %d", i)
	}
}

func TestHandle_WaitHonoursContext(t *testing.T) {
	loop := NewLoop()
	startLoop(t, loop)
	logger, _ := quietLogger()
	r := NewRunner(loop, WithLogger(logger))

	h := r.Schedule(context.Background(), "wait", blockUntilCancelled, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	st, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, st.Terminal())

	h.Cancel()
	assert.Equal(t, Cancelled, waitDone(t, h))
}
