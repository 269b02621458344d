package task

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"

	"noisebot/internal/eventbus"
	logx "noisebot/pkg/logx"
)

// Task wraps a Func with an identity, a logger and a hard deadline.
// Invocations of the same Task may run concurrently.
type Task struct {
	id      string
	name    string
	fn      Func
	timeout time.Duration
	session SessionFactory
	log     *logx.Logger
	bus     eventbus.Bus

	jitter         int
	maxConcurrency int

	invocations atomic.Uint64
}

type Option func(*Task)

func WithID(id string) Option { return func(t *Task) { t.id = strings.TrimSpace(id) } }

// WithTimeout sets the hard deadline of every invocation. Non-positive
// values keep DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Task) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func WithSession(f SessionFactory) Option { return func(t *Task) { t.session = f } }
func WithLogger(l *logx.Logger) Option    { return func(t *Task) { t.log = l } }
func WithBus(b eventbus.Bus) Option       { return func(t *Task) { t.bus = b } }
func WithJitter(seconds int) Option       { return func(t *Task) { t.jitter = seconds } }
func WithMaxConcurrency(n int) Option     { return func(t *Task) { t.maxConcurrency = n } }

// New registers fn under name.
func New(name string, fn Func, opts ...Option) (*Task, error) {
	if fn == nil {
		return nil, fmt.Errorf("task %q: %w", name, ErrMissingFunc)
	}
	t := &Task{
		name:    strings.TrimSpace(name),
		fn:      fn,
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(t)
	}
	if t.id == "" {
		t.id = newID()
	}
	if t.bus == nil {
		t.bus = eventbus.Nop()
	}
	if t.log == nil {
		t.log = logx.Nop()
	}
	t.log.Debugf("Task '%s' registered (id=%s timeout=%s jitter=%ds)", t.name, t.id, t.timeout, t.jitter)
	return t, nil
}

// newID follows the reference system's time-based ids.
func newID() string {
	if id, err := uuid.NewUUID(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func (t *Task) Name() string           { return t.name }
func (t *Task) ID() string             { return t.id }
func (t *Task) Timeout() time.Duration { return t.timeout }
func (t *Task) Logger() *logx.Logger   { return t.log }

// Invoke runs one invocation with input as its unit of work.
//
// The function races a timer of the task's timeout. If the timer (or the
// caller's ctx) wins, the session is closed, the function's context is
// cancelled and whatever it returns later is dropped; side effects it
// already had stand. Invoke always returns exactly one status and never
// panics.
func (t *Task) Invoke(ctx context.Context, input string) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	n := t.invocations.Add(1)
	start := time.Now()
	ev := Event{ID: t.id, Name: t.name, Invocation: n, Input: input}
	t.bus.Publish(eventbus.Event{Type: eventbus.TaskBegin, Time: start, Data: ev})

	res := t.race(ctx, n, input, start)
	res.Duration = time.Since(start)

	ev.Status = res.Status
	ev.TimedOut = res.TimedOut
	ev.Duration = res.Duration
	t.bus.Publish(eventbus.Event{Type: eventbus.TaskComplete, Data: ev})
	return res
}

func (t *Task) race(ctx context.Context, n uint64, input string, start time.Time) Result {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sess Session
	if t.session != nil {
		s, err := t.session(runCtx)
		if err != nil {
			t.log.Errorf("Session for '%s' failed to open: %v", t.name, err)
			return Failed()
		}
		sess = s
	}
	release := sync.OnceFunc(func() {
		if sess == nil {
			return
		}
		if err := sess.Close(); err != nil {
			t.log.Debugf("Session close for '%s': %v", t.name, err)
		}
	})
	defer release()

	tc := Context{
		ID:             t.id,
		Name:           t.name,
		Invocation:     n,
		Input:          input,
		MaxConcurrency: t.maxConcurrency,
		Jitter:         t.jitter,
		Deadline:       start.Add(t.timeout),
		Log:            t.log,
	}

	// Buffered so an abandoned invocation can still finish and exit.
	done := make(chan Result, 1)
	go func() { done <- t.call(runCtx, tc, sess) }()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res
	case <-timer.C:
		t.log.Warnf("'%s' timed out after %s, abandoning it.", t.name, t.timeout)
		release()
		cancel()
		return Result{Status: StatusTimeout, TimedOut: true}
	case <-ctx.Done():
		t.log.Warnf("'%s' aborted: %v", t.name, ctx.Err())
		release()
		cancel()
		return Result{Status: StatusFailed, Aborted: true}
	}
}

func (t *Task) call(ctx context.Context, tc Context, sess Session) Result {
	var (
		pc  panics.Catcher
		res Result
	)
	pc.Try(func() { res = t.fn(ctx, tc, sess) })
	if r := pc.Recovered(); r != nil {
		t.log.Errorf("'%s' panicked: %v", t.name, r.Value)
		t.log.Debug(string(r.Stack))
		return Failed()
	}
	return res
}
