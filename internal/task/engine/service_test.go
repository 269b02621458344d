package engine

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noisebot/internal/eventbus"
	"noisebot/internal/task"
	logx "noisebot/pkg/logx"
)

// fakeTask is an Invoker that records concurrency and returns a fixed status
// after a delay.
type fakeTask struct {
	name   string
	status int
	delay  time.Duration
	panics bool

	gauge *gauge
	calls atomic.Int32
	mu    sync.Mutex
	seen  []string
	start time.Time
}

type gauge struct {
	cur, max atomic.Int32
}

func (g *gauge) in() {
	n := g.cur.Add(1)
	for {
		m := g.max.Load()
		if n <= m || g.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (g *gauge) out() { g.cur.Add(-1) }

func (p *fakeTask) Name() string { return p.name }

func (p *fakeTask) Invoke(ctx context.Context, input string) task.Result {
	p.calls.Add(1)
	p.mu.Lock()
	p.seen = append(p.seen, input)
	p.start = time.Now()
	p.mu.Unlock()
	if p.gauge != nil {
		p.gauge.in()
		defer p.gauge.out()
	}
	if p.panics {
		panic("boom")
	}
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return task.Result{Status: task.StatusFailed, Aborted: true}
	}
	return task.Result{Status: p.status}
}

func (p *fakeTask) startedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.start
}

func invokers(ps ...*fakeTask) []Invoker {
	out := make([]Invoker, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

func TestRunRejectsEmptyInputs(t *testing.T) {
	t.Parallel()
	r := New(Config{MaxConcurrency: 2}, nil, nil)
	p := &fakeTask{name: "google"}

	_, err := r.Run(context.Background(), invokers(p), nil)
	require.ErrorIs(t, err, ErrEmptyInputSet)
	assert.Zero(t, p.calls.Load())
}

func TestRunNoTasksReturnsImmediately(t *testing.T) {
	t.Parallel()
	r := New(Config{MaxConcurrency: 2}, nil, nil)
	rep, err := r.Run(context.Background(), nil, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, rep.Outcomes)
	assert.Zero(t, rep.Groups)
}

// Three tasks, two slots: A and B start together, C only after both finish.
func TestRunBatchWaitsForWholeGroup(t *testing.T) {
	t.Parallel()
	a := &fakeTask{name: "A", status: 0, delay: 10 * time.Millisecond}
	b := &fakeTask{name: "B", status: 1, delay: 80 * time.Millisecond}
	c := &fakeTask{name: "C", status: 0, delay: 10 * time.Millisecond}

	var mu sync.Mutex
	var lines []string
	l := logx.New("APP", logx.Options{MinConsoleLevel: logx.LevelSilly, MinFileLevel: logx.LevelSilly})
	l.On(func(rec logx.Record) {
		mu.Lock()
		lines = append(lines, rec.Message)
		mu.Unlock()
	})

	r := New(Config{MaxConcurrency: 2}, l, nil)
	rep, err := r.Run(context.Background(), invokers(a, b, c), []string{"q"})
	require.NoError(t, err)

	require.Len(t, rep.Outcomes, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{rep.Outcomes[0].Task, rep.Outcomes[1].Task, rep.Outcomes[2].Task})
	assert.Equal(t, []int{0, 1, 0}, []int{rep.Outcomes[0].Status, rep.Outcomes[1].Status, rep.Outcomes[2].Status})
	assert.Equal(t, 2, rep.Groups)
	assert.Equal(t, 1, rep.Failed())
	assert.False(t, c.startedAt().Before(b.startedAt().Add(80*time.Millisecond)), "C must wait for B")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, lines, "'A' returned 0")
	assert.Contains(t, lines, "'B' returned 1")
	assert.Contains(t, lines, "'C' returned 0")
}

func TestRunNeverExceedsMaxConcurrency(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		mode  Mode
		max   int
		tasks int
	}{
		{"batch one slot", ModeBatch, 1, 5},
		{"batch partial last group", ModeBatch, 3, 7},
		{"batch all at once", ModeBatch, 10, 4},
		{"sliding", ModeSliding, 3, 9},
		{"sliding one slot", ModeSliding, 1, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := &gauge{}
			ps := make([]*fakeTask, tc.tasks)
			for i := range ps {
				ps[i] = &fakeTask{name: string(rune('a' + i)), delay: time.Duration(5+i%3*5) * time.Millisecond, gauge: g}
			}
			r := New(Config{MaxConcurrency: tc.max, Mode: tc.mode}, nil, nil)
			rep, err := r.Run(context.Background(), invokers(ps...), []string{"x", "y"})
			require.NoError(t, err)

			assert.Len(t, rep.Outcomes, tc.tasks)
			assert.LessOrEqual(t, int(g.max.Load()), tc.max)
			assert.LessOrEqual(t, rep.Peak, tc.max)
			assert.Equal(t, min(tc.max, tc.tasks), rep.Peak)
			for _, p := range ps {
				assert.EqualValues(t, 1, p.calls.Load(), "every task runs exactly once")
			}
			assert.Zero(t, r.Snapshot().InFlight)
		})
	}
}

// Running twice with all-zero tasks leaves no state behind.
func TestRunIsRepeatable(t *testing.T) {
	t.Parallel()
	ps := []*fakeTask{{name: "a"}, {name: "b"}, {name: "c"}}
	r := New(Config{MaxConcurrency: 2}, nil, nil)
	for range 2 {
		rep, err := r.Run(context.Background(), invokers(ps...), []string{"q"})
		require.NoError(t, err)
		assert.Zero(t, rep.Failed())
	}
	snap := r.Snapshot()
	assert.EqualValues(t, 2, snap.Runs)
	require.NotNil(t, snap.Last)
	assert.Len(t, snap.Last.Outcomes, 3)
	for _, p := range ps {
		assert.EqualValues(t, 2, p.calls.Load())
	}
}

// In sliding mode a fast task frees its slot for the next one without
// waiting for the slow one.
func TestRunSlidingRefillsSlots(t *testing.T) {
	t.Parallel()
	slow := &fakeTask{name: "slow", delay: 150 * time.Millisecond}
	fast := &fakeTask{name: "fast", delay: 5 * time.Millisecond}
	next := &fakeTask{name: "next", delay: 5 * time.Millisecond}

	r := New(Config{MaxConcurrency: 2, Mode: ModeSliding}, nil, nil)
	rep, err := r.Run(context.Background(), invokers(slow, fast, next), []string{"q"})
	require.NoError(t, err)

	assert.True(t, next.startedAt().Before(slow.startedAt().Add(150*time.Millisecond)))
	require.Len(t, rep.Outcomes, 3)
	assert.Equal(t, "slow", rep.Outcomes[2].Task, "completion order")
}

func TestRunPicksInputsFromSet(t *testing.T) {
	t.Parallel()
	inputs := []string{"weather", "news", "recipes"}
	ps := make([]*fakeTask, 20)
	for i := range ps {
		ps[i] = &fakeTask{name: "t"}
	}
	r := New(Config{MaxConcurrency: 4}, nil, nil, WithRand(rand.New(rand.NewSource(1))))
	_, err := r.Run(context.Background(), invokers(ps...), inputs)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, p := range ps {
		require.Len(t, p.seen, 1)
		assert.Contains(t, inputs, p.seen[0])
		seen[p.seen[0]] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestRunRecoversInvokerPanic(t *testing.T) {
	t.Parallel()
	bad := &fakeTask{name: "bad", panics: true}
	good := &fakeTask{name: "good"}
	r := New(Config{MaxConcurrency: 2}, nil, nil)

	var rep Report
	var err error
	require.NotPanics(t, func() {
		rep, err = r.Run(context.Background(), invokers(bad, good), []string{"q"})
	})
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, rep.Outcomes[0].Status)
	assert.Equal(t, task.StatusOK, rep.Outcomes[1].Status)
}

func TestRunStopsStartingOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	first := &fakeTask{name: "first", delay: time.Second}
	second := &fakeTask{name: "second"}
	r := New(Config{MaxConcurrency: 1}, nil, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	rep, err := r.Run(ctx, invokers(first, second), []string{"q"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, rep.Outcomes, 1)
	assert.Zero(t, second.calls.Load())
}

func TestRunPublishesBatchFinished(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	r := New(Config{MaxConcurrency: 1}, nil, bus)
	_, err := r.Run(context.Background(), invokers(&fakeTask{name: "a"}), []string{"q"})
	require.NoError(t, err)

	select {
	case e := <-ch:
		assert.Equal(t, eventbus.BatchFinished, e.Type)
		rep, ok := e.Data.(Report)
		require.True(t, ok)
		assert.Len(t, rep.Outcomes, 1)
	case <-time.After(time.Second):
		t.Fatal("no batch.finished event")
	}
}

func TestRunStartRatePacesStarts(t *testing.T) {
	t.Parallel()
	ps := []*fakeTask{{name: "a"}, {name: "b"}, {name: "c"}}
	r := New(Config{MaxConcurrency: 3, StartRate: 20}, nil, nil)
	start := time.Now()
	_, err := r.Run(context.Background(), invokers(ps...), []string{"q"})
	require.NoError(t, err)
	// Burst of one, then 50ms per start.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRunRealTasks(t *testing.T) {
	t.Parallel()
	mk := func(name string, status int) Invoker {
		tk, err := task.New(name, func(context.Context, task.Context, task.Session) task.Result {
			return task.Result{Status: status}
		})
		require.NoError(t, err)
		return tk
	}
	r := New(Config{MaxConcurrency: 2}, nil, nil)
	rep, err := r.Run(context.Background(), []Invoker{mk("a", 0), mk("b", 3)}, []string{"q"})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Outcomes[1].Status)
}

func TestParseModeAndDefaults(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ModeSliding, ParseMode(" Sliding "))
	assert.Equal(t, ModeSliding, ParseMode("pool"))
	assert.Equal(t, ModeBatch, ParseMode(""))
	assert.Equal(t, ModeBatch, ParseMode("whatever"))

	cfg := Config{MaxConcurrency: 0, Mode: "x", StartRate: -1}.withDefaults()
	assert.Equal(t, Config{MaxConcurrency: 1, Mode: ModeBatch}, cfg)
}
