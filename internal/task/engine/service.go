package engine

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"noisebot/internal/eventbus"
	logx "noisebot/pkg/logx"
)

// Runner runs every registered task once per Run, with at most
// MaxConcurrency invocations in flight. One Run at a time.
type Runner struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	last    *Report

	log *logx.Logger
	bus eventbus.Bus

	rngMu sync.Mutex
	rng   *rand.Rand

	running  atomic.Bool
	inFlight atomic.Int32
	peak     atomic.Int32
	runPeak  atomic.Int32
	runs     atomic.Uint64
}

type Option func(*Runner)

// WithRand replaces the source used to pick inputs.
func WithRand(rng *rand.Rand) Option {
	return func(r *Runner) {
		if rng != nil {
			r.rng = rng
		}
	}
}

func New(cfg Config, log *logx.Logger, bus eventbus.Bus, opts ...Option) *Runner {
	if log == nil {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	r := &Runner{
		log: log,
		bus: bus,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(r)
	}
	r.Apply(cfg)
	return r
}

// Apply replaces the configuration. A Run already in progress keeps the
// configuration it started with.
func (r *Runner) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	var lim *rate.Limiter
	if cfg.StartRate > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.StartRate), 1)
	}
	r.mu.Lock()
	r.cfg = cfg
	r.limiter = lim
	r.mu.Unlock()
}

func (r *Runner) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Run invokes every task once, each with an input picked uniformly at random.
//
// Run returns ErrEmptyInputSet before starting anything when inputs is empty.
// Task failures are statuses in the report, never errors. If ctx ends, no
// further tasks are started; running ones resolve through their own abort
// path and the report is returned along with ctx.Err().
func (r *Runner) Run(ctx context.Context, tasks []Invoker, inputs []string) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(inputs) == 0 {
		return Report{}, ErrEmptyInputSet
	}
	if !r.running.CompareAndSwap(false, true) {
		return Report{}, ErrBusy
	}
	defer r.running.Store(false)

	r.mu.Lock()
	cfg, lim := r.cfg, r.limiter
	r.mu.Unlock()

	rep := Report{Started: time.Now()}
	if len(tasks) == 0 {
		return rep, nil
	}
	r.runPeak.Store(0)

	switch cfg.Mode {
	case ModeSliding:
		r.runSliding(ctx, cfg, lim, tasks, inputs, &rep)
	default:
		r.runBatch(ctx, cfg, lim, tasks, inputs, &rep)
	}

	rep.Duration = time.Since(rep.Started)
	rep.Peak = int(r.runPeak.Load())
	r.runs.Add(1)

	last := rep
	last.Outcomes = append([]Outcome(nil), rep.Outcomes...)
	r.mu.Lock()
	r.last = &last
	r.mu.Unlock()

	r.bus.Publish(eventbus.Event{Type: eventbus.BatchFinished, Data: last})
	return rep, ctx.Err()
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	cfg := r.cfg
	var last *Report
	if r.last != nil {
		cp := *r.last
		cp.Outcomes = append([]Outcome(nil), r.last.Outcomes...)
		last = &cp
	}
	r.mu.Unlock()

	return Snapshot{
		MaxConcurrency: cfg.MaxConcurrency,
		Mode:           cfg.Mode,
		InFlight:       int(r.inFlight.Load()),
		Peak:           int(r.peak.Load()),
		Runs:           r.runs.Load(),
		Last:           last,
	}
}

func (r *Runner) pick(inputs []string) string {
	r.rngMu.Lock()
	i := r.rng.Intn(len(inputs))
	r.rngMu.Unlock()
	return inputs[i]
}

// pace waits for the start limiter, if any.
func (r *Runner) pace(ctx context.Context, lim *rate.Limiter) bool {
	if ctx.Err() != nil {
		return false
	}
	if lim == nil {
		return true
	}
	return lim.Wait(ctx) == nil
}

func (r *Runner) enter() {
	n := r.inFlight.Add(1)
	raise(&r.peak, n)
	raise(&r.runPeak, n)
}

func (r *Runner) leave() { r.inFlight.Add(-1) }

func raise(p *atomic.Int32, n int32) {
	for {
		cur := p.Load()
		if n <= cur || p.CompareAndSwap(cur, n) {
			return
		}
	}
}
