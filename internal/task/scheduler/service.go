package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"noisebot/internal/task/engine"
	logx "noisebot/pkg/logx"
)

const nextRunLayout = "2006-01-02 15:04:05 MST"

// Driver runs batches back to back, separated by a jittered delay. Batches
// never overlap.
type Driver struct {
	mu     sync.Mutex
	cfg    Config
	parsed ParsedSpec
	sched  cron.Schedule
	loc    *time.Location

	runner Runner
	log    *logx.Logger
	out    io.Writer
	rng    *rand.Rand

	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	afterBatch func(engine.Report, time.Time)

	batches uint64
	prev    time.Time
	next    time.Time
}

type Option func(*Driver)

// WithClock replaces the wall clock and the sleep used between batches.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

func WithRand(rng *rand.Rand) Option { return func(d *Driver) { d.rng = rng } }

// WithOutput sets where the separator line between batches is printed.
func WithOutput(w io.Writer) Option { return func(d *Driver) { d.out = w } }

// WithAfterBatch registers a hook called after every batch with its report
// and the time of the next run.
func WithAfterBatch(fn func(rep engine.Report, next time.Time)) Option {
	return func(d *Driver) { d.afterBatch = fn }
}

func New(cfg Config, runner Runner, log *logx.Logger, opts ...Option) (*Driver, error) {
	if runner == nil {
		return nil, errors.New("scheduler: runner is nil")
	}
	if log == nil {
		log = logx.Nop()
	}
	d := &Driver{
		runner: runner,
		log:    log,
		out:    logx.Stdout(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, o := range opts {
		o(d)
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if err := d.Apply(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

// Apply swaps jitter, base schedule and timezone. It takes effect when the
// next run time is computed, i.e. after the current batch.
func (d *Driver) Apply(cfg Config) error {
	p, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	base, err := p.Schedule()
	if err != nil {
		return err
	}
	loc := loadLocation(cfg.Timezone, d.log)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.parsed = p
	d.loc = loc
	d.sched = newJitterSchedule(base, cfg.Jitter, d.rng)
	return nil
}

// Run executes a batch immediately and, if loop is set, keeps executing one
// whenever the next run time is reached. It returns nil when ctx ends; the
// batch in progress resolves through the tasks' abort path first.
func (d *Driver) Run(ctx context.Context, tasks []engine.Invoker, inputs []string, loop bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	next := d.now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !d.now().Before(next) {
			rep, err := d.runner.Run(ctx, tasks, inputs)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			d.log.Info("All tasks finished.")
			next = d.advance()
			if loop {
				d.log.Infof("Next run @ %s", next.Format(nextRunLayout))
			}
			fmt.Fprintln(d.out)
			if d.afterBatch != nil {
				d.afterBatch(rep, next)
			}
			if !loop {
				return nil
			}
		}
		if err := d.sleep(ctx, next.Sub(d.now())); err != nil {
			return nil
		}
	}
}

// advance records a finished batch and computes the next run time.
func (d *Driver) advance() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now().In(d.loc)
	d.batches++
	d.prev = now
	d.next = d.sched.Next(now)
	return d.next
}

func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	tz := strings.TrimSpace(d.cfg.Timezone)
	if tz == "" && d.loc != nil {
		tz = d.loc.String()
	}
	return Snapshot{
		Jitter:   d.cfg.Jitter,
		Schedule: d.parsed.String(),
		Timezone: tz,
		Batches:  d.batches,
		Prev:     d.prev,
		Next:     d.next,
	}
}

func loadLocation(tz string, log *logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warnf("Invalid timezone %q, falling back to local time: %v", tz, err)
		return time.Local
	}
	return loc
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
