package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/time/rate"

	"noisebot/internal/task"
)

// runBatch starts tasks in registration order until the group is full, then
// waits for the whole group before starting the next one. A slow task holds
// back the next group even when the other slots are idle.
func (r *Runner) runBatch(ctx context.Context, cfg Config, lim *rate.Limiter, tasks []Invoker, inputs []string, rep *Report) {
	finished := 0
	for first := 0; first < len(tasks); first += cfg.MaxConcurrency {
		group := tasks[first:min(first+cfg.MaxConcurrency, len(tasks))]
		outs := make([]Outcome, len(group))

		var wg conc.WaitGroup
		started := 0
		for i, t := range group {
			if !r.pace(ctx, lim) {
				break
			}
			input := r.pick(inputs)
			order := first + i
			r.log.Debugf("Adding task '%s' to queue.", t.Name())
			r.enter()
			wg.Go(func() {
				defer r.leave()
				outs[i] = r.invoke(ctx, t, input, order)
			})
			started++
		}

		r.log.Debugf("Awaiting %d tasks.", started)
		wg.Wait()
		for _, o := range outs[:started] {
			r.log.Debugf("'%s' returned %d", o.Task, o.Status)
			rep.Outcomes = append(rep.Outcomes, o)
		}
		if started > 0 {
			rep.Groups++
		}
		finished += started
		r.log.Debugf("Finished %d tasks.", finished)

		if started < len(group) {
			return
		}
	}
}

// runSliding refills a slot as soon as any invocation finishes. Outcomes are
// recorded in completion order.
func (r *Runner) runSliding(ctx context.Context, cfg Config, lim *rate.Limiter, tasks []Invoker, inputs []string, rep *Report) {
	slots := newSlotSemaphore(cfg.MaxConcurrency)
	var (
		mu sync.Mutex
		wg conc.WaitGroup
	)
	for i, t := range tasks {
		if !slots.acquire(ctx) {
			break
		}
		if !r.pace(ctx, lim) {
			slots.release()
			break
		}
		input := r.pick(inputs)
		r.log.Debugf("Adding task '%s' to pool (%d/%d slots busy).", t.Name(), slots.inUse(), cfg.MaxConcurrency)
		r.enter()
		wg.Go(func() {
			defer slots.release()
			defer r.leave()
			o := r.invoke(ctx, t, input, i)
			mu.Lock()
			r.log.Debugf("'%s' returned %d", o.Task, o.Status)
			rep.Outcomes = append(rep.Outcomes, o)
			mu.Unlock()
		})
	}
	wg.Wait()
	if len(rep.Outcomes) > 0 {
		rep.Groups = 1
	}
}

// invoke runs one task and turns anything it throws into status 1.
func (r *Runner) invoke(ctx context.Context, t Invoker, input string, order int) Outcome {
	start := time.Now()
	o := Outcome{Task: t.Name(), Input: input, Order: order, Status: task.StatusFailed}

	var pc panics.Catcher
	pc.Try(func() {
		res := t.Invoke(ctx, input)
		o.Status = res.Status
		o.TimedOut = res.TimedOut
	})
	if rec := pc.Recovered(); rec != nil {
		r.log.Errorf("'%s' panicked: %v", o.Task, rec.Value)
		r.log.Debug(string(rec.Stack))
		o.Status = task.StatusFailed
	}
	o.Duration = time.Since(start)
	return o
}
