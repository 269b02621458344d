package engine

import (
	"context"
	"strings"
	"time"

	"noisebot/internal/task"
)

// Mode selects how the runner refills concurrency slots.
type Mode string

const (
	// ModeBatch starts up to MaxConcurrency tasks, waits for all of them,
	// then starts the next group.
	ModeBatch Mode = "batch"
	// ModeSliding starts the next task as soon as any slot frees up.
	ModeSliding Mode = "sliding"
)

func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ModeSliding), "pool":
		return ModeSliding
	default:
		return ModeBatch
	}
}

// Config controls the batch runner.
type Config struct {
	// MaxConcurrency caps in-flight invocations. Values below 1 mean 1.
	MaxConcurrency int
	Mode           Mode
	// StartRate paces task starts, in starts per second. 0 disables pacing.
	StartRate float64
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 1
	}
	if c.Mode != ModeSliding {
		c.Mode = ModeBatch
	}
	if c.StartRate < 0 {
		c.StartRate = 0
	}
	return c
}

// Invoker is what the runner schedules. *task.Task implements it.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, input string) task.Result
}

// Outcome is the result of one invocation within a run.
type Outcome struct {
	Task     string        `json:"task"`
	Input    string        `json:"input"`
	Status   int           `json:"status"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
	// Order is the position the task was started in.
	Order int `json:"order"`
}

// Report summarises one Run. Outcomes are listed in the order they were
// logged: start order for batch mode, completion order for sliding mode.
type Report struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Groups   int           `json:"groups"`
	Peak     int           `json:"peak"`
	Outcomes []Outcome     `json:"outcomes"`
}

// Failed counts outcomes with a non-zero status.
func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status != task.StatusOK {
			n++
		}
	}
	return n
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	MaxConcurrency int
	Mode           Mode
	InFlight       int
	Peak           int
	Runs           uint64
	Last           *Report
}
