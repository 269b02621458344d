package scheduler

import (
	"context"
	"time"

	"noisebot/internal/task/engine"
)

// DefaultJitter is the upper bound, in minutes, of the random delay between
// batches.
const DefaultJitter = 30

// Config controls the periodic driver.
type Config struct {
	// Jitter is the maximum random delay in minutes added after each batch.
	// Values below 1 mean a fixed one minute.
	Jitter int
	// Schedule is an optional base schedule (see ParseSchedule).
	Schedule string
	Timezone string // IANA TZ, e.g. "Europe/Berlin"
}

// Runner runs one batch. *engine.Runner implements it.
type Runner interface {
	Run(ctx context.Context, tasks []engine.Invoker, inputs []string) (engine.Report, error)
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Jitter   int
	Schedule string
	Timezone string
	Batches  uint64
	Prev     time.Time
	Next     time.Time
}
