package task

import (
	"context"
	"errors"
	"time"

	logx "noisebot/pkg/logx"
)

// Status codes returned by an invocation.
const (
	StatusOK      = 0
	StatusFailed  = 1
	StatusTimeout = 1
)

// DefaultTimeout bounds a single invocation when no timeout is configured.
const DefaultTimeout = 25 * time.Minute

var ErrMissingFunc = errors.New("task function must be defined")

// Func is the body of a task. It must report failure through Result.Status
// (and its logger) rather than panicking, and it should watch ctx: the
// context is cancelled when the invocation is abandoned.
type Func func(ctx context.Context, tc Context, sess Session) Result

// Session is a resource opened for one invocation (a browser, an HTTP
// client, a shell). The wrapper closes it once the invocation resolves,
// whichever way it resolves, so Close must tolerate being called while the
// task is still using it.
type Session interface {
	Close() error
}

// SessionFactory opens the session handed to one invocation.
type SessionFactory func(ctx context.Context) (Session, error)

// Context is the per-invocation state handed to a Func. It is a value: every
// invocation gets its own copy and nothing in it is shared between
// concurrent invocations of the same task.
type Context struct {
	ID         string
	Name       string
	Invocation uint64
	// Input is the unit of work picked for this invocation (a search query).
	Input          string
	MaxConcurrency int
	// Jitter bounds the random pauses a task takes, in seconds.
	Jitter   int
	Deadline time.Time
	Log      *logx.Logger
}

// Result is what an invocation produced. Counters replace the in-place
// mutation of shared options (pages visited, clicks made).
type Result struct {
	Status   int
	Counters map[string]int

	// TimedOut is set when the deadline won the race.
	TimedOut bool
	// Aborted is set when the caller's context ended first.
	Aborted  bool
	Duration time.Duration
}

func (r Result) OK() bool { return r.Status == StatusOK }

// Failed is a convenience for task bodies.
func Failed() Result { return Result{Status: StatusFailed} }

// Event is the payload of task.begin / task.complete bus events.
type Event struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Invocation uint64        `json:"invocation"`
	Input      string        `json:"input"`
	Status     int           `json:"status"`
	TimedOut   bool          `json:"timed_out,omitempty"`
	Duration   time.Duration `json:"duration"`
}
