package scheduler

import (
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// jitterSchedule delays a base schedule by a random whole number of minutes
// in [1, maxMinutes].
type jitterSchedule struct {
	base       cron.Schedule
	maxMinutes int

	mu  sync.Mutex
	rng *rand.Rand
}

func newJitterSchedule(base cron.Schedule, maxMinutes int, rng *rand.Rand) *jitterSchedule {
	if base == nil {
		base = immediate{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &jitterSchedule{base: base, maxMinutes: maxMinutes, rng: rng}
}

func (s *jitterSchedule) Next(t time.Time) time.Time {
	return s.base.Next(t).Add(s.delay())
}

func (s *jitterSchedule) delay() time.Duration {
	n := 1
	if s.maxMinutes > 1 {
		s.mu.Lock()
		n += s.rng.Intn(s.maxMinutes)
		s.mu.Unlock()
	}
	return time.Duration(n) * time.Minute
}
