package engine

import "context"

// slotSemaphore is a channel-based semaphore. Tokens are pre-filled up to
// limit; the limit is fixed for the life of the semaphore.
type slotSemaphore struct {
	limit int
	ch    chan struct{}
}

func newSlotSemaphore(limit int) *slotSemaphore {
	if limit <= 0 {
		limit = 1
	}
	s := &slotSemaphore{limit: limit, ch: make(chan struct{}, limit)}
	for i := 0; i < limit; i++ {
		s.ch <- struct{}{}
	}
	return s
}

// acquire blocks until a slot is free or ctx ends.
func (s *slotSemaphore) acquire(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case <-s.ch:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *slotSemaphore) tryAcquire() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

func (s *slotSemaphore) release() {
	// Never block on release.
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// inUse reports how many slots are currently taken.
func (s *slotSemaphore) inUse() int { return s.limit - len(s.ch) }
