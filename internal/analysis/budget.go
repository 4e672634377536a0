package analysis

import (
	"context"
	"sync"
	"time"
)

// CallBudget caps outbound vision calls per minute and per day. Wait
// blocks the caller until a slot is free; the mailbox loop is decoupled
// from analysis, so blocking here never stalls fetching.
type CallBudget struct {
	mu        sync.Mutex
	perMinute int
	perDay    int
	marks     []time.Time
	now       func() time.Time
}

// NewCallBudget creates a budget. Non-positive limits are unlimited.
func NewCallBudget(perMinute, perDay int) *CallBudget {
	return &CallBudget{
		perMinute: perMinute,
		perDay:    perDay,
		now:       time.Now,
	}
}

// Wait blocks until a call may proceed and records it
func (b *CallBudget) Wait(ctx context.Context) error {
	for {
		ok, retry := b.tryAcquire()
		if ok {
			return nil
		}

		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// tryAcquire records the call when under both limits, otherwise
// returns how long to wait before the next attempt.
func (b *CallBudget) tryAcquire() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	dayAgo := now.Add(-24 * time.Hour)
	minuteAgo := now.Add(-time.Minute)

	kept := b.marks[:0]
	inMinute := 0
	for _, m := range b.marks {
		if m.After(dayAgo) {
			kept = append(kept, m)
			if m.After(minuteAgo) {
				inMinute++
			}
		}
	}
	b.marks = kept

	if b.perDay > 0 && len(b.marks) >= b.perDay {
		return false, b.marks[0].Sub(dayAgo)
	}
	if b.perMinute > 0 && inMinute >= b.perMinute {
		// Oldest mark inside the minute window decides the wait
		for _, m := range b.marks {
			if m.After(minuteAgo) {
				return false, m.Sub(minuteAgo)
			}
		}
	}

	b.marks = append(b.marks, now)
	return true, 0
}
