// Package ratelimit implements the sliding-window discard limiter that
// gates the poller's fetch cycles.
package ratelimit

import (
	"sync"
	"time"
)

// Window is the rolling period over which cycle outcomes are remembered
const Window = 10 * time.Minute

type entry struct {
	at        time.Time
	discarded bool
}

// DiscardLimiter keeps a short memory of fetch-cycle outcomes and tells
// the poller to skip a burst when recent throughput exceeds the
// configured threshold. A zero threshold always admits.
type DiscardLimiter struct {
	mu        sync.Mutex
	threshold float64 // admitted messages per minute
	entries   []entry
	now       func() time.Time
}

// New creates a limiter with the given messages-per-minute threshold
func New(threshold float64) *DiscardLimiter {
	return &DiscardLimiter{
		threshold: threshold,
		now:       time.Now,
	}
}

// Admit records the outcome of the cycle about to run and reports
// whether it may proceed. A rejected cycle is recorded as discarded;
// processing is deferred, not dropped.
func (l *DiscardLimiter) Admit() bool {
	if l.threshold <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune()

	admit := l.rate() < l.threshold

	l.entries = append(l.entries, entry{
		at:        l.now(),
		discarded: !admit,
	})

	return admit
}

// Rate returns the admitted messages-per-minute over the current window
func (l *DiscardLimiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune()
	return l.rate()
}

func (l *DiscardLimiter) rate() float64 {
	admitted := 0
	for _, e := range l.entries {
		if !e.discarded {
			admitted++
		}
	}
	return float64(admitted) / Window.Minutes()
}

// prune drops entries older than the window. Memory never exceeds the
// 10-minute horizon.
func (l *DiscardLimiter) prune() {
	cutoff := l.now().Add(-Window)
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	l.entries = kept
}
