// Package ratelimit implements a sliding-window rate limiter for outbound
// notifications. The window moves continuously, so there are no boundary
// bursts the way fixed-bucket limiters allow.
package ratelimit

import (
	"sync"
	"time"

	"errmon/internal/timeutil"
)

// Stats is a read-only snapshot of limiter state.
type Stats struct {
	Used   int
	Max    int
	Window time.Duration
}

// Limiter bounds accepted sends to Max per Window. Timestamps are recorded
// in chronological order, so pruning pops expired entries from the front in
// amortized O(1).
type Limiter struct {
	max    int
	window time.Duration
	clock  timeutil.Clock

	mu         sync.Mutex
	timestamps []time.Time
}

// New creates a Limiter allowing max accepted sends per window.
func New(max int, window time.Duration, clock timeutil.Clock) *Limiter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Limiter{
		max:    max,
		window: window,
		clock:  clock,
	}
}

// TryAcquire records a send and returns true if the window has capacity.
// A rejected attempt records nothing.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)
	if len(l.timestamps) >= l.max {
		return false
	}
	l.timestamps = append(l.timestamps, now)
	return true
}

// ForceAcquire unconditionally records a send. Used for CRITICAL bypass:
// the send always goes out, but still counts against future windows.
func (l *Limiter) ForceAcquire() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)
	l.timestamps = append(l.timestamps, now)
}

// CanSend reports whether a TryAcquire would currently succeed, without
// recording anything.
func (l *Limiter) CanSend() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.clock.Now())
	return len(l.timestamps) < l.max
}

// TimeUntilNextSlot returns how long until capacity frees up, or zero when
// a send would be accepted now.
func (l *Limiter) TimeUntilNextSlot() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)
	if len(l.timestamps) < l.max {
		return 0
	}
	return l.timestamps[0].Add(l.window).Sub(now)
}

// Stats returns current limiter usage.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.clock.Now())
	return Stats{
		Used:   len(l.timestamps),
		Max:    l.max,
		Window: l.window,
	}
}

// prune drops timestamps older than the window. Callers must hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = l.timestamps[i:]
	}
}
