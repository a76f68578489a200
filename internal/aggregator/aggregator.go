// Package aggregator groups repeated occurrences of the same error
// fingerprint into buckets, so a burst of identical failures produces one
// outbound notification carrying an occurrence count instead of a flood.
package aggregator

import (
	"log/slog"
	"sync"
	"time"

	"errmon/internal/events"
	"errmon/internal/timeutil"
)

// Bucket is the mutable aggregate of every occurrence sharing a fingerprint.
// It is owned by the Aggregator until flushed, then handed to the flush
// callback as a copy.
type Bucket struct {
	Fingerprint       string
	Category          events.Category
	Severity          events.Severity
	RepresentativeErr events.NormalizedError
	Count             int
	FirstOccurrence   time.Time
	LastOccurrence    time.Time
	SampleMetadata    []map[string]any
	NotificationSent  bool
	LastNotifiedAt    time.Time
}

// FlushFunc receives a bucket when its aggregation window elapses.
type FlushFunc func(Bucket)

type entry struct {
	bucket Bucket
	timer  timeutil.Timer
}

// Aggregator buckets normalized errors by fingerprint and schedules a
// delayed flush per new bucket. Safe for concurrent use.
type Aggregator struct {
	window     time.Duration
	maxSamples int
	onFlush    FlushFunc
	clock      timeutil.Clock

	mu      sync.Mutex
	buckets map[string]*entry
	closed  bool
}

// New creates an Aggregator. onFlush is invoked (without the internal lock
// held) when a bucket's aggregation window elapses.
func New(window time.Duration, maxSamples int, onFlush FlushFunc, clock timeutil.Clock) *Aggregator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Aggregator{
		window:     window,
		maxSamples: maxSamples,
		onFlush:    onFlush,
		clock:      clock,
		buckets:    make(map[string]*entry),
	}
}

// Add merges an error into its fingerprint bucket. Returns true when this
// occurrence created a new bucket. New non-CRITICAL buckets get a delayed
// flush scheduled after the aggregation window; CRITICAL buckets are left
// for the caller to flush immediately. Buckets that were already notified
// keep accumulating count and last-occurrence so follow-up reporting can
// detect errors that continued after notification.
func (a *Aggregator) Add(err events.NormalizedError) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false
	}

	if e, ok := a.buckets[err.Fingerprint]; ok {
		e.bucket.Count++
		e.bucket.LastOccurrence = err.Timestamp
		if len(e.bucket.SampleMetadata) < a.maxSamples && len(err.Metadata) > 0 {
			e.bucket.SampleMetadata = append(e.bucket.SampleMetadata, err.Metadata)
		}
		return false
	}

	e := &entry{
		bucket: Bucket{
			Fingerprint:       err.Fingerprint,
			Category:          err.Category,
			Severity:          err.Severity,
			RepresentativeErr: err,
			Count:             1,
			FirstOccurrence:   err.Timestamp,
			LastOccurrence:    err.Timestamp,
		},
	}
	if len(err.Metadata) > 0 {
		e.bucket.SampleMetadata = append(e.bucket.SampleMetadata, err.Metadata)
	}
	a.buckets[err.Fingerprint] = e

	if err.Severity != events.SeverityCritical {
		fp := err.Fingerprint
		e.timer = a.clock.AfterFunc(a.window, func() {
			a.scheduledFlush(fp)
		})
	}

	return true
}

// scheduledFlush fires when a bucket's aggregation window elapses.
func (a *Aggregator) scheduledFlush(fingerprint string) {
	a.mu.Lock()
	e, ok := a.buckets[fingerprint]
	if !ok || a.closed || e.bucket.NotificationSent {
		a.mu.Unlock()
		return
	}
	e.bucket.NotificationSent = true
	e.bucket.LastNotifiedAt = a.clock.Now()
	e.timer = nil
	bucket := e.bucket
	a.mu.Unlock()

	a.onFlush(bucket)
}

// FlushImmediately flushes a bucket outside its scheduled window, canceling
// any pending timer. Used for CRITICAL first occurrences. Returns nil when
// the fingerprint is unknown or already flushed.
func (a *Aggregator) FlushImmediately(fingerprint string) *Bucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.buckets[fingerprint]
	if !ok || e.bucket.NotificationSent {
		return nil
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.bucket.NotificationSent = true
	e.bucket.LastNotifiedAt = a.clock.Now()
	bucket := e.bucket
	return &bucket
}

// FlushAll force-flushes every unsent bucket, canceling pending timers.
// Used at shutdown and for summary accounting.
func (a *Aggregator) FlushAll() []Bucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	var flushed []Bucket
	now := a.clock.Now()
	for _, e := range a.buckets {
		if e.bucket.NotificationSent {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.bucket.NotificationSent = true
		e.bucket.LastNotifiedAt = now
		flushed = append(flushed, e.bucket)
	}
	return flushed
}

// UpdatedBuckets returns buckets that kept accumulating occurrences after
// their notification went out. The summary reporter uses this to say "this
// error is still happening".
func (a *Aggregator) UpdatedBuckets() []Bucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	var updated []Bucket
	for _, e := range a.buckets {
		if e.bucket.NotificationSent && e.bucket.LastOccurrence.After(e.bucket.LastNotifiedAt) {
			updated = append(updated, e.bucket)
		}
	}
	return updated
}

// MarkNotified re-stamps a notified bucket's LastNotifiedAt, so follow-up
// reporting only surfaces it again on a fresh occurrence.
func (a *Aggregator) MarkNotified(fingerprint string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.buckets[fingerprint]; ok && e.bucket.NotificationSent {
		e.bucket.LastNotifiedAt = a.clock.Now()
	}
}

// Prune removes buckets with no occurrence newer than maxAge, canceling any
// pending timers, and returns how many were removed. Called periodically to
// bound memory.
func (a *Aggregator) Prune(maxAge time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.clock.Now().Add(-maxAge)
	removed := 0
	for fp, e := range a.buckets {
		if e.bucket.LastOccurrence.Before(cutoff) {
			if e.timer != nil {
				e.timer.Stop()
			}
			delete(a.buckets, fp)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Pruned stale error buckets", "removed", removed, "remaining", len(a.buckets))
	}
	return removed
}

// Len returns the number of tracked buckets.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets)
}

// Close cancels all pending flush timers. Further Adds are ignored.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	for _, e := range a.buckets {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
}
