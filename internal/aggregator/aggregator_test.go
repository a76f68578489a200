package aggregator

import (
	"testing"
	"time"

	"errmon/internal/events"
	"errmon/internal/timeutil"
)

const window = 30 * time.Second

func newError(fp string, severity events.Severity, ts time.Time) events.NormalizedError {
	return events.NormalizedError{
		Fingerprint: fp,
		Category:    events.CategoryUnknown,
		Severity:    severity,
		Message:     "boom",
		Timestamp:   ts,
	}
}

func TestAddAggregatesByFingerprint(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	var flushed []Bucket
	agg := New(window, 3, func(b Bucket) { flushed = append(flushed, b) }, clock)

	for i := 0; i < 5; i++ {
		isNew := agg.Add(newError("fp-1", events.SeverityHigh, clock.Now()))
		if want := i == 0; isNew != want {
			t.Errorf("Add() call %d isNew = %v, want %v", i+1, isNew, want)
		}
	}

	if len(flushed) != 0 {
		t.Fatalf("flush fired before window elapsed: %d", len(flushed))
	}

	clock.Advance(window + time.Second)

	if len(flushed) != 1 {
		t.Fatalf("flush callback fired %d times, want exactly once", len(flushed))
	}
	b := flushed[0]
	if b.Count != 5 {
		t.Errorf("flushed bucket Count = %d, want 5", b.Count)
	}
	if !b.NotificationSent {
		t.Error("flushed bucket NotificationSent = false, want true")
	}
	if b.LastOccurrence.Before(b.FirstOccurrence) {
		t.Error("LastOccurrence before FirstOccurrence")
	}
}

func TestCriticalNotScheduled(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	var flushed []Bucket
	agg := New(window, 3, func(b Bucket) { flushed = append(flushed, b) }, clock)

	agg.Add(newError("fp-crit", events.SeverityCritical, clock.Now()))
	clock.Advance(window * 2)

	if len(flushed) != 0 {
		t.Fatal("CRITICAL bucket went through the scheduled flush path")
	}

	b := agg.FlushImmediately("fp-crit")
	if b == nil {
		t.Fatal("FlushImmediately() = nil, want bucket")
	}
	if !b.NotificationSent || b.LastNotifiedAt.IsZero() {
		t.Error("FlushImmediately() did not mark the bucket sent")
	}
}

func TestFlushImmediatelyCancelsTimer(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	var flushed []Bucket
	agg := New(window, 3, func(b Bucket) { flushed = append(flushed, b) }, clock)

	agg.Add(newError("fp-1", events.SeverityHigh, clock.Now()))

	if b := agg.FlushImmediately("fp-1"); b == nil {
		t.Fatal("FlushImmediately() = nil, want bucket")
	}

	clock.Advance(window * 2)
	if len(flushed) != 0 {
		t.Error("scheduled flush fired after FlushImmediately")
	}
}

func TestFlushImmediatelyUnknownOrSent(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	agg := New(window, 3, func(Bucket) {}, clock)

	if b := agg.FlushImmediately("missing"); b != nil {
		t.Errorf("FlushImmediately(unknown) = %+v, want nil", b)
	}

	agg.Add(newError("fp-1", events.SeverityCritical, clock.Now()))
	agg.FlushImmediately("fp-1")
	if b := agg.FlushImmediately("fp-1"); b != nil {
		t.Errorf("FlushImmediately(already sent) = %+v, want nil", b)
	}
}

func TestNotifiedBucketKeepsAccumulating(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	agg := New(window, 3, func(Bucket) {}, clock)

	agg.Add(newError("fp-1", events.SeverityCritical, clock.Now()))
	agg.FlushImmediately("fp-1")

	clock.Advance(time.Second)
	if isNew := agg.Add(newError("fp-1", events.SeverityCritical, clock.Now())); isNew {
		t.Error("Add() after notification created a duplicate bucket")
	}

	updated := agg.UpdatedBuckets()
	if len(updated) != 1 {
		t.Fatalf("UpdatedBuckets() returned %d buckets, want 1", len(updated))
	}
	if updated[0].Count != 2 {
		t.Errorf("updated bucket Count = %d, want 2", updated[0].Count)
	}
}

func TestMarkNotifiedResetsUpdated(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	agg := New(window, 3, func(Bucket) {}, clock)

	agg.Add(newError("fp-1", events.SeverityCritical, clock.Now()))
	agg.FlushImmediately("fp-1")
	clock.Advance(time.Second)
	agg.Add(newError("fp-1", events.SeverityCritical, clock.Now()))

	clock.Advance(time.Second)
	agg.MarkNotified("fp-1")
	if got := agg.UpdatedBuckets(); len(got) != 0 {
		t.Errorf("UpdatedBuckets() after MarkNotified = %d buckets, want 0", len(got))
	}
}

func TestSampleMetadataBounded(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	agg := New(window, 2, func(Bucket) {}, clock)

	for i := 0; i < 5; i++ {
		err := newError("fp-1", events.SeverityCritical, clock.Now())
		err.Metadata = map[string]any{"attempt": i}
		agg.Add(err)
	}

	b := agg.FlushImmediately("fp-1")
	if b == nil {
		t.Fatal("FlushImmediately() = nil")
	}
	if len(b.SampleMetadata) != 2 {
		t.Errorf("SampleMetadata length = %d, want cap of 2", len(b.SampleMetadata))
	}
}

func TestFlushAll(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	var scheduled []Bucket
	agg := New(window, 3, func(b Bucket) { scheduled = append(scheduled, b) }, clock)

	agg.Add(newError("fp-1", events.SeverityHigh, clock.Now()))
	agg.Add(newError("fp-2", events.SeverityLow, clock.Now()))
	agg.Add(newError("fp-3", events.SeverityCritical, clock.Now()))
	agg.FlushImmediately("fp-3")

	flushed := agg.FlushAll()
	if len(flushed) != 2 {
		t.Fatalf("FlushAll() returned %d buckets, want 2 unsent", len(flushed))
	}

	// Scheduled timers were canceled; nothing double-fires.
	clock.Advance(window * 2)
	if len(scheduled) != 0 {
		t.Errorf("scheduled flush fired %d times after FlushAll", len(scheduled))
	}
}

func TestPrune(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	var flushed []Bucket
	agg := New(window, 3, func(b Bucket) { flushed = append(flushed, b) }, clock)

	agg.Add(newError("fp-old", events.SeverityHigh, clock.Now()))

	clock.Advance(window + time.Second) // let the scheduled flush fire
	clock.Advance(20 * time.Minute)

	agg.Add(newError("fp-new", events.SeverityCritical, clock.Now()))

	removed := agg.Prune(10 * time.Minute)
	if removed != 1 {
		t.Fatalf("Prune() removed %d, want 1", removed)
	}
	if agg.Len() != 1 {
		t.Errorf("Len() = %d after prune, want 1", agg.Len())
	}
	if len(flushed) != 1 {
		t.Errorf("flush fired %d times, want 1 (fp-old before pruning)", len(flushed))
	}
}

func TestCloseCancelsTimersAndIgnoresAdds(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	var flushed []Bucket
	agg := New(window, 3, func(b Bucket) { flushed = append(flushed, b) }, clock)

	agg.Add(newError("fp-1", events.SeverityHigh, clock.Now()))
	agg.Close()

	clock.Advance(window * 2)
	if len(flushed) != 0 {
		t.Error("flush fired after Close")
	}
	if agg.Add(newError("fp-2", events.SeverityHigh, clock.Now())) {
		t.Error("Add() after Close created a bucket")
	}
}
