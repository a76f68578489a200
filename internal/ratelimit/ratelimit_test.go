package ratelimit

import (
	"testing"
	"time"

	"errmon/internal/timeutil"
)

func TestTryAcquireWindow(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	limiter := New(3, time.Second, clock)

	for i := 0; i < 3; i++ {
		if !limiter.TryAcquire() {
			t.Fatalf("TryAcquire() call %d = false, want true", i+1)
		}
	}
	if limiter.TryAcquire() {
		t.Fatal("TryAcquire() over capacity = true, want false")
	}

	clock.Advance(1001 * time.Millisecond)
	if !limiter.TryAcquire() {
		t.Fatal("TryAcquire() after window elapsed = false, want true")
	}
}

func TestRejectedAttemptRecordsNothing(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	limiter := New(1, time.Minute, clock)

	limiter.TryAcquire()
	limiter.TryAcquire()
	limiter.TryAcquire()

	if got := limiter.Stats().Used; got != 1 {
		t.Errorf("Stats().Used = %d after rejected attempts, want 1", got)
	}
}

func TestForceAcquireExceedsCapacity(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	limiter := New(2, time.Minute, clock)

	limiter.TryAcquire()
	limiter.TryAcquire()
	limiter.ForceAcquire()

	stats := limiter.Stats()
	if stats.Used != 3 {
		t.Errorf("Stats().Used = %d, want 3 (forced send counts against window)", stats.Used)
	}
	if limiter.CanSend() {
		t.Error("CanSend() = true with window over capacity, want false")
	}
}

func TestCanSendDoesNotMutate(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	limiter := New(1, time.Minute, clock)

	for i := 0; i < 5; i++ {
		if !limiter.CanSend() {
			t.Fatalf("CanSend() call %d = false, want true", i+1)
		}
	}
	if got := limiter.Stats().Used; got != 0 {
		t.Errorf("Stats().Used = %d after CanSend calls, want 0", got)
	}
}

func TestTimeUntilNextSlot(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	limiter := New(1, 10*time.Second, clock)

	if got := limiter.TimeUntilNextSlot(); got != 0 {
		t.Errorf("TimeUntilNextSlot() under capacity = %v, want 0", got)
	}

	limiter.TryAcquire()
	if got := limiter.TimeUntilNextSlot(); got != 10*time.Second {
		t.Errorf("TimeUntilNextSlot() = %v, want 10s", got)
	}

	clock.Advance(4 * time.Second)
	if got := limiter.TimeUntilNextSlot(); got != 6*time.Second {
		t.Errorf("TimeUntilNextSlot() after 4s = %v, want 6s", got)
	}

	clock.Advance(7 * time.Second)
	if got := limiter.TimeUntilNextSlot(); got != 0 {
		t.Errorf("TimeUntilNextSlot() after window = %v, want 0", got)
	}
}

func TestStats(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1000, 0))
	limiter := New(15, 10*time.Minute, clock)

	limiter.TryAcquire()
	limiter.TryAcquire()

	stats := limiter.Stats()
	if stats.Used != 2 || stats.Max != 15 || stats.Window != 10*time.Minute {
		t.Errorf("Stats() = %+v, want {Used:2 Max:15 Window:10m}", stats)
	}
}
