package timeutil

import (
	"testing"
	"time"
)

func TestFakeClockAdvanceFiresDueTimers(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))

	var fired []string
	clock.AfterFunc(3*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	clock.AfterFunc(10*time.Second, func() { fired = append(fired, "c") })

	clock.Advance(5 * time.Second)

	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Errorf("fired = %v, want [a b] in chronological order", fired)
	}

	clock.Advance(5 * time.Second)
	if len(fired) != 3 {
		t.Errorf("fired = %v, want all three timers after full advance", fired)
	}
}

func TestFakeClockStop(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))

	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop() = false on pending timer, want true")
	}
	clock.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if timer.Stop() {
		t.Error("Stop() = true on already-stopped timer, want false")
	}
}

func TestFakeClockTimerSeesAdvancedNow(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))

	var at time.Time
	clock.AfterFunc(30*time.Second, func() { at = clock.Now() })

	clock.Advance(time.Minute)

	if want := time.Unix(30, 0); !at.Equal(want) {
		t.Errorf("timer observed Now() = %v, want %v (its own deadline)", at, want)
	}
	if want := time.Unix(60, 0); !clock.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v after advance", clock.Now(), want)
	}
}

func TestRealClockAfterFunc(t *testing.T) {
	clock := RealClock{}

	done := make(chan struct{})
	clock.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AfterFunc callback never fired")
	}
}
