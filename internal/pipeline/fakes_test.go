package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"errmon/internal/sink/payload"
)

// FakeSink is a test fake for sink.Sink.
type FakeSink struct {
	mu        sync.Mutex
	Delivered []*payload.Message
	Errs      []error // popped one per Deliver call, nil entries succeed

	// Started receives each message as its delivery begins. Optional.
	Started chan *payload.Message
	// Release, when non-nil, blocks every delivery until closed.
	Release chan struct{}

	Calls int
}

func (f *FakeSink) Deliver(ctx context.Context, msg *payload.Message) error {
	f.mu.Lock()
	f.Calls++
	var err error
	if len(f.Errs) > 0 {
		err = f.Errs[0]
		f.Errs = f.Errs[1:]
	}
	started := f.Started
	release := f.Release
	f.mu.Unlock()

	if started != nil {
		started <- msg
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.Delivered = append(f.Delivered, msg)
	f.mu.Unlock()
	return nil
}

func (f *FakeSink) DeliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Delivered)
}

func (f *FakeSink) DeliveredMessages() []*payload.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*payload.Message(nil), f.Delivered...)
}

func (f *FakeSink) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

// FakeMetrics is a test fake for MetricsRecorder that tracks calls.
type FakeMetrics struct {
	mu               sync.Mutex
	ReceivedCount    int
	AggregatedCount  int
	SentCount        int
	SuppressedCount  int
	ErrorCount       int
	CustomIncrements map[string]int
}

func NewFakeMetrics() *FakeMetrics {
	return &FakeMetrics{CustomIncrements: make(map[string]int)}
}

func (f *FakeMetrics) RecordReceived() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReceivedCount++
}

func (f *FakeMetrics) RecordAggregated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AggregatedCount++
}

func (f *FakeMetrics) RecordSent() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SentCount++
}

func (f *FakeMetrics) RecordSuppressed(count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SuppressedCount += count
}

func (f *FakeMetrics) RecordError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ErrorCount++
}

func (f *FakeMetrics) IncrementCustom(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CustomIncrements[name]++
}

func (f *FakeMetrics) Custom(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CustomIncrements[name]
}

func (f *FakeMetrics) Errors() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ErrorCount
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
