package pipeline

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"errmon/internal/aggregator"
	"errmon/internal/events"
	"errmon/internal/sink"
	"errmon/internal/sink/payload"
)

// deliveryItem is one queued outbound notification. bucket is nil for
// summary messages, which have no occurrence count to preserve on eviction.
type deliveryItem struct {
	msg    *payload.Message
	bucket *aggregator.Bucket
}

// enqueue renders a bucket and appends it to the delivery queue, evicting
// per the queue-bound policy when full, then kicks the delivery worker.
func (p *Pipeline) enqueue(b aggregator.Bucket) {
	msg := payload.Build(b, p.opts.SinkMaxLength)
	msg.DeliveryID = uuid.NewString()
	p.enqueueItem(deliveryItem{msg: msg, bucket: &b})
}

func (p *Pipeline) enqueueItem(item deliveryItem) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}

	if len(p.queue) >= p.opts.MaxQueueSize {
		p.evictQueuedLocked()
	}
	p.queue = append(p.queue, item)

	start := !p.delivering
	if start {
		p.delivering = true
	}
	p.mu.Unlock()

	if start {
		go p.deliverLoop()
	}
}

// evictQueuedLocked makes room in a full queue: the oldest non-CRITICAL
// entry goes first; only when every entry is CRITICAL is the oldest CRITICAL
// evicted. Evicted buckets are merged into the suppressed table so their
// counts survive into the next summary. Callers must hold mu.
func (p *Pipeline) evictQueuedLocked() {
	idx := 0
	for i, item := range p.queue {
		if item.msg.Severity != string(events.SeverityCritical) {
			idx = i
			break
		}
	}

	evicted := p.queue[idx]
	p.queue = append(p.queue[:idx], p.queue[idx+1:]...)

	if evicted.bucket != nil {
		p.suppressBucketLocked(*evicted.bucket)
	}
	slog.Warn("Delivery queue full, evicted oldest entry",
		"delivery_id", evicted.msg.DeliveryID,
		"severity", evicted.msg.Severity,
		"queue_size", len(p.queue),
	)
}

// deliverLoop drains the queue sequentially. Exactly one worker runs at a
// time, guarded by the delivering flag. Successful sends are spaced by the
// inter-message delay; a rate-limited send is requeued at the front and the
// loop sleeps for the hinted duration; any other failure is logged and the
// message dropped.
func (p *Pipeline) deliverLoop() {
	for {
		p.mu.Lock()
		if p.stopped || len(p.queue) == 0 {
			p.delivering = false
			p.mu.Unlock()
			return
		}
		item := p.queue[0]
		p.queue = p.queue[1:]
		ctx := p.ctx
		p.mu.Unlock()

		err := p.snk.Deliver(ctx, item.msg)
		if err == nil {
			p.mu.Lock()
			p.totalSent++
			p.mu.Unlock()
			p.metrics.RecordSent()
			p.clock.Sleep(p.opts.InterMessageDelay)
			continue
		}

		var rateLimited *sink.RateLimitedError
		if errors.As(err, &rateLimited) {
			// Put it back at the front: it is retried before newer messages.
			p.mu.Lock()
			p.queue = append([]deliveryItem{item}, p.queue...)
			p.mu.Unlock()
			p.metrics.IncrementCustom("deliveries_rate_limited")
			p.clock.Sleep(rateLimited.RetryAfter)
			continue
		}

		slog.Error("Dropping notification after delivery failure",
			"delivery_id", item.msg.DeliveryID,
			"fingerprint", item.msg.Fingerprint,
			"error", err,
		)
		p.metrics.RecordError()
	}
}

// QueueLen reports the current delivery-queue depth.
func (p *Pipeline) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
