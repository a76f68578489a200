package pipeline

import (
	"log/slog"

	"github.com/google/uuid"

	"errmon/internal/events"
	"errmon/internal/sink/payload"
)

// scheduleSummaryLocked arms the next summary tick. Callers must hold mu.
func (p *Pipeline) scheduleSummaryLocked() {
	p.summaryTimer = p.clock.AfterFunc(p.opts.SummaryInterval, func() {
		p.runSummary()
		p.mu.Lock()
		if !p.stopped {
			p.scheduleSummaryLocked()
		}
		p.mu.Unlock()
	})
}

// schedulePruneLocked arms the next bucket-prune tick. Callers must hold mu.
func (p *Pipeline) schedulePruneLocked() {
	p.pruneTimer = p.clock.AfterFunc(p.opts.PruneInterval, func() {
		p.agg.Prune(p.opts.BucketMaxAge)
		p.mu.Lock()
		if !p.stopped {
			p.schedulePruneLocked()
		}
		p.mu.Unlock()
	})
}

// runSummary emits one notification summarizing everything suppressed since
// the last cycle, plus errors that kept occurring after their notification.
// With nothing to report, no delivery happens.
func (p *Pipeline) runSummary() {
	updated := p.agg.UpdatedBuckets()

	p.mu.Lock()
	if p.stopped || (len(p.suppressed) == 0 && len(updated) == 0) {
		p.mu.Unlock()
		return
	}

	byCategory := make(map[string]*payload.SuppressedGroup)
	for _, e := range p.suppressed {
		g, ok := byCategory[string(e.category)]
		if !ok {
			g = &payload.SuppressedGroup{Category: e.category}
			byCategory[string(e.category)] = g
		}
		g.Count += e.count
	}
	groups := make([]payload.SuppressedGroup, 0, len(byCategory))
	for _, g := range byCategory {
		groups = append(groups, *g)
	}

	p.suppressed = make(map[string]*suppressedEntry)
	p.lastSummaryAt = p.clock.Now()
	stats := events.TransportStats{
		TotalReceived:   p.totalReceived,
		TotalSent:       p.totalSent,
		TotalAggregated: p.totalAggregated,
		TotalSuppressed: p.totalSuppressed,
		LastSummaryAt:   p.lastSummaryAt,
	}
	p.mu.Unlock()

	// Updated buckets are re-stamped so the next cycle only reports errors
	// that occur again after this summary.
	for _, b := range updated {
		p.agg.MarkNotified(b.Fingerprint)
	}

	msg := payload.BuildSummary(groups, len(updated), stats)
	msg.DeliveryID = uuid.NewString()

	slog.Info("Emitting suppression summary",
		"suppressed_categories", len(groups),
		"updated_buckets", len(updated),
		"delivery_id", msg.DeliveryID,
	)

	// The summary is the rate limiter's own report card; it skips the
	// rate check and goes straight to the queue.
	p.enqueueItem(deliveryItem{msg: msg})
}
