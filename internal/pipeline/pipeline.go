package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"errmon/internal/aggregator"
	"errmon/internal/classifier"
	"errmon/internal/events"
	"errmon/internal/fingerprint"
	"errmon/internal/ratelimit"
	"errmon/internal/sink"
	"errmon/internal/timeutil"
)

// Options configures pipeline behavior. Zero values are replaced with the
// defaults from DefaultOptions.
type Options struct {
	WindowDuration          time.Duration // sliding rate-limit window
	MaxMessagesPerWindow    int           // accepted sends per window
	AggregationWindow       time.Duration // delayed-flush window per bucket
	MaxSamplesPerBucket     int           // metadata samples kept per bucket
	SummaryInterval         time.Duration // suppression summary period
	EnableSummary           bool
	CriticalBypassRateLimit bool
	MaxQueueSize            int           // delivery queue bound
	MaxSuppressedEntries    int           // suppressed table bound
	BucketMaxAge            time.Duration // prune buckets idle this long
	PruneInterval           time.Duration
	InterMessageDelay       time.Duration // spacing between deliveries
	SinkMaxLength           int           // rendered message size limit
}

// DefaultOptions returns the standard pipeline configuration.
func DefaultOptions() Options {
	return Options{
		WindowDuration:          10 * time.Minute,
		MaxMessagesPerWindow:    15,
		AggregationWindow:       30 * time.Second,
		MaxSamplesPerBucket:     3,
		SummaryInterval:         5 * time.Minute,
		EnableSummary:           true,
		CriticalBypassRateLimit: true,
		MaxQueueSize:            50,
		MaxSuppressedEntries:    100,
		BucketMaxAge:            30 * time.Minute,
		PruneInterval:           5 * time.Minute,
		InterMessageDelay:       500 * time.Millisecond,
		SinkMaxLength:           4000,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.WindowDuration <= 0 {
		o.WindowDuration = def.WindowDuration
	}
	if o.MaxMessagesPerWindow <= 0 {
		o.MaxMessagesPerWindow = def.MaxMessagesPerWindow
	}
	if o.AggregationWindow <= 0 {
		o.AggregationWindow = def.AggregationWindow
	}
	if o.MaxSamplesPerBucket <= 0 {
		o.MaxSamplesPerBucket = def.MaxSamplesPerBucket
	}
	if o.SummaryInterval <= 0 {
		o.SummaryInterval = def.SummaryInterval
	}
	if o.MaxQueueSize <= 0 {
		o.MaxQueueSize = def.MaxQueueSize
	}
	if o.MaxSuppressedEntries <= 0 {
		o.MaxSuppressedEntries = def.MaxSuppressedEntries
	}
	if o.BucketMaxAge <= 0 {
		o.BucketMaxAge = def.BucketMaxAge
	}
	if o.PruneInterval <= 0 {
		o.PruneInterval = def.PruneInterval
	}
	if o.InterMessageDelay < 0 {
		o.InterMessageDelay = def.InterMessageDelay
	}
	if o.SinkMaxLength <= 0 {
		o.SinkMaxLength = def.SinkMaxLength
	}
	return o
}

// suppressedEntry accumulates counts for notifications that were rejected by
// the rate limiter or evicted from the delivery queue.
type suppressedEntry struct {
	category    events.Category
	severity    events.Severity
	count       int
	lastUpdated time.Time
}

// Pipeline owns all mutable pipeline state: the bucket map (via the
// aggregator), delivery queue, suppressed table, and rate-limiter window.
// Ingest is non-blocking and never propagates a failure to the caller.
type Pipeline struct {
	opts    Options
	snk     sink.Sink
	metrics MetricsRecorder
	clock   timeutil.Clock
	limiter *ratelimit.Limiter
	agg     *aggregator.Aggregator

	mu         sync.Mutex
	ctx        context.Context
	queue      []deliveryItem
	delivering bool
	suppressed map[string]*suppressedEntry
	stopped    bool

	totalReceived   uint64
	totalSent       uint64
	totalAggregated uint64
	totalSuppressed uint64
	lastSummaryAt   time.Time

	summaryTimer timeutil.Timer
	pruneTimer   timeutil.Timer
}

// New creates a Pipeline delivering to snk. A nil metrics recorder is
// replaced with a no-op, a nil clock with the real clock.
func New(opts Options, snk sink.Sink, metrics MetricsRecorder, clock timeutil.Clock) *Pipeline {
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	opts = opts.withDefaults()

	p := &Pipeline{
		opts:       opts,
		snk:        snk,
		metrics:    metrics,
		clock:      clock,
		ctx:        context.Background(),
		limiter:    ratelimit.New(opts.MaxMessagesPerWindow, opts.WindowDuration, clock),
		suppressed: make(map[string]*suppressedEntry),
	}
	p.agg = aggregator.New(opts.AggregationWindow, opts.MaxSamplesPerBucket, p.handleFlushed, clock)
	return p
}

// Start launches the periodic summary and prune schedules. The context is
// also used for sink deliveries.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.ctx = ctx
	if p.opts.EnableSummary {
		p.scheduleSummaryLocked()
	}
	p.schedulePruneLocked()
}

// Stop cancels all scheduled work: periodic timers first, then pending
// bucket flushes, so no callback fires into a torn-down pipeline.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	if p.summaryTimer != nil {
		p.summaryTimer.Stop()
		p.summaryTimer = nil
	}
	if p.pruneTimer != nil {
		p.pruneTimer.Stop()
		p.pruneTimer = nil
	}
	p.mu.Unlock()

	p.agg.Close()
}

// Ingest accepts one raw event from a producer. It never blocks on delivery
// and never panics out: classification or fingerprint failures fall back to
// a generic fingerprint so the event is still aggregated rather than lost.
func (p *Pipeline) Ingest(message, level string, fields map[string]any) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.totalReceived++
	p.mu.Unlock()
	p.metrics.RecordReceived()

	norm := p.normalize(message, level, fields)

	isNew := p.agg.Add(norm)
	if !isNew {
		p.mu.Lock()
		p.totalAggregated++
		p.mu.Unlock()
		p.metrics.RecordAggregated()
		return
	}

	if norm.Severity == events.SeverityCritical {
		p.flushCritical(norm.Fingerprint)
	}
}

// flushCritical delivers a new CRITICAL bucket immediately, bypassing the
// delayed-flush path. With the bypass enabled the limiter is force-charged
// so the send always goes out but still counts against the window.
func (p *Pipeline) flushCritical(fp string) {
	b := p.agg.FlushImmediately(fp)
	if b == nil {
		return
	}

	if p.opts.CriticalBypassRateLimit {
		p.limiter.ForceAcquire()
		p.enqueue(*b)
		return
	}

	if p.limiter.TryAcquire() {
		p.enqueue(*b)
	} else {
		p.suppress(*b)
	}
}

// handleFlushed receives buckets from the aggregator's delayed flush and
// gates them through the rate limiter.
func (p *Pipeline) handleFlushed(b aggregator.Bucket) {
	if p.limiter.TryAcquire() {
		p.enqueue(b)
	} else {
		p.suppress(b)
	}
}

// normalize classifies, fingerprints, and sanitizes a raw event. Any panic
// from the classification path is recovered and the event is filed under a
// category-level fallback fingerprint.
func (p *Pipeline) normalize(message, level string, fields map[string]any) (norm events.NormalizedError) {
	stack := stringField(fields, "stack")
	errorName := stringField(fields, "error.name")
	if errorName == "" {
		errorName = stringField(fields, "name")
	}

	// The stack travels on its own field; everything else (plus the log
	// level) is retained as sanitized metadata.
	meta := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if k == "stack" {
			continue
		}
		meta[k] = v
	}
	if level != "" {
		meta["level"] = level
	}

	norm = events.NormalizedError{
		Category:  events.CategoryUnknown,
		Severity:  events.SeverityMedium,
		Message:   message,
		Metadata:  events.SanitizeMetadata(meta),
		Timestamp: p.clock.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from normalization failure", "panic", r)
			p.metrics.RecordError()
			norm.Fingerprint = "fallback-" + string(norm.Category)
		}
	}()

	norm.Category, norm.Severity = classifier.Classify(message, errorName, fields)
	norm.StackTrace = stack
	norm.Source = fingerprint.Source(stack)
	norm.Fingerprint = fingerprint.Fingerprint(message, stack, errorName, norm.Category)
	return norm
}

// suppress folds a bucket that will not be delivered into the bounded
// suppressed table, preserving its occurrence count for the next summary.
func (p *Pipeline) suppress(b aggregator.Bucket) {
	p.mu.Lock()
	p.suppressBucketLocked(b)
	p.mu.Unlock()
	p.metrics.RecordSuppressed(b.Count)

	slog.Debug("Suppressed notification",
		"fingerprint", b.Fingerprint,
		"category", b.Category,
		"count", b.Count,
	)
}

// suppressBucketLocked merges a bucket into the suppressed table. Callers
// must hold mu.
func (p *Pipeline) suppressBucketLocked(b aggregator.Bucket) {
	now := p.clock.Now()
	p.totalSuppressed += uint64(b.Count)

	if e, ok := p.suppressed[b.Fingerprint]; ok {
		e.count += b.Count
		e.lastUpdated = now
		return
	}

	if len(p.suppressed) >= p.opts.MaxSuppressedEntries {
		p.evictSuppressedLocked()
	}
	p.suppressed[b.Fingerprint] = &suppressedEntry{
		category:    b.Category,
		severity:    b.Severity,
		count:       b.Count,
		lastUpdated: now,
	}
}

// evictSuppressedLocked drops the least-recently-updated suppressed entry.
func (p *Pipeline) evictSuppressedLocked() {
	var oldestKey string
	var oldest time.Time
	for fp, e := range p.suppressed {
		if oldestKey == "" || e.lastUpdated.Before(oldest) {
			oldestKey = fp
			oldest = e.lastUpdated
		}
	}
	if oldestKey != "" {
		delete(p.suppressed, oldestKey)
	}
}

// Stats returns a read-only snapshot of pipeline counters. Safe to call at
// any time.
func (p *Pipeline) Stats() events.TransportStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return events.TransportStats{
		TotalReceived:   p.totalReceived,
		TotalSent:       p.totalSent,
		TotalAggregated: p.totalAggregated,
		TotalSuppressed: p.totalSuppressed,
		LastSummaryAt:   p.lastSummaryAt,
	}
}

// RateLimiterStats exposes current limiter usage for operational logging.
func (p *Pipeline) RateLimiterStats() ratelimit.Stats {
	return p.limiter.Stats()
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
