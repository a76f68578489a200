package metrics

import "errmon/internal/pipeline"

// CollectorAdapter adapts a Collector to the pipeline's MetricsRecorder
// interface.
type CollectorAdapter struct {
	collector *Collector
}

// NewCollectorAdapter wraps a Collector to implement pipeline.MetricsRecorder.
func NewCollectorAdapter(collector *Collector) *CollectorAdapter {
	return &CollectorAdapter{collector: collector}
}

// Ensure CollectorAdapter implements pipeline.MetricsRecorder.
var _ pipeline.MetricsRecorder = (*CollectorAdapter)(nil)

func (a *CollectorAdapter) RecordReceived() { a.collector.RecordReceived() }

func (a *CollectorAdapter) RecordAggregated() { a.collector.RecordAggregated() }

func (a *CollectorAdapter) RecordSent() { a.collector.RecordSent() }

func (a *CollectorAdapter) RecordSuppressed(count int) { a.collector.RecordSuppressed(count) }

func (a *CollectorAdapter) RecordError() { a.collector.RecordError() }

func (a *CollectorAdapter) IncrementCustom(name string) { a.collector.IncrementCustom(name) }
