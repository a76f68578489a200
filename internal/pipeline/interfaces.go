// Package pipeline wires ingestion, classification, aggregation, rate
// limiting, and delivery into one error-monitoring notification pipeline.
package pipeline

// MetricsRecorder defines the metrics operations needed by the pipeline.
// This interface allows for dependency injection and testing with fakes.
type MetricsRecorder interface {
	RecordReceived()
	RecordAggregated()
	RecordSent()
	RecordSuppressed(count int)
	RecordError()
	IncrementCustom(name string)
}

// NoOpMetrics is a null-object implementation of MetricsRecorder.
// It does nothing, eliminating the need for nil checks.
type NoOpMetrics struct{}

// Compile-time check that NoOpMetrics implements MetricsRecorder.
var _ MetricsRecorder = (*NoOpMetrics)(nil)

// RecordReceived does nothing.
func (n *NoOpMetrics) RecordReceived() {}

// RecordAggregated does nothing.
func (n *NoOpMetrics) RecordAggregated() {}

// RecordSent does nothing.
func (n *NoOpMetrics) RecordSent() {}

// RecordSuppressed does nothing.
func (n *NoOpMetrics) RecordSuppressed(_ int) {}

// RecordError does nothing.
func (n *NoOpMetrics) RecordError() {}

// IncrementCustom does nothing.
func (n *NoOpMetrics) IncrementCustom(_ string) {}
