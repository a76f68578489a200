// Package metrics collects pipeline counters and periodically publishes them
// to Redis for centralized operational visibility.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for service metrics.
	KeyPrefix = "metrics:"
	// TTL is how long metrics stay in Redis if not refreshed.
	TTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot is the JSON document written to Redis on every report.
type Snapshot struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`

	EventsReceived          uint64 `json:"events_received"`
	EventsAggregated        uint64 `json:"events_aggregated"`
	NotificationsSent       uint64 `json:"notifications_sent"`
	NotificationsSuppressed uint64 `json:"notifications_suppressed"`
	ProcessingErrors        uint64 `json:"processing_errors"`

	CustomCounters map[string]uint64 `json:"custom_counters,omitempty"`
}

// Collector collects and reports metrics for the service.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	eventsReceived          atomic.Uint64
	eventsAggregated        atomic.Uint64
	notificationsSent       atomic.Uint64
	notificationsSuppressed atomic.Uint64
	processingErrors        atomic.Uint64

	customMu       sync.RWMutex
	customCounters map[string]*atomic.Uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a new metrics collector for the named service.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		customCounters: make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.writeMetrics(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.writeMetrics(context.Background()) // Final write
				return
			case <-ticker.C:
				c.writeMetrics(ctx)
			}
		}
	}()
}

// Stop halts reporting after a final write and waits for the reporter to exit.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RecordReceived increments the received-events counter.
func (c *Collector) RecordReceived() { c.eventsReceived.Add(1) }

// RecordAggregated increments the aggregated-events counter.
func (c *Collector) RecordAggregated() { c.eventsAggregated.Add(1) }

// RecordSent increments the sent-notifications counter.
func (c *Collector) RecordSent() { c.notificationsSent.Add(1) }

// RecordSuppressed adds count suppressed occurrences.
func (c *Collector) RecordSuppressed(count int) {
	if count > 0 {
		c.notificationsSuppressed.Add(uint64(count))
	}
}

// RecordError increments the processing-errors counter.
func (c *Collector) RecordError() { c.processingErrors.Add(1) }

// IncrementCustom increments a named service-specific counter.
func (c *Collector) IncrementCustom(name string) {
	c.customMu.RLock()
	counter, ok := c.customCounters[name]
	c.customMu.RUnlock()

	if !ok {
		c.customMu.Lock()
		counter, ok = c.customCounters[name]
		if !ok {
			counter = &atomic.Uint64{}
			c.customCounters[name] = counter
		}
		c.customMu.Unlock()
	}
	counter.Add(1)
}

// snapshot builds the current metrics document.
func (c *Collector) snapshot() Snapshot {
	s := Snapshot{
		ServiceName:             c.serviceName,
		StartedAt:               c.startedAt,
		LastUpdated:             time.Now().UTC(),
		EventsReceived:          c.eventsReceived.Load(),
		EventsAggregated:        c.eventsAggregated.Load(),
		NotificationsSent:       c.notificationsSent.Load(),
		NotificationsSuppressed: c.notificationsSuppressed.Load(),
		ProcessingErrors:        c.processingErrors.Load(),
	}

	c.customMu.RLock()
	if len(c.customCounters) > 0 {
		s.CustomCounters = make(map[string]uint64, len(c.customCounters))
		for name, counter := range c.customCounters {
			s.CustomCounters[name] = counter.Load()
		}
	}
	c.customMu.RUnlock()

	return s
}

// writeMetrics publishes the current snapshot to Redis with a TTL so stale
// entries age out when the service dies.
func (c *Collector) writeMetrics(ctx context.Context) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(c.snapshot())
	if err != nil {
		slog.Error("Failed to marshal metrics snapshot", "error", err)
		return
	}

	key := fmt.Sprintf("%s%s", KeyPrefix, c.serviceName)
	if err := c.redis.Set(ctx, key, data, TTL).Err(); err != nil {
		slog.Warn("Failed to write metrics to Redis", "key", key, "error", err)
	}
}
