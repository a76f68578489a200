// Package config provides configuration parsing and validation for the
// error-monitoring service.
package config

import (
	"fmt"
	"time"
)

// Default values for all tunable pipeline parameters.
const (
	DefaultWindowDuration       = 10 * time.Minute
	DefaultMaxMessagesPerWindow = 15
	DefaultAggregationWindow    = 30 * time.Second
	DefaultMaxSamplesPerBucket  = 3
	DefaultSummaryInterval      = 5 * time.Minute
	DefaultMaxQueueSize         = 50
	DefaultMaxSuppressedEntries = 100
	DefaultBucketMaxAge         = 30 * time.Minute
	DefaultInterMessageDelay    = 500 * time.Millisecond
	DefaultSinkMaxLength        = 4000
)

// Config holds all configuration parameters for the service.
type Config struct {
	// External endpoints.
	KafkaBrokers    string
	LogEventsTopic  string
	ConsumerGroupID string
	WebhookURL      string
	RedisAddr       string

	// Pipeline tuning.
	WindowDuration          time.Duration
	MaxMessagesPerWindow    int
	AggregationWindow       time.Duration
	MaxSamplesPerBucket     int
	SummaryInterval         time.Duration
	EnableSummary           bool
	CriticalBypassRateLimit bool
	MaxQueueSize            int
	MaxSuppressedEntries    int
	BucketMaxAge            time.Duration
	InterMessageDelay       time.Duration
	SinkMaxLength           int
}

// Validate checks that all required configuration fields are set and have
// valid values. Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.LogEventsTopic == "" {
		return fmt.Errorf("log-events-topic cannot be empty")
	}
	if c.ConsumerGroupID == "" {
		return fmt.Errorf("consumer-group-id cannot be empty")
	}
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook-url cannot be empty")
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("window-duration must be positive")
	}
	if c.MaxMessagesPerWindow <= 0 {
		return fmt.Errorf("max-messages-per-window must be positive")
	}
	if c.AggregationWindow <= 0 {
		return fmt.Errorf("aggregation-window must be positive")
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max-queue-size must be positive")
	}
	if c.MaxSuppressedEntries <= 0 {
		return fmt.Errorf("max-suppressed-entries must be positive")
	}
	return nil
}
