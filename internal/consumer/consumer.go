// Package consumer reads raw application log events from Kafka and feeds
// them into the error-monitoring pipeline.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"errmon/internal/kafkautil"
)

// LogEvent is the JSON shape producers publish to the log-events topic.
type LogEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Name      string         `json:"name,omitempty"`
	Stack     string         `json:"stack,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Ingester accepts raw events. Ingestion is best-effort and never returns
// an error, so consuming is bounded only by read throughput.
type Ingester interface {
	Ingest(message, level string, fields map[string]any)
}

// Consumer wraps a Kafka reader and pushes decoded log events into an
// Ingester.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// New creates a Kafka consumer for the log-events topic, configured for
// at-least-once delivery.
func New(brokers, topic, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	return &Consumer{
		reader: kafka.NewReader(kafkautil.NewReaderConfig(brokerList, topic, groupID)),
		topic:  topic,
	}, nil
}

// Run continuously reads log events and hands them to the ingester until the
// context is canceled. Malformed messages are logged, skipped, and still
// committed so they are not redelivered forever.
func (c *Consumer) Run(ctx context.Context, ingester Ingester) error {
	slog.Info("Starting log event consumption loop", "topic", c.topic)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Log event consumption loop stopped")
			return nil
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Error("Failed to read message from Kafka", "error", err)
				continue
			}

			event, err := DecodeLogEvent(msg.Value)
			if err != nil {
				slog.Error("Skipping malformed log event",
					"topic", c.topic,
					"offset", msg.Offset,
					"error", err,
				)
			} else {
				ingester.Ingest(event.Message, event.Level, eventFields(event))
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				slog.Error("Failed to commit offset",
					"topic", c.topic,
					"offset", msg.Offset,
					"error", err,
				)
			}
		}
	}
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka reader: %w", err)
	}
	return nil
}

// DecodeLogEvent parses a log event from its JSON encoding. An event without
// a message is still accepted (the pipeline files it under UNKNOWN), but a
// body that is not a JSON object is an error.
func DecodeLogEvent(data []byte) (*LogEvent, error) {
	var event LogEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal log event: %w", err)
	}
	return &event, nil
}

// eventFields flattens a log event into the ingestion field map, folding the
// stack and error name in under their conventional keys.
func eventFields(event *LogEvent) map[string]any {
	fields := make(map[string]any, len(event.Fields)+2)
	for k, v := range event.Fields {
		fields[k] = v
	}
	if event.Stack != "" {
		fields["stack"] = event.Stack
	}
	if event.Name != "" {
		fields["error.name"] = event.Name
	}
	return fields
}
