package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"errmon/internal/config"
	"errmon/internal/consumer"
	"errmon/internal/metrics"
	"errmon/internal/pipeline"
	"errmon/internal/shared"
	"errmon/internal/sink/webhook"
)

func main() {
	// Parse command-line flags with environment variable fallbacks
	cfg := &config.Config{}
	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&cfg.LogEventsTopic, "log-events-topic", shared.GetEnvOrDefault("LOG_EVENTS_TOPIC", "logs.events"), "Kafka topic for raw log events")
	flag.StringVar(&cfg.ConsumerGroupID, "consumer-group-id", shared.GetEnvOrDefault("CONSUMER_GROUP_ID", "errmon-group"), "Kafka consumer group ID")
	flag.StringVar(&cfg.WebhookURL, "webhook-url", os.Getenv("WEBHOOK_URL"), "Webhook URL for outbound notifications")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.DurationVar(&cfg.WindowDuration, "window-duration", envDuration("WINDOW_DURATION", config.DefaultWindowDuration), "Sliding rate-limit window")
	flag.IntVar(&cfg.MaxMessagesPerWindow, "max-messages-per-window", envInt("MAX_MESSAGES_PER_WINDOW", config.DefaultMaxMessagesPerWindow), "Max notifications per window")
	flag.DurationVar(&cfg.AggregationWindow, "aggregation-window", envDuration("AGGREGATION_WINDOW", config.DefaultAggregationWindow), "Bucket aggregation window")
	flag.IntVar(&cfg.MaxSamplesPerBucket, "max-samples-per-bucket", envInt("MAX_SAMPLES_PER_BUCKET", config.DefaultMaxSamplesPerBucket), "Metadata samples kept per bucket")
	flag.DurationVar(&cfg.SummaryInterval, "summary-interval", envDuration("SUMMARY_INTERVAL", config.DefaultSummaryInterval), "Suppression summary interval")
	flag.BoolVar(&cfg.EnableSummary, "enable-summary", envBool("ENABLE_SUMMARY", true), "Enable periodic suppression summaries")
	flag.BoolVar(&cfg.CriticalBypassRateLimit, "critical-bypass-rate-limit", envBool("CRITICAL_BYPASS_RATE_LIMIT", true), "Let CRITICAL notifications bypass the rate limit")
	flag.IntVar(&cfg.MaxQueueSize, "max-queue-size", envInt("MAX_QUEUE_SIZE", config.DefaultMaxQueueSize), "Delivery queue bound")
	flag.IntVar(&cfg.MaxSuppressedEntries, "max-suppressed-entries", envInt("MAX_SUPPRESSED_ENTRIES", config.DefaultMaxSuppressedEntries), "Suppressed table bound")
	flag.DurationVar(&cfg.BucketMaxAge, "bucket-max-age", envDuration("BUCKET_MAX_AGE", config.DefaultBucketMaxAge), "Prune buckets idle this long")
	flag.DurationVar(&cfg.InterMessageDelay, "inter-message-delay", envDuration("INTER_MESSAGE_DELAY", config.DefaultInterMessageDelay), "Spacing between deliveries")
	flag.IntVar(&cfg.SinkMaxLength, "sink-max-length", envInt("SINK_MAX_LENGTH", config.DefaultSinkMaxLength), "Rendered message size limit")
	flag.Parse()

	// Set up structured logging
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("Starting errmon service",
		"kafka_brokers", cfg.KafkaBrokers,
		"log_events_topic", cfg.LogEventsTopic,
		"consumer_group_id", cfg.ConsumerGroupID,
		"webhook_url", shared.MaskURL(cfg.WebhookURL),
		"redis_addr", cfg.RedisAddr,
		"window_duration", cfg.WindowDuration,
		"max_messages_per_window", cfg.MaxMessagesPerWindow,
		"aggregation_window", cfg.AggregationWindow,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Metrics reporting degrades gracefully: delivery must not depend on
	// the metrics transport being up.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		slog.Info("Connecting to Redis", "addr", cfg.RedisAddr)
		client, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Warn("Redis unavailable, metrics reporting disabled", "error", err)
		} else {
			slog.Info("Successfully connected to Redis")
			redisClient = client
			defer redisClient.Close()
		}
	}

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("errmon", redisClient)
	metricsCollector.Start(ctx)
	defer metricsCollector.Stop()

	// Initialize webhook sink
	snk, err := webhook.New(cfg.WebhookURL)
	if err != nil {
		slog.Error("Failed to create webhook sink", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline
	pipe := pipeline.New(pipeline.Options{
		WindowDuration:          cfg.WindowDuration,
		MaxMessagesPerWindow:    cfg.MaxMessagesPerWindow,
		AggregationWindow:       cfg.AggregationWindow,
		MaxSamplesPerBucket:     cfg.MaxSamplesPerBucket,
		SummaryInterval:         cfg.SummaryInterval,
		EnableSummary:           cfg.EnableSummary,
		CriticalBypassRateLimit: cfg.CriticalBypassRateLimit,
		MaxQueueSize:            cfg.MaxQueueSize,
		MaxSuppressedEntries:    cfg.MaxSuppressedEntries,
		BucketMaxAge:            cfg.BucketMaxAge,
		InterMessageDelay:       cfg.InterMessageDelay,
		SinkMaxLength:           cfg.SinkMaxLength,
	}, snk, metrics.NewCollectorAdapter(metricsCollector), nil)
	pipe.Start(ctx)
	defer pipe.Stop()

	// Initialize Kafka consumer
	slog.Info("Connecting to Kafka consumer", "topic", cfg.LogEventsTopic)
	kafkaConsumer, err := consumer.New(cfg.KafkaBrokers, cfg.LogEventsTopic, cfg.ConsumerGroupID)
	if err != nil {
		slog.Error("Failed to create Kafka consumer", "error", err)
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		os.Exit(1)
	}
	defer kafkaConsumer.Close()
	slog.Info("Successfully connected to Kafka consumer")

	// Main consumption loop
	if err := kafkaConsumer.Run(ctx, pipe); err != nil {
		slog.Error("Log event consumption failed", "error", err)
		os.Exit(1)
	}

	stats := pipe.Stats()
	slog.Info("errmon service stopped",
		"total_received", stats.TotalReceived,
		"total_sent", stats.TotalSent,
		"total_aggregated", stats.TotalAggregated,
		"total_suppressed", stats.TotalSuppressed,
	)
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
