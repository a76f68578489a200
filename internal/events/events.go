// Package events defines the event and notification types flowing through the
// error-monitoring pipeline.
package events

import (
	"strings"
	"time"
)

// Severity is the urgency tier of a classified error.
type Severity string

// Severity tiers, highest first.
const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Category identifies the class of failure an error belongs to.
type Category string

// Known error categories.
const (
	CategoryRedisConnection    Category = "REDIS_CONNECTION"
	CategoryDatabaseConnection Category = "DATABASE_CONNECTION"
	CategoryDatabaseQuery      Category = "DATABASE_QUERY"
	CategoryRateLimit          Category = "RATE_LIMIT"
	CategoryExternalAPI        Category = "EXTERNAL_API"
	CategoryNetwork            Category = "NETWORK"
	CategoryPermission         Category = "PERMISSION"
	CategoryValidation         Category = "VALIDATION"
	CategoryUnknown            Category = "UNKNOWN"
)

// NormalizedError is a classified, fingerprinted error. It is treated as
// immutable once built: the pipeline copies it by value into buckets.
type NormalizedError struct {
	Fingerprint string
	Category    Category
	Severity    Severity
	Message     string
	StackTrace  string
	Source      string
	Metadata    map[string]any
	Timestamp   time.Time
}

// TransportStats is a read-only snapshot of pipeline counters.
type TransportStats struct {
	TotalReceived   uint64    `json:"total_received"`
	TotalSent       uint64    `json:"total_sent"`
	TotalAggregated uint64    `json:"total_aggregated"`
	TotalSuppressed uint64    `json:"total_suppressed"`
	LastSummaryAt   time.Time `json:"last_summary_at"`
}

// secretKeyMarkers are substrings that mark a metadata key as sensitive.
// Matching is case-insensitive. Dropping these keys before retention is a
// hard security contract, not an optimization.
var secretKeyMarkers = []string{
	"password",
	"token",
	"secret",
	"apikey",
	"api_key",
	"authorization",
	"cookie",
	"credential",
	"private",
}

// SanitizeMetadata returns a copy of metadata with all sensitive keys removed.
// Returns nil for empty input.
func SanitizeMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}

	sanitized := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if isSecretKey(key) {
			continue
		}
		sanitized[key] = value
	}
	if len(sanitized) == 0 {
		return nil
	}
	return sanitized
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range secretKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
