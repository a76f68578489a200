package classifier

import (
	"testing"

	"errmon/internal/events"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		message      string
		errorName    string
		wantCategory events.Category
		wantSeverity events.Severity
	}{
		{
			name:         "postgres connection refused",
			message:      "ECONNREFUSED 127.0.0.1:5432",
			errorName:    "Error",
			wantCategory: events.CategoryDatabaseConnection,
			wantSeverity: events.SeverityCritical,
		},
		{
			name:         "redis connection beats generic connection",
			message:      "Redis connection to 127.0.0.1:6379 failed - connect ECONNREFUSED",
			wantCategory: events.CategoryRedisConnection,
			wantSeverity: events.SeverityCritical,
		},
		{
			name:         "connection pool draining",
			message:      "pool is draining and cannot accept work",
			wantCategory: events.CategoryDatabaseConnection,
			wantSeverity: events.SeverityCritical,
		},
		{
			name:         "sql syntax error",
			message:      `syntax error at or near "SELCT"`,
			wantCategory: events.CategoryDatabaseQuery,
			wantSeverity: events.SeverityHigh,
		},
		{
			name:         "missing relation",
			message:      `relation "tickets_archive" does not exist`,
			wantCategory: events.CategoryDatabaseQuery,
			wantSeverity: events.SeverityHigh,
		},
		{
			name:         "unique violation",
			message:      `duplicate key value violates unique constraint "tickets_pkey"`,
			wantCategory: events.CategoryDatabaseQuery,
			wantSeverity: events.SeverityHigh,
		},
		{
			name:         "upstream rate limit",
			message:      "You are being rate limited",
			errorName:    "DiscordAPIError",
			wantCategory: events.CategoryRateLimit,
			wantSeverity: events.SeverityLow,
		},
		{
			name:         "http 429",
			message:      "request failed with status 429",
			wantCategory: events.CategoryRateLimit,
			wantSeverity: events.SeverityLow,
		},
		{
			name:         "unknown interaction",
			message:      "Unknown interaction",
			errorName:    "DiscordAPIError",
			wantCategory: events.CategoryExternalAPI,
			wantSeverity: events.SeverityMedium,
		},
		{
			name:         "api error by name only",
			message:      "request failed",
			errorName:    "DiscordAPIError",
			wantCategory: events.CategoryExternalAPI,
			wantSeverity: events.SeverityMedium,
		},
		{
			name:         "dns failure",
			message:      "getaddrinfo ENOTFOUND api.example.invalid",
			wantCategory: events.CategoryNetwork,
			wantSeverity: events.SeverityHigh,
		},
		{
			name:         "socket hang up",
			message:      "socket hang up",
			wantCategory: events.CategoryNetwork,
			wantSeverity: events.SeverityHigh,
		},
		{
			name:         "missing permissions",
			message:      "Missing Permissions",
			wantCategory: events.CategoryPermission,
			wantSeverity: events.SeverityMedium,
		},
		{
			name:         "validation failure",
			message:      "Invalid Form Body: embeds[0].description must be a string",
			wantCategory: events.CategoryValidation,
			wantSeverity: events.SeverityLow,
		},
		{
			name:         "unmatched falls through to unknown",
			message:      "something completely unexpected happened",
			wantCategory: events.CategoryUnknown,
			wantSeverity: events.SeverityMedium,
		},
		{
			name:         "empty message",
			message:      "",
			wantCategory: events.CategoryUnknown,
			wantSeverity: events.SeverityMedium,
		},
		{
			name:         "matching is case insensitive",
			message:      "CONNECTION REFUSED by upstream",
			wantCategory: events.CategoryDatabaseConnection,
			wantSeverity: events.SeverityCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, severity := Classify(tt.message, tt.errorName, nil)
			if category != tt.wantCategory {
				t.Errorf("Classify() category = %v, want %v", category, tt.wantCategory)
			}
			if severity != tt.wantSeverity {
				t.Errorf("Classify() severity = %v, want %v", severity, tt.wantSeverity)
			}
		})
	}
}

func TestClassifyErrorNameFromMetadata(t *testing.T) {
	category, severity := Classify("request failed", "", map[string]any{"error.name": "DiscordAPIError"})
	if category != events.CategoryExternalAPI {
		t.Errorf("Classify() category = %v, want %v", category, events.CategoryExternalAPI)
	}
	if severity != events.SeverityMedium {
		t.Errorf("Classify() severity = %v, want %v", severity, events.SeverityMedium)
	}
}
