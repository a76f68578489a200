// Package classifier maps raw error messages to a category and severity using
// ordered keyword rules. Classification is pure and never fails: anything
// unmatched falls through to UNKNOWN/MEDIUM.
package classifier

import (
	"strings"

	"errmon/internal/events"
)

// rule matches when any message keyword appears in the message, or any name
// keyword appears in the error name. Rules are evaluated in order; the first
// match wins.
type rule struct {
	category        events.Category
	severity        events.Severity
	messageKeywords []string
	nameKeywords    []string
}

var rules = []rule{
	{
		category: events.CategoryRedisConnection,
		severity: events.SeverityCritical,
		messageKeywords: []string{
			"redis connection",
			"redis server",
			"ioredis",
			"err_redis",
			"redis is not connected",
		},
	},
	{
		category: events.CategoryDatabaseConnection,
		severity: events.SeverityCritical,
		messageKeywords: []string{
			"connection refused",
			"econnrefused",
			"connection terminated",
			"connection reset",
			"too many clients",
			"pool is draining",
			"timeout exceeded when trying to connect",
		},
	},
	{
		category: events.CategoryDatabaseQuery,
		severity: events.SeverityHigh,
		messageKeywords: []string{
			"syntax error",
			"does not exist",
			"duplicate key",
			"violates",
			"invalid input syntax",
		},
	},
	{
		category: events.CategoryRateLimit,
		severity: events.SeverityLow,
		messageKeywords: []string{
			"rate limit",
			"rate limited",
			"429",
			"too many requests",
		},
	},
	{
		category: events.CategoryExternalAPI,
		severity: events.SeverityMedium,
		messageKeywords: []string{
			"unknown interaction",
			"unknown message",
			"unknown channel",
			"missing access",
			"interaction has already been acknowledged",
			"cannot send messages to this user",
		},
		nameKeywords: []string{
			"discordapierror",
			"httperror",
			"apierror",
		},
	},
	{
		category: events.CategoryNetwork,
		severity: events.SeverityHigh,
		messageKeywords: []string{
			"etimedout",
			"enotfound",
			"econnreset",
			"socket hang up",
			"fetch failed",
			"network error",
			"getaddrinfo",
		},
	},
	{
		category: events.CategoryPermission,
		severity: events.SeverityMedium,
		messageKeywords: []string{
			"missing permissions",
			"forbidden",
			"permission denied",
			"not authorized",
			"unauthorized",
		},
	},
	{
		category: events.CategoryValidation,
		severity: events.SeverityLow,
		messageKeywords: []string{
			"validation",
			"invalid form body",
			"expected a string",
			"must be a",
			"is required",
		},
	},
}

// Classify determines the category and severity of an error from its message,
// error name, and optional metadata. Matching is case-insensitive substring
// matching, evaluated in fixed priority order.
func Classify(message, errorName string, metadata map[string]any) (events.Category, events.Severity) {
	haystack := strings.ToLower(message)
	name := strings.ToLower(errorName)

	// Metadata may carry the original error name when the producer split it out.
	if name == "" {
		if v, ok := metadata["error.name"].(string); ok {
			name = strings.ToLower(v)
		}
	}

	for _, r := range rules {
		for _, kw := range r.messageKeywords {
			if strings.Contains(haystack, kw) {
				return r.category, r.severity
			}
		}
		for _, kw := range r.nameKeywords {
			if name != "" && strings.Contains(name, kw) {
				return r.category, r.severity
			}
		}
	}

	return events.CategoryUnknown, events.SeverityMedium
}
