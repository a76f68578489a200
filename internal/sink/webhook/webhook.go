// Package webhook delivers rendered notifications to an HTTP webhook
// endpoint via JSON POST.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"errmon/internal/shared"
	"errmon/internal/sink"
	"errmon/internal/sink/payload"
)

// defaultRetryAfter is used when a 429 response carries no usable hint.
const defaultRetryAfter = 5 * time.Second

// Sink posts notifications to a webhook URL.
type Sink struct {
	url        string
	httpClient *http.Client
}

var _ sink.Sink = (*Sink)(nil)

// New creates a webhook sink for the given URL.
func New(url string) (*Sink, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if !isValidURL(url) {
		return nil, fmt.Errorf("invalid webhook URL: %q (must be a valid HTTP/HTTPS URL)", shared.MaskURL(url))
	}
	return &Sink{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Deliver sends one notification. HTTP 429 responses are mapped to
// *sink.RateLimitedError with the server's retry-after hint; other non-2xx
// statuses are plain errors.
func (s *Sink) Deliver(ctx context.Context, msg *payload.Message) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send notification",
			"error", err,
			"webhook_url", shared.MaskURL(s.url),
			"delivery_id", msg.DeliveryID,
		)
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp)
		slog.Warn("Webhook rate limited delivery",
			"retry_after", retryAfter,
			"delivery_id", msg.DeliveryID,
		)
		return &sink.RateLimitedError{RetryAfter: retryAfter}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Webhook returned error status",
			"status_code", resp.StatusCode,
			"delivery_id", msg.DeliveryID,
		)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	slog.Info("Successfully delivered notification",
		"delivery_id", msg.DeliveryID,
		"fingerprint", msg.Fingerprint,
		"severity", msg.Severity,
	)

	return nil
}

// parseRetryAfter extracts the backoff hint from a 429 response: the
// Retry-After header (seconds) first, then a JSON body with a retry_after
// field (seconds, possibly fractional).
func parseRetryAfter(resp *http.Response) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var parsed struct {
			RetryAfter float64 `json:"retry_after"`
		}
		if json.Unmarshal(body, &parsed) == nil && parsed.RetryAfter > 0 {
			return time.Duration(parsed.RetryAfter * float64(time.Second))
		}
	}

	return defaultRetryAfter
}

func isValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
