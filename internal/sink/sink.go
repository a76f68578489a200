// Package sink defines the delivery boundary of the pipeline: where rendered
// notifications leave the process.
package sink

import (
	"context"
	"fmt"
	"time"

	"errmon/internal/sink/payload"
)

// Sink delivers a rendered notification to an external target.
type Sink interface {
	// Deliver sends one notification. A *RateLimitedError return means the
	// target asked us to back off; any other error is non-retryable.
	Deliver(ctx context.Context, msg *payload.Message) error
}

// RateLimitedError reports that the sink rejected a delivery due to rate
// limiting, with the backoff the target hinted at.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("sink rate limited, retry after %s", e.RetryAfter)
}
