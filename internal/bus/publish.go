package bus

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig bounds publish retries.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryConfig: 3 attempts, 200ms doubling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, BaseDelay: 200 * time.Millisecond}
}

// PublishWithRetry publishes ev, retrying with exponential backoff.
// The returned error wraps ErrPublishExhausted and the last failure.
func PublishWithRetry(ctx context.Context, b Bus, topic string, ev MessageEvent, cfg RetryConfig) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	delay := cfg.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		lastErr = b.Publish(ctx, topic, ev)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrPublishExhausted, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrPublishExhausted, cfg.Attempts, lastErr)
}
