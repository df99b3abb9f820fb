// Package retry provides the backoff policy shared by every outbound call
// path: both inference gateways and the warehouse-backed vector search.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy holds the configuration for retry behavior.
type Policy struct {
	// MaxAttempts is the total number of calls made, first try included.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter is the fraction of the computed delay randomized away
	// (0 disables, 0.2 means +/-20%).
	Jitter float64
}

// DefaultPolicy returns a sensible default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// Retryable decides whether err is worth another attempt.
type Retryable func(err error) bool

// Logger is invoked once per retry attempt, never for the first try.
type Logger func(attempt, maxAttempts int, delay time.Duration, err error)

// delay computes the backoff before retry n (n starts at 1 for the first
// retry), capped at MaxDelay and randomized by Jitter.
func (p Policy) delay(n int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-1)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread + rand.Float64()*2*spread)
	}
	return d
}

// Do runs fn up to p.MaxAttempts times, backing off between attempts while
// retryable reports the error as transient. It returns the number of attempts
// actually made alongside the final error, so callers can surface attempt
// telemetry. A nil retryable retries every error.
func Do(ctx context.Context, p Policy, retryable Retryable, logger Logger, fn func(attempt int) error) (int, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			d := p.delay(attempt - 1)
			if logger != nil {
				logger(attempt, p.MaxAttempts, d, lastErr)
			}
			select {
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			case <-time.After(d):
			}
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if retryable != nil && !retryable(lastErr) {
			return attempt, lastErr
		}
	}

	return p.MaxAttempts, lastErr
}
