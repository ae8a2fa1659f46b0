package port

import (
	"context"
	"time"
)

// RateLimitWindow is the state of a sliding window after an acquisition attempt.
type RateLimitWindow struct {
	Allowed bool
	Count   int
	Oldest  time.Time
}

// RateLimitStore enforces sliding-window limits atomically.
type RateLimitStore interface {
	// Acquire trims expired attempts, records one at the reference time when under limit and reports the window.
	Acquire(ctx context.Context, identifier string, limit int, window time.Duration, at time.Time) (RateLimitWindow, error)
}
