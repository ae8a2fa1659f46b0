package port

import (
	"context"
	"time"
)

// HandshakeStore records consumed OAuth states so a callback can succeed at most once.
type HandshakeStore interface {
	// Consume atomically claims the state. It returns false when the state was already claimed.
	Consume(ctx context.Context, state string, ttl time.Duration) (bool, error)
}
