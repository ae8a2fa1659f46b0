package port

import (
	"context"
	"time"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
)

// SessionRepository deals with session storage.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Extend(ctx context.Context, sessionID string, expiresAt time.Time, seenAt time.Time) error
	Delete(ctx context.Context, sessionID string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
