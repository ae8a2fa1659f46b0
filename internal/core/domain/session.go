package domain

import "time"

// Session represents a persisted browser session bound to an account.
// ID holds the digest of the cookie token, never the token itself.
type Session struct {
	ID        string
	AccountID string
	IP        *string
	UserAgent *string
	CreatedAt time.Time
	LastSeen  time.Time
	ExpiresAt time.Time
}

// IsActive reports whether the session is still valid at the supplied moment.
func (s Session) IsActive(at time.Time) bool {
	return at.Before(s.ExpiresAt)
}

// NeedsRenewal reports whether less than half of ttl remains at the supplied moment.
func (s Session) NeedsRenewal(at time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return s.ExpiresAt.Sub(at) < ttl/2
}
