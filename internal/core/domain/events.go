package domain

import "time"

// AccountCreatedEvent is published on board.account.created when a provider identity logs in for the first time.
type AccountCreatedEvent struct {
	EventID          string
	AccountID        string
	Provider         string
	ProviderUsername string
	CreatedAt        time.Time
}

// SessionIssuedEvent is published on board.session.issued.
type SessionIssuedEvent struct {
	EventID   string
	SessionID string
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	IPAddress *string
}

// SessionRevokedEvent is published on board.session.revoked.
type SessionRevokedEvent struct {
	EventID   string
	SessionID string
	AccountID string
	RevokedAt time.Time
	Reason    string
}

// AllowanceGrantedEvent is published on board.allowance.granted after a bulk grant.
type AllowanceGrantedEvent struct {
	EventID    string
	Amount     int
	Identities int64
	Source     string
	GrantedAt  time.Time
	Metadata   map[string]any
}

// FeatureImplementedEvent is consumed from board.feature.implemented.
type FeatureImplementedEvent struct {
	EventID       string    `json:"event_id"`
	FeatureID     string    `json:"feature_id"`
	Title         string    `json:"title,omitempty"`
	Grant         int       `json:"grant,omitempty"`
	ImplementedAt time.Time `json:"implemented_at"`
}
