package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		append([]zap.Field{
			zap.String("event_type", eventType),
			zap.String("account_id", accountID),
			zap.Time("timestamp", at.UTC()),
		}, fields...)...,
	)
}

// PublishAccountCreated logs account.created events.
func (p *StubPublisher) PublishAccountCreated(_ context.Context, event domain.AccountCreatedEvent) error {
	p.logEvent(EventAccountCreated, event.AccountID, event.CreatedAt,
		zap.String("provider", event.Provider),
		zap.String("provider_username", event.ProviderUsername),
	)
	return nil
}

// PublishSessionIssued logs session.issued events.
func (p *StubPublisher) PublishSessionIssued(_ context.Context, event domain.SessionIssuedEvent) error {
	p.logEvent(EventSessionIssued, event.AccountID, event.IssuedAt,
		zap.Time("expires_at", event.ExpiresAt),
	)
	return nil
}

// PublishSessionRevoked logs session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.logEvent(EventSessionRevoked, event.AccountID, event.RevokedAt,
		zap.String("reason", event.Reason),
	)
	return nil
}

// PublishAllowanceGranted logs allowance.granted events.
func (p *StubPublisher) PublishAllowanceGranted(_ context.Context, event domain.AllowanceGrantedEvent) error {
	p.logEvent(EventAllowanceGranted, "", event.GrantedAt,
		zap.Int("amount", event.Amount),
		zap.Int64("identities", event.Identities),
		zap.String("source", event.Source),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
