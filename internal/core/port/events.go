package port

import (
	"context"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishAccountCreated(ctx context.Context, event domain.AccountCreatedEvent) error
	PublishSessionIssued(ctx context.Context, event domain.SessionIssuedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishAllowanceGranted(ctx context.Context, event domain.AllowanceGrantedEvent) error
}
