package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
	"github.com/tolibear/evolving-site-sub001/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types double as topic suffixes once the topic prefix is applied.
const (
	EventAccountCreated   = "account.created"
	EventSessionIssued    = "session.issued"
	EventSessionRevoked   = "session.revoked"
	EventAllowanceGranted = "allowance.granted"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	topic := p.producer.TopicName(eventType)
	envelope := eventEnvelope{
		EventID:   id,
		EventType: topic,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(bytes),
	}
	if accountID != "" {
		message.Key = sarama.StringEncoder(accountID)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountCreated publishes board.account.created events.
func (p *EventPublisher) PublishAccountCreated(ctx context.Context, event domain.AccountCreatedEvent) error {
	payload := struct {
		AccountID        string    `json:"account_id"`
		Provider         string    `json:"provider"`
		ProviderUsername string    `json:"provider_username"`
		CreatedAt        time.Time `json:"created_at"`
	}{
		AccountID:        event.AccountID,
		Provider:         event.Provider,
		ProviderUsername: event.ProviderUsername,
		CreatedAt:        event.CreatedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventAccountCreated, event.AccountID, event.CreatedAt, payload)
}

// PublishSessionIssued publishes board.session.issued events.
func (p *EventPublisher) PublishSessionIssued(ctx context.Context, event domain.SessionIssuedEvent) error {
	payload := struct {
		SessionID string    `json:"session_id"`
		AccountID string    `json:"account_id"`
		IssuedAt  time.Time `json:"issued_at"`
		ExpiresAt time.Time `json:"expires_at"`
		IPAddress *string   `json:"ip_address,omitempty"`
	}{
		SessionID: event.SessionID,
		AccountID: event.AccountID,
		IssuedAt:  event.IssuedAt.UTC(),
		ExpiresAt: event.ExpiresAt.UTC(),
		IPAddress: event.IPAddress,
	}

	return p.publish(ctx, event.EventID, EventSessionIssued, event.AccountID, event.IssuedAt, payload)
}

// PublishSessionRevoked publishes board.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		SessionID string    `json:"session_id"`
		AccountID string    `json:"account_id"`
		RevokedAt time.Time `json:"revoked_at"`
		Reason    string    `json:"reason"`
	}{
		SessionID: event.SessionID,
		AccountID: event.AccountID,
		RevokedAt: event.RevokedAt.UTC(),
		Reason:    event.Reason,
	}

	return p.publish(ctx, event.EventID, EventSessionRevoked, event.AccountID, event.RevokedAt, payload)
}

// PublishAllowanceGranted publishes board.allowance.granted events.
func (p *EventPublisher) PublishAllowanceGranted(ctx context.Context, event domain.AllowanceGrantedEvent) error {
	payload := struct {
		Amount     int            `json:"amount"`
		Identities int64          `json:"identities"`
		Source     string         `json:"source"`
		GrantedAt  time.Time      `json:"granted_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		Amount:     event.Amount,
		Identities: event.Identities,
		Source:     event.Source,
		GrantedAt:  event.GrantedAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventAllowanceGranted, "", event.GrantedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
