package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
)

const (
	// GrantSourceFeatureShipped labels grants triggered by an implemented feature.
	GrantSourceFeatureShipped = "feature_implemented"
	defaultDedupeTTL          = 24 * time.Hour
)

// AllowanceGranter is the ledger operation the consumer drives.
type AllowanceGranter interface {
	GrantToAll(ctx context.Context, amount int, source string) (int64, error)
}

// EventClaimer records processed event ids so redelivered messages grant at most once.
type EventClaimer interface {
	Consume(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// FeatureImplementedConsumer grants every voter extra allowance when a suggestion ships.
type FeatureImplementedConsumer struct {
	granter      AllowanceGranter
	claimer      EventClaimer
	defaultGrant int
	dedupeTTL    time.Duration
	tracer       trace.Tracer
	logger       *zap.Logger
}

// NewFeatureImplementedConsumer constructs the consumer. claimer may be nil to disable de-duplication.
func NewFeatureImplementedConsumer(granter AllowanceGranter, claimer EventClaimer, defaultGrant int, logger *zap.Logger) *FeatureImplementedConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeatureImplementedConsumer{
		granter:      granter,
		claimer:      claimer,
		defaultGrant: defaultGrant,
		dedupeTTL:    defaultDedupeTTL,
		tracer:       otel.Tracer("board/kafka"),
		logger:       logger,
	}
}

// WithTracer replaces the tracer used for per-message spans.
func (c *FeatureImplementedConsumer) WithTracer(tracer trace.Tracer) *FeatureImplementedConsumer {
	if tracer != nil {
		c.tracer = tracer
	}
	return c
}

// HandleMessage decodes a Kafka message and applies the grant.
func (c *FeatureImplementedConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	ctx, span := c.tracer.Start(ctx, "feature.implemented process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.Int("messaging.kafka.partition", int(msg.Partition)),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	var event domain.FeatureImplementedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		span.SetStatus(codes.Error, "undecodable message")
		return fmt.Errorf("decode feature implemented event: %w", err)
	}
	span.SetAttributes(attribute.String("board.feature_id", event.FeatureID))

	if err := c.HandleEvent(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grant failed")
		return err
	}
	return nil
}

// HandleEvent grants the event's amount, or the configured default, to every allowance record.
func (c *FeatureImplementedConsumer) HandleEvent(ctx context.Context, event domain.FeatureImplementedEvent) error {
	amount := event.Grant
	if amount <= 0 {
		amount = c.defaultGrant
	}
	if amount <= 0 {
		c.logger.Debug("feature implemented event carries no grant", zap.String("feature_id", event.FeatureID))
		return nil
	}

	eventKey := strings.TrimSpace(event.EventID)
	if eventKey == "" {
		eventKey = strings.TrimSpace(event.FeatureID)
	}
	if c.claimer != nil && eventKey != "" {
		claimed, err := c.claimer.Consume(ctx, eventKey, c.dedupeTTL)
		if err != nil {
			return fmt.Errorf("claim feature event: %w", err)
		}
		if !claimed {
			c.logger.Info("skipping duplicate feature implemented event", zap.String("event_id", eventKey))
			return nil
		}
	}

	updated, err := c.granter.GrantToAll(ctx, amount, GrantSourceFeatureShipped)
	if err != nil {
		return fmt.Errorf("grant allowance: %w", err)
	}

	c.logger.Info("granted vote allowance for implemented feature",
		zap.String("feature_id", event.FeatureID),
		zap.Int("amount", amount),
		zap.Int64("identities", updated),
	)
	return nil
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *FeatureImplementedConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *FeatureImplementedConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes messages until the claim closes. Undecodable messages are logged and
// committed so a poison message cannot stall the partition.
func (c *FeatureImplementedConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				c.logger.Error("feature implemented event failed",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

var _ sarama.ConsumerGroupHandler = (*FeatureImplementedConsumer)(nil)
