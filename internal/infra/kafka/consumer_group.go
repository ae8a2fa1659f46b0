package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/infra/config"
)

// ConsumerGroup drives a sarama consumer group until its context is cancelled.
type ConsumerGroup struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler sarama.ConsumerGroupHandler
	logger  *zap.Logger
}

// NewConsumerGroup joins cfg.ConsumerGroup and subscribes to the feature-shipped topic.
func NewConsumerGroup(cfg config.KafkaSettings, clientID string, handler sarama.ConsumerGroupHandler, logger *zap.Logger) (*ConsumerGroup, error) {
	if cfg.FeatureShipTopic == "" {
		return nil, fmt.Errorf("feature ship topic is required")
	}

	saramaConfig := newSaramaConfig(clientID)
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	return newConsumerGroup(group, []string{cfg.FeatureShipTopic}, handler, logger), nil
}

func newConsumerGroup(group sarama.ConsumerGroup, topics []string, handler sarama.ConsumerGroupHandler, logger *zap.Logger) *ConsumerGroup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsumerGroup{group: group, topics: topics, handler: handler, logger: logger}
}

// Run consumes until ctx is cancelled or the group is closed.
func (g *ConsumerGroup) Run(ctx context.Context) error {
	go g.logErrors(ctx)

	g.logger.Info("Kafka consumer group started", zap.Strings("topics", g.topics))
	for {
		if err := g.group.Consume(ctx, g.topics, g.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			g.logger.Error("Kafka consumer group session ended", zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (g *ConsumerGroup) logErrors(ctx context.Context) {
	for {
		select {
		case err, ok := <-g.group.Errors():
			if !ok {
				return
			}
			g.logger.Warn("Kafka consumer error", zap.Error(err))
		case <-ctx.Done():
			return
		}
	}
}

// Close leaves the group.
func (g *ConsumerGroup) Close() error {
	g.logger.Info("Closing Kafka consumer group")
	if err := g.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	return nil
}
