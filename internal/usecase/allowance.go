package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
)

// AllowancePolicy bounds the vote ledger.
type AllowancePolicy struct {
	Default int
	Max     int
}

// AllowanceService maintains per-identity vote allowances.
type AllowanceService struct {
	repo     port.AllowanceRepository
	events   port.EventPublisher
	recorder *SecurityEventRecorder
	metrics  port.AuthMetrics
	policy   AllowancePolicy
	logger   *zap.Logger
	now      func() time.Time
}

// NewAllowanceService constructs an AllowanceService.
func NewAllowanceService(repo port.AllowanceRepository, events port.EventPublisher, recorder *SecurityEventRecorder, policy AllowancePolicy, logger *zap.Logger) *AllowanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Max < policy.Default {
		policy.Max = policy.Default
	}
	return &AllowanceService{
		repo:     repo,
		events:   events,
		recorder: recorder,
		metrics:  noopMetrics{},
		policy:   policy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches outcome counters.
func (s *AllowanceService) WithMetrics(metrics port.AuthMetrics) *AllowanceService {
	s.metrics = metricsOrNoop(metrics)
	return s
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AllowanceService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RemainingFor returns the votes left for identity, creating the record on first sight.
func (s *AllowanceService) RemainingFor(ctx context.Context, identity domain.Identity) (int, error) {
	if !identity.Valid() {
		return 0, ErrInvalidIdentity
	}
	if err := s.repo.Ensure(ctx, identity, s.policy.Default); err != nil {
		return 0, fmt.Errorf("ensure allowance: %w", err)
	}
	remaining, err := s.repo.Remaining(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("read allowance: %w", err)
	}
	return remaining, nil
}

// Consume spends one vote. It returns ErrAllowanceDepleted when nothing is left.
func (s *AllowanceService) Consume(ctx context.Context, identity domain.Identity) (int, error) {
	if !identity.Valid() {
		return 0, ErrInvalidIdentity
	}
	if err := s.repo.Ensure(ctx, identity, s.policy.Default); err != nil {
		s.metrics.AllowanceOutcome("consume", string(identity.Kind), "error")
		return 0, fmt.Errorf("ensure allowance: %w", err)
	}

	remaining, ok, err := s.repo.ConsumeOne(ctx, identity)
	if err != nil {
		s.metrics.AllowanceOutcome("consume", string(identity.Kind), "error")
		return 0, fmt.Errorf("consume allowance: %w", err)
	}
	if !ok {
		s.metrics.AllowanceOutcome("consume", string(identity.Kind), "depleted")
		return 0, ErrAllowanceDepleted
	}

	s.metrics.AllowanceOutcome("consume", string(identity.Kind), "ok")
	return remaining, nil
}

// Refund returns one previously spent vote, never exceeding the configured cap.
// It returns ErrNothingToRefund when the identity has no spent vote.
func (s *AllowanceService) Refund(ctx context.Context, identity domain.Identity) (int, error) {
	if !identity.Valid() {
		return 0, ErrInvalidIdentity
	}
	if err := s.repo.Ensure(ctx, identity, s.policy.Default); err != nil {
		s.metrics.AllowanceOutcome("refund", string(identity.Kind), "error")
		return 0, fmt.Errorf("ensure allowance: %w", err)
	}

	remaining, ok, err := s.repo.RefundOne(ctx, identity, s.policy.Max)
	if err != nil {
		s.metrics.AllowanceOutcome("refund", string(identity.Kind), "error")
		return 0, fmt.Errorf("refund allowance: %w", err)
	}
	if !ok {
		s.metrics.AllowanceOutcome("refund", string(identity.Kind), "nothing_spent")
		return 0, ErrNothingToRefund
	}

	s.metrics.AllowanceOutcome("refund", string(identity.Kind), "ok")
	return remaining, nil
}

// GrantToAll adds amount to every existing allowance, capped, and returns the number of records raised.
func (s *AllowanceService) GrantToAll(ctx context.Context, amount int, source string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidGrantAmount
	}

	updated, err := s.repo.GrantAll(ctx, amount, s.policy.Max)
	if err != nil {
		s.metrics.AllowanceOutcome("grant", "all", "error")
		return 0, fmt.Errorf("grant allowance: %w", err)
	}
	s.metrics.AllowanceOutcome("grant", "all", "ok")

	detail := "amount=" + strconv.Itoa(amount) + " source=" + source + " updated=" + strconv.FormatInt(updated, 10)
	s.recorder.Record(ctx, domain.SecurityEventAllowanceGranted, "", "", detail)

	if s.events != nil {
		event := domain.AllowanceGrantedEvent{
			EventID:    uuid.NewString(),
			Amount:     amount,
			Identities: updated,
			Source:     source,
			GrantedAt:  s.now(),
		}
		if err := s.events.PublishAllowanceGranted(ctx, event); err != nil {
			scopedLogger(ctx, s.logger).Warn("failed to publish allowance granted event", zap.Error(err))
		}
	}

	s.logger.Info("vote allowance granted",
		zap.Int("amount", amount),
		zap.String("source", source),
		zap.Int64("updated", updated),
	)

	return updated, nil
}
