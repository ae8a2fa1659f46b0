package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
	"github.com/tolibear/evolving-site-sub001/internal/infra/logger"
	"github.com/tolibear/evolving-site-sub001/internal/infra/security"
	"github.com/tolibear/evolving-site-sub001/internal/repository"
)

// SessionPolicy controls session lifetime.
type SessionPolicy struct {
	TTL     time.Duration
	Sliding bool
}

// SessionMeta captures request attributes stored alongside a session.
type SessionMeta struct {
	IP        string
	UserAgent string
}

// IssuedSession carries the cookie token; only its digest is persisted.
type IssuedSession struct {
	Token   string
	Session domain.Session
}

// SessionService issues, validates and destroys opaque browser sessions.
type SessionService struct {
	sessions port.SessionRepository
	accounts port.AccountRepository
	events   port.EventPublisher
	metrics  port.AuthMetrics
	logger   *zap.Logger
	policy   SessionPolicy
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions port.SessionRepository, accounts port.AccountRepository, events port.EventPublisher, policy SessionPolicy, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions: sessions,
		accounts: accounts,
		events:   events,
		metrics:  noopMetrics{},
		logger:   logger,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches outcome counters.
func (s *SessionService) WithMetrics(metrics port.AuthMetrics) *SessionService {
	s.metrics = metricsOrNoop(metrics)
	return s
}

// TTL returns the configured session lifetime.
func (s *SessionService) TTL() time.Duration {
	return s.policy.TTL
}

// Issue creates a session for the account and returns the cookie token.
func (s *SessionService) Issue(ctx context.Context, accountID string, meta SessionMeta) (*IssuedSession, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("account id is required")
	}

	token, err := security.GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomnessUnavailable, err)
	}

	now := s.now()
	session := domain.Session{
		ID:        security.HashToken(token),
		AccountID: accountID,
		IP:        optional(meta.IP),
		UserAgent: optional(meta.UserAgent),
		CreatedAt: now,
		LastSeen:  now,
		ExpiresAt: now.Add(s.policy.TTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.publishIssued(ctx, session)

	return &IssuedSession{Token: token, Session: session}, nil
}

// Validate resolves a cookie token to its account. Missing, malformed, unknown
// and expired tokens all yield (nil, nil); storage faults are logged and treated
// the same so the caller sees an anonymous visitor.
func (s *SessionService) Validate(ctx context.Context, token string) (*domain.Account, error) {
	account, _, err := s.Resolve(ctx, token)
	return account, err
}

// Resolve behaves like Validate and also reports the new expiry when a sliding
// renewal was persisted, so the caller can re-issue the cookie. renewedUntil is
// zero when nothing was extended.
func (s *SessionService) Resolve(ctx context.Context, token string) (account *domain.Account, renewedUntil time.Time, err error) {
	if !security.WellFormedSessionToken(token) {
		return nil, time.Time{}, nil
	}

	log := scopedLogger(ctx, s.logger)
	sessionID := security.HashToken(token)

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn("session lookup failed", zap.String("session_id", logger.MaskString(sessionID)), zap.Error(err))
		}
		return nil, time.Time{}, nil
	}

	now := s.now()
	if !session.IsActive(now) {
		return nil, time.Time{}, nil
	}

	account, err = s.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn("session account lookup failed", zap.String("account_id", session.AccountID), zap.Error(err))
		}
		return nil, time.Time{}, nil
	}

	if s.policy.Sliding && session.NeedsRenewal(now, s.policy.TTL) {
		expiresAt := now.Add(s.policy.TTL)
		if err := s.sessions.Extend(ctx, sessionID, expiresAt, now); err != nil {
			log.Warn("session renewal failed", zap.String("session_id", logger.MaskString(sessionID)), zap.Error(err))
		} else {
			renewedUntil = expiresAt
		}
	}

	return account, renewedUntil, nil
}

// Destroy removes the session behind token. Unknown tokens are a no-op.
func (s *SessionService) Destroy(ctx context.Context, token string) error {
	if !security.WellFormedSessionToken(token) {
		return nil
	}
	sessionID := security.HashToken(token)

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load session: %w", err)
	}

	deleted, err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if deleted {
		s.publishRevoked(ctx, session, "logout")
	}
	return nil
}

// ReapExpired deletes every session whose expiry has passed.
func (s *SessionService) ReapExpired(ctx context.Context) (int64, error) {
	removed, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	s.metrics.Reaped(removed)
	return removed, nil
}

// RunReaper calls ReapExpired every interval until ctx is cancelled.
func (s *SessionService) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.ReapExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("session reaper failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Info("expired sessions reaped", zap.Int64("count", removed))
			}
		}
	}
}

func (s *SessionService) publishIssued(ctx context.Context, session domain.Session) {
	if s.events == nil {
		return
	}
	event := domain.SessionIssuedEvent{
		EventID:   uuid.NewString(),
		SessionID: session.ID,
		AccountID: session.AccountID,
		IssuedAt:  session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
		IPAddress: session.IP,
	}
	if err := s.events.PublishSessionIssued(ctx, event); err != nil {
		scopedLogger(ctx, s.logger).Warn("failed to publish session issued event", zap.Error(err))
	}
}

func (s *SessionService) publishRevoked(ctx context.Context, session *domain.Session, reason string) {
	if s.events == nil {
		return
	}
	event := domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		SessionID: session.ID,
		AccountID: session.AccountID,
		RevokedAt: s.now(),
		Reason:    reason,
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		scopedLogger(ctx, s.logger).Warn("failed to publish session revoked event", zap.Error(err))
	}
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
