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
)

// CallbackInput is everything the provider callback carries plus the handshake cookies.
type CallbackInput struct {
	ReturnedState  string
	StoredState    string
	Code           string
	StoredVerifier string
	ProviderError  string
	SourceAddress  string
	UserAgent      string
	Path           string
}

// LoginResult is the outcome of a successful callback.
type LoginResult struct {
	Account *domain.Account
	Session domain.Session
	Token   string
	Created bool
}

// LoginService drives the OAuth 2.0 authorization code flow with PKCE.
type LoginService struct {
	provider     port.IdentityProvider
	handshakes   port.HandshakeStore
	accounts     port.AccountRepository
	sessions     *SessionService
	recorder     *SecurityEventRecorder
	events       port.EventPublisher
	metrics      port.AuthMetrics
	logger       *zap.Logger
	handshakeTTL time.Duration
	now          func() time.Time
}

// NewLoginService constructs a LoginService.
func NewLoginService(
	provider port.IdentityProvider,
	handshakes port.HandshakeStore,
	accounts port.AccountRepository,
	sessions *SessionService,
	recorder *SecurityEventRecorder,
	events port.EventPublisher,
	handshakeTTL time.Duration,
	logger *zap.Logger,
) *LoginService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginService{
		provider:     provider,
		handshakes:   handshakes,
		accounts:     accounts,
		sessions:     sessions,
		recorder:     recorder,
		events:       events,
		metrics:      noopMetrics{},
		logger:       logger,
		handshakeTTL: handshakeTTL,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches outcome counters.
func (s *LoginService) WithMetrics(metrics port.AuthMetrics) *LoginService {
	s.metrics = metricsOrNoop(metrics)
	return s
}

// WithClock overrides the internal clock for deterministic tests.
func (s *LoginService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// HandshakeTTL is how long the state and verifier cookies stay valid.
func (s *LoginService) HandshakeTTL() time.Duration {
	return s.handshakeTTL
}

// BeginLogin generates a fresh handshake and the provider authorization URL.
func (s *LoginService) BeginLogin(ctx context.Context) (*domain.LoginStart, error) {
	handshake, err := security.NewHandshake(s.now(), s.handshakeTTL)
	if err != nil {
		s.metrics.LoginOutcome("randomness_unavailable")
		scopedLogger(ctx, s.logger).Error("failed to generate login handshake", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrRandomnessUnavailable, err)
	}

	s.metrics.LoginOutcome("started")

	return &domain.LoginStart{
		AuthorizationURL: s.provider.AuthorizationURL(handshake.State, handshake.CodeChallenge),
		Handshake:        *handshake,
	}, nil
}

// CompleteLogin validates the callback, exchanges the code, resolves the account
// and issues a session. Every failure is recorded and mapped to a sentinel error.
func (s *LoginService) CompleteLogin(ctx context.Context, in CallbackInput) (*LoginResult, error) {
	log := scopedLogger(ctx, s.logger).With(zap.String("client_ip", logger.MaskIP(in.SourceAddress)))

	if in.ProviderError != "" {
		s.fail(ctx, in, domain.SecurityEventLoginProviderDenied, "provider_denied", "error="+truncate(in.ProviderError, 64))
		return nil, ErrProviderExchangeFailed
	}

	if !s.statesMatch(in) {
		s.fail(ctx, in, domain.SecurityEventLoginStateMismatch, "state_mismatch", stateMismatchDetail(in))
		return nil, ErrStateMismatch
	}

	handshake := in.storedHandshake()
	claimed, err := s.handshakes.Consume(ctx, handshake.State, s.handshakeTTL)
	if err != nil {
		log.Warn("handshake marker store unavailable", zap.Error(err))
		s.fail(ctx, in, domain.SecurityEventLoginStateMismatch, "state_mismatch", "marker store unavailable")
		return nil, ErrStateMismatch
	}
	if !claimed {
		s.fail(ctx, in, domain.SecurityEventLoginStateMismatch, "state_mismatch", "state replayed")
		return nil, ErrStateMismatch
	}

	token, err := s.provider.Exchange(ctx, in.Code, handshake.CodeVerifier)
	if err != nil || token == nil || token.AccessToken == "" {
		log.Warn("provider code exchange failed", zap.String("provider", s.provider.Name()), zap.Error(err))
		s.fail(ctx, in, domain.SecurityEventLoginExchangeFailed, "exchange_failed", "")
		return nil, ErrProviderExchangeFailed
	}

	profile, err := s.provider.FetchProfile(ctx, token)
	if err != nil || profile == nil || !profile.Complete() {
		log.Warn("provider profile fetch failed", zap.String("provider", s.provider.Name()), zap.Error(err))
		s.fail(ctx, in, domain.SecurityEventLoginProfileFailed, "profile_failed", "")
		return nil, ErrProfileFetchFailed
	}
	if profile.Provider == "" {
		profile.Provider = s.provider.Name()
	}

	account, created, err := s.accounts.Upsert(ctx, *profile)
	if err != nil {
		log.Error("account upsert failed", zap.Error(err))
		s.fail(ctx, in, domain.SecurityEventLoginAccountFailed, "account_failed", "")
		return nil, fmt.Errorf("%w: %v", ErrAccountResolutionFailed, err)
	}

	issued, err := s.sessions.Issue(ctx, account.ID, SessionMeta{IP: in.SourceAddress, UserAgent: in.UserAgent})
	if err != nil {
		log.Error("session issuance failed", zap.String("account_id", account.ID), zap.Error(err))
		s.recorder.RecordForAccount(ctx, domain.SecurityEventLoginSessionFailed, account.ID, in.SourceAddress, in.Path, "")
		s.metrics.LoginOutcome("session_failed")
		if errors.Is(err, ErrRandomnessUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionIssueFailed, err)
	}

	if created {
		s.publishAccountCreated(ctx, account)
	}

	s.recorder.RecordForAccount(ctx, domain.SecurityEventLoginSucceeded, account.ID, in.SourceAddress, in.Path, "provider="+account.Provider)
	s.metrics.LoginOutcome("succeeded")
	log.Info("login succeeded", zap.String("account_id", account.ID), zap.Bool("new_account", created))

	return &LoginResult{
		Account: account,
		Session: issued.Session,
		Token:   issued.Token,
		Created: created,
	}, nil
}

func (in CallbackInput) storedHandshake() domain.Handshake {
	return domain.Handshake{State: in.StoredState, CodeVerifier: in.StoredVerifier}
}

func (s *LoginService) statesMatch(in CallbackInput) bool {
	if in.ReturnedState == "" || !in.storedHandshake().Paired() {
		return false
	}
	return security.ConstantTimeEqual(in.ReturnedState, in.StoredState)
}

func (s *LoginService) fail(ctx context.Context, in CallbackInput, kind domain.SecurityEventKind, outcome, detail string) {
	s.recorder.Record(ctx, kind, in.SourceAddress, in.Path, detail)
	s.metrics.LoginOutcome(outcome)
}

func (s *LoginService) publishAccountCreated(ctx context.Context, account *domain.Account) {
	if s.events == nil {
		return
	}
	event := domain.AccountCreatedEvent{
		EventID:          uuid.NewString(),
		AccountID:        account.ID,
		Provider:         account.Provider,
		ProviderUsername: account.ProviderUsername,
		CreatedAt:        account.CreatedAt,
	}
	if err := s.events.PublishAccountCreated(ctx, event); err != nil {
		scopedLogger(ctx, s.logger).Warn("failed to publish account created event", zap.Error(err))
	}
}

func stateMismatchDetail(in CallbackInput) string {
	switch {
	case in.StoredState == "":
		return "state cookie missing"
	case in.StoredVerifier == "":
		return "verifier cookie missing"
	case in.ReturnedState == "":
		return "state parameter missing"
	default:
		return "state differs"
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
