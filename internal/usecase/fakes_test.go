package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
	"github.com/tolibear/evolving-site-sub001/internal/repository"
)

type fakeProvider struct {
	mu            sync.Mutex
	token         *port.ProviderToken
	exchangeErr   error
	profile       *domain.ProviderProfile
	profileErr    error
	exchangeCalls int
	lastVerifier  string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		token: &port.ProviderToken{AccessToken: "provider-access", TokenType: "bearer"},
		profile: &domain.ProviderProfile{
			Provider:    "x",
			ID:          "42",
			Username:    "octo",
			DisplayName: "Octo Cat",
			AvatarURL:   "https://img.example/octo.png",
		},
	}
}

func (f *fakeProvider) Name() string { return "x" }

func (f *fakeProvider) AuthorizationURL(state, codeChallenge string) string {
	return "https://provider.example/authorize?state=" + state + "&code_challenge=" + codeChallenge
}

func (f *fakeProvider) Exchange(ctx context.Context, code, codeVerifier string) (*port.ProviderToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeCalls++
	f.lastVerifier = codeVerifier
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.token, nil
}

func (f *fakeProvider) FetchProfile(ctx context.Context, token *port.ProviderToken) (*domain.ProviderProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if f.profile == nil {
		return nil, nil
	}
	copy := *f.profile
	return &copy, nil
}

func (f *fakeProvider) exchanges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeCalls
}

type fakeHandshakeStore struct {
	mu      sync.Mutex
	claimed map[string]bool
	err     error
}

func newFakeHandshakeStore() *fakeHandshakeStore {
	return &fakeHandshakeStore{claimed: make(map[string]bool)}
}

func (f *fakeHandshakeStore) Consume(ctx context.Context, state string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.claimed[state] {
		return false, nil
	}
	f.claimed[state] = true
	return true, nil
}

type fakeAccountRepository struct {
	mu        sync.Mutex
	accounts  map[string]*domain.Account
	upsertErr error
	getErr    error
}

func newFakeAccountRepository(accounts ...domain.Account) *fakeAccountRepository {
	repo := &fakeAccountRepository{accounts: make(map[string]*domain.Account)}
	for i := range accounts {
		account := accounts[i]
		repo.accounts[account.ID] = &account
	}
	return repo
}

func (f *fakeAccountRepository) Upsert(ctx context.Context, profile domain.ProviderProfile) (*domain.Account, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, false, f.upsertErr
	}
	for _, account := range f.accounts {
		if account.Provider == profile.Provider && account.ProviderUserID == profile.ID {
			account.ProviderUsername = profile.Username
			account.ProviderDisplayName = profile.DisplayName
			account.ProviderAvatarURL = profile.AvatarURL
			copy := *account
			return &copy, false, nil
		}
	}
	account := &domain.Account{
		ID:                  "account-" + profile.ID,
		Provider:            profile.Provider,
		ProviderUserID:      profile.ID,
		ProviderUsername:    profile.Username,
		ProviderDisplayName: profile.DisplayName,
		ProviderAvatarURL:   profile.AvatarURL,
	}
	f.accounts[account.ID] = account
	copy := *account
	return &copy, true, nil
}

func (f *fakeAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	account, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *account
	return &copy, nil
}

func (f *fakeAccountRepository) GetByProviderIdentity(ctx context.Context, provider, providerUserID string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.Provider == provider && account.ProviderUserID == providerUserID {
			copy := *account
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeSessionRepository struct {
	mu          sync.Mutex
	sessions    map[string]domain.Session
	createErr   error
	getErr      error
	deleteErr   error
	extendCalls int
	extendErr   error
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{sessions: make(map[string]domain.Session)}
}

func (f *fakeSessionRepository) Create(ctx context.Context, session domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.sessions[session.ID]; exists {
		return repository.ErrConflict
	}
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (f *fakeSessionRepository) Extend(ctx context.Context, sessionID string, expiresAt, seenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.extendErr != nil {
		return f.extendErr
	}
	session, ok := f.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	f.extendCalls++
	session.ExpiresAt = expiresAt
	session.LastSeen = seenAt
	f.sessions[sessionID] = session
	return nil
}

func (f *fakeSessionRepository) Delete(ctx context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	if _, ok := f.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(f.sessions, sessionID)
	return true, nil
}

func (f *fakeSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for id, session := range f.sessions {
		if !session.ExpiresAt.After(before) {
			delete(f.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeSessionRepository) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// fakeAllowanceRepository mirrors the conditional SQL updates under a mutex.
type fakeAllowanceRepository struct {
	mu       sync.Mutex
	balances map[domain.Identity]int
	spent    map[domain.Identity]int
	err      error
}

func newFakeAllowanceRepository() *fakeAllowanceRepository {
	return &fakeAllowanceRepository{
		balances: make(map[domain.Identity]int),
		spent:    make(map[domain.Identity]int),
	}
}

func (f *fakeAllowanceRepository) Ensure(ctx context.Context, identity domain.Identity, initial int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.balances[identity]; !ok {
		f.balances[identity] = initial
	}
	return nil
}

func (f *fakeAllowanceRepository) Remaining(ctx context.Context, identity domain.Identity) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining, ok := f.balances[identity]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return remaining, nil
}

func (f *fakeAllowanceRepository) ConsumeOne(ctx context.Context, identity domain.Identity) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining, ok := f.balances[identity]
	if !ok || remaining <= 0 {
		return 0, false, nil
	}
	f.balances[identity] = remaining - 1
	f.spent[identity]++
	return remaining - 1, true, nil
}

func (f *fakeAllowanceRepository) RefundOne(ctx context.Context, identity domain.Identity, maxRemaining int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining, ok := f.balances[identity]
	if !ok || f.spent[identity] <= 0 {
		return 0, false, nil
	}
	if remaining < maxRemaining {
		remaining++
	}
	f.balances[identity] = remaining
	f.spent[identity]--
	return remaining, true, nil
}

func (f *fakeAllowanceRepository) GrantAll(ctx context.Context, amount int, maxRemaining int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var updated int64
	for identity, remaining := range f.balances {
		if remaining >= maxRemaining {
			continue
		}
		f.balances[identity] = min(remaining+amount, maxRemaining)
		updated++
	}
	return updated, nil
}

type fakeSecurityEventRepository struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
	err    error
}

func (f *fakeSecurityEventRepository) Append(ctx context.Context, event domain.SecurityEvent) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSecurityEventRepository) kinds() []domain.SecurityEventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]domain.SecurityEventKind, 0, len(f.events))
	for _, event := range f.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

type fakeEventPublisher struct {
	mu        sync.Mutex
	created   []domain.AccountCreatedEvent
	issued    []domain.SessionIssuedEvent
	revoked   []domain.SessionRevokedEvent
	granted   []domain.AllowanceGrantedEvent
	publisher error
}

func (f *fakeEventPublisher) PublishAccountCreated(ctx context.Context, event domain.AccountCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, event)
	return f.publisher
}

func (f *fakeEventPublisher) PublishSessionIssued(ctx context.Context, event domain.SessionIssuedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued = append(f.issued, event)
	return f.publisher
}

func (f *fakeEventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, event)
	return f.publisher
}

func (f *fakeEventPublisher) PublishAllowanceGranted(ctx context.Context, event domain.AllowanceGrantedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted = append(f.granted, event)
	return f.publisher
}

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{counts: make(map[string]int)}
}

func (f *fakeMetrics) inc(key string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key] += n
}

func (f *fakeMetrics) LoginOutcome(outcome string) { f.inc("login:"+outcome, 1) }

func (f *fakeMetrics) AllowanceOutcome(operation, identityKind, outcome string) {
	f.inc("allowance:"+operation+":"+identityKind+":"+outcome, 1)
}

func (f *fakeMetrics) SecurityEvent(kind string) { f.inc("event:"+kind, 1) }

func (f *fakeMetrics) Reaped(n int64) { f.inc("reaped", int(n)) }

func (f *fakeMetrics) get(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

var errStoreDown = errors.New("store down")
