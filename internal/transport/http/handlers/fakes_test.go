package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
	"github.com/tolibear/evolving-site-sub001/internal/repository"
	"github.com/tolibear/evolving-site-sub001/internal/transport/http/middleware"
	"github.com/tolibear/evolving-site-sub001/internal/usecase"
)

var errBackendDown = errors.New("backend down")

type memoryProvider struct {
	failExchange bool
}

func (p *memoryProvider) Name() string { return "x" }

func (p *memoryProvider) AuthorizationURL(state, codeChallenge string) string {
	return "https://provider.example/authorize?state=" + state + "&code_challenge=" + codeChallenge
}

func (p *memoryProvider) Exchange(ctx context.Context, code, codeVerifier string) (*port.ProviderToken, error) {
	if p.failExchange || code == "" || codeVerifier == "" {
		return nil, errors.New("invalid_grant")
	}
	return &port.ProviderToken{AccessToken: "access-" + code}, nil
}

func (p *memoryProvider) FetchProfile(ctx context.Context, token *port.ProviderToken) (*domain.ProviderProfile, error) {
	return &domain.ProviderProfile{Provider: "x", ID: "1001", Username: "grace", DisplayName: "Grace H"}, nil
}

type memoryHandshakes struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memoryHandshakes) Consume(ctx context.Context, state string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[state] {
		return false, nil
	}
	m.seen[state] = true
	return true, nil
}

type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
}

func (m *memoryAccounts) Upsert(ctx context.Context, profile domain.ProviderProfile) (*domain.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accounts == nil {
		m.accounts = make(map[string]domain.Account)
	}
	id := "acct-" + profile.ID
	account, exists := m.accounts[id]
	account.ID = id
	account.Provider = profile.Provider
	account.ProviderUserID = profile.ID
	account.ProviderUsername = profile.Username
	account.ProviderDisplayName = profile.DisplayName
	m.accounts[id] = account
	return &account, !exists, nil
}

func (m *memoryAccounts) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (m *memoryAccounts) GetByProviderIdentity(ctx context.Context, provider, providerUserID string) (*domain.Account, error) {
	return m.GetByID(ctx, "acct-"+providerUserID)
}

type memorySessions struct {
	mu        sync.Mutex
	sessions  map[string]domain.Session
	deleteErr error
}

func (m *memorySessions) Create(ctx context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = make(map[string]domain.Session)
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *memorySessions) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (m *memorySessions) Extend(ctx context.Context, sessionID string, expiresAt, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.ExpiresAt = expiresAt
	session.LastSeen = seenAt
	m.sessions[sessionID] = session
	return nil
}

func (m *memorySessions) Delete(ctx context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	return ok, nil
}

func (m *memorySessions) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type memoryAllowances struct {
	mu       sync.Mutex
	balances map[domain.Identity]int
	spent    map[domain.Identity]int
}

func (m *memoryAllowances) Ensure(ctx context.Context, identity domain.Identity, initial int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances == nil {
		m.balances = make(map[domain.Identity]int)
	}
	if _, ok := m.balances[identity]; !ok {
		m.balances[identity] = initial
	}
	return nil
}

func (m *memoryAllowances) Remaining(ctx context.Context, identity domain.Identity) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining, ok := m.balances[identity]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return remaining, nil
}

func (m *memoryAllowances) ConsumeOne(ctx context.Context, identity domain.Identity) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[identity] <= 0 {
		return 0, false, nil
	}
	m.balances[identity]--
	if m.spent == nil {
		m.spent = make(map[domain.Identity]int)
	}
	m.spent[identity]++
	return m.balances[identity], true, nil
}

func (m *memoryAllowances) RefundOne(ctx context.Context, identity domain.Identity, maxRemaining int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spent[identity] <= 0 {
		return 0, false, nil
	}
	m.spent[identity]--
	m.balances[identity] = min(m.balances[identity]+1, max(maxRemaining, m.balances[identity]))
	return m.balances[identity], true, nil
}

func (m *memoryAllowances) GrantAll(ctx context.Context, amount int, maxRemaining int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated int64
	for identity, remaining := range m.balances {
		if remaining < maxRemaining {
			m.balances[identity] = min(remaining+amount, maxRemaining)
			updated++
		}
	}
	return updated, nil
}

type memoryAudit struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
}

func (m *memoryAudit) Append(ctx context.Context, event domain.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryAudit) has(kind domain.SecurityEventKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range m.events {
		if event.Kind == kind {
			return true
		}
	}
	return false
}

const (
	testSessionCookie = "board_session"
	testAdminToken    = "operator-secret"
	testLanding       = "https://board.example/"
)

type testServer struct {
	router     *gin.Engine
	clock      *testClock
	provider   *memoryProvider
	sessions   *memorySessions
	allowances *memoryAllowances
	audit      *memoryAudit
}

func newTestServer(t *testing.T, policy usecase.AllowancePolicy) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)
	ts := &testServer{
		provider:   &memoryProvider{},
		sessions:   &memorySessions{},
		allowances: &memoryAllowances{},
		audit:      &memoryAudit{},
	}
	accounts := &memoryAccounts{}

	ts.clock = &testClock{now: time.Now().UTC()}

	recorder := usecase.NewSecurityEventRecorder(ts.audit, nil, log)
	sessionService := usecase.NewSessionService(ts.sessions, accounts, nil, usecase.SessionPolicy{TTL: 24 * time.Hour, Sliding: true}, log)
	sessionService.WithClock(ts.clock.Now)
	loginService := usecase.NewLoginService(ts.provider, &memoryHandshakes{}, accounts, sessionService, recorder, nil, 10*time.Minute, log)
	allowanceService := usecase.NewAllowanceService(ts.allowances, nil, recorder, policy, log)

	cookies := CookiePolicy{SessionName: testSessionCookie, Secure: true, SessionTTL: 24 * time.Hour, HandshakeTTL: loginService.HandshakeTTL()}
	authHandler := NewAuthHandler(loginService, sessionService, recorder, cookies, testLanding, log)
	allowanceHandler := NewAllowanceHandler(allowanceService, log)

	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		t.Fatalf("SetTrustedProxies: %v", err)
	}
	router.Use(middleware.EnrichContext())
	identity := middleware.ResolveIdentity(sessionService, testSessionCookie, cookies.RefreshSession)
	authHandler.RegisterRoutes(router.Group("/auth", identity), AuthRouteMiddlewares{})
	allowanceHandler.RegisterRoutes(router.Group("/votes", identity))
	allowanceHandler.RegisterAdminRoutes(router.Group("/internal"), middleware.RequireAdminToken(testAdminToken, recorder))

	ts.router = router
	return ts
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// client carries cookies between requests like a browser would.
type client struct {
	t       *testing.T
	server  *testServer
	jar     map[string]*http.Cookie
	address string
	agent   string
}

func (ts *testServer) newClient(t *testing.T, address, agent string) *client {
	return &client{t: t, server: ts, jar: make(map[string]*http.Cookie), address: address, agent: agent}
}

func (cl *client) do(method, target string, body string, headers map[string]string) *responseRecorder {
	cl.t.Helper()
	var req *http.Request
	if body != "" {
		req = newRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = newRequest(method, target, nil)
	}
	req.RemoteAddr = cl.address
	req.Header.Set("User-Agent", cl.agent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, cookie := range cl.jar {
		req.AddCookie(cookie)
	}

	rr := newRecorder()
	cl.server.router.ServeHTTP(rr, req)

	for _, cookie := range rr.Result().Cookies() {
		if cookie.MaxAge < 0 {
			delete(cl.jar, cookie.Name)
			continue
		}
		cl.jar[cookie.Name] = cookie
	}
	return rr
}

func (cl *client) cookie(name string) *http.Cookie {
	return cl.jar[name]
}
