package handlers

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/infra/security"
	"github.com/tolibear/evolving-site-sub001/internal/usecase"
)

func startLogin(t *testing.T, cl *client) url.Values {
	t.Helper()
	rr := cl.do(http.MethodGet, "/auth/start", "", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302 from /auth/start, got %d", rr.Code)
	}
	return redirectQuery(t, rr)
}

func TestAuthStartSetsHandshakeCookies(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
	cl := ts.newClient(t, "203.0.113.10:4000", "browser/1")

	rr := cl.do(http.MethodGet, "/auth/start", "", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}

	state := findCookie(rr, StateCookieName)
	verifier := findCookie(rr, VerifierCookieName)
	if state == nil || verifier == nil {
		t.Fatal("expected state and verifier cookies")
	}
	for _, cookie := range []*http.Cookie{state, verifier} {
		if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteLaxMode || cookie.Path != "/auth" {
			t.Fatalf("unexpected cookie attributes %+v", cookie)
		}
		if cookie.MaxAge != 600 {
			t.Fatalf("expected handshake max-age 600, got %d", cookie.MaxAge)
		}
	}

	query := redirectQuery(t, rr)
	if query.Get("state") != state.Value {
		t.Fatal("redirect state must match the state cookie")
	}
	if !security.ChallengeMatches(verifier.Value, query.Get("code_challenge")) {
		t.Fatal("redirect challenge must be S256 of the verifier cookie")
	}
}

func TestLoginEndToEnd(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
	cl := ts.newClient(t, "203.0.113.10:4000", "browser/1")

	me := decodeJSON[MeResponse](t, cl.do(http.MethodGet, "/auth/me", "", nil))
	if me.Authenticated {
		t.Fatal("expected anonymous visitor before login")
	}

	query := startLogin(t, cl)
	rr := cl.do(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(query.Get("state")), "", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}
	if location := rr.Header().Get("Location"); location != testLanding {
		t.Fatalf("expected redirect to landing, got %s", location)
	}

	session := findCookie(rr, testSessionCookie)
	if session == nil || !session.HttpOnly || session.Path != "/" || session.MaxAge != 86400 {
		t.Fatalf("unexpected session cookie %+v", session)
	}
	if cl.cookie(StateCookieName) != nil || cl.cookie(VerifierCookieName) != nil {
		t.Fatal("handshake cookies must be cleared after the callback")
	}

	me = decodeJSON[MeResponse](t, cl.do(http.MethodGet, "/auth/me", "", nil))
	if !me.Authenticated || me.Account == nil || me.Account.Username != "grace" {
		t.Fatalf("expected authenticated grace, got %+v", me)
	}
	if !ts.audit.has(domain.SecurityEventLoginSucceeded) {
		t.Fatal("expected login success to be audited")
	}
}

func TestSlidingRenewalReissuesSessionCookie(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
	cl := ts.newClient(t, "203.0.113.11:4000", "browser/1")

	query := startLogin(t, cl)
	cl.do(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(query.Get("state")), "", nil)
	issued := cl.cookie(testSessionCookie)
	if issued == nil {
		t.Fatal("expected a session cookie after login")
	}

	ts.clock.Advance(time.Hour)
	rr := cl.do(http.MethodGet, "/auth/me", "", nil)
	if findCookie(rr, testSessionCookie) != nil {
		t.Fatal("expected no cookie refresh while most of the session remains")
	}

	ts.clock.Advance(12 * time.Hour)
	rr = cl.do(http.MethodGet, "/auth/me", "", nil)
	if !decodeJSON[MeResponse](t, rr).Authenticated {
		t.Fatal("expected the renewed session to stay authenticated")
	}
	refreshed := findCookie(rr, testSessionCookie)
	if refreshed == nil {
		t.Fatal("expected the renewed session cookie to be re-issued")
	}
	if refreshed.Value != issued.Value {
		t.Fatal("renewal must keep the same session token")
	}
	if refreshed.MaxAge != 86400 || !refreshed.HttpOnly || refreshed.Path != "/" {
		t.Fatalf("unexpected refreshed cookie %+v", refreshed)
	}
}

func TestCallbackStateMismatchRedirectsExpired(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
	cl := ts.newClient(t, "203.0.113.10:4000", "browser/1")
	startLogin(t, cl)

	rr := cl.do(http.MethodGet, "/auth/callback?code=abc&state=forged", "", nil)

	if got := redirectQuery(t, rr).Get("auth_error"); got != "login_expired" {
		t.Fatalf("expected login_expired, got %q", got)
	}
	if findCookie(rr, testSessionCookie) != nil {
		t.Fatal("no session cookie may be set on state mismatch")
	}
	if cl.cookie(StateCookieName) != nil {
		t.Fatal("handshake cookies must be cleared on failure too")
	}
}

func TestCallbackWithoutCookiesRedirectsExpired(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
	cl := ts.newClient(t, "203.0.113.10:4000", "browser/1")

	rr := cl.do(http.MethodGet, "/auth/callback?code=abc&state=whatever", "", nil)

	if got := redirectQuery(t, rr).Get("auth_error"); got != "login_expired" {
		t.Fatalf("expected login_expired, got %q", got)
	}
}

func TestCallbackReplayIsRejected(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
	cl := ts.newClient(t, "203.0.113.10:4000", "browser/1")
	query := startLogin(t, cl)

	state := cl.cookie(StateCookieName)
	verifier := cl.cookie(VerifierCookieName)
	target := "/auth/callback?code=abc&state=" + url.QueryEscape(query.Get("state"))

	if rr := cl.do(http.MethodGet, target, "", nil); redirectQuery(t, rr).Get("auth_error") != "" {
		t.Fatal("first callback should succeed")
	}

	attacker := ts.newClient(t, "198.51.100.66:1", "curl/8")
	attacker.jar[StateCookieName] = state
	attacker.jar[VerifierCookieName] = verifier
	rr := attacker.do(http.MethodGet, target, "", nil)
	if got := redirectQuery(t, rr).Get("auth_error"); got != "login_expired" {
		t.Fatalf("expected replay to be rejected as login_expired, got %q", got)
	}
}

func TestCallbackProviderFailuresRedirectFailed(t *testing.T) {
	t.Run("provider error parameter", func(t *testing.T) {
		ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
		cl := ts.newClient(t, "203.0.113.10:4000", "browser/1")
		query := startLogin(t, cl)

		rr := cl.do(http.MethodGet, "/auth/callback?error=access_denied&state="+url.QueryEscape(query.Get("state")), "", nil)
		if got := redirectQuery(t, rr).Get("auth_error"); got != "login_failed" {
			t.Fatalf("expected login_failed, got %q", got)
		}
		if !ts.audit.has(domain.SecurityEventLoginProviderDenied) {
			t.Fatal("expected provider denial to be audited")
		}
	})

	t.Run("exchange failure", func(t *testing.T) {
		ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
		ts.provider.failExchange = true
		cl := ts.newClient(t, "203.0.113.10:4000", "browser/1")
		query := startLogin(t, cl)

		rr := cl.do(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(query.Get("state")), "", nil)
		if got := redirectQuery(t, rr).Get("auth_error"); got != "login_failed" {
			t.Fatalf("expected login_failed, got %q", got)
		}
	})
}

func TestLogoutClearsCookie(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
	cl := ts.newClient(t, "203.0.113.10:4000", "browser/1")
	query := startLogin(t, cl)
	cl.do(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(query.Get("state")), "", nil)

	rr := cl.do(http.MethodPost, "/auth/logout", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if cl.cookie(testSessionCookie) != nil {
		t.Fatal("expected session cookie to be cleared")
	}

	me := decodeJSON[MeResponse](t, cl.do(http.MethodGet, "/auth/me", "", nil))
	if me.Authenticated {
		t.Fatal("expected anonymous after logout")
	}
	if !ts.audit.has(domain.SecurityEventLogout) {
		t.Fatal("expected logout to be audited")
	}
}

func TestLogoutClearsCookieWhenStoreFails(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
	cl := ts.newClient(t, "203.0.113.10:4000", "browser/1")
	query := startLogin(t, cl)
	cl.do(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(query.Get("state")), "", nil)

	ts.sessions.deleteErr = errBackendDown

	rr := cl.do(http.MethodPost, "/auth/logout", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 even when revocation fails, got %d", rr.Code)
	}
	cleared := findCookie(rr, testSessionCookie)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Fatalf("expected an expiring session cookie, got %+v", cleared)
	}
	if !ts.audit.has(domain.SecurityEventLogoutRevokeFailed) {
		t.Fatal("expected revoke failure to be audited")
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
	cl := ts.newClient(t, "203.0.113.10:4000", "browser/1")

	rr := cl.do(http.MethodPost, "/auth/logout", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}
