package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/usecase"
)

func TestAllowanceEndToEnd(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 2, Max: 10})
	voter := ts.newClient(t, "203.0.113.20:5000", "browser/2")

	got := decodeJSON[AllowanceResponse](t, voter.do(http.MethodGet, "/votes/allowance", "", nil))
	if got.IdentityKind != domain.IdentityKindFingerprint || got.Remaining != 2 {
		t.Fatalf("unexpected initial allowance %+v", got)
	}

	for want := 1; want >= 0; want-- {
		rr := voter.do(http.MethodPost, "/votes/allowance/consume", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if got := decodeJSON[AllowanceResponse](t, rr); got.Remaining != want {
			t.Fatalf("expected %d remaining, got %d", want, got.Remaining)
		}
	}

	rr := voter.do(http.MethodPost, "/votes/allowance/consume", "", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 when depleted, got %d", rr.Code)
	}
	if body := decodeJSON[ErrorResponse](t, rr); body.Error != "vote allowance depleted" {
		t.Fatalf("unexpected error body %+v", body)
	}

	rr = voter.do(http.MethodPost, "/internal/allowance/grant", `{"amount":2}`, map[string]string{"X-Admin-Token": testAdminToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from grant, got %d (%s)", rr.Code, rr.Body.String())
	}
	if grant := decodeJSON[GrantResponse](t, rr); grant.Updated != 1 {
		t.Fatalf("expected one allowance raised, got %d", grant.Updated)
	}

	got = decodeJSON[AllowanceResponse](t, voter.do(http.MethodGet, "/votes/allowance", "", nil))
	if got.Remaining != 2 {
		t.Fatalf("expected 2 after grant, got %d", got.Remaining)
	}
}

func TestAllowanceSeparatesAnonymousAndAuthenticated(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 1, Max: 10})
	cl := ts.newClient(t, "203.0.113.30:6000", "browser/3")

	if rr := cl.do(http.MethodPost, "/votes/allowance/consume", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected anonymous vote to succeed, got %d", rr.Code)
	}

	query := startLogin(t, cl)
	cl.do(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(query.Get("state")), "", nil)

	got := decodeJSON[AllowanceResponse](t, cl.do(http.MethodGet, "/votes/allowance", "", nil))
	if got.IdentityKind != domain.IdentityKindAccount || got.Remaining != 1 {
		t.Fatalf("expected fresh account allowance, got %+v", got)
	}
}

func TestAllowanceRefundWithoutVoteOverHTTP(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 3, Max: 10})
	cl := ts.newClient(t, "203.0.113.40:7000", "browser/4")

	for i := 0; i < 20; i++ {
		rr := cl.do(http.MethodPost, "/votes/allowance/refund", "", nil)
		if rr.Code != http.StatusConflict {
			t.Fatalf("refund %d: expected 409, got %d", i, rr.Code)
		}
		if got := decodeJSON[ErrorResponse](t, rr); got.Error != "no vote to refund" {
			t.Fatalf("unexpected error message %q", got.Error)
		}
	}

	rr := cl.do(http.MethodGet, "/votes/allowance", "", nil)
	if got := decodeJSON[AllowanceResponse](t, rr); got.Remaining != 3 {
		t.Fatalf("expected balance to stay at the default 3, got %d", got.Remaining)
	}
}

func TestAllowanceRefundAfterConsumeOverHTTP(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 2, Max: 2})
	cl := ts.newClient(t, "203.0.113.41:7000", "browser/4")

	if rr := cl.do(http.MethodPost, "/votes/allowance/consume", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected consume 200, got %d", rr.Code)
	}
	rr := cl.do(http.MethodPost, "/votes/allowance/refund", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected refund 200, got %d", rr.Code)
	}
	if got := decodeJSON[AllowanceResponse](t, rr); got.Remaining != 2 {
		t.Fatalf("expected refund back to 2, got %d", got.Remaining)
	}
	if rr := cl.do(http.MethodPost, "/votes/allowance/refund", "", nil); rr.Code != http.StatusConflict {
		t.Fatalf("expected second refund 409, got %d", rr.Code)
	}
}

func TestForwardedForDoesNotMintAllowance(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 1, Max: 10})
	cl := ts.newClient(t, "203.0.113.60:9000", "browser/6")

	accepted := 0
	for i := 0; i < 5; i++ {
		forwarded := map[string]string{"X-Forwarded-For": "198.51.100." + strconv.Itoa(10+i)}
		if rr := cl.do(http.MethodPost, "/votes/allowance/consume", "", forwarded); rr.Code == http.StatusOK {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected a single vote for one socket peer, got %d", accepted)
	}
}

func TestGrantValidation(t *testing.T) {
	ts := newTestServer(t, usecase.AllowancePolicy{Default: 2, Max: 10})
	cl := ts.newClient(t, "203.0.113.50:8000", "ops/1")
	admin := map[string]string{"X-Admin-Token": testAdminToken}

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{name: "negative", body: `{"amount":-3}`, status: http.StatusBadRequest},
		{name: "zero", body: `{"amount":0}`, status: http.StatusBadRequest},
		{name: "malformed", body: `{"amount":"lots"}`, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := cl.do(http.MethodPost, "/internal/allowance/grant", tc.body, admin)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}

	rr := cl.do(http.MethodPost, "/internal/allowance/grant", `{"amount":1}`, map[string]string{"X-Admin-Token": "nope"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad admin token, got %d", rr.Code)
	}
	if !ts.audit.has(domain.SecurityEventAdminRejected) {
		t.Fatal("expected admin rejection to be audited")
	}
}
