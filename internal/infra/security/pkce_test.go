package security

import (
	"errors"
	"testing"
	"time"
)

func TestNewHandshakeProperties(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	h, err := NewHandshake(now, 10*time.Minute)
	if err != nil {
		t.Fatalf("NewHandshake returned error: %v", err)
	}

	if n := len(h.CodeVerifier); n < 43 || n > 128 {
		t.Fatalf("verifier length %d outside 43..128", n)
	}
	if !ChallengeMatches(h.CodeVerifier, h.CodeChallenge) {
		t.Fatal("expected challenge to be S256 of verifier")
	}
	if h.State == h.CodeVerifier {
		t.Fatal("expected state and verifier to be independent")
	}
	if len(h.State) != 43 {
		t.Fatalf("expected 32 byte state, got %d chars", len(h.State))
	}
	if !h.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", h.ExpiresAt)
	}
	if !h.Paired() {
		t.Fatal("expected handshake to be paired")
	}
}

func TestNewHandshakeFreshEachCall(t *testing.T) {
	first, err := NewHandshake(time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("NewHandshake returned error: %v", err)
	}
	second, err := NewHandshake(time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("NewHandshake returned error: %v", err)
	}
	if first.State == second.State || first.CodeVerifier == second.CodeVerifier {
		t.Fatal("expected fresh values per handshake")
	}
}

func TestNewHandshakeRandomFailure(t *testing.T) {
	original := randReader
	randReader = failingReader{}
	t.Cleanup(func() { randReader = original })

	if _, err := NewHandshake(time.Now(), time.Minute); !errors.Is(err, ErrRandomSource) {
		t.Fatalf("expected ErrRandomSource, got %v", err)
	}
}

func TestChallengeMatchesRejectsTampering(t *testing.T) {
	h, err := NewHandshake(time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("NewHandshake returned error: %v", err)
	}
	if ChallengeMatches(h.CodeVerifier+"x", h.CodeChallenge) {
		t.Fatal("expected tampered verifier to fail")
	}
}
