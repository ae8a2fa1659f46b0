package security

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
)

const (
	// VerifierBytes yields an 86 character verifier, inside the 43..128 range of RFC 7636.
	VerifierBytes = 64
	StateBytes    = 32
)

// NewHandshake generates an independent state and PKCE verifier pair and the
// matching S256 challenge.
func NewHandshake(now time.Time, ttl time.Duration) (*domain.Handshake, error) {
	verifier, err := GenerateSecureToken(VerifierBytes)
	if err != nil {
		return nil, fmt.Errorf("generate code verifier: %w", err)
	}

	state, err := GenerateSecureToken(StateBytes)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	return &domain.Handshake{
		State:         state,
		CodeVerifier:  verifier,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
		ExpiresAt:     now.Add(ttl),
	}, nil
}

// ChallengeMatches reports whether challenge is the S256 transform of verifier.
func ChallengeMatches(verifier, challenge string) bool {
	return ConstantTimeEqual(oauth2.S256ChallengeFromVerifier(verifier), challenge)
}
