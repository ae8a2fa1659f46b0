package domain

import "time"

// CodeChallengeMethod is the only PKCE transform the service emits.
const CodeChallengeMethod = "S256"

// Handshake is the transient PKCE state of one login attempt.
type Handshake struct {
	State         string
	CodeVerifier  string
	CodeChallenge string
	ExpiresAt     time.Time
}

// Paired reports whether both halves of the handshake are present.
func (h Handshake) Paired() bool {
	return h.State != "" && h.CodeVerifier != ""
}

// LoginStart is returned to the transport layer when a login is initiated.
type LoginStart struct {
	AuthorizationURL string
	Handshake        Handshake
}
