package port

import (
	"context"
	"time"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
)

// ProviderToken is the subset of the token endpoint response the service relies on.
type ProviderToken struct {
	AccessToken string
	TokenType   string
	Expiry      time.Time
}

// IdentityProvider talks to the third-party OAuth2 provider.
type IdentityProvider interface {
	Name() string
	AuthorizationURL(state, codeChallenge string) string
	Exchange(ctx context.Context, code, codeVerifier string) (*ProviderToken, error)
	FetchProfile(ctx context.Context, token *ProviderToken) (*domain.ProviderProfile, error)
}
