package oauthprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
	"github.com/tolibear/evolving-site-sub001/internal/infra/config"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxProfileBytes    = 1 << 20
)

var (
	// ErrEmptyAccessToken is returned when the token endpoint answers without an access token.
	ErrEmptyAccessToken = errors.New("provider returned empty access token")
	// ErrIncompleteProfile is returned when the profile lacks the id or username.
	ErrIncompleteProfile = errors.New("provider profile incomplete")
)

// Client implements port.IdentityProvider for an OAuth2 provider that supports PKCE.
type Client struct {
	name       string
	oauth      oauth2.Config
	profileURL string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for token and profile calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a provider client from settings.
func NewClient(cfg config.OAuthSettings, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	name := strings.TrimSpace(cfg.Provider)
	if name == "" {
		name = "x"
	}

	c := &Client{
		name: name,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		profileURL: cfg.ProfileURL,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the provider label stored on accounts.
func (c *Client) Name() string {
	return c.name
}

// AuthorizationURL builds the provider redirect carrying the state and S256 challenge.
func (c *Client) AuthorizationURL(state, codeChallenge string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", domain.CodeChallengeMethod),
	)
}

// Exchange trades the authorization code and verifier for an access token.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*port.ProviderToken, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("authorization code is empty")
	}
	if codeVerifier == "" {
		return nil, fmt.Errorf("code verifier is empty")
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	token, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if token.AccessToken == "" {
		return nil, ErrEmptyAccessToken
	}

	return &port.ProviderToken{
		AccessToken: token.AccessToken,
		TokenType:   token.Type(),
		Expiry:      token.Expiry,
	}, nil
}

type profileEnvelope struct {
	Data *profilePayload `json:"data"`
}

type profilePayload struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// FetchProfile retrieves the authenticated user's profile with the access token.
func (c *Client) FetchProfile(ctx context.Context, token *port.ProviderToken) (*domain.ProviderProfile, error) {
	if token == nil || token.AccessToken == "" {
		return nil, ErrEmptyAccessToken
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes))
		return nil, fmt.Errorf("fetch profile: unexpected status %d", resp.StatusCode)
	}

	var envelope profileEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if envelope.Data == nil {
		return nil, ErrIncompleteProfile
	}

	profile := &domain.ProviderProfile{
		Provider:    c.name,
		ID:          strings.TrimSpace(envelope.Data.ID),
		Username:    strings.TrimSpace(envelope.Data.Username),
		DisplayName: strings.TrimSpace(envelope.Data.Name),
		AvatarURL:   strings.TrimSpace(envelope.Data.ProfileImageURL),
	}
	if !profile.Complete() {
		c.logger.Warn("provider profile missing required fields",
			zap.String("provider", c.name),
			zap.Bool("has_id", profile.ID != ""),
			zap.Bool("has_username", profile.Username != ""),
		)
		return nil, ErrIncompleteProfile
	}

	return profile, nil
}

// callContext bounds a provider call and routes oauth2 traffic through the configured client.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return context.WithTimeout(ctx, c.timeout)
}

var _ port.IdentityProvider = (*Client)(nil)
