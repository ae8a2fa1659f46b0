package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/transport/http/middleware"
	"github.com/tolibear/evolving-site-sub001/internal/usecase"
)

const (
	authErrorParam     = "auth_error"
	authErrorExpired   = "login_expired"
	authErrorFailed    = "login_failed"
	defaultLandingPath = "/"
)

// AuthHandler exposes the OAuth login, logout and identity endpoints.
type AuthHandler struct {
	login             *usecase.LoginService
	sessions          *usecase.SessionService
	recorder          *usecase.SecurityEventRecorder
	cookies           CookiePolicy
	postLoginRedirect string
	logger            *zap.Logger
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(
	login *usecase.LoginService,
	sessions *usecase.SessionService,
	recorder *usecase.SecurityEventRecorder,
	cookies CookiePolicy,
	postLoginRedirect string,
	logger *zap.Logger,
) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if postLoginRedirect == "" {
		postLoginRedirect = defaultLandingPath
	}
	return &AuthHandler{
		login:             login,
		sessions:          sessions,
		recorder:          recorder,
		cookies:           cookies,
		postLoginRedirect: postLoginRedirect,
		logger:            logger,
	}
}

// AuthRouteMiddlewares holds per-route middleware chains, usually rate limits.
type AuthRouteMiddlewares struct {
	Start    []gin.HandlerFunc
	Callback []gin.HandlerFunc
}

// RegisterRoutes binds the /auth endpoints.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, mw AuthRouteMiddlewares) {
	r.GET("/start", append(append([]gin.HandlerFunc{}, mw.Start...), h.Start)...)
	r.GET("/callback", append(append([]gin.HandlerFunc{}, mw.Callback...), h.Callback)...)
	r.POST("/logout", h.Logout)
	r.GET("/me", h.Me)
}

// Start generates a PKCE handshake, stores it in cookies and redirects to the provider.
func (h *AuthHandler) Start(c *gin.Context) {
	start, err := h.login.BeginLogin(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRandomnessUnavailable, Status: http.StatusServiceUnavailable, Message: "login temporarily unavailable"},
		}, http.StatusInternalServerError, "failed to start login")
		return
	}

	h.cookies.setHandshake(c, start.Handshake.State, start.Handshake.CodeVerifier)
	c.Redirect(http.StatusFound, start.AuthorizationURL)
}

// Callback completes the login. Outcomes are always a redirect; handshake
// cookies are cleared whatever happens.
func (h *AuthHandler) Callback(c *gin.Context) {
	storedState := readCookie(c, StateCookieName)
	storedVerifier := readCookie(c, VerifierCookieName)
	h.cookies.clearHandshake(c)

	reqCtx := middleware.GetRequestContext(c)
	result, err := h.login.CompleteLogin(c.Request.Context(), usecase.CallbackInput{
		ReturnedState:  c.Query("state"),
		StoredState:    storedState,
		Code:           c.Query("code"),
		StoredVerifier: storedVerifier,
		ProviderError:  c.Query("error"),
		SourceAddress:  reqCtx.IP,
		UserAgent:      reqCtx.UserAgent,
		Path:           c.Request.URL.Path,
	})
	if err != nil {
		code := authErrorFailed
		if errors.Is(err, usecase.ErrStateMismatch) {
			code = authErrorExpired
		}
		c.Redirect(http.StatusFound, withQuery(h.postLoginRedirect, authErrorParam, code))
		return
	}

	h.cookies.setSession(c, result.Token)
	c.Redirect(http.StatusFound, h.postLoginRedirect)
}

// Logout destroys the session and clears the cookie. It always succeeds from
// the caller's point of view.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	reqCtx := middleware.GetRequestContext(c)

	accountID := ""
	if account := middleware.GetAccount(c); account != nil {
		accountID = account.ID
	}

	token := readCookie(c, h.cookies.SessionName)
	if err := h.sessions.Destroy(ctx, token); err != nil {
		h.logger.Warn("session revoke failed during logout", zap.String("trace_id", middleware.GetTraceID(c)), zap.Error(err))
		h.recorder.RecordForAccount(ctx, domain.SecurityEventLogoutRevokeFailed, accountID, reqCtx.IP, c.Request.URL.Path, "")
	} else if token != "" {
		h.recorder.RecordForAccount(ctx, domain.SecurityEventLogout, accountID, reqCtx.IP, c.Request.URL.Path, "")
	}

	h.cookies.clearSession(c)
	c.Status(http.StatusNoContent)
}

// Me reports the authenticated account, if any.
func (h *AuthHandler) Me(c *gin.Context) {
	account := middleware.GetAccount(c)
	c.JSON(http.StatusOK, MeResponse{
		Authenticated: account != nil,
		Account:       newAccountSummary(account),
	})
}

func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return defaultLandingPath + "?" + url.Values{key: {value}}.Encode()
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
