package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/infra/config"
	"github.com/tolibear/evolving-site-sub001/internal/transport/http/handlers"
	"github.com/tolibear/evolving-site-sub001/internal/transport/http/middleware"
	"github.com/tolibear/evolving-site-sub001/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Login     *usecase.LoginService
	Sessions  *usecase.SessionService
	Allowance *usecase.AllowanceService
	Recorder  *usecase.SecurityEventRecorder
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Only listed proxies may supply X-Forwarded-For; otherwise ClientIP is the socket peer.
	if err := r.SetTrustedProxies(deps.Config.App.TrustedProxies); err != nil {
		deps.Logger.Warn("invalid trusted proxies, forwarding headers ignored", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(deps.Config.Telemetry.ServiceName))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(deps.HTTPMetrics.Handler())
	r.Use(middleware.Logger(deps.Logger))
	if len(deps.Config.App.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	services := deps.Services
	if services.Sessions == nil {
		return r
	}

	cookies := cookiePolicy(deps.Config, services.Login)
	identity := middleware.ResolveIdentity(services.Sessions, deps.Config.Session.CookieName, cookies.RefreshSession)

	if services.Login != nil {
		authHandler := handlers.NewAuthHandler(
			services.Login,
			services.Sessions,
			services.Recorder,
			cookies,
			deps.Config.OAuth.PostLoginRedirect,
			deps.Logger,
		)
		authGroup := r.Group("/auth", identity)
		authHandler.RegisterRoutes(authGroup, handlers.AuthRouteMiddlewares{
			Start:    buildIPLimit(deps, "auth_start_ip", deps.Config.RateLimit.LoginMaxAttempts),
			Callback: buildIPLimit(deps, "auth_callback_ip", deps.Config.RateLimit.CallbackMaxAttempts),
		})
	}

	if services.Allowance != nil {
		allowanceHandler := handlers.NewAllowanceHandler(services.Allowance, deps.Logger)

		votes := r.Group("/votes", identity)
		allowanceHandler.RegisterRoutes(votes, buildVoterLimit(deps)...)

		internal := r.Group("/internal")
		allowanceHandler.RegisterAdminRoutes(internal, middleware.RequireAdminToken(deps.Config.Admin.Token, services.Recorder))
	}

	return r
}

// cookiePolicy keeps handshake cookies alive exactly as long as the login service
// honours the handshake.
func cookiePolicy(cfg *config.AppConfig, login *usecase.LoginService) handlers.CookiePolicy {
	handshakeTTL := cfg.OAuth.HandshakeTTL
	if login != nil {
		handshakeTTL = login.HandshakeTTL()
	}
	return handlers.CookiePolicy{
		SessionName:  cfg.Session.CookieName,
		Domain:       cfg.Session.CookieDomain,
		Secure:       cfg.Session.CookieSecure,
		SessionTTL:   cfg.Session.TTL,
		HandshakeTTL: handshakeTTL,
	}
}

func rateWindow(cfg *config.AppConfig) time.Duration {
	if cfg.RateLimit.WindowDuration <= 0 {
		return time.Minute
	}
	return cfg.RateLimit.WindowDuration
}

func buildIPLimit(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     rateWindow(deps.Config),
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}

func buildVoterLimit(deps Dependencies) []gin.HandlerFunc {
	limit := deps.Config.RateLimit.AllowanceMaxAttempts
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:       "allowance_voter",
		Limit:      limit,
		Window:     rateWindow(deps.Config),
		Identifier: middleware.VoterIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
