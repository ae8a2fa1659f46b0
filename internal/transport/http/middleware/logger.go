package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	appLogger "github.com/tolibear/evolving-site-sub001/internal/infra/logger"
)

// pollingPaths are hit by orchestrators and scrapers and only logged at debug level.
var pollingPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// Logger writes one access line per request. Voters are identified by the
// allowance identity the request resolved to; addresses and fingerprints are masked.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		reqCtx := GetRequestContext(c)
		requestID := reqCtx.RequestID
		if requestID == "" {
			requestID = appLogger.RequestIDFromContext(c.Request.Context())
		}
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.String("request_id", requestID),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIP(reqCtx.IP)),
		}
		fields = append(fields, voterFields(c, reqCtx)...)

		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		log.Log(accessLevel(c.Request.URL.Path, status, len(c.Errors) > 0), "request completed", fields...)
	}
}

func voterFields(c *gin.Context, reqCtx *RequestContext) []zap.Field {
	if account := GetAccount(c); account != nil {
		return []zap.Field{
			zap.String("identity_kind", string(domain.IdentityKindAccount)),
			zap.String("account_id", account.ID),
		}
	}
	if _, resolved := c.Get(identityKey); !resolved {
		return nil
	}
	return []zap.Field{
		zap.String("identity_kind", string(domain.IdentityKindFingerprint)),
		zap.String("fingerprint", appLogger.MaskString(reqCtx.Fingerprint)),
	}
}

func accessLevel(path string, status int, failed bool) zapcore.Level {
	switch {
	case status >= 500 || failed:
		return zapcore.ErrorLevel
	case status == 429 || (status == 401 && strings.HasPrefix(path, "/internal")):
		return zapcore.WarnLevel
	}
	if _, ok := pollingPaths[path]; ok {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
