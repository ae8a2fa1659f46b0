package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tolibear/evolving-site-sub001/internal/infra/security"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"

	requestContextKey = "request_context"
)

// RequestContext holds request-scoped information
type RequestContext struct {
	TraceID     string
	RequestID   string
	IP          string
	UserAgent   string
	Fingerprint string
}

// EnrichContext adds trace ID, client metadata and the anonymous fingerprint to each request
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		ip := c.ClientIP()
		userAgent := c.Request.UserAgent()
		c.Set(requestContextKey, &RequestContext{
			TraceID:     traceID,
			IP:          ip,
			UserAgent:   userAgent,
			Fingerprint: security.Fingerprint(ip, userAgent),
		})

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestContext retrieves the full request context. Routes mounted without
// EnrichContext get one computed on demand.
func GetRequestContext(c *gin.Context) *RequestContext {
	if ctx, exists := c.Get(requestContextKey); exists {
		if reqCtx, ok := ctx.(*RequestContext); ok {
			return reqCtx
		}
	}
	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()
	return &RequestContext{
		IP:          ip,
		UserAgent:   userAgent,
		Fingerprint: security.Fingerprint(ip, userAgent),
	}
}
