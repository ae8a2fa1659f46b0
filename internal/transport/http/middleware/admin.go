package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/infra/security"
)

// AdminTokenHeader carries the shared admin secret.
const AdminTokenHeader = "X-Admin-Token"

// RejectionRecorder receives failed admin attempts.
type RejectionRecorder interface {
	Record(ctx context.Context, kind domain.SecurityEventKind, sourceAddress, path, detail string)
}

// RequireAdminToken guards operator endpoints with a shared secret. An empty
// configured token disables the guarded routes entirely.
func RequireAdminToken(token string, recorder RejectionRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin endpoints disabled", "trace_id": GetTraceID(c)})
			return
		}

		presented := c.GetHeader(AdminTokenHeader)
		if presented == "" || !security.ConstantTimeEqual(presented, token) {
			if recorder != nil {
				detail := "invalid token"
				if presented == "" {
					detail = "missing token"
				}
				recorder.Record(c.Request.Context(), domain.SecurityEventAdminRejected, c.ClientIP(), c.Request.URL.Path, detail)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "trace_id": GetTraceID(c)})
			return
		}

		c.Next()
	}
}
