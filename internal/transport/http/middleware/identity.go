package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
)

const (
	accountKey  = "account"
	identityKey = "identity"
)

// SessionValidator resolves a session cookie to an account, nil for anonymous visitors.
// renewedUntil is non-zero when the session was extended during the lookup.
type SessionValidator interface {
	Resolve(ctx context.Context, token string) (account *domain.Account, renewedUntil time.Time, err error)
}

// SessionRenewedFunc re-issues the session cookie after a sliding renewal.
type SessionRenewedFunc func(c *gin.Context, token string, expiresAt time.Time)

// ResolveIdentity attaches the session account (if any) and the allowance
// identity to the request. It never rejects a request.
func ResolveIdentity(sessions SessionValidator, cookieName string, onRenewed SessionRenewedFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var account *domain.Account
		if sessions != nil {
			if token, err := c.Cookie(cookieName); err == nil && token != "" {
				resolved, renewedUntil, err := sessions.Resolve(c.Request.Context(), token)
				if err == nil {
					account = resolved
					if account != nil && !renewedUntil.IsZero() && onRenewed != nil {
						onRenewed(c, token, renewedUntil)
					}
				}
			}
		}

		accountID := ""
		if account != nil {
			c.Set(accountKey, account)
			accountID = account.ID
		}
		c.Set(identityKey, domain.ResolveIdentity(accountID, GetRequestContext(c).Fingerprint))

		c.Next()
	}
}

// GetAccount returns the authenticated account or nil.
func GetAccount(c *gin.Context) *domain.Account {
	if value, ok := c.Get(accountKey); ok {
		if account, ok := value.(*domain.Account); ok {
			return account
		}
	}
	return nil
}

// GetIdentity returns the allowance identity resolved for the request.
func GetIdentity(c *gin.Context) domain.Identity {
	if value, ok := c.Get(identityKey); ok {
		if identity, ok := value.(domain.Identity); ok {
			return identity
		}
	}
	accountID := ""
	if account := GetAccount(c); account != nil {
		accountID = account.ID
	}
	return domain.ResolveIdentity(accountID, GetRequestContext(c).Fingerprint)
}
