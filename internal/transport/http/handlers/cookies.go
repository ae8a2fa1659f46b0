package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	StateCookieName    = "board_oauth_state"
	VerifierCookieName = "board_oauth_verifier"

	handshakeCookiePath = "/auth"
	sessionCookiePath   = "/"
)

// CookiePolicy describes how identity cookies are written.
type CookiePolicy struct {
	SessionName  string
	Domain       string
	Secure       bool
	SessionTTL   time.Duration
	HandshakeTTL time.Duration
}

func (p CookiePolicy) write(c *gin.Context, name, value, path string, maxAge time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   p.Domain,
		Secure:   p.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge / time.Second)
		cookie.Expires = time.Now().Add(maxAge).UTC()
	} else {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	}
	http.SetCookie(c.Writer, cookie)
}

func (p CookiePolicy) setSession(c *gin.Context, token string) {
	p.write(c, p.SessionName, token, sessionCookiePath, p.SessionTTL)
}

// RefreshSession re-issues the session cookie after the server extended the
// session to expiresAt.
func (p CookiePolicy) RefreshSession(c *gin.Context, token string, expiresAt time.Time) {
	remaining := time.Until(expiresAt)
	if remaining <= 0 || remaining > p.SessionTTL {
		remaining = p.SessionTTL
	}
	p.write(c, p.SessionName, token, sessionCookiePath, remaining)
}

func (p CookiePolicy) clearSession(c *gin.Context) {
	p.write(c, p.SessionName, "", sessionCookiePath, 0)
}

func (p CookiePolicy) setHandshake(c *gin.Context, state, verifier string) {
	p.write(c, StateCookieName, state, handshakeCookiePath, p.HandshakeTTL)
	p.write(c, VerifierCookieName, verifier, handshakeCookiePath, p.HandshakeTTL)
}

func (p CookiePolicy) clearHandshake(c *gin.Context) {
	p.write(c, StateCookieName, "", handshakeCookiePath, 0)
	p.write(c, VerifierCookieName, "", handshakeCookiePath, 0)
}

func readCookie(c *gin.Context, name string) string {
	value, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return value
}
