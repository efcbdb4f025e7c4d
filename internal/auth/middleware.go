package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CookieName is the cookie a browser client may carry the token in.
const CookieName = "checkin_session"

const sessionKey = "session_id"

// RequireSession rejects requests without a valid session token, taken from
// a bearer Authorization header or the session cookie.
func RequireSession(issuer Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := TokenFrom(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session token"})
			return
		}
		claims, err := issuer.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}
		c.Set(sessionKey, claims.SessionID())
		c.Next()
	}
}

// SessionID returns the id set by RequireSession.
func SessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

// TokenFrom returns the bearer token or session cookie of a request.
func TokenFrom(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	if v, err := c.Cookie(CookieName); err == nil {
		return v
	}
	return ""
}
