package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxSessionClaims = "ledger_session_claims"
	ctxPrincipal     = "ledger_principal"
)

func bearer(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(authHeader, "Bearer "), true
}

// RequireSession returns a Gin middleware that enforces a valid user session
// Bearer token. On success the claims and the Principal are stored in the
// context.
func RequireSession(sessions *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer session token required",
			})
			return
		}

		claims, err := sessions.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid session token: " + err.Error(),
			})
			return
		}
		if claims.Type != TokenTypeSession {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "user session token required",
			})
			return
		}
		p, err := claims.Principal()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "session token carries an unknown role",
			})
			return
		}

		c.Set(ctxSessionClaims, claims)
		c.Set(ctxPrincipal, p)
		c.Next()
	}
}

// RequireAdmin returns a Gin middleware that only admits admin tokens.
func RequireAdmin(sessions *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "admin Bearer token required",
			})
			return
		}

		claims, err := sessions.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}
		if claims.Type != TokenTypeAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin role required",
			})
			return
		}

		c.Set(ctxSessionClaims, claims)
		c.Next()
	}
}

// SessionFromCtx retrieves the claims stored by RequireSession or RequireAdmin.
func SessionFromCtx(c *gin.Context) *SessionClaims {
	v, _ := c.Get(ctxSessionClaims)
	claims, _ := v.(*SessionClaims)
	return claims
}

// PrincipalFromCtx retrieves the user stored by RequireSession.
func PrincipalFromCtx(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ctxPrincipal)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
