package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxClaims = "identity_claims"

// adminRole is compared case-insensitively.
const adminRole = "ADMIN"

// RequireSession is Gin middleware that enforces a valid Bearer token.
func RequireSession(tokens *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, tokens)
		if !ok {
			return
		}
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// RequireAdmin is like RequireSession but also requires the ADMIN role.
// Emergency tokens never satisfy it.
func RequireAdmin(tokens *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, tokens)
		if !ok {
			return
		}
		if !strings.EqualFold(claims.Role, adminRole) || claims.Kind != KindSession {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

func authenticate(c *gin.Context, tokens *SessionIssuer) (*Claims, bool) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
		return nil, false
	}
	claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return nil, false
	}
	return claims, true
}

// ClaimsFromCtx returns the claims injected by RequireSession or
// RequireAdmin, or nil.
func ClaimsFromCtx(c *gin.Context) *Claims {
	v, _ := c.Get(ctxClaims)
	claims, _ := v.(*Claims)
	return claims
}
