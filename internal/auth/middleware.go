package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
)

const callerKey = "caller"

// Authenticate enforces bearer JWT tokens signed with HS256 and stores the
// caller on the context.
func Authenticate(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		caller, err := claims.Caller()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("claims", claims)
		c.Set(callerKey, caller)
		c.Next()
	}
}

// RequireRole lets through callers holding one of roles.
func RequireRole(roles ...attendance.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		for _, r := range roles {
			if caller.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role " + string(caller.Role) + " may not do this"})
	}
}

// CallerFrom returns the caller stored by Authenticate.
func CallerFrom(c *gin.Context) (attendance.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return attendance.Caller{}, false
	}
	caller, ok := v.(attendance.Caller)
	return caller, ok
}
