// README: Firebase ID-token auth middleware; a nil verifier leaves the API open.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bridgetalk/internal/infra"
)

const (
	ctxUID  = "auth.uid"
	ctxRole = "auth.role"
)

// Auth verifies "Authorization: Bearer <id token>". Browsers cannot set
// headers on websocket upgrades, so the access_token query parameter is
// accepted as well.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, token.UID)
		if role, ok := token.Claims["role"].(string); ok {
			c.Set(ctxRole, role)
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return ""
		}
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("access_token")
}

// CallerUID is the verified user, "" when auth is off.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

// CallerRole is the "role" custom claim, if any.
func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}
