// README: Auth middleware; verifies the Firebase ID token and exposes the caller.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/infra"
)

const (
	ctxUID  = "auth.uid"
	ctxRole = "auth.role"
)

const (
	RolePassenger = "passenger"
	RoleDriver    = "driver"
	RoleOperator  = "operator"
	RoleAdmin     = "admin"
)

// Auth rejects requests without a valid "Bearer <id token>" header. Websocket handshakes
// may pass the token as the access_token query parameter instead.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			raw, ok = c.Query("access_token"), true
		}
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, token.UID)
		role, _ := token.Claims["role"].(string)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// RequireRole lets the request through only when the caller's role claim is one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}
