// Package httpapi exposes the REST surface: account endpoints, the message
// edit/delete operations and the stats snapshot. The websocket upgrade is
// routed here too but handled by the ws package.
package httpapi

import (
	"net/http"
	"strings"

	"chat-relay/services"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// RequireAuth validates the Bearer token and stores the claims for the
// handler. Requests without a valid token never reach one.
func RequireAuth(auth services.IAuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"success": false, "message": "missing bearer token"})
			return
		}
		claims, err := auth.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"success": false, "message": "authentication failed"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}
