package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openclave/walletauth/service"
)

// Context keys set by the auth middleware.
const (
	ctxUserID    = "userID"
	ctxSessionID = "sessionID"
	ctxDeviceID  = "deviceID"
)

// AuthMiddleware validates Bearer access tokens and cross-checks that the
// bound session is still alive.
func AuthMiddleware(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := tokens.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed", "reason": reasonOf(err)})
			return
		}

		c.Set(ctxUserID, claims.UserID.String())
		c.Set(ctxSessionID, claims.SessionID.String())
		c.Set(ctxDeviceID, claims.DeviceID)

		c.Next()
	}
}
