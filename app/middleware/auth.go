package middleware

import (
	"net/http"
	"strings"

	"procgrid/pkg/config"
	"procgrid/pkg/logger"

	"github.com/gin-gonic/gin"
)

// OwnerKey is the gin context key the authenticated owner identity is
// stored under.
const OwnerKey = "owner_id"

// AuthMiddleware validates the service API key and captures the caller's
// owner identity. The engine trusts the upstream game server for identity;
// the X-Owner-ID header is who the reservation and the cancel check are
// scoped to.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expectedAPIKey := config.GlobalConfig.Server.APIKey

		// Skip authentication if API key is not configured
		if expectedAPIKey != "" {
			authHeader := c.GetHeader("Authorization")
			authHeader = strings.TrimPrefix(authHeader, "Bearer ")

			if authHeader != expectedAPIKey {
				logger.WarnCtx(c.Request.Context(), "unauthorized request, invalid API key")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
		} else {
			logger.DebugCtx(c.Request.Context(), "API key not configured, skipping auth")
		}

		if owner := c.GetHeader("X-Owner-ID"); owner != "" {
			c.Set(OwnerKey, owner)
		}

		c.Next()
	}
}

// OwnerID returns the authenticated owner identity, or "" when the caller
// sent none.
func OwnerID(c *gin.Context) string {
	return c.GetString(OwnerKey)
}
