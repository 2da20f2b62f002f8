package middleware

import (
	"net/http"
	"time"

	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/response"

	"github.com/gin-gonic/gin"
)

// AppAuthMiddleware authenticates tenant-facing requests (receipts,
// subscriber lookups/erasure) by the X-API-Key header, looking up the
// App it belongs to and stashing it in the request context for handlers.
func AppAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			response.Error(c, http.StatusUnauthorized, "missing_api_key", "X-API-Key header is required")
			c.Abort()
			return
		}

		app, err := database.GetAppByAPIKey(apiKey)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid_api_key", "no active app matches this API key")
			c.Abort()
			return
		}

		c.Set("app", app)
		c.Set("request_time", time.Now())
		c.Next()
	}
}
