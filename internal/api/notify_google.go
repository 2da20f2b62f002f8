package api

import (
	"io"
	"net/http"
	"strings"

	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/internal/providers/google"
	"paycat.dev/gateway/internal/response"
	"paycat.dev/gateway/pkg/logging"

	"github.com/gin-gonic/gin"
)

// handleGoogleNotification verifies (when the push subscription attaches
// a bearer token) and applies a Real-Time Developer Notification
// delivered via a Pub/Sub push envelope.
func handleGoogleNotification(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "receipt_invalid", "failed to read request body")
		return
	}

	packageName, err := google.PeekPackageName(raw)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "signature_invalid", "malformed Pub/Sub envelope")
		return
	}

	app, err := database.GetAppByPackageName(packageName)
	if err != nil {
		logging.Warnf("api: google notification for unknown package name %s", packageName)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "configuration_missing"})
		return
	}

	cfg, err := database.DecodeProviderConfig(app)
	if err != nil || cfg.Google == nil {
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "configuration_missing"})
		return
	}

	if auth := c.GetHeader("Authorization"); auth != "" {
		token := strings.TrimPrefix(auth, "Bearer ")
		if err := google.VerifyPushToken(token, cfg.Google.PushEndpointURL); err != nil {
			logging.Warnf("api: google push token verification failed for app %s: %v", app.AppID, err)
			response.Error(c, http.StatusUnauthorized, "signature_invalid", "push token verification failed")
			return
		}
	}

	evt, err := google.ParseNotification(c.Request.Context(), raw, cfg.Google)
	if err != nil {
		logging.Errorf("api: google notification processing failed for app %s: %v", app.AppID, err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "transient_upstream"})
		return
	}

	outcome, err := ingest(app.AppID, models.PlatformAndroid, evt)
	if err != nil {
		logging.Errorf("api: failed to ingest google notification for app %s: %v", app.AppID, err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": outcome.Duplicate})
}
