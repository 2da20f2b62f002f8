package api

import (
	"net/http"

	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/internal/providers/apple"
	"paycat.dev/gateway/internal/response"
	"paycat.dev/gateway/pkg/logging"

	"github.com/gin-gonic/gin"
)

type appleNotificationBody struct {
	SignedPayload string `json:"signedPayload"`
}

// handleAppleNotification verifies and applies an App Store Server
// Notifications V2 payload. Per the notification error-handling policy,
// everything except a malformed/unverifiable signature answers 200.
func handleAppleNotification(c *gin.Context) {
	var body appleNotificationBody
	if err := c.ShouldBindJSON(&body); err != nil || body.SignedPayload == "" {
		response.Error(c, http.StatusBadRequest, "receipt_invalid", "missing signedPayload")
		return
	}

	bundleID, err := apple.PeekBundleID(body.SignedPayload)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "signature_invalid", "malformed notification payload")
		return
	}

	app, err := database.GetAppByBundleID(bundleID)
	if err != nil {
		logging.Warnf("api: apple notification for unknown bundle id %s", bundleID)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "configuration_missing"})
		return
	}

	cfg, err := database.DecodeProviderConfig(app)
	if err != nil || cfg.Apple == nil {
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "configuration_missing"})
		return
	}

	evt, err := apple.ParseNotification(body.SignedPayload, cfg.Apple)
	if err != nil {
		logging.Warnf("api: apple notification verification failed for app %s: %v", app.AppID, err)
		response.Error(c, http.StatusUnauthorized, "signature_invalid", "notification signature verification failed")
		return
	}

	outcome, err := ingest(app.AppID, models.PlatformIOS, evt)
	if err != nil {
		logging.Errorf("api: failed to ingest apple notification for app %s: %v", app.AppID, err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": outcome.Duplicate})
}
