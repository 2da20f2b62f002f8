package api

import (
	"encoding/json"
	"net/http"

	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/internal/providers/amazon"
	"paycat.dev/gateway/internal/response"
	"paycat.dev/gateway/pkg/logging"

	"github.com/gin-gonic/gin"
)

// handleAmazonNotification verifies an inbound SNS envelope, auto-confirms
// new topic subscriptions, and otherwise re-verifies PURCHASE/RENEWAL
// notifications against the Receipt Verification Service before ingesting.
// The tenant is resolved from the RTDN payload's appPackageName, since SNS
// signs with AWS's own certificate rather than a per-tenant secret.
func handleAmazonNotification(c *gin.Context) {
	var env amazon.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		response.Error(c, http.StatusBadRequest, "receipt_invalid", "failed to decode SNS envelope")
		return
	}

	if err := amazon.VerifySignature(c.Request.Context(), &env); err != nil {
		response.Error(c, http.StatusUnauthorized, "signature_invalid", "SNS signature verification failed")
		return
	}

	switch env.Type {
	case "SubscriptionConfirmation":
		if err := amazon.ConfirmSubscription(c.Request.Context(), &env); err != nil {
			logging.Errorf("api: amazon SNS subscription confirmation failed: %v", err)
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	case "UnsubscribeConfirmation":
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	var rtdn struct {
		AppPackageName string `json:"appPackageName"`
	}
	if err := json.Unmarshal([]byte(env.Message), &rtdn); err != nil {
		logging.Errorf("api: amazon notification payload decode failed: %v", err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "receipt_invalid"})
		return
	}

	app, err := database.GetAppByAmazonAppID(rtdn.AppPackageName)
	if err != nil {
		logging.Errorf("api: no app configured for amazon appPackageName %q: %v", rtdn.AppPackageName, err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "configuration_missing"})
		return
	}

	cfg, err := database.DecodeProviderConfig(app)
	if err != nil || cfg.Amazon == nil {
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "configuration_missing"})
		return
	}

	evt, err := amazon.ParseNotification(c.Request.Context(), &env, cfg.Amazon)
	if err != nil {
		logging.Errorf("api: amazon notification processing failed for app %s: %v", app.AppID, err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "transient_upstream"})
		return
	}

	outcome, err := ingest(app.AppID, models.PlatformAmazon, evt)
	if err != nil {
		logging.Errorf("api: failed to ingest amazon notification for app %s: %v", app.AppID, err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": outcome.Duplicate})
}
