package api

import (
	"net/http"

	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/internal/providers/paddle"
	"paycat.dev/gateway/internal/response"
	"paycat.dev/gateway/pkg/logging"

	"github.com/gin-gonic/gin"
)

// handlePaddleNotification verifies a Paddle alert's p_signature against
// every tenant with a Paddle configuration in turn, since — like Stripe —
// the form carries no app id the core can trust ahead of verification;
// the passthrough payload's own app_id is only trustworthy once a
// specific tenant's public key has verified the signature.
func handlePaddleNotification(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		response.Error(c, http.StatusBadRequest, "receipt_invalid", "failed to parse form body")
		return
	}
	form := map[string][]string(c.Request.PostForm)

	apps, err := database.ActiveAppsWithPaddle()
	if err != nil {
		logging.Errorf("api: failed to load paddle tenants: %v", err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "internal_error"})
		return
	}

	var matched *models.App
	for _, app := range apps {
		cfg, err := database.DecodeProviderConfig(app)
		if err != nil || cfg.Paddle == nil {
			continue
		}
		if err := paddle.VerifySignature(form, cfg.Paddle); err == nil {
			matched = app
			break
		}
	}
	if matched == nil {
		response.Error(c, http.StatusUnauthorized, "signature_invalid", "p_signature did not verify against any configured app")
		return
	}

	evt, err := paddle.ParseNotification(form)
	if err != nil {
		logging.Errorf("api: paddle notification parsing failed for app %s: %v", matched.AppID, err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "receipt_invalid"})
		return
	}

	outcome, err := ingest(matched.AppID, models.PlatformPaddle, evt)
	if err != nil {
		logging.Errorf("api: failed to ingest paddle alert for app %s: %v", matched.AppID, err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": outcome.Duplicate})
}
