package api

import (
	"io"
	"net/http"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/internal/providers/stripe"
	"paycat.dev/gateway/internal/response"
	"paycat.dev/gateway/pkg/logging"

	"github.com/gin-gonic/gin"
)

// handleStripeNotification verifies a Stripe webhook against every
// tenant with a Stripe configuration in turn, since the Stripe-Signature
// header carries no app id of its own — the matching tenant is whichever
// one's webhook secret verifies the HMAC.
func handleStripeNotification(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "receipt_invalid", "failed to read request body")
		return
	}
	sigHeader := c.GetHeader("Stripe-Signature")

	apps, err := database.ActiveAppsWithStripe()
	if err != nil {
		logging.Errorf("api: failed to load stripe tenants: %v", err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "internal_error"})
		return
	}

	app, evt, processErr := resolveStripeEvent(apps, raw, sigHeader)
	if app == nil {
		response.Error(c, http.StatusUnauthorized, "signature_invalid", "signature did not verify against any configured app")
		return
	}
	if processErr != nil {
		logging.Errorf("api: stripe event processing failed for app %s: %v", app.AppID, processErr)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "transient_upstream"})
		return
	}

	outcome, err := ingest(app.AppID, models.PlatformStripe, evt)
	if err != nil {
		logging.Errorf("api: failed to ingest stripe event for app %s: %v", app.AppID, err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": outcome.Duplicate})
}

// resolveStripeEvent tries each candidate tenant's webhook secret until
// one verifies the signature, then (for charge.refunded) follows up with
// the invoice lookup needed to recover the subscription a refund belongs
// to.
func resolveStripeEvent(apps []*models.App, raw []byte, sigHeader string) (*models.App, canonical.StoreEvent, error) {
	for _, app := range apps {
		cfg, err := database.DecodeProviderConfig(app)
		if err != nil || cfg.Stripe == nil {
			continue
		}
		evt, err := stripe.ParseNotification(raw, sigHeader, cfg.Stripe)
		if err != nil {
			continue
		}
		if evt.NotificationType == "charge.refunded" {
			refundEvt, refundErr := stripe.ResolveRefund(raw, cfg.Stripe)
			return app, refundEvt, refundErr
		}
		return app, evt, nil
	}
	return nil, canonical.StoreEvent{}, nil
}
