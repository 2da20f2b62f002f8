package api

import (
	"net/http"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/internal/providers/amazon"
	"paycat.dev/gateway/internal/providers/apple"
	"paycat.dev/gateway/internal/providers/google"
	"paycat.dev/gateway/internal/response"
	"paycat.dev/gateway/pkg/logging"

	"github.com/gin-gonic/gin"
)

// receiptRequest is the body of a client-initiated receipt sync. Only the
// ReceiptData fields relevant to Platform are read.
type receiptRequest struct {
	AppUserID   string `json:"app_user_id" binding:"required"`
	Platform    string `json:"platform" binding:"required"`
	ReceiptData struct {
		TransactionID string `json:"transaction_id"`
		ProductID     string `json:"product_id"`
		PurchaseToken string `json:"purchase_token"`
		ReceiptID     string `json:"receipt_id"`
	} `json:"receipt_data" binding:"required"`
}

// handleReceipt re-verifies a client-submitted purchase directly against
// the provider and applies it through the same pipeline a pushed
// notification would use.
func handleReceipt(c *gin.Context) {
	app := c.MustGet("app").(*models.App)

	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "receipt_invalid", err.Error())
		return
	}

	cfg, err := database.DecodeProviderConfig(app)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "internal_error", "failed to decode app provider config")
		return
	}

	platform := models.Platform(req.Platform)
	var evt canonical.StoreEvent

	switch platform {
	case models.PlatformIOS:
		if cfg.Apple == nil {
			response.Error(c, http.StatusUnprocessableEntity, "configuration_missing", "app has no Apple configuration")
			return
		}
		evt, err = apple.NewClient().VerifyReceipt(cfg.Apple, req.ReceiptData.TransactionID)
	case models.PlatformAndroid:
		if cfg.Google == nil {
			response.Error(c, http.StatusUnprocessableEntity, "configuration_missing", "app has no Google configuration")
			return
		}
		evt, err = google.VerifyReceipt(c.Request.Context(), cfg.Google, req.ReceiptData.ProductID, req.ReceiptData.PurchaseToken)
	case models.PlatformAmazon:
		if cfg.Amazon == nil {
			response.Error(c, http.StatusUnprocessableEntity, "configuration_missing", "app has no Amazon configuration")
			return
		}
		var rvs *amazon.ReceiptResponse
		rvs, err = amazon.VerifyReceipt(c.Request.Context(), cfg.Amazon, req.AppUserID, req.ReceiptData.ReceiptID)
		if err == nil {
			evt = canonical.StoreEvent{
				Platform:         canonical.PlatformAmazon,
				NotificationUUID: req.ReceiptData.ReceiptID,
				NotificationType: "ReceiptVerification",
				EventType:        canonical.InitialPurchase,
				ProviderHandle:   req.ReceiptData.ReceiptID,
				TransactionID:    req.ReceiptData.ReceiptID,
			}
			applyAmazonReceipt(&evt, rvs)
		}
	default:
		response.Error(c, http.StatusUnprocessableEntity, "configuration_missing",
			"platform "+req.Platform+" does not support client-initiated receipt verification")
		return
	}

	if err != nil {
		logging.Errorf("api: receipt verification failed for app %s platform %s: %v", app.AppID, req.Platform, err)
		if canonical.IsTransientUpstream(err) {
			response.Error(c, http.StatusBadGateway, "transient_upstream", "provider API unavailable, retry later")
			return
		}
		response.Error(c, http.StatusBadRequest, "receipt_invalid", "receipt verification failed")
		return
	}

	evt.AppUserID = req.AppUserID

	outcome, err := ingest(app.AppID, platform, evt)
	if err != nil {
		logging.Errorf("api: failed to ingest receipt for app %s: %v", app.AppID, err)
		response.Error(c, http.StatusInternalServerError, "internal_error", "failed to process receipt")
		return
	}
	if outcome.Duplicate {
		response.JSON(c, http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"received": true, "subscription_id": outcome.Subscription.ID})
}

func applyAmazonReceipt(evt *canonical.StoreEvent, rvs *amazon.ReceiptResponse) {
	evt.ProductID = rvs.ProductID
	evt.IsSandbox = rvs.TestTransaction
	evt.WillRenew = rvs.AutoRenewing
	if rvs.PurchaseDate > 0 {
		evt.PurchaseDate = time.UnixMilli(rvs.PurchaseDate).UTC()
	}
	if rvs.RenewalDate > 0 {
		t := time.UnixMilli(rvs.RenewalDate).UTC()
		evt.ExpiresDate = &t
	} else if rvs.CancelDate > 0 {
		t := time.UnixMilli(rvs.CancelDate).UTC()
		evt.ExpiresDate = &t
	}
	if rvs.GracePeriodEndDate > 0 {
		t := time.UnixMilli(rvs.GracePeriodEndDate).UTC()
		evt.GracePeriodExpiresAt = &t
	}
}
