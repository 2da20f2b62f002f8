package api

import (
	"net/http"

	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/entitlement"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/internal/response"

	"github.com/gin-gonic/gin"
)

// subscriberResponse is the body of GET /v1/subscribers/{app_user_id}.
type subscriberResponse struct {
	AppUserID     string                             `json:"app_user_id"`
	FirstSeen     string                             `json:"first_seen"`
	LastSeen      string                             `json:"last_seen"`
	Subscriptions []models.Subscription              `json:"subscriptions"`
	Entitlements  map[string]entitlement.Entitlement `json:"entitlements"`
}

func handleGetSubscriber(c *gin.Context) {
	app := c.MustGet("app").(*models.App)
	appUserID := c.Param("app_user_id")

	sub, err := database.GetSubscriberByAppUserID(app.AppID, appUserID)
	if err != nil {
		response.Error(c, http.StatusNotFound, "not_found", "subscriber not found")
		return
	}

	result, err := entitlement.Calculate(app.AppID, sub.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "internal_error", "failed to calculate entitlements")
		return
	}

	response.JSON(c, http.StatusOK, subscriberResponse{
		AppUserID:     sub.AppUserID,
		FirstSeen:     sub.FirstSeen.Format("2006-01-02T15:04:05Z07:00"),
		LastSeen:      sub.LastSeen.Format("2006-01-02T15:04:05Z07:00"),
		Subscriptions: result.Subscriptions,
		Entitlements:  result.Entitlements,
	})
}

// handleDeleteSubscriber erases a subscriber and everything it owns
// (subscriptions, transactions) per the GDPR-erase contract. Requires
// ?confirm=true to guard against accidental calls.
func handleDeleteSubscriber(c *gin.Context) {
	app := c.MustGet("app").(*models.App)
	appUserID := c.Param("app_user_id")

	if c.Query("confirm") != "true" {
		response.Error(c, http.StatusBadRequest, "confirmation_required", "erase requires ?confirm=true")
		return
	}

	if err := database.DeleteSubscriberCascade(app.AppID, appUserID); err != nil {
		response.Error(c, http.StatusNotFound, "not_found", "subscriber not found")
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"deleted": true})
}
