package database

import (
	"time"

	"paycat.dev/gateway/internal/models"
)

// GetActiveWebhooksForApp loads every active webhook endpoint an app has
// registered.
func GetActiveWebhooksForApp(appID string) ([]models.Webhook, error) {
	var hooks []models.Webhook
	err := DB.Where("app_id = ? AND is_active = ?", appID, true).Find(&hooks).Error
	return hooks, err
}

// CreateWebhookDelivery inserts a new delivery row in its initial
// pending state.
func CreateWebhookDelivery(d *models.WebhookDelivery) error {
	return DB.Create(d).Error
}

// SaveWebhookDelivery persists a delivery's updated attempt state.
func SaveWebhookDelivery(d *models.WebhookDelivery) error {
	return DB.Save(d).Error
}

// GetDueWebhookDeliveries selects up to limit deliveries whose retry is
// due: next_retry_at <= now, delivered_at is null, attempts < 7.
func GetDueWebhookDeliveries(now time.Time, limit int) ([]models.WebhookDelivery, error) {
	var deliveries []models.WebhookDelivery
	err := DB.Where("next_retry_at <= ? AND delivered_at IS NULL AND attempts < ?", now, 7).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&deliveries).Error
	return deliveries, err
}

// GetWebhookByID loads the webhook owning a delivery, to recover its URL
// and secret for a retry.
func GetWebhookByID(id uint) (*models.Webhook, error) {
	var hook models.Webhook
	err := DB.First(&hook, id).Error
	if err != nil {
		return nil, err
	}
	return &hook, nil
}
