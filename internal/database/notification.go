package database

import (
	"paycat.dev/gateway/internal/models"

	"gorm.io/gorm"
)

// IsNotificationProcessed reports whether (appID, platform,
// notificationUUID) has already been recorded. The idempotency gate
// calls this before touching any subscription/transaction state.
func IsNotificationProcessed(appID string, platform models.Platform, notificationUUID string) (bool, error) {
	var existing models.ProcessedNotification
	err := DB.Where("app_id = ? AND platform = ? AND notification_uuid = ?", appID, platform, notificationUUID).
		First(&existing).Error
	if err == nil {
		return true, nil
	}
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	return false, err
}

// MarkNotificationProcessed commits the idempotency witness after a
// fresh notification has been applied. Per the gate's contract, failure
// to mark is non-fatal to the caller: a unique-constraint violation
// means a concurrent writer already recorded it, which is harmless
// since the normalizer's writes are themselves deterministic.
func MarkNotificationProcessed(appID string, platform models.Platform, notificationUUID, notificationType string) error {
	record := models.ProcessedNotification{
		AppID:            appID,
		Platform:         platform,
		NotificationUUID: notificationUUID,
		NotificationType: notificationType,
	}
	return DB.Create(&record).Error
}
