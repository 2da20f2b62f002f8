package database

import (
	"time"

	"paycat.dev/gateway/internal/models"

	"gorm.io/gorm"
)

// GetOrCreateSubscriber finds the Subscriber for (appID, appUserID),
// creating it on first sight.
func GetOrCreateSubscriber(appID, appUserID string) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := DB.Where("app_id = ? AND app_user_id = ?", appID, appUserID).First(&sub).Error
	if err == nil {
		sub.LastSeen = time.Now()
		DB.Model(&sub).Update("last_seen", sub.LastSeen)
		return &sub, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	now := time.Now()
	sub = models.Subscriber{
		AppID:     appID,
		AppUserID: appUserID,
		FirstSeen: now,
		LastSeen:  now,
	}
	if err := DB.Create(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubscriberByAppUserID looks a subscriber up without creating one.
func GetSubscriberByAppUserID(appID, appUserID string) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := DB.Where("app_id = ? AND app_user_id = ?", appID, appUserID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// DeleteSubscriberCascade erases a subscriber and its subscriptions and
// transactions in one transaction. Deletes are unscoped: a GDPR erase
// must actually remove the rows, not soft-delete them.
func DeleteSubscriberCascade(appID, appUserID string) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		var sub models.Subscriber
		if err := tx.Where("app_id = ? AND app_user_id = ?", appID, appUserID).First(&sub).Error; err != nil {
			return err
		}

		var subs []models.Subscription
		if err := tx.Where("app_id = ? AND subscriber_id = ?", appID, sub.ID).Find(&subs).Error; err != nil {
			return err
		}
		for _, s := range subs {
			if err := tx.Unscoped().Where("subscription_id = ?", s.ID).Delete(&models.Transaction{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Unscoped().Where("app_id = ? AND subscriber_id = ?", appID, sub.ID).Delete(&models.Subscription{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&sub).Error
	})
}
