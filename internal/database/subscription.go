package database

import (
	"fmt"
	"time"

	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/pkg/logging"

	"gorm.io/gorm"
)

// GetSubscriptionByHandle finds the subscription uniquely identified by
// (appID, platform, providerHandle) — Apple original transaction id,
// Google purchase token, Stripe/Paddle subscription id, or Amazon
// receipt id.
func GetSubscriptionByHandle(appID string, platform models.Platform, providerHandle string) (*models.Subscription, error) {
	var sub models.Subscription
	err := DB.Where("app_id = ? AND platform = ? AND provider_handle = ?", appID, platform, providerHandle).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubscriptionsForSubscriber loads every subscription a subscriber
// holds, across all platforms — the entitlement resolver's primary
// input.
func GetSubscriptionsForSubscriber(appID string, subscriberID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := DB.Where("app_id = ? AND subscriber_id = ?", appID, subscriberID).Find(&subs).Error
	return subs, err
}

// CreateOrUpdateSubscription applies the normalizer's resulting
// subscription row. Finds the existing row by (app, platform,
// provider_handle) and updates it under a compare-and-set on
// UpdatedSeq, which serializes concurrent writers for the same
// subscription; a lost race re-reads and re-applies. Creates a new row
// on first sight. When the existing row has no subscriber bound yet and
// the incoming one does (the deferred-binding case), the subscriber is
// attached without overwriting a previously bound, differing one.
func CreateOrUpdateSubscription(sub *models.Subscription) (*models.Subscription, error) {
	for attempt := 0; attempt < 3; attempt++ {
		var existing models.Subscription
		err := DB.Where("app_id = ? AND platform = ? AND provider_handle = ?", sub.AppID, sub.Platform, sub.ProviderHandle).
			First(&existing).Error

		if err == gorm.ErrRecordNotFound {
			if createErr := DB.Create(sub).Error; createErr != nil {
				return nil, createErr
			}
			result := *sub
			return &result, nil
		}
		if err != nil {
			return nil, err
		}

		if existing.SubscriberID == 0 && sub.SubscriberID != 0 {
			existing.SubscriberID = sub.SubscriberID
		} else if sub.SubscriberID != 0 && existing.SubscriberID != sub.SubscriberID {
			logging.Errorf("subscriber mismatch on provider handle %s: existing=%d incoming=%d, keeping existing",
				sub.ProviderHandle, existing.SubscriberID, sub.SubscriberID)
		}

		existing.ProductID = sub.ProductID
		existing.Status = sub.Status
		existing.PurchaseDate = sub.PurchaseDate
		existing.ExpiresAt = sub.ExpiresAt
		existing.GracePeriodExpiresAt = sub.GracePeriodExpiresAt
		existing.CancelledAt = sub.CancelledAt
		existing.WillRenew = sub.WillRenew
		existing.IsSandbox = sub.IsSandbox
		existing.IsTrial = sub.IsTrial
		existing.PriceAmount = sub.PriceAmount
		existing.Currency = sub.Currency

		prevSeq := existing.UpdatedSeq
		existing.UpdatedSeq = prevSeq + 1

		res := DB.Model(&models.Subscription{}).
			Where("id = ? AND updated_seq = ?", existing.ID, prevSeq).
			Select("*").Omit("id", "created_at").
			Updates(&existing)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return &existing, nil
		}
		// Lost the compare-and-set race to a concurrent writer for the
		// same provider handle; re-read and re-apply.
	}
	return nil, fmt.Errorf("database: subscription %s contended past retry budget", sub.ProviderHandle)
}

// AppendTransaction appends an immutable ledger row.
func AppendTransaction(txn *models.Transaction) error {
	return DB.Create(txn).Error
}

// MarkTransactionRefunded flags the original purchase/renewal row a
// refund event references; the refund's own negative ledger row is
// appended separately by the pipeline.
func MarkTransactionRefunded(appID, transactionID string) error {
	return DB.Model(&models.Transaction{}).
		Where("app_id = ? AND transaction_id = ?", appID, transactionID).
		Updates(map[string]interface{}{"is_refunded": true, "refunded_at": time.Now()}).Error
}

// SumRevenueForSubscription returns the lifetime net revenue across a
// subscription's ledger (refund rows carry negative amounts).
func SumRevenueForSubscription(subscriptionID uint) (int64, error) {
	var total int64
	err := DB.Model(&models.Transaction{}).
		Where("subscription_id = ?", subscriptionID).
		Select("COALESCE(SUM(revenue_amount), 0)").
		Row().Scan(&total)
	return total, err
}
