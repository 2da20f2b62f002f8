package models

import "time"

// SubscriptionStatus is the closed state-machine vocabulary from the
// normalizer (internal/normalizer).
type SubscriptionStatus string

const (
	StatusActive       SubscriptionStatus = "active"
	StatusGracePeriod  SubscriptionStatus = "grace_period"
	StatusBillingRetry SubscriptionStatus = "billing_retry"
	StatusPaused       SubscriptionStatus = "paused"
	StatusCancelled    SubscriptionStatus = "cancelled"
	StatusExpired      SubscriptionStatus = "expired"
)

// Subscription is one product × platform holding for a subscriber. The
// provider identifier (original transaction id / purchase token / Stripe
// subscription id / Paddle subscription id / Amazon receipt id) is
// unique within (app, platform) and is stored in ProviderHandle.
type Subscription struct {
	BaseModel
	AppID        string   `json:"app_id" gorm:"not null;index;index:idx_sub_app_platform_handle,unique"`
	SubscriberID uint     `json:"subscriber_id" gorm:"index"`
	Platform     Platform `json:"platform" gorm:"size:20;not null;index;index:idx_sub_app_platform_handle,unique"`
	ProductID    string   `json:"product_id" gorm:"size:120"`

	// ProviderHandle is whichever of {originalTransactionId, purchaseToken,
	// stripeSubscriptionId, paddleSubscriptionId, amazonReceiptId} applies
	// to Platform. Unique within (app_id, platform).
	ProviderHandle string `json:"provider_handle" gorm:"size:200;not null;index:idx_sub_app_platform_handle,unique"`

	Status SubscriptionStatus `json:"status" gorm:"size:20;not null;index"`

	PurchaseDate         time.Time  `json:"purchase_date"`
	ExpiresAt            *time.Time `json:"expires_at" gorm:"index"`
	GracePeriodExpiresAt *time.Time `json:"grace_period_expires_at"`
	CancelledAt          *time.Time `json:"cancelled_at"`

	WillRenew bool `json:"will_renew"`
	IsSandbox bool `json:"is_sandbox"`
	IsTrial   bool `json:"is_trial"`

	PriceAmount int64  `json:"price_amount"` // minor units
	Currency    string `json:"currency" gorm:"size:3"`

	// UpdatedSeq is a monotonically increasing sequence used for the
	// per-row compare-and-set described in the concurrency model; bumped
	// on every write via CreateOrUpdateSubscription.
	UpdatedSeq uint64 `json:"-"`
}

func (Subscription) TableName() string { return "subscriptions" }

// IsGranting reports whether this subscription currently grants its
// entitlements, per the resolver's "currently granting" rule.
func (s *Subscription) IsGranting(now time.Time) bool {
	switch s.Status {
	case StatusActive, StatusGracePeriod:
		return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
	case StatusBillingRetry:
		return s.GracePeriodExpiresAt == nil || now.Before(*s.GracePeriodExpiresAt)
	default:
		return false
	}
}
