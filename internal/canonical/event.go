// Package canonical defines the provider-agnostic event model that every
// adapter in internal/providers normalizes into, and that the normalizer,
// entitlement resolver, webhook dispatcher, and integration fan-out all
// speak exclusively.
package canonical

import (
	"encoding/json"
	"time"
)

// DomainEventType is the closed enumeration of canonical event kinds.
// An unrecognized provider-specific type maps to Unknown rather than
// growing the set.
type DomainEventType string

const (
	InitialPurchase     DomainEventType = "initial_purchase"
	Renewal             DomainEventType = "renewal"
	Cancellation        DomainEventType = "cancellation"
	Expiration          DomainEventType = "expiration"
	Refund              DomainEventType = "refund"
	BillingIssue        DomainEventType = "billing_issue"
	BillingRecovery     DomainEventType = "billing_recovery"
	GracePeriodStarted  DomainEventType = "grace_period_started"
	GracePeriodExpired  DomainEventType = "grace_period_expired"
	TrialStarted        DomainEventType = "trial_started"
	TrialConverted      DomainEventType = "trial_converted"
	TrialEnding         DomainEventType = "trial_ending"
	ProductChange       DomainEventType = "product_change"
	Reactivation        DomainEventType = "reactivation"
	Revocation          DomainEventType = "revocation"
	OfferRedeemed       DomainEventType = "offer_redeemed"
	PriceIncrease       DomainEventType = "price_increase"
	RenewalExtended     DomainEventType = "renewal_extended"
	Paused              DomainEventType = "paused"
	PauseScheduled      DomainEventType = "pause_scheduled"
	PendingCancelled    DomainEventType = "pending_cancelled"
	SubscriptionUpdated DomainEventType = "subscription_updated"
	DisputeCreated      DomainEventType = "dispute_created"
	DisputeClosed       DomainEventType = "dispute_closed"
	Unknown             DomainEventType = "unknown"
)

// AllDomainEventTypes lists every member of the closed enum, used by the
// payload serializer round-trip tests.
var AllDomainEventTypes = []DomainEventType{
	InitialPurchase, Renewal, Cancellation, Expiration, Refund, BillingIssue,
	BillingRecovery, GracePeriodStarted, GracePeriodExpired, TrialStarted,
	TrialConverted, TrialEnding, ProductChange, Reactivation, Revocation,
	OfferRedeemed, PriceIncrease, RenewalExtended, Paused, PauseScheduled,
	PendingCancelled, SubscriptionUpdated, DisputeCreated, DisputeClosed, Unknown,
}

// Platform mirrors models.Platform without importing internal/models, to
// keep this package dependency-free for provider adapters.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformStripe  Platform = "stripe"
	PlatformPaddle  Platform = "paddle"
	PlatformAmazon  Platform = "amazon"
)

// CanonicalStatus mirrors the normalizer's subscription status
// vocabulary; providers that carry an authoritative status (Google v2,
// Stripe) populate this to let it win over event-type inference.
type CanonicalStatus string

const (
	StatusActive       CanonicalStatus = "active"
	StatusGracePeriod  CanonicalStatus = "grace_period"
	StatusBillingRetry CanonicalStatus = "billing_retry"
	StatusPaused       CanonicalStatus = "paused"
	StatusCancelled    CanonicalStatus = "cancelled"
	StatusExpired      CanonicalStatus = "expired"
	StatusUnspecified  CanonicalStatus = ""
)

// StoreEvent is what every provider adapter produces from a verified
// receipt or notification, before the normalizer applies it.
type StoreEvent struct {
	AppID            string
	Platform         Platform
	NotificationUUID string // provider-supplied dedup key, see internal/idempotency
	NotificationType string // provider's raw type string, for logging/ProcessedNotification
	EventType        DomainEventType

	// NotificationCreatedAt is the provider's own event-creation time
	// (Stripe event.created, Apple signedDate, RTDN eventTimeMillis,
	// Paddle event_time, the SNS envelope Timestamp). Zero when the provider supplies none; time-stamped
	// fields like cancelled_at prefer it over processing wall-clock so
	// delayed or replayed deliveries record when the event happened,
	// not when the gateway got around to it.
	NotificationCreatedAt time.Time

	// AuthoritativeStatus is set when the provider's own re-read (Google
	// subscriptionsv2.get, Stripe's embedded subscription object) disagrees
	// with event-type inference; it wins the tie per the normalizer's
	// tie-break rule. Empty means "defer to event-type inference".
	AuthoritativeStatus CanonicalStatus

	ProductID      string
	ProviderHandle string // original transaction id / purchase token / subscription id / receipt id
	AppUserID      string // resolved subscriber external id, may be empty (deferred binding)

	PurchaseDate         time.Time
	ExpiresDate          *time.Time
	GracePeriodExpiresAt *time.Time
	WillRenew            bool
	IsSandbox            bool
	IsTrial              bool

	RevenueAmount int64 // minor units, signed (negative on refund)
	Currency      string

	TransactionID         string
	OriginalTransactionID string

	RawPayload []byte
}

// DomainEvent is the canonical fan-out unit: what gets serialized into
// webhook/integration payloads after the normalizer and entitlement
// resolver have run.
type DomainEvent struct {
	ID        string
	Type      DomainEventType
	CreatedAt time.Time

	AppID        string
	AppUserID    string
	SubscriberID uint

	Subscription *DomainEventSubscription
	Transaction  *DomainEventTransaction
	Entitlements map[string]bool
}

type DomainEventSubscription struct {
	ID        uint       `json:"id"`
	ProductID string     `json:"product_id"`
	Platform  Platform   `json:"platform"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type DomainEventTransaction struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// domainEventWire is the canonical wire shape: {id, type, created_at,
// data:{app_user_id, subscriber_id, subscription?, transaction?, entitlements?}}.
type domainEventWire struct {
	ID        string          `json:"id"`
	Type      DomainEventType `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      domainEventData `json:"data"`
}

type domainEventData struct {
	AppUserID    string                   `json:"app_user_id"`
	SubscriberID uint                     `json:"subscriber_id"`
	Subscription *DomainEventSubscription `json:"subscription,omitempty"`
	Transaction  *DomainEventTransaction  `json:"transaction,omitempty"`
	Entitlements map[string]bool          `json:"entitlements,omitempty"`
}

// MarshalJSON produces the canonical payload shape emitted to webhooks and
// integration sinks; AppID is deliberately omitted from the wire form since
// it is implied by which tenant's endpoint received the delivery.
func (e DomainEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(domainEventWire{
		ID:        e.ID,
		Type:      e.Type,
		CreatedAt: e.CreatedAt,
		Data: domainEventData{
			AppUserID:    e.AppUserID,
			SubscriberID: e.SubscriberID,
			Subscription: e.Subscription,
			Transaction:  e.Transaction,
			Entitlements: e.Entitlements,
		},
	})
}

// UnmarshalJSON reverses MarshalJSON, used by the payload round-trip tests.
func (e *DomainEvent) UnmarshalJSON(b []byte) error {
	var wire domainEventWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	e.ID = wire.ID
	e.Type = wire.Type
	e.CreatedAt = wire.CreatedAt
	e.AppUserID = wire.Data.AppUserID
	e.SubscriberID = wire.Data.SubscriberID
	e.Subscription = wire.Data.Subscription
	e.Transaction = wire.Data.Transaction
	e.Entitlements = wire.Data.Entitlements
	return nil
}
