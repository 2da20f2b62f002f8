// Package apple implements the App Store Server Notifications V2 adapter:
// verifying the triple-nested JWS envelope and normalizing its payload
// into a canonical.StoreEvent, plus the App Store Server API JWT used to
// query Apple directly when a notification needs an authoritative re-read.
package apple

import (
	"encoding/json"
	"fmt"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/crypto"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/pkg/logging"
)

// responseBodyV2 is the outer decoded notification payload.
type responseBodyV2 struct {
	NotificationType string          `json:"notificationType"`
	Subtype          string          `json:"subtype"`
	NotificationUUID string          `json:"notificationUUID"`
	SignedDate       int64           `json:"signedDate"`
	Data             responseBodyV2D `json:"data"`
}

type responseBodyV2D struct {
	BundleID              string `json:"bundleId"`
	Environment           string `json:"environment"`
	SignedTransactionInfo string `json:"signedTransactionInfo"`
	SignedRenewalInfo     string `json:"signedRenewalInfo"`
}

// jwsTransactionDecodedPayload is the payload of the inner signedTransactionInfo JWS.
type jwsTransactionDecodedPayload struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	BundleID              string `json:"bundleId"`
	ProductID             string `json:"productId"`
	PurchaseDate          int64  `json:"purchaseDate"`
	ExpiresDate           int64  `json:"expiresDate"`
	Type                  string `json:"type"`
	Environment           string `json:"environment"`
	AppAccountToken       string `json:"appAccountToken"`
	Price                 int64  `json:"price"`
	Currency              string `json:"currency"`
	IsUpgraded            bool   `json:"isUpgraded"`
}

// jwsRenewalInfoDecodedPayload is the payload of the inner signedRenewalInfo JWS.
type jwsRenewalInfoDecodedPayload struct {
	OriginalTransactionID  string `json:"originalTransactionId"`
	AutoRenewStatus        int    `json:"autoRenewStatus"`
	IsInBillingRetryPeriod bool   `json:"isInBillingRetryPeriod"`
	GracePeriodExpiresDate int64  `json:"gracePeriodExpiresDate"`
	ExpirationIntent       int    `json:"expirationIntent"`
}

// ParseNotification decodes and verifies the outer JWS envelope carried
// in the request body's "signedPayload" field, then the two inner JWS
// envelopes it references, returning a canonical.StoreEvent.
func ParseNotification(signedPayload string, cfg *models.AppleConfig) (canonical.StoreEvent, error) {
	resolver := crypto.X5CResolver(crypto.PinnedAppleRootFingerprints, func(fp string) {
		logging.Warnf("apple: notification chain root fingerprint %s matches no pinned Apple root", fp)
	})

	outer, err := crypto.JWSDecodeVerify(signedPayload, "ES256", resolver)
	if err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("verify outer notification JWS: %w", err)
	}

	var body responseBodyV2
	if err := json.Unmarshal(outer, &body); err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("decode notification body: %w", err)
	}

	var txn jwsTransactionDecodedPayload
	if body.Data.SignedTransactionInfo != "" {
		txnPayload, err := crypto.JWSDecodeVerify(body.Data.SignedTransactionInfo, "ES256", resolver)
		if err != nil {
			return canonical.StoreEvent{}, fmt.Errorf("verify transaction JWS: %w", err)
		}
		if err := json.Unmarshal(txnPayload, &txn); err != nil {
			return canonical.StoreEvent{}, fmt.Errorf("decode transaction payload: %w", err)
		}
	}

	var renewal jwsRenewalInfoDecodedPayload
	if body.Data.SignedRenewalInfo != "" {
		renewalPayload, err := crypto.JWSDecodeVerify(body.Data.SignedRenewalInfo, "ES256", resolver)
		if err != nil {
			return canonical.StoreEvent{}, fmt.Errorf("verify renewal JWS: %w", err)
		}
		if err := json.Unmarshal(renewalPayload, &renewal); err != nil {
			return canonical.StoreEvent{}, fmt.Errorf("decode renewal payload: %w", err)
		}
	}

	evt := canonical.StoreEvent{
		Platform:              canonical.PlatformIOS,
		NotificationUUID:      body.NotificationUUID,
		NotificationType:      body.NotificationType + "/" + body.Subtype,
		EventType:             mapEventType(body.NotificationType, body.Subtype),
		ProductID:             txn.ProductID,
		ProviderHandle:        txn.OriginalTransactionID,
		AppUserID:             txn.AppAccountToken,
		PurchaseDate:          millisToTime(txn.PurchaseDate),
		WillRenew:             renewal.AutoRenewStatus == 1,
		IsSandbox:             body.Data.Environment == "Sandbox" || txn.Environment == "Sandbox",
		IsTrial:               txn.Type == "Auto-Renewable Subscription" && txn.Price == 0,
		RevenueAmount:         txn.Price,
		Currency:              txn.Currency,
		TransactionID:         txn.TransactionID,
		OriginalTransactionID: txn.OriginalTransactionID,
		RawPayload:            outer,
	}
	if body.SignedDate != 0 {
		evt.NotificationCreatedAt = millisToTime(body.SignedDate)
	}
	if txn.ExpiresDate != 0 {
		t := millisToTime(txn.ExpiresDate)
		evt.ExpiresDate = &t
	}
	if renewal.IsInBillingRetryPeriod && renewal.GracePeriodExpiresDate != 0 {
		t := millisToTime(renewal.GracePeriodExpiresDate)
		evt.GracePeriodExpiresAt = &t
	}
	if evt.EventType == canonical.Refund || body.NotificationType == "REFUND" {
		if evt.RevenueAmount > 0 {
			evt.RevenueAmount = -evt.RevenueAmount
		}
	}

	return evt, nil
}

// PeekBundleID reads the bundleId out of the outer notification JWS
// without verifying its signature, so the caller can resolve which
// tenant's AppleConfig to verify against before calling ParseNotification.
func PeekBundleID(signedPayload string) (string, error) {
	claims, err := crypto.ParseUnverifiedClaims(signedPayload)
	if err != nil {
		return "", fmt.Errorf("apple: failed to read notification payload: %w", err)
	}
	var body responseBodyV2
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("apple: failed to re-encode notification claims: %w", err)
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("apple: failed to decode notification body: %w", err)
	}
	return body.Data.BundleID, nil
}

func millisToTime(ms int64) time.Time {
	return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond))
}

// mapEventType translates Apple's (notificationType, subtype) pair into
// the closed canonical enum.
func mapEventType(notificationType, subtype string) canonical.DomainEventType {
	switch notificationType {
	case "SUBSCRIBED":
		if subtype == "INITIAL_BUY" {
			return canonical.InitialPurchase
		}
		return canonical.Reactivation
	case "DID_RENEW":
		if subtype == "BILLING_RECOVERY" {
			return canonical.BillingRecovery
		}
		return canonical.Renewal
	case "DID_FAIL_TO_RENEW":
		if subtype == "GRACE_PERIOD" {
			return canonical.GracePeriodStarted
		}
		return canonical.BillingIssue
	case "GRACE_PERIOD_EXPIRED":
		return canonical.GracePeriodExpired
	case "EXPIRED":
		return canonical.Expiration
	case "DID_CHANGE_RENEWAL_STATUS":
		if subtype == "AUTO_RENEW_DISABLED" {
			return canonical.Cancellation
		}
		return canonical.Reactivation
	case "DID_CHANGE_RENEWAL_PREF":
		if subtype == "UPGRADE" || subtype == "DOWNGRADE" {
			return canonical.ProductChange
		}
		return canonical.SubscriptionUpdated
	case "OFFER_REDEEMED":
		return canonical.OfferRedeemed
	case "PRICE_INCREASE":
		return canonical.PriceIncrease
	case "REFUND":
		return canonical.Refund
	case "REVOKE":
		return canonical.Revocation
	case "RENEWAL_EXTENDED", "RENEWAL_EXTENSION":
		return canonical.RenewalExtended
	case "CONSUMPTION_REQUEST":
		return canonical.Unknown
	default:
		return canonical.Unknown
	}
}
