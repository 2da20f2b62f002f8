package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/models"
)

// pubsubEnvelope is the outer Pub/Sub push body.
type pubsubEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
		PublishAt string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// rtdnPayload is the base64-decoded Real-Time Developer Notification.
type rtdnPayload struct {
	Version                  string `json:"version"`
	PackageName              string `json:"packageName"`
	EventTimeMillis          string `json:"eventTimeMillis"`
	SubscriptionNotification *struct {
		Version          string `json:"version"`
		NotificationType int    `json:"notificationType"`
		PurchaseToken    string `json:"purchaseToken"`
		SubscriptionID   string `json:"subscriptionId"`
	} `json:"subscriptionNotification"`
	VoidedPurchaseNotification *struct {
		PurchaseToken string `json:"purchaseToken"`
		OrderID       string `json:"orderId"`
		ProductType   int    `json:"productType"`
		RefundType    int    `json:"refundType"`
	} `json:"voidedPurchaseNotification"`
}

// ParseNotification decodes the Pub/Sub envelope, extracts the RTDN
// payload, and re-reads the subscription's authoritative state via
// subscriptionsv2.get before returning a canonical.StoreEvent — the RTDN
// body itself carries only the notification type, never the current
// state (per the adapter policy: "the notification's subscription state
// is re-read authoritatively... before applying").
func ParseNotification(ctx context.Context, raw []byte, cfg *models.GoogleConfig) (canonical.StoreEvent, error) {
	var envelope pubsubEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("google: failed to decode Pub/Sub envelope: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("google: failed to decode RTDN data: %w", err)
	}

	var rtdn rtdnPayload
	if err := json.Unmarshal(data, &rtdn); err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("google: failed to decode RTDN payload: %w", err)
	}

	switch {
	case rtdn.SubscriptionNotification != nil:
		evt, err := parseSubscriptionNotification(ctx, envelope.Message.MessageID, rtdn, cfg)
		applyEventTime(&evt, rtdn)
		return evt, err
	case rtdn.VoidedPurchaseNotification != nil:
		evt := parseVoidedPurchaseNotification(envelope.Message.MessageID, rtdn)
		applyEventTime(&evt, rtdn)
		return evt, nil
	default:
		return canonical.StoreEvent{
			Platform:         canonical.PlatformAndroid,
			NotificationUUID: envelope.Message.MessageID,
			NotificationType: "unknown",
			EventType:        canonical.Unknown,
		}, nil
	}
}

func parseSubscriptionNotification(ctx context.Context, messageID string, rtdn rtdnPayload, cfg *models.GoogleConfig) (canonical.StoreEvent, error) {
	n := rtdn.SubscriptionNotification

	evt := canonical.StoreEvent{
		Platform:         canonical.PlatformAndroid,
		NotificationUUID: messageID,
		NotificationType: fmt.Sprintf("SubscriptionNotification/%d", n.NotificationType),
		EventType:        mapNotificationType(n.NotificationType),
		ProviderHandle:   n.PurchaseToken,
		ProductID:        n.SubscriptionID,
	}

	sub, err := GetSubscriptionV2(ctx, cfg, n.PurchaseToken)
	if err != nil {
		// The notification itself is still valid and must be applied
		// (event-type inference stands in for the missing authoritative
		// read); the caller logs this and proceeds.
		return evt, fmt.Errorf("google: authoritative re-read failed: %w", err)
	}

	evt.AuthoritativeStatus = mapSubscriptionState(sub.SubscriptionState)
	evt.IsSandbox = sub.TestPurchase != nil

	if len(sub.LineItems) > 0 {
		item := sub.LineItems[0]
		for _, li := range sub.LineItems {
			if li.ProductId == n.SubscriptionID {
				item = li
				break
			}
		}
		evt.ProductID = item.ProductId
		if item.ExpiryTime != "" {
			if t, err := time.Parse(time.RFC3339, item.ExpiryTime); err == nil {
				evt.ExpiresDate = &t
			}
		}
		if item.AutoRenewingPlan != nil {
			evt.WillRenew = item.AutoRenewingPlan.AutoRenewEnabled
		}
	}

	if sub.SubscriptionState == "SUBSCRIPTION_STATE_IN_GRACE_PERIOD" && evt.ExpiresDate != nil {
		evt.GracePeriodExpiresAt = evt.ExpiresDate
	}

	if sub.StartTime != "" {
		if t, err := time.Parse(time.RFC3339, sub.StartTime); err == nil {
			evt.PurchaseDate = t
		}
	}

	if sub.LatestOrderId != "" {
		evt.TransactionID = sub.LatestOrderId
		evt.OriginalTransactionID = sub.LatestOrderId
	}

	return evt, nil
}

// applyEventTime stamps the RTDN's own eventTimeMillis onto the event.
func applyEventTime(evt *canonical.StoreEvent, rtdn rtdnPayload) {
	if ms, err := strconv.ParseInt(rtdn.EventTimeMillis, 10, 64); err == nil && ms > 0 {
		evt.NotificationCreatedAt = time.UnixMilli(ms).UTC()
	}
}

func parseVoidedPurchaseNotification(messageID string, rtdn rtdnPayload) canonical.StoreEvent {
	v := rtdn.VoidedPurchaseNotification
	return canonical.StoreEvent{
		Platform:         canonical.PlatformAndroid,
		NotificationUUID: messageID,
		NotificationType: "VoidedPurchaseNotification",
		EventType:        canonical.Refund,
		ProviderHandle:   v.PurchaseToken,
		TransactionID:    v.OrderID,
	}
}

// mapNotificationType translates Google's legacy numeric
// subscriptionNotification.notificationType into the closed canonical
// enum.
func mapNotificationType(t int) canonical.DomainEventType {
	switch t {
	case 1: // SUBSCRIPTION_RECOVERED
		return canonical.BillingRecovery
	case 2: // SUBSCRIPTION_RENEWED
		return canonical.Renewal
	case 3: // SUBSCRIPTION_CANCELED
		return canonical.Cancellation
	case 4: // SUBSCRIPTION_PURCHASED
		return canonical.InitialPurchase
	case 5: // SUBSCRIPTION_ON_HOLD
		return canonical.BillingIssue
	case 6: // SUBSCRIPTION_IN_GRACE_PERIOD
		return canonical.GracePeriodStarted
	case 7: // SUBSCRIPTION_RESTARTED
		return canonical.Reactivation
	case 8: // SUBSCRIPTION_PRICE_CHANGE_CONFIRMED
		return canonical.PriceIncrease
	case 9: // SUBSCRIPTION_DEFERRED
		return canonical.SubscriptionUpdated
	case 10: // SUBSCRIPTION_PAUSED
		return canonical.Paused
	case 11: // SUBSCRIPTION_PAUSE_SCHEDULE_CHANGED
		return canonical.PauseScheduled
	case 12: // SUBSCRIPTION_REVOKED
		return canonical.Revocation
	case 13: // SUBSCRIPTION_EXPIRED
		return canonical.Expiration
	case 20: // SUBSCRIPTION_PENDING_PURCHASE_CANCELED
		return canonical.PendingCancelled
	default:
		return canonical.Unknown
	}
}

// mapSubscriptionState translates the v2 API's authoritative
// subscriptionState into the canonical status vocabulary, empty meaning
// "defer to event-type inference".
func mapSubscriptionState(state string) canonical.CanonicalStatus {
	switch state {
	case "SUBSCRIPTION_STATE_ACTIVE":
		return canonical.StatusActive
	case "SUBSCRIPTION_STATE_IN_GRACE_PERIOD":
		return canonical.StatusGracePeriod
	case "SUBSCRIPTION_STATE_ON_HOLD":
		return canonical.StatusBillingRetry
	case "SUBSCRIPTION_STATE_PAUSED":
		return canonical.StatusPaused
	case "SUBSCRIPTION_STATE_CANCELED":
		return canonical.StatusCancelled
	case "SUBSCRIPTION_STATE_EXPIRED":
		return canonical.StatusExpired
	default:
		return canonical.StatusUnspecified
	}
}

// VerifyReceipt is the client-initiated counterpart to ParseNotification:
// given a purchase token submitted directly to POST /v1/receipts, it
// re-reads the subscription via subscriptionsv2.get and builds a
// canonical.StoreEvent as if an initial-purchase notification had just
// arrived, since Google's client SDK delivers no signed receipt blob of
// its own to verify offline.
func VerifyReceipt(ctx context.Context, cfg *models.GoogleConfig, productID, purchaseToken string) (canonical.StoreEvent, error) {
	sub, err := GetSubscriptionV2(ctx, cfg, purchaseToken)
	if err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("google: receipt verification failed: %w", err)
	}

	evt := canonical.StoreEvent{
		Platform:            canonical.PlatformAndroid,
		NotificationUUID:    purchaseToken,
		NotificationType:    "ReceiptVerification",
		EventType:           InitialEventTypeFor(sub.SubscriptionState),
		AuthoritativeStatus: mapSubscriptionState(sub.SubscriptionState),
		ProviderHandle:      purchaseToken,
		ProductID:           productID,
		IsSandbox:           sub.TestPurchase != nil,
	}

	if len(sub.LineItems) > 0 {
		item := sub.LineItems[0]
		for _, li := range sub.LineItems {
			if li.ProductId == productID {
				item = li
				break
			}
		}
		evt.ProductID = item.ProductId
		if item.ExpiryTime != "" {
			if t, err := time.Parse(time.RFC3339, item.ExpiryTime); err == nil {
				evt.ExpiresDate = &t
			}
		}
		if item.AutoRenewingPlan != nil {
			evt.WillRenew = item.AutoRenewingPlan.AutoRenewEnabled
		}
	}

	if sub.StartTime != "" {
		if t, err := time.Parse(time.RFC3339, sub.StartTime); err == nil {
			evt.PurchaseDate = t
		}
	}

	if sub.LatestOrderId != "" {
		evt.TransactionID = sub.LatestOrderId
		evt.OriginalTransactionID = sub.LatestOrderId
	}

	return evt, nil
}

// PeekPackageName extracts the RTDN packageName from a raw Pub/Sub push
// body without any tenant config, so the caller can resolve which app's
// GoogleConfig to use before calling ParseNotification.
func PeekPackageName(raw []byte) (string, error) {
	var envelope pubsubEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", fmt.Errorf("google: failed to decode Pub/Sub envelope: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		return "", fmt.Errorf("google: failed to decode RTDN data: %w", err)
	}

	var rtdn rtdnPayload
	if err := json.Unmarshal(data, &rtdn); err != nil {
		return "", fmt.Errorf("google: failed to decode RTDN payload: %w", err)
	}

	return rtdn.PackageName, nil
}

// InitialEventTypeFor picks the event type a freshly-submitted receipt
// implies, used only when there is no RTDN notification type to defer to.
func InitialEventTypeFor(state string) canonical.DomainEventType {
	if state == "SUBSCRIPTION_STATE_EXPIRED" || state == "SUBSCRIPTION_STATE_CANCELED" {
		return canonical.Cancellation
	}
	return canonical.InitialPurchase
}
