// Package paddle implements the Paddle adapter: RSA-SHA1 verification of
// the legacy p_signature scheme over form-encoded webhook bodies, and
// normalization of Paddle's alert_name vocabulary into the canonical
// event model.
package paddle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/crypto"
	"paycat.dev/gateway/internal/models"

	"github.com/shopspring/decimal"
)

// passthroughPayload is the JSON a customer attaches to checkout,
// carried back verbatim on every subsequent alert for that subscription.
type passthroughPayload struct {
	AppID     string `json:"app_id"`
	AppUserID string `json:"app_user_id"`
	ProductID string `json:"product_id"`
}

// VerifySignature extracts p_signature from the posted form, removes it,
// sorts the remaining keys lexicographically, PHP-serializes them, and
// verifies the base64-decoded signature against the vendor's RSA public
// key with RSASSA-PKCS1-v1_5/SHA-1.
func VerifySignature(form map[string][]string, cfg *models.PaddleConfig) error {
	sigValues, ok := form["p_signature"]
	if !ok || len(sigValues) == 0 {
		return fmt.Errorf("paddle: missing p_signature field")
	}
	sig, err := base64.StdEncoding.DecodeString(sigValues[0])
	if err != nil {
		return fmt.Errorf("paddle: failed to decode p_signature: %w", err)
	}

	fields := crypto.ParseFormToStringMap(form, "p_signature")
	serialized := crypto.PHPSerializeStringMap(fields)

	pub, err := crypto.ImportRSAPublicFromPEM([]byte(cfg.PublicKey))
	if err != nil {
		return fmt.Errorf("paddle: failed to parse vendor public key: %w", err)
	}

	if err := crypto.VerifyRSASHA1(pub, []byte(serialized), sig); err != nil {
		return fmt.Errorf("paddle: signature verification failed: %w", err)
	}
	return nil
}

// ParseNotification builds a canonical.StoreEvent from an already
// signature-verified Paddle alert form.
func ParseNotification(form map[string][]string) (canonical.StoreEvent, error) {
	get := func(key string) string {
		if v, ok := form[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	alertName := get("alert_name")
	evt := canonical.StoreEvent{
		Platform:         canonical.PlatformPaddle,
		NotificationUUID: get("alert_id"),
		NotificationType: alertName,
		EventType:        mapAlertName(alertName),
		ProviderHandle:   get("subscription_id"),
		ProductID:        get("subscription_plan_id"),
	}
	if evt.ProviderHandle != "" {
		evt.OriginalTransactionID = evt.ProviderHandle
	}

	evt.AuthoritativeStatus = mapSubscriptionStatus(get("status"))

	if raw := get("event_time"); raw != "" {
		if ts, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
			evt.NotificationCreatedAt = ts.UTC()
		}
	}

	if passthrough := get("passthrough"); passthrough != "" {
		var p passthroughPayload
		if err := json.Unmarshal([]byte(passthrough), &p); err == nil {
			evt.AppID = p.AppID
			evt.AppUserID = p.AppUserID
			if evt.ProductID == "" {
				evt.ProductID = p.ProductID
			}
		}
	}

	if err := applyAmount(&evt, get("unit_price"), get("currency")); err != nil {
		return canonical.StoreEvent{}, err
	}
	if err := applyRefundAmount(&evt, get("gross_refund"), get("currency")); err != nil {
		return canonical.StoreEvent{}, err
	}

	evt.TransactionID = get("subscription_payment_id")
	if evt.TransactionID == "" {
		evt.TransactionID = get("order_id")
	}

	return evt, nil
}

func applyAmount(evt *canonical.StoreEvent, raw, currency string) error {
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("paddle: failed to parse amount %q: %w", raw, err)
	}
	evt.RevenueAmount = d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	evt.Currency = currency
	return nil
}

func applyRefundAmount(evt *canonical.StoreEvent, raw, currency string) error {
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("paddle: failed to parse refund amount %q: %w", raw, err)
	}
	cents := d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if cents > 0 {
		cents = -cents
	}
	evt.RevenueAmount = cents
	evt.Currency = currency
	return nil
}

// mapAlertName translates Paddle's alert_name vocabulary into the closed
// canonical enum.
func mapAlertName(alert string) canonical.DomainEventType {
	switch alert {
	case "subscription_created":
		return canonical.InitialPurchase
	case "subscription_updated":
		return canonical.SubscriptionUpdated
	case "subscription_cancelled":
		return canonical.Cancellation
	case "subscription_payment_succeeded":
		return canonical.Renewal
	case "subscription_payment_failed":
		return canonical.BillingIssue
	case "subscription_payment_refunded", "payment_refunded":
		return canonical.Refund
	case "payment_succeeded":
		return canonical.InitialPurchase
	default:
		return canonical.Unknown
	}
}

// mapSubscriptionStatus translates Paddle's status field into the
// canonical status vocabulary.
func mapSubscriptionStatus(status string) canonical.CanonicalStatus {
	switch status {
	case "active", "trialing":
		return canonical.StatusActive
	case "past_due":
		return canonical.StatusBillingRetry
	case "paused":
		return canonical.StatusPaused
	case "deleted", "cancelled":
		return canonical.StatusCancelled
	default:
		return canonical.StatusUnspecified
	}
}
