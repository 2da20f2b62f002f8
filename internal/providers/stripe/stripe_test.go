package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v72"
)

const testSecret = "whsec_test_secret"

func signHeader(payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func subscriptionEventPayload(cancelAtPeriodEnd bool) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"created": 1700000100,
		"type": "customer.subscription.updated",
		"data": {
			"object": {
				"id": "sub_1",
				"object": "subscription",
				"status": "active",
				"cancel_at_period_end": %t,
				"start_date": 1700000000,
				"current_period_end": 1700604800,
				"items": {
					"object": "list",
					"data": [{
						"id": "si_1",
						"object": "subscription_item",
						"price": {"id": "price_pro", "object": "price", "unit_amount": 999, "currency": "usd"}
					}]
				}
			}
		}
	}`, cancelAtPeriodEnd))
}

func TestSignatureToleranceBoundary(t *testing.T) {
	payload := subscriptionEventPayload(false)
	cfg := &models.StripeConfig{WebhookSecret: testSecret}

	// 299s of skew is inside the 300s tolerance; 301s is outside.
	_, err := ParseNotification(payload, signHeader(payload, time.Now().Add(-299*time.Second)), cfg)
	assert.NoError(t, err)

	_, err = ParseNotification(payload, signHeader(payload, time.Now().Add(-301*time.Second)), cfg)
	assert.Error(t, err)
}

func TestSignatureRejectsWrongSecret(t *testing.T) {
	payload := subscriptionEventPayload(false)
	header := signHeader(payload, time.Now())

	_, err := ParseNotification(payload, header, &models.StripeConfig{WebhookSecret: "whsec_other"})
	assert.Error(t, err)
}

func TestSubscriptionUpdatedWithCancelAtPeriodEnd(t *testing.T) {
	payload := subscriptionEventPayload(true)
	cfg := &models.StripeConfig{WebhookSecret: testSecret}

	evt, err := ParseNotification(payload, signHeader(payload, time.Now()), cfg)
	require.NoError(t, err)

	assert.Equal(t, canonical.PlatformStripe, evt.Platform)
	assert.Equal(t, "evt_1", evt.NotificationUUID)
	assert.Equal(t, canonical.Cancellation, evt.EventType)
	assert.Equal(t, canonical.StatusActive, evt.AuthoritativeStatus)
	assert.Equal(t, "sub_1", evt.ProviderHandle)
	assert.False(t, evt.WillRenew)
	assert.Equal(t, "price_pro", evt.ProductID)
	assert.EqualValues(t, 999, evt.RevenueAmount)
	assert.Equal(t, "usd", evt.Currency)
	require.NotNil(t, evt.ExpiresDate)
	assert.EqualValues(t, 1700604800, evt.ExpiresDate.Unix())
	// The event's own created timestamp rides along for cancelled_at.
	assert.EqualValues(t, 1700000100, evt.NotificationCreatedAt.Unix())
}

func TestSubscriptionUpdatedWithoutCancelIsSubscriptionUpdated(t *testing.T) {
	payload := subscriptionEventPayload(false)
	cfg := &models.StripeConfig{WebhookSecret: testSecret}

	evt, err := ParseNotification(payload, signHeader(payload, time.Now()), cfg)
	require.NoError(t, err)
	assert.Equal(t, canonical.SubscriptionUpdated, evt.EventType)
	assert.True(t, evt.WillRenew)
}

func TestChargeRefundedDefersToResolveRefund(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"object": "event",
		"type": "charge.refunded",
		"data": {"object": {"id": "ch_1", "object": "charge", "amount_refunded": 999, "currency": "usd"}}
	}`)
	cfg := &models.StripeConfig{WebhookSecret: testSecret}

	evt, err := ParseNotification(payload, signHeader(payload, time.Now()), cfg)
	require.NoError(t, err)
	assert.Equal(t, "charge.refunded", evt.NotificationType)
}

func TestResolveRefundWithoutInvoiceStillBuildsNegativeEvent(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"object": "event",
		"type": "charge.refunded",
		"data": {"object": {"id": "ch_1", "object": "charge", "amount_refunded": 999, "currency": "usd"}}
	}`)

	evt, err := ResolveRefund(payload, &models.StripeConfig{SecretKey: "sk_test"})
	require.NoError(t, err)
	assert.Equal(t, canonical.Refund, evt.EventType)
	assert.EqualValues(t, -999, evt.RevenueAmount)
	assert.Equal(t, "ch_1", evt.TransactionID)
}

func TestMapSubscriptionStatus(t *testing.T) {
	assert.Equal(t, canonical.StatusActive, mapSubscriptionStatus(stripego.SubscriptionStatusActive))
	assert.Equal(t, canonical.StatusActive, mapSubscriptionStatus(stripego.SubscriptionStatusTrialing))
	assert.Equal(t, canonical.StatusBillingRetry, mapSubscriptionStatus(stripego.SubscriptionStatusPastDue))
	assert.Equal(t, canonical.StatusCancelled, mapSubscriptionStatus(stripego.SubscriptionStatusCanceled))
	assert.Equal(t, canonical.StatusUnspecified, mapSubscriptionStatus(stripego.SubscriptionStatusIncomplete))
}

func TestUnknownEventTypeMapsToUnknown(t *testing.T) {
	payload := []byte(`{"id": "evt_3", "object": "event", "type": "payout.paid", "data": {"object": {}}}`)
	cfg := &models.StripeConfig{WebhookSecret: testSecret}

	evt, err := ParseNotification(payload, signHeader(payload, time.Now()), cfg)
	require.NoError(t, err)
	assert.Equal(t, canonical.Unknown, evt.EventType)
}
