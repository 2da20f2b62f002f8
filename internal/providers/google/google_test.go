package google

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"paycat.dev/gateway/internal/canonical"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pubsubBody(t *testing.T, rtdn map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(rtdn)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":        base64.StdEncoding.EncodeToString(data),
			"messageId":   "msg-1",
			"publishTime": "2026-02-01T09:30:00Z",
		},
		"subscription": "projects/p/subscriptions/s",
	})
	require.NoError(t, err)
	return body
}

func TestPeekPackageNameReadsEnvelope(t *testing.T) {
	body := pubsubBody(t, map[string]any{
		"version":     "1.0",
		"packageName": "com.acme.app",
	})

	name, err := PeekPackageName(body)
	require.NoError(t, err)
	assert.Equal(t, "com.acme.app", name)
}

func TestPeekPackageNameRejectsBadBase64(t *testing.T) {
	_, err := PeekPackageName([]byte(`{"message":{"data":"%%%","messageId":"m"}}`))
	assert.Error(t, err)
}

func TestMapNotificationTypeCoversRTDNVocabulary(t *testing.T) {
	cases := map[int]canonical.DomainEventType{
		1:  canonical.BillingRecovery,
		2:  canonical.Renewal,
		3:  canonical.Cancellation,
		4:  canonical.InitialPurchase,
		5:  canonical.BillingIssue,
		6:  canonical.GracePeriodStarted,
		7:  canonical.Reactivation,
		10: canonical.Paused,
		12: canonical.Revocation,
		13: canonical.Expiration,
		99: canonical.Unknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, mapNotificationType(in), "notificationType %d", in)
	}
}

func TestMapSubscriptionStateAuthoritativeVocabulary(t *testing.T) {
	assert.Equal(t, canonical.StatusActive, mapSubscriptionState("SUBSCRIPTION_STATE_ACTIVE"))
	assert.Equal(t, canonical.StatusGracePeriod, mapSubscriptionState("SUBSCRIPTION_STATE_IN_GRACE_PERIOD"))
	assert.Equal(t, canonical.StatusBillingRetry, mapSubscriptionState("SUBSCRIPTION_STATE_ON_HOLD"))
	assert.Equal(t, canonical.StatusExpired, mapSubscriptionState("SUBSCRIPTION_STATE_EXPIRED"))
	// Unrecognized states defer to event-type inference.
	assert.Equal(t, canonical.StatusUnspecified, mapSubscriptionState("SUBSCRIPTION_STATE_PENDING"))
}

func TestVoidedPurchaseMapsToRefund(t *testing.T) {
	var rtdn rtdnPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"version": "1.0",
		"packageName": "com.acme.app",
		"voidedPurchaseNotification": {"purchaseToken": "tok-1", "orderId": "GPA.1234"}
	}`), &rtdn))

	evt := parseVoidedPurchaseNotification("msg-1", rtdn)
	assert.Equal(t, canonical.Refund, evt.EventType)
	assert.Equal(t, "tok-1", evt.ProviderHandle)
	assert.Equal(t, "GPA.1234", evt.TransactionID)
	assert.Equal(t, "msg-1", evt.NotificationUUID)
}

func TestDecodeRSAKeyFromJWK(t *testing.T) {
	// 65537 = AQAB.
	pub, err := decodeRSAKey(jwk{
		Kty: "RSA",
		Kid: "kid-1",
		N:   base64.RawURLEncoding.EncodeToString([]byte{0xd1, 0x5e, 0xa5, 0xe0}),
		E:   "AQAB",
	})
	require.NoError(t, err)
	assert.Equal(t, 65537, pub.E)
	assert.EqualValues(t, 0xd15ea5e0, pub.N.Uint64())
}

func TestInitialEventTypeForTerminalStates(t *testing.T) {
	assert.Equal(t, canonical.Cancellation, InitialEventTypeFor("SUBSCRIPTION_STATE_EXPIRED"))
	assert.Equal(t, canonical.InitialPurchase, InitialEventTypeFor("SUBSCRIPTION_STATE_ACTIVE"))
}
