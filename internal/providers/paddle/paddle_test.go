package paddle

import (
	realcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/crypto"
	"paycat.dev/gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedForm(t *testing.T, key *rsa.PrivateKey, fields map[string]string) map[string][]string {
	t.Helper()
	serialized := crypto.PHPSerializeStringMap(fields)
	digest := sha1.Sum([]byte(serialized))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, realcrypto.SHA1, digest[:])
	require.NoError(t, err)

	form := map[string][]string{"p_signature": {base64.StdEncoding.EncodeToString(sig)}}
	for k, v := range fields {
		form[k] = []string{v}
	}
	return form
}

func vendorConfig(t *testing.T, key *rsa.PrivateKey) *models.PaddleConfig {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return &models.PaddleConfig{VendorID: "12345", PublicKey: string(pemBytes)}
}

func TestVerifySignatureAcceptsWellSignedForm(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	form := signedForm(t, key, map[string]string{
		"alert_name":      "subscription_created",
		"alert_id":        "101",
		"subscription_id": "sub-1",
	})

	assert.NoError(t, VerifySignature(form, vendorConfig(t, key)))
}

func TestVerifySignatureRejectsTamperedField(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	form := signedForm(t, key, map[string]string{
		"alert_name": "subscription_created",
		"alert_id":   "101",
	})
	form["alert_id"] = []string{"999"}

	assert.Error(t, VerifySignature(form, vendorConfig(t, key)))
}

func TestVerifySignatureRejectsMissingSignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	form := map[string][]string{"alert_name": {"subscription_created"}}
	assert.Error(t, VerifySignature(form, vendorConfig(t, key)))
}

func TestParseNotificationMapsCreatedAlert(t *testing.T) {
	form := map[string][]string{
		"alert_name":           {"subscription_created"},
		"alert_id":             {"101"},
		"subscription_id":      {"sub-1"},
		"subscription_plan_id": {"plan-9"},
		"status":               {"active"},
		"unit_price":           {"9.99"},
		"currency":             {"USD"},
		"order_id":             {"order-1"},
		"passthrough":          {`{"app_id":"app_1","app_user_id":"user_a","product_id":"pro_monthly"}`},
	}

	evt, err := ParseNotification(form)
	require.NoError(t, err)
	assert.Equal(t, canonical.PlatformPaddle, evt.Platform)
	assert.Equal(t, "101", evt.NotificationUUID)
	assert.Equal(t, canonical.InitialPurchase, evt.EventType)
	assert.Equal(t, canonical.StatusActive, evt.AuthoritativeStatus)
	assert.Equal(t, "sub-1", evt.ProviderHandle)
	assert.Equal(t, "plan-9", evt.ProductID)
	assert.Equal(t, "app_1", evt.AppID)
	assert.Equal(t, "user_a", evt.AppUserID)
	// Decimal string price lands as exact minor units, no float rounding.
	assert.EqualValues(t, 999, evt.RevenueAmount)
	assert.Equal(t, "USD", evt.Currency)
	assert.Equal(t, "order-1", evt.TransactionID)
}

func TestParseNotificationRefundIsNegative(t *testing.T) {
	form := map[string][]string{
		"alert_name":              {"subscription_payment_refunded"},
		"alert_id":                {"102"},
		"subscription_id":         {"sub-1"},
		"gross_refund":            {"4.50"},
		"currency":                {"USD"},
		"subscription_payment_id": {"pay-7"},
	}

	evt, err := ParseNotification(form)
	require.NoError(t, err)
	assert.Equal(t, canonical.Refund, evt.EventType)
	assert.EqualValues(t, -450, evt.RevenueAmount)
	assert.Equal(t, "pay-7", evt.TransactionID)
}

func TestParseNotificationRejectsMalformedPrice(t *testing.T) {
	form := map[string][]string{
		"alert_name": {"subscription_payment_succeeded"},
		"alert_id":   {"103"},
		"unit_price": {"not-a-number"},
		"currency":   {"USD"},
	}

	_, err := ParseNotification(form)
	assert.Error(t, err)
}

func TestMapAlertNameFallsBackToUnknown(t *testing.T) {
	assert.Equal(t, canonical.Unknown, mapAlertName("locker_processed"))
	assert.Equal(t, canonical.Cancellation, mapAlertName("subscription_cancelled"))
	assert.Equal(t, canonical.BillingIssue, mapAlertName("subscription_payment_failed"))
}
