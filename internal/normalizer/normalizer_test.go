package normalizer

import (
	"testing"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEvent(eventType canonical.DomainEventType) canonical.StoreEvent {
	expires := time.Now().Add(30 * 24 * time.Hour)
	return canonical.StoreEvent{
		AppID:                 "app_1",
		Platform:              canonical.PlatformIOS,
		NotificationUUID:      "uuid-1",
		EventType:             eventType,
		ProductID:             "pro_monthly",
		ProviderHandle:        "1000",
		AppUserID:             "user_a",
		PurchaseDate:          time.Now().Add(-time.Hour),
		ExpiresDate:           &expires,
		RevenueAmount:         999,
		Currency:              "USD",
		TransactionID:         "txn-1",
		OriginalTransactionID: "1000",
	}
}

func TestInitialPurchaseCreatesActiveSubscription(t *testing.T) {
	result := Apply(baseEvent(canonical.InitialPurchase), nil)

	require.NotNil(t, result.Subscription)
	assert.Equal(t, models.StatusActive, result.Subscription.Status)
	assert.True(t, result.Subscription.WillRenew)
	assert.False(t, result.Subscription.IsTrial)
	assert.Equal(t, "pro_monthly", result.Subscription.ProductID)

	require.NotNil(t, result.Transaction)
	assert.Equal(t, models.TxnInitialPurchase, result.Transaction.Type)
	assert.EqualValues(t, 999, result.Transaction.RevenueAmount)

	assert.Equal(t, canonical.InitialPurchase, result.Event.Type)
}

func TestTrialStartedSetsIsTrial(t *testing.T) {
	result := Apply(baseEvent(canonical.TrialStarted), nil)
	assert.Equal(t, models.StatusActive, result.Subscription.Status)
	assert.True(t, result.Subscription.IsTrial)
}

func TestTrialConvertedClearsIsTrial(t *testing.T) {
	existing := &models.Subscription{Status: models.StatusActive, IsTrial: true}
	result := Apply(baseEvent(canonical.TrialConverted), existing)
	assert.Equal(t, models.StatusActive, result.Subscription.Status)
	assert.False(t, result.Subscription.IsTrial)
}

func TestCancellationKeepsActiveAndClearsWillRenew(t *testing.T) {
	existing := &models.Subscription{Status: models.StatusActive, WillRenew: true}
	evt := baseEvent(canonical.Cancellation)
	eventCreated := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	evt.NotificationCreatedAt = eventCreated

	result := Apply(evt, existing)

	// Time drives the transition to expired, not the cancellation itself.
	assert.Equal(t, models.StatusActive, result.Subscription.Status)
	assert.False(t, result.Subscription.WillRenew)
	require.NotNil(t, result.Subscription.CancelledAt)
	// Cancelled-at is the provider's event time, not processing time.
	assert.True(t, result.Subscription.CancelledAt.Equal(eventCreated))
}

func TestCancellationWithoutEventTimeFallsBackToNow(t *testing.T) {
	result := Apply(baseEvent(canonical.Cancellation), &models.Subscription{Status: models.StatusActive})
	require.NotNil(t, result.Subscription.CancelledAt)
	assert.WithinDuration(t, time.Now(), *result.Subscription.CancelledAt, 5*time.Second)
}

func TestBillingIssueThenGracePeriodThenExpiry(t *testing.T) {
	sub := &models.Subscription{Status: models.StatusActive}

	result := Apply(baseEvent(canonical.BillingIssue), sub)
	assert.Equal(t, models.StatusBillingRetry, result.Subscription.Status)

	result = Apply(baseEvent(canonical.GracePeriodStarted), result.Subscription)
	assert.Equal(t, models.StatusGracePeriod, result.Subscription.Status)

	result = Apply(baseEvent(canonical.GracePeriodExpired), result.Subscription)
	assert.Equal(t, models.StatusExpired, result.Subscription.Status)
}

func TestBillingRecoveryReturnsToActive(t *testing.T) {
	existing := &models.Subscription{Status: models.StatusBillingRetry}
	result := Apply(baseEvent(canonical.BillingRecovery), existing)
	assert.Equal(t, models.StatusActive, result.Subscription.Status)
	assert.True(t, result.Subscription.WillRenew)
}

func TestRefundCancelsAndNegatesRevenue(t *testing.T) {
	existing := &models.Subscription{Status: models.StatusActive}
	result := Apply(baseEvent(canonical.Refund), existing)

	assert.Equal(t, models.StatusCancelled, result.Subscription.Status)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, models.TxnRefund, result.Transaction.Type)
	assert.EqualValues(t, -999, result.Transaction.RevenueAmount)
	assert.True(t, result.Transaction.IsRefunded)
	require.NotNil(t, result.Transaction.RefundedAt)
	// The refund row never reuses the original transaction's primary key.
	assert.Equal(t, "txn-1:refund", result.Transaction.TransactionID)
}

func TestRefundWithAlreadyNegativeAmountIsNotDoubleNegated(t *testing.T) {
	evt := baseEvent(canonical.Refund)
	evt.RevenueAmount = -500
	result := Apply(evt, &models.Subscription{Status: models.StatusActive})
	assert.EqualValues(t, -500, result.Transaction.RevenueAmount)
}

func TestPausedFromActive(t *testing.T) {
	result := Apply(baseEvent(canonical.Paused), &models.Subscription{Status: models.StatusActive})
	assert.Equal(t, models.StatusPaused, result.Subscription.Status)
}

func TestStatusPreservingEventsKeepStatus(t *testing.T) {
	for _, eventType := range []canonical.DomainEventType{
		canonical.PriceIncrease, canonical.ProductChange, canonical.SubscriptionUpdated,
		canonical.OfferRedeemed, canonical.TrialEnding, canonical.DisputeCreated,
		canonical.DisputeClosed, canonical.PauseScheduled, canonical.Unknown,
	} {
		existing := &models.Subscription{Status: models.StatusGracePeriod}
		result := Apply(baseEvent(eventType), existing)
		assert.Equal(t, models.StatusGracePeriod, result.Subscription.Status, "event %s", eventType)
	}
}

func TestAuthoritativeStatusWinsOverInference(t *testing.T) {
	evt := baseEvent(canonical.Renewal)
	evt.AuthoritativeStatus = canonical.StatusGracePeriod

	result := Apply(evt, &models.Subscription{Status: models.StatusActive})
	assert.Equal(t, models.StatusGracePeriod, result.Subscription.Status)
}

func TestApplyIsDeterministicOnReplay(t *testing.T) {
	evt := baseEvent(canonical.Renewal)

	first := Apply(evt, &models.Subscription{Status: models.StatusBillingRetry})
	second := Apply(evt, first.Subscription)

	assert.Equal(t, first.Subscription.Status, second.Subscription.Status)
	assert.Equal(t, first.Subscription.ProductID, second.Subscription.ProductID)
	assert.Equal(t, first.Subscription.WillRenew, second.Subscription.WillRenew)
	assert.Equal(t, first.Transaction.TransactionID, second.Transaction.TransactionID)
	assert.Equal(t, first.Transaction.RevenueAmount, second.Transaction.RevenueAmount)
}

func TestNoTransactionWithoutTransactionID(t *testing.T) {
	evt := baseEvent(canonical.SubscriptionUpdated)
	evt.TransactionID = ""
	result := Apply(evt, &models.Subscription{Status: models.StatusActive})
	assert.Nil(t, result.Transaction)
	assert.Nil(t, result.Event.Transaction)
}

func TestDomainEventCarriesSubscriptionSnapshot(t *testing.T) {
	result := Apply(baseEvent(canonical.InitialPurchase), nil)
	require.NotNil(t, result.Event.Subscription)
	assert.Equal(t, "pro_monthly", result.Event.Subscription.ProductID)
	assert.Equal(t, "active", result.Event.Subscription.Status)
	assert.Equal(t, canonical.PlatformIOS, result.Event.Subscription.Platform)
	assert.NotEmpty(t, result.Event.ID)
}
