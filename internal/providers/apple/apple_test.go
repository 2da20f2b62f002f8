package apple

import (
	"testing"

	"paycat.dev/gateway/internal/canonical"

	"github.com/stretchr/testify/assert"
)

func TestMapEventTypeInitialBuy(t *testing.T) {
	assert.Equal(t, canonical.InitialPurchase, mapEventType("SUBSCRIBED", "INITIAL_BUY"))
}

func TestMapEventTypeBillingRecovery(t *testing.T) {
	assert.Equal(t, canonical.BillingRecovery, mapEventType("DID_RENEW", "BILLING_RECOVERY"))
}

func TestMapEventTypeGracePeriod(t *testing.T) {
	assert.Equal(t, canonical.GracePeriodStarted, mapEventType("DID_FAIL_TO_RENEW", "GRACE_PERIOD"))
}

func TestMapEventTypeAutoRenewDisabledIsCancellation(t *testing.T) {
	assert.Equal(t, canonical.Cancellation, mapEventType("DID_CHANGE_RENEWAL_STATUS", "AUTO_RENEW_DISABLED"))
}

func TestMapEventTypeUnknownFallsBackToUnknown(t *testing.T) {
	assert.Equal(t, canonical.Unknown, mapEventType("SOMETHING_NEW", ""))
}

func TestMillisToTimeConvertsEpochMillis(t *testing.T) {
	ts := millisToTime(1700000000000)
	assert.Equal(t, int64(1700000000), ts.Unix())
}
