// Package normalizer applies a canonical.StoreEvent to subscription
// state, producing the updated subscription, an appended transaction,
// and the DomainEvent to fan out. See the transition table in the
// doc comment on Apply.
package normalizer

import (
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/models"

	"github.com/google/uuid"
)

// Result bundles everything a caller needs to persist and fan out after
// normalizing one event.
type Result struct {
	Subscription *models.Subscription
	Transaction  *models.Transaction
	Event        canonical.DomainEvent
}

// Apply computes the new subscription state and ledger entry for a
// StoreEvent against the (possibly nil, meaning first-seen) existing
// subscription row. It does not write to storage — callers persist via
// internal/database and then fan out the returned event.
//
// Transition table (event → status), unified across providers via the
// canonical event type:
//
//	initial_purchase                                  ∅ → active
//	renewal, billing_recovery, reactivation,
//	  renewal_extended                                any → active
//	trial_started                                      ∅ → active (is_trial=true)
//	trial_converted                                    active → active (is_trial=false)
//	cancellation                                       active → active (will_renew=false)
//	billing_issue                                      active → billing_retry
//	grace_period_started                               active|billing_retry → grace_period
//	grace_period_expired, expiration                   any → expired
//	refund, revocation                                  any → cancelled (+ refund ledger row)
//	paused                                              active → paused
//	price_increase, product_change, subscription_updated,
//	  offer_redeemed, trial_ending, dispute_*, unknown   status preserved
//
// When evt.AuthoritativeStatus is set (Google v2 / Stripe embedded
// object), it overrides the status this table would otherwise compute —
// the provider's authoritative read always wins the tie.
func Apply(evt canonical.StoreEvent, existing *models.Subscription) Result {
	sub := existing
	isNew := sub == nil
	if isNew {
		sub = &models.Subscription{
			AppID:          evt.AppID,
			Platform:       models.Platform(evt.Platform),
			ProductID:      evt.ProductID,
			ProviderHandle: evt.ProviderHandle,
			PurchaseDate:   evt.PurchaseDate,
			WillRenew:      true,
		}
	}

	sub.ProductID = evt.ProductID
	sub.ExpiresAt = evt.ExpiresDate
	sub.GracePeriodExpiresAt = evt.GracePeriodExpiresAt
	sub.IsSandbox = evt.IsSandbox
	if evt.RevenueAmount != 0 {
		sub.PriceAmount = evt.RevenueAmount
	}
	if evt.Currency != "" {
		sub.Currency = evt.Currency
	}

	switch evt.EventType {
	case canonical.InitialPurchase:
		sub.Status = models.StatusActive
		sub.WillRenew = true
		sub.IsTrial = false
	case canonical.TrialStarted:
		sub.Status = models.StatusActive
		sub.WillRenew = true
		sub.IsTrial = true
	case canonical.Renewal, canonical.BillingRecovery, canonical.Reactivation, canonical.RenewalExtended:
		sub.Status = models.StatusActive
		sub.WillRenew = true
	case canonical.TrialConverted:
		sub.Status = models.StatusActive
		sub.IsTrial = false
	case canonical.Cancellation:
		sub.Status = models.StatusActive
		sub.WillRenew = false
		// Cancelled-at records when the provider created the event, not
		// when this gateway processed it; delayed or replayed deliveries
		// would otherwise skew it.
		cancelledAt := evt.NotificationCreatedAt
		if cancelledAt.IsZero() {
			cancelledAt = time.Now()
		}
		sub.CancelledAt = &cancelledAt
	case canonical.BillingIssue:
		sub.Status = models.StatusBillingRetry
	case canonical.GracePeriodStarted:
		sub.Status = models.StatusGracePeriod
	case canonical.GracePeriodExpired, canonical.Expiration:
		sub.Status = models.StatusExpired
	case canonical.Refund, canonical.Revocation:
		sub.Status = models.StatusCancelled
	case canonical.Paused:
		sub.Status = models.StatusPaused
	case canonical.PauseScheduled:
		// status preserved; pause takes effect at the next renewal boundary
	case canonical.PriceIncrease, canonical.ProductChange, canonical.SubscriptionUpdated,
		canonical.OfferRedeemed, canonical.TrialEnding, canonical.DisputeCreated,
		canonical.DisputeClosed, canonical.PendingCancelled, canonical.Unknown:
		// status preserved; only the updated fields above apply
	default:
		// status preserved
	}

	// Authoritative re-read wins any disagreement with the inference above.
	if evt.AuthoritativeStatus != canonical.StatusUnspecified {
		sub.Status = models.SubscriptionStatus(evt.AuthoritativeStatus)
	}

	var txn *models.Transaction
	if evt.TransactionID != "" {
		txnType := transactionTypeFor(evt.EventType)
		amount := evt.RevenueAmount
		isRefund := evt.EventType == canonical.Refund || evt.EventType == canonical.Revocation
		if isRefund && amount > 0 {
			amount = -amount
		}
		txn = &models.Transaction{
			AppID:                 evt.AppID,
			TransactionID:         evt.TransactionID,
			OriginalTransactionID: evt.OriginalTransactionID,
			ProductID:             evt.ProductID,
			Platform:              models.Platform(evt.Platform),
			Type:                  txnType,
			PurchaseDate:          evt.PurchaseDate,
			ExpiresDate:           evt.ExpiresDate,
			RevenueAmount:         amount,
			Currency:              evt.Currency,
			IsRefunded:            isRefund,
		}
		if isRefund {
			now := time.Now()
			txn.RefundedAt = &now
			// The refund ledger row gets its own id; the provider reuses
			// the refunded purchase's transaction id, which already keys
			// the original row.
			txn.TransactionID = evt.TransactionID + ":refund"
		}
	}

	domainEvent := canonical.DomainEvent{
		ID:        uuid.NewString(),
		Type:      evt.EventType,
		CreatedAt: time.Now(),
		AppID:     evt.AppID,
		AppUserID: evt.AppUserID,
		Subscription: &canonical.DomainEventSubscription{
			ProductID: sub.ProductID,
			Platform:  evt.Platform,
			Status:    string(sub.Status),
			ExpiresAt: sub.ExpiresAt,
		},
	}
	if txn != nil {
		domainEvent.Transaction = &canonical.DomainEventTransaction{
			ID:       txn.TransactionID,
			Amount:   txn.RevenueAmount,
			Currency: txn.Currency,
		}
	}

	return Result{Subscription: sub, Transaction: txn, Event: domainEvent}
}

func transactionTypeFor(t canonical.DomainEventType) models.TransactionType {
	switch t {
	case canonical.InitialPurchase, canonical.TrialStarted:
		return models.TxnInitialPurchase
	case canonical.Renewal, canonical.BillingRecovery, canonical.Reactivation, canonical.RenewalExtended:
		return models.TxnRenewal
	case canonical.Refund, canonical.Revocation:
		return models.TxnRefund
	case canonical.ProductChange:
		return models.TxnUpgrade
	default:
		return models.TxnRenewal
	}
}
