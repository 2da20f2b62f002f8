// Package stripe implements the Stripe adapter: HMAC webhook signature
// verification, mapping of Stripe event types onto the canonical event
// model, and the charge.refunded -> invoice GET follow-up needed to
// recover the subscription a refund belongs to.
package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/models"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"
)

// ParseNotification verifies the Stripe-Signature header against cfg's
// webhook secret (stripe-go's default 300s timestamp tolerance matches
// the adapter's own), then normalizes the event into a canonical.StoreEvent.
func ParseNotification(raw []byte, sigHeader string, cfg *models.StripeConfig) (canonical.StoreEvent, error) {
	event, err := webhook.ConstructEvent(raw, sigHeader, cfg.WebhookSecret)
	if err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("stripe: signature verification failed: %w", err)
	}

	evt := canonical.StoreEvent{
		Platform:         canonical.PlatformStripe,
		NotificationUUID: event.ID,
		NotificationType: string(event.Type),
		RawPayload:       raw,
	}
	if event.Created > 0 {
		evt.NotificationCreatedAt = time.Unix(event.Created, 0).UTC()
	}

	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted",
		"customer.subscription.trial_will_end",
		"customer.subscription.paused",
		"customer.subscription.resumed":
		return applySubscriptionEvent(evt, event)
	case "invoice.payment_succeeded":
		return applyInvoiceEvent(evt, event, canonical.Renewal)
	case "invoice.payment_failed":
		return applyInvoiceEvent(evt, event, canonical.BillingIssue)
	case "charge.refunded":
		return evt, nil // caller follows up via ResolveRefund before applying
	case "charge.dispute.created":
		evt.EventType = canonical.DisputeCreated
		return evt, nil
	case "charge.dispute.closed":
		evt.EventType = canonical.DisputeClosed
		return evt, nil
	default:
		evt.EventType = canonical.Unknown
		return evt, nil
	}
}

func applySubscriptionEvent(evt canonical.StoreEvent, event stripe.Event) (canonical.StoreEvent, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("stripe: failed to decode subscription object: %w", err)
	}

	evt.ProviderHandle = sub.ID
	evt.OriginalTransactionID = sub.ID
	evt.AuthoritativeStatus = mapSubscriptionStatus(sub.Status)
	evt.WillRenew = !sub.CancelAtPeriodEnd
	evt.PurchaseDate = time.Unix(sub.StartDate, 0).UTC()

	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		evt.ExpiresDate = &t
	}
	if sub.TrialEnd > 0 {
		evt.IsTrial = sub.Status == stripe.SubscriptionStatusTrialing
	}
	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			evt.ProductID = item.Price.ID
			evt.RevenueAmount = item.Price.UnitAmount
			evt.Currency = string(item.Price.Currency)
		}
	}

	switch event.Type {
	case "customer.subscription.created":
		evt.EventType = canonical.InitialPurchase
	case "customer.subscription.deleted":
		evt.EventType = canonical.Expiration
	case "customer.subscription.trial_will_end":
		evt.EventType = canonical.TrialEnding
	case "customer.subscription.paused":
		evt.EventType = canonical.Paused
	case "customer.subscription.resumed":
		evt.EventType = canonical.Reactivation
	default: // customer.subscription.updated
		if sub.CancelAtPeriodEnd {
			evt.EventType = canonical.Cancellation
		} else {
			evt.EventType = canonical.SubscriptionUpdated
		}
	}

	return evt, nil
}

func applyInvoiceEvent(evt canonical.StoreEvent, event stripe.Event, eventType canonical.DomainEventType) (canonical.StoreEvent, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("stripe: failed to decode invoice object: %w", err)
	}

	evt.EventType = eventType
	if inv.Subscription != nil {
		evt.ProviderHandle = inv.Subscription.ID
		evt.OriginalTransactionID = inv.Subscription.ID
	}
	evt.TransactionID = inv.ID
	evt.RevenueAmount = inv.AmountPaid
	evt.Currency = string(inv.Currency)
	return evt, nil
}

// ResolveRefund follows up a charge.refunded event with a GET to
// /v1/invoices/{id} using the app's secret key, the only way to recover
// which subscription a refunded charge belongs to.
func ResolveRefund(raw []byte, cfg *models.StripeConfig) (canonical.StoreEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("stripe: failed to decode event envelope: %w", err)
	}

	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("stripe: failed to decode charge object: %w", err)
	}

	evt := canonical.StoreEvent{
		Platform:         canonical.PlatformStripe,
		NotificationUUID: event.ID,
		NotificationType: string(event.Type),
		EventType:        canonical.Refund,
		TransactionID:    charge.ID,
		RevenueAmount:    -charge.AmountRefunded,
		Currency:         string(charge.Currency),
		RawPayload:       raw,
	}
	if event.Created > 0 {
		evt.NotificationCreatedAt = time.Unix(event.Created, 0).UTC()
	}

	if charge.Invoice == nil {
		return evt, nil
	}

	sc := client.New(cfg.SecretKey, nil)
	inv, err := sc.Invoices.Get(charge.Invoice.ID, nil)
	if err != nil {
		return evt, fmt.Errorf("stripe: failed to resolve invoice %s for refund: %w", charge.Invoice.ID, err)
	}
	if inv.Subscription != nil {
		evt.ProviderHandle = inv.Subscription.ID
		evt.OriginalTransactionID = inv.Subscription.ID
	}

	return evt, nil
}

func mapSubscriptionStatus(status stripe.SubscriptionStatus) canonical.CanonicalStatus {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return canonical.StatusActive
	case stripe.SubscriptionStatusPastDue:
		return canonical.StatusBillingRetry
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return canonical.StatusCancelled
	case stripe.SubscriptionStatusUnpaid:
		return canonical.StatusExpired
	default:
		return canonical.StatusUnspecified
	}
}
