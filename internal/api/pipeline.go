package api

import (
	"errors"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/entitlement"
	"paycat.dev/gateway/internal/idempotency"
	"paycat.dev/gateway/internal/integrations"
	"paycat.dev/gateway/internal/metrics"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/internal/normalizer"
	"paycat.dev/gateway/internal/webhook"
	"paycat.dev/gateway/pkg/logging"

	"gorm.io/gorm"
)

var (
	dispatcher = webhook.NewDispatcher()
	fanout     = integrations.NewFanout()
)

// ingestOutcome reports what the pipeline did with one StoreEvent, for
// the handler to shape its HTTP response.
type ingestOutcome struct {
	Duplicate    bool
	Subscriber   *models.Subscriber
	Subscription *models.Subscription
}

// ingest runs the full control flow for one verified StoreEvent: idempotency
// check, subscriber resolution, normalization, persistence, entitlement
// recalculation, and fan-out. Callers supply platform separately: the
// idempotency key (app, platform, notification-uuid) is built from this
// argument, not from evt.Platform.
func ingest(appID string, platform models.Platform, evt canonical.StoreEvent) (ingestOutcome, error) {
	evt.AppID = appID

	result, err := idempotency.CheckAndReserve(appID, platform, evt.NotificationUUID)
	if err != nil {
		return ingestOutcome{}, err
	}
	if result == idempotency.Duplicate {
		metrics.NotificationsTotal.WithLabelValues(string(platform), "duplicate").Inc()
		return ingestOutcome{Duplicate: true}, nil
	}
	metrics.NotificationsTotal.WithLabelValues(string(platform), "fresh").Inc()

	var subscriber *models.Subscriber
	if evt.AppUserID != "" {
		subscriber, err = database.GetOrCreateSubscriber(appID, evt.AppUserID)
		if err != nil {
			return ingestOutcome{}, err
		}
	}

	existing, err := database.GetSubscriptionByHandle(appID, platform, evt.ProviderHandle)
	if err != nil && !isNotFound(err) {
		return ingestOutcome{}, err
	}
	if isNotFound(err) {
		existing = nil
	}

	normalized := normalizer.Apply(evt, existing)
	if subscriber != nil {
		normalized.Subscription.SubscriberID = subscriber.ID
	}

	saved, err := database.CreateOrUpdateSubscription(normalized.Subscription)
	if err != nil {
		return ingestOutcome{}, err
	}

	if normalized.Transaction != nil {
		normalized.Transaction.SubscriptionID = saved.ID
		if err := database.AppendTransaction(normalized.Transaction); err != nil {
			logging.Errorf("api: failed to append transaction for subscription %d: %v", saved.ID, err)
		}
	}
	if (evt.EventType == canonical.Refund || evt.EventType == canonical.Revocation) && evt.TransactionID != "" {
		if err := database.MarkTransactionRefunded(appID, evt.TransactionID); err != nil {
			logging.Errorf("api: failed to mark transaction %s refunded: %v", evt.TransactionID, err)
		}
	}

	idempotency.MarkProcessed(appID, platform, evt.NotificationUUID, evt.NotificationType)

	domainEvent := normalized.Event
	domainEvent.SubscriberID = saved.SubscriberID
	if domainEvent.Subscription != nil {
		domainEvent.Subscription.ID = saved.ID
	}
	if saved.SubscriberID != 0 {
		if ent, err := entitlement.Calculate(appID, saved.SubscriberID); err != nil {
			logging.Errorf("api: failed to calculate entitlements for subscriber %d: %v", saved.SubscriberID, err)
		} else {
			domainEvent.Entitlements = boolMap(ent.Entitlements)
		}
	}

	dispatcher.DispatchEvent(appID, domainEvent)
	fanout.DispatchEvent(appID, domainEvent)

	return ingestOutcome{Subscriber: subscriber, Subscription: saved}, nil
}

func boolMap(m map[string]entitlement.Entitlement) map[string]bool {
	out := make(map[string]bool, len(m))
	for id, e := range m {
		out[id] = e.IsActive
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
