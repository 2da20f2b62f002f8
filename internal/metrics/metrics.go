// Package metrics exposes Prometheus counters for the core pipeline:
// notification ingestion outcomes, webhook delivery attempts, and
// integration fan-out attempts. Scraped via GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paycat_notifications_total",
			Help: "Inbound provider notifications, by platform and outcome.",
		},
		[]string{"platform", "outcome"}, // outcome: fresh, duplicate, signature_invalid, error
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paycat_webhook_deliveries_total",
			Help: "Webhook delivery attempts, by terminal result.",
		},
		[]string{"result"}, // delivered, retrying, dead_lettered
	)

	WebhookDeliveryAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paycat_webhook_delivery_attempts",
			Help:    "Number of attempts a webhook delivery took before reaching a terminal state.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7},
		},
	)

	IntegrationDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paycat_integration_deliveries_total",
			Help: "Analytics sink delivery attempts, by sink type and success.",
		},
		[]string{"type", "success"},
	)
)
