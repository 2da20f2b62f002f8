package webhook

import (
	"context"
	"time"

	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/pkg/logging"
)

const defaultSweepBatchSize = 100

// RetryRunner periodically re-drives due webhook deliveries.
type RetryRunner struct {
	dispatcher *Dispatcher
	interval   time.Duration
	batchSize  int
}

// NewRetryRunner builds a RetryRunner that sweeps at the given interval,
// re-attempting up to batchSize due deliveries per sweep. A non-positive
// batchSize falls back to the default of 100.
func NewRetryRunner(interval time.Duration, batchSize int) *RetryRunner {
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &RetryRunner{dispatcher: NewDispatcher(), interval: interval, batchSize: batchSize}
}

// Run blocks, sweeping on a ticker until ctx is cancelled.
func (r *RetryRunner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

// sweepOnce re-attempts up to r.batchSize due deliveries.
func (r *RetryRunner) sweepOnce() {
	due, err := database.GetDueWebhookDeliveries(time.Now(), r.batchSize)
	if err != nil {
		logging.Errorf("webhook retry: failed to load due deliveries: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	logging.Infof("webhook retry: re-attempting %d due deliveries", len(due))
	for i := range due {
		delivery := &due[i]
		hook, err := database.GetWebhookByID(delivery.WebhookID)
		if err != nil {
			logging.Errorf("webhook retry: failed to load webhook %d for delivery %d: %v",
				delivery.WebhookID, delivery.ID, err)
			continue
		}
		r.dispatcher.attempt(hook, delivery)
	}
}
