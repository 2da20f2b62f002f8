// Package webhook delivers DomainEvents to tenant-configured HTTPS
// endpoints with a signed payload and a persisted, bounded retry
// schedule. See Dispatch for the send path and retry.go for the sweep
// that re-drives deliveries that failed.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/metrics"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/pkg/logging"
)

// RetrySchedule is the backoff, in milliseconds, applied when a
// delivery attempt fails: index i is the delay scheduled after attempt
// i+1 fails (so the first failure retries immediately). The delivery is
// dead-lettered once attempt 7 also fails.
var RetrySchedule = []int64{0, 60_000, 300_000, 1_800_000, 3_600_000, 21_600_000, 86_400_000}

const maxAttempts = 7

// Dispatcher delivers DomainEvents to a tenant's registered webhooks.
type Dispatcher struct {
	httpClient *http.Client
}

// NewDispatcher builds a Dispatcher with the standard send timeout.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// DispatchEvent fans an event out to every webhook an app has
// registered whose event filter matches. Each target gets its own
// WebhookDelivery row and its own first-attempt send; a failure is
// picked up later by the retry runner rather than retried inline.
func (d *Dispatcher) DispatchEvent(appID string, evt canonical.DomainEvent) {
	hooks, err := database.GetActiveWebhooksForApp(appID)
	if err != nil {
		logging.Errorf("webhook: failed to load webhooks for app %s: %v", appID, err)
		return
	}

	body, err := json.Marshal(evt)
	if err != nil {
		logging.Errorf("webhook: failed to marshal event %s: %v", evt.ID, err)
		return
	}

	var wg sync.WaitGroup
	for i := range hooks {
		hook := hooks[i]
		if !hook.Matches(string(evt.Type)) {
			continue
		}
		delivery := &models.WebhookDelivery{
			WebhookID: hook.ID,
			EventType: string(evt.Type),
			EventID:   evt.ID,
			Payload:   string(body),
			Attempts:  0,
		}
		if err := database.CreateWebhookDelivery(delivery); err != nil {
			logging.Errorf("webhook: failed to create delivery row for webhook %d: %v", hook.ID, err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.attempt(&hook, delivery)
		}()
	}
	wg.Wait()
}

// ValidateURL checks an endpoint URL at registration time: webhooks are
// delivered over HTTPS only, so http:// and malformed URLs are rejected.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("webhook: invalid URL: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("webhook: URL must be https://, got %q", raw)
	}
	return nil
}

// attempt performs one delivery attempt and persists its outcome,
// scheduling the next retry time per RetrySchedule or dead-lettering
// once maxAttempts is exhausted.
func (d *Dispatcher) attempt(hook *models.Webhook, delivery *models.WebhookDelivery) {
	// The schedule slot for this attempt's failure is the pre-increment
	// attempt count: the first failure retries after RetrySchedule[0].
	slot := delivery.Attempts
	delivery.Attempts++

	status, respBody, sendErr := d.send(hook, delivery)
	delivery.ResponseStatus = status
	delivery.ResponseBody = truncate(respBody, 1000)

	success := sendErr == nil && status >= 200 && status <= 299
	now := time.Now()

	if success {
		delivery.DeliveredAt = &now
		delivery.NextRetryAt = nil
		metrics.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
		metrics.WebhookDeliveryAttempts.Observe(float64(delivery.Attempts))
		logging.Infof("webhook: delivered event %s to webhook %d on attempt %d", delivery.EventID, hook.ID, delivery.Attempts)
	} else if delivery.Attempts >= maxAttempts {
		delivery.NextRetryAt = nil
		metrics.WebhookDeliveriesTotal.WithLabelValues("dead_lettered").Inc()
		metrics.WebhookDeliveryAttempts.Observe(float64(delivery.Attempts))
		logging.Errorf("webhook: dead-lettering event %s for webhook %d after %d attempts: %v",
			delivery.EventID, hook.ID, delivery.Attempts, sendErr)
	} else {
		next := now.Add(time.Duration(RetrySchedule[slot]) * time.Millisecond)
		delivery.NextRetryAt = &next
		metrics.WebhookDeliveriesTotal.WithLabelValues("retrying").Inc()
		logging.Warnf("webhook: delivery of event %s to webhook %d failed (attempt %d), retrying at %s: %v",
			delivery.EventID, hook.ID, delivery.Attempts, next.Format(time.RFC3339), sendErr)
	}

	if err := database.SaveWebhookDelivery(delivery); err != nil {
		logging.Errorf("webhook: failed to persist delivery outcome for delivery %d: %v", delivery.ID, err)
	}
}

func (d *Dispatcher) send(hook *models.Webhook, delivery *models.WebhookDelivery) (int, string, error) {
	payload := []byte(delivery.Payload)
	req, err := http.NewRequest(http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PayCat-Webhook/1.0")
	req.Header.Set("X-PayCat-Delivery-ID", strconv.FormatUint(uint64(delivery.ID), 10))

	if hook.Secret != "" {
		req.Header.Set("X-PayCat-Signature", sign(hook.Secret, payload))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1000))

	return resp.StatusCode, string(body), nil
}

// sign produces the "t=<unix-seconds>,v1=<hex-hmac>" header value. The
// signature covers the literal "<t>.<payload>" string so a replayed
// body cannot be re-signed under a stale timestamp.
func sign(secret string, payload []byte) string {
	t := strconv.FormatInt(time.Now().Unix(), 10)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(t))
	h.Write([]byte("."))
	h.Write(payload)
	v1 := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("t=%s,v1=%s", t, v1)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
