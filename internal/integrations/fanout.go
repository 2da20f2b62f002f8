// Package integrations fans DomainEvents out to third-party analytics
// and marketing sinks (Slack, Amplitude, Mixpanel, Segment, Firebase,
// Braze, AppsFlyer, Adjust, or a generic signed webhook). Unlike
// internal/webhook, fan-out is fire-and-forget: a failing sink is
// logged and recorded for observability but never retried and never
// blocks or fails the ingest request.
package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/metrics"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/pkg/logging"
)

// Fanout delivers events concurrently to every enabled integration an
// app has configured.
type Fanout struct {
	httpClient *http.Client
}

// NewFanout builds a Fanout with the standard send timeout.
func NewFanout() *Fanout {
	return &Fanout{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// DispatchEvent sends evt to every enabled, matching integration for
// appID concurrently. Each target's outcome is isolated: one sink's
// panic-free failure never affects another's delivery or the caller.
func (f *Fanout) DispatchEvent(appID string, evt canonical.DomainEvent) {
	targets, err := database.GetEnabledIntegrationsForApp(appID)
	if err != nil {
		logging.Errorf("integrations: failed to load targets for app %s: %v", appID, err)
		return
	}

	var wg sync.WaitGroup
	for i := range targets {
		target := targets[i]
		if !target.Matches(string(evt.Type)) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.deliverOne(&target, evt)
		}()
	}
	wg.Wait()
}

func (f *Fanout) deliverOne(target *models.Integration, evt canonical.DomainEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adapter := adapterFor(target.Type)
	body, status, sendErr := adapter.Send(ctx, f.httpClient, target, evt)

	record := &models.IntegrationDelivery{
		IntegrationID:  target.ID,
		EventType:      string(evt.Type),
		EventID:        evt.ID,
		ResponseStatus: status,
		SentAt:         timePtr(time.Now()),
	}
	if sendErr != nil {
		record.Success = false
		record.ErrorMessage = sendErr.Error()
		metrics.IntegrationDeliveriesTotal.WithLabelValues(string(target.Type), "false").Inc()
		logging.Warnf("integrations: delivery to %s (%d) failed for event %s: %v",
			target.Type, target.ID, evt.ID, sendErr)
	} else {
		record.Success = status >= 200 && status <= 299
		record.ResponseBody = truncate(body, 1000)
		metrics.IntegrationDeliveriesTotal.WithLabelValues(string(target.Type), strconv.FormatBool(record.Success)).Inc()
		if !record.Success {
			logging.Warnf("integrations: delivery to %s (%d) returned status %d for event %s",
				target.Type, target.ID, status, evt.ID)
		}
	}

	if err := database.RecordIntegrationDelivery(record); err != nil {
		logging.Errorf("integrations: failed to record delivery outcome for integration %d: %v", target.ID, err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// postJSON is the shared transport helper every sink adapter except
// Mixpanel uses (Mixpanel's track endpoint takes a query parameter): a
// plain signed-or-unsigned JSON POST, since none of these vendors'
// destinations need anything beyond their own payload shape.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) (string, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 1000)
	n, _ := resp.Body.Read(buf)
	return string(buf[:n]), resp.StatusCode, nil
}
