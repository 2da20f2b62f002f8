package integrations

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/models"
)

// sinkConfig is the superset of fields any vendor config may carry;
// each adapter reads only what it needs.
type sinkConfig struct {
	WebhookURL string `json:"webhook_url"`
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	ProjectID  string `json:"project_id"`
	Secret     string `json:"secret"` // generic_webhook HMAC secret
}

func decodeConfig(raw string) sinkConfig {
	var cfg sinkConfig
	_ = json.Unmarshal([]byte(raw), &cfg)
	return cfg
}

// sinkAdapter shapes a DomainEvent into a vendor's expected payload and
// posts it to that vendor's endpoint.
type sinkAdapter interface {
	Send(ctx context.Context, client *http.Client, target *models.Integration, evt canonical.DomainEvent) (body string, status int, err error)
}

func adapterFor(t models.IntegrationType) sinkAdapter {
	switch t {
	case models.IntegrationSlack:
		return slackAdapter{}
	case models.IntegrationAmplitude:
		return amplitudeAdapter{}
	case models.IntegrationMixpanel:
		return mixpanelAdapter{}
	case models.IntegrationSegment:
		return segmentAdapter{}
	case models.IntegrationFirebase:
		return firebaseAdapter{}
	case models.IntegrationBraze:
		return brazeAdapter{}
	case models.IntegrationAppsFlyer:
		return appsFlyerAdapter{}
	case models.IntegrationAdjust:
		return adjustAdapter{}
	default:
		return genericWebhookAdapter{}
	}
}

// slackAdapter posts a one-line Slack incoming-webhook message summarizing
// the event, useful for ops/revenue channels watching churn and upgrades.
type slackAdapter struct{}

func (slackAdapter) Send(ctx context.Context, client *http.Client, target *models.Integration, evt canonical.DomainEvent) (string, int, error) {
	cfg := decodeConfig(target.Config)
	text := fmt.Sprintf(":moneybag: `%s` app_user=%s", evt.Type, evt.AppUserID)
	if evt.Subscription != nil {
		text += fmt.Sprintf(" product=%s status=%s", evt.Subscription.ProductID, evt.Subscription.Status)
	}
	return postJSON(ctx, client, cfg.WebhookURL, nil, map[string]string{"text": text})
}

// amplitudeAdapter forwards the event as an Amplitude HTTP API v2 event.
type amplitudeAdapter struct{}

func (amplitudeAdapter) Send(ctx context.Context, client *http.Client, target *models.Integration, evt canonical.DomainEvent) (string, int, error) {
	cfg := decodeConfig(target.Config)
	payload := map[string]any{
		"api_key": cfg.APIKey,
		"events": []map[string]any{{
			"user_id":          evt.AppUserID,
			"event_type":       string(evt.Type),
			"time":             evt.CreatedAt.UnixMilli(),
			"event_properties": eventProperties(evt),
		}},
	}
	return postJSON(ctx, client, "https://api2.amplitude.com/2/httpapi", nil, payload)
}

// mixpanelAdapter forwards the event via Mixpanel's classic track
// endpoint, which takes the event base64-encoded in a data query
// parameter rather than a JSON body.
type mixpanelAdapter struct{}

func (mixpanelAdapter) Send(ctx context.Context, client *http.Client, target *models.Integration, evt canonical.DomainEvent) (string, int, error) {
	cfg := decodeConfig(target.Config)
	payload := map[string]any{
		"event": string(evt.Type),
		"properties": map[string]any{
			"distinct_id": evt.AppUserID,
			"token":       cfg.APIKey,
			"time":        evt.CreatedAt.Unix(),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, fmt.Errorf("marshal payload: %w", err)
	}
	endpoint := "https://api.mixpanel.com/track?data=" +
		url.QueryEscape(base64.StdEncoding.EncodeToString(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
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

// segmentAdapter forwards the event as a Segment "track" call.
type segmentAdapter struct{}

func (segmentAdapter) Send(ctx context.Context, client *http.Client, target *models.Integration, evt canonical.DomainEvent) (string, int, error) {
	cfg := decodeConfig(target.Config)
	payload := map[string]any{
		"userId":     evt.AppUserID,
		"event":      string(evt.Type),
		"properties": eventProperties(evt),
		"timestamp":  evt.CreatedAt,
	}
	headers := map[string]string{"Authorization": "Basic " + cfg.APIKey}
	return postJSON(ctx, client, "https://api.segment.io/v1/track", headers, payload)
}

// firebaseAdapter forwards the event to a Firebase project's custom
// Measurement Protocol collector URL configured by the tenant.
type firebaseAdapter struct{}

func (firebaseAdapter) Send(ctx context.Context, client *http.Client, target *models.Integration, evt canonical.DomainEvent) (string, int, error) {
	cfg := decodeConfig(target.Config)
	payload := map[string]any{
		"app_instance_id": evt.AppUserID,
		"events":          []map[string]any{{"name": string(evt.Type), "params": eventProperties(evt)}},
	}
	return postJSON(ctx, client, cfg.WebhookURL, nil, payload)
}

// brazeAdapter forwards the event as a Braze custom event via the
// /users/track endpoint.
type brazeAdapter struct{}

func (brazeAdapter) Send(ctx context.Context, client *http.Client, target *models.Integration, evt canonical.DomainEvent) (string, int, error) {
	cfg := decodeConfig(target.Config)
	payload := map[string]any{
		"api_key": cfg.APIKey,
		"events": []map[string]any{{
			"external_id": evt.AppUserID,
			"name":        string(evt.Type),
			"time":        evt.CreatedAt,
			"properties":  eventProperties(evt),
		}},
	}
	return postJSON(ctx, client, cfg.WebhookURL, nil, payload)
}

// appsFlyerAdapter forwards the event as an AppsFlyer S2S event.
type appsFlyerAdapter struct{}

func (appsFlyerAdapter) Send(ctx context.Context, client *http.Client, target *models.Integration, evt canonical.DomainEvent) (string, int, error) {
	cfg := decodeConfig(target.Config)
	payload := map[string]any{
		"appsflyer_id": evt.AppUserID,
		"eventName":    string(evt.Type),
		"eventValue":   eventProperties(evt),
	}
	headers := map[string]string{"authentication": cfg.APIKey}
	return postJSON(ctx, client, cfg.WebhookURL, headers, payload)
}

// adjustAdapter forwards the event as an Adjust S2S event.
type adjustAdapter struct{}

func (adjustAdapter) Send(ctx context.Context, client *http.Client, target *models.Integration, evt canonical.DomainEvent) (string, int, error) {
	cfg := decodeConfig(target.Config)
	payload := map[string]any{
		"app_token":  cfg.APIKey,
		"event_name": string(evt.Type),
		"params":     eventProperties(evt),
	}
	return postJSON(ctx, client, "https://s2s.adjust.com/event", nil, payload)
}

// genericWebhookAdapter posts the raw DomainEvent with an HMAC signature,
// for tenants integrating their own internal systems without a named vendor.
type genericWebhookAdapter struct{}

func (genericWebhookAdapter) Send(ctx context.Context, client *http.Client, target *models.Integration, evt canonical.DomainEvent) (string, int, error) {
	cfg := decodeConfig(target.Config)
	var headers map[string]string
	if cfg.Secret != "" {
		body, _ := json.Marshal(evt)
		h := hmac.New(sha256.New, []byte(cfg.Secret))
		h.Write(body)
		headers = map[string]string{"X-MRRCat-Signature": hex.EncodeToString(h.Sum(nil))}
	}
	return postJSON(ctx, client, cfg.WebhookURL, headers, evt)
}

func eventProperties(evt canonical.DomainEvent) map[string]any {
	props := map[string]any{}
	if evt.Subscription != nil {
		props["product_id"] = evt.Subscription.ProductID
		props["platform"] = evt.Subscription.Platform
		props["status"] = evt.Subscription.Status
	}
	if evt.Transaction != nil {
		props["transaction_id"] = evt.Transaction.ID
		props["amount"] = evt.Transaction.Amount
		props["currency"] = evt.Transaction.Currency
	}
	return props
}
