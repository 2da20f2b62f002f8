// Package amazon implements the Amazon Appstore adapter: SNS envelope
// verification (certificate fetch + canonical string-to-sign + RSA-SHA1),
// auto-confirmation of new SNS subscriptions, the Receipt Verification
// Service follow-up call, and normalization into the canonical event
// model.
package amazon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/crypto"
	"paycat.dev/gateway/internal/models"
)

const (
	rvsBaseURL        = "https://appstore-sdk.amazon.com"
	rvsSandboxBaseURL = "https://sandbox.appstore-sdk.amazon.com"
)

// Envelope is the outer SNS notification/confirmation body.
type Envelope struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion"`
	Signature        string `json:"Signature"`
	SigningCertURL   string `json:"SigningCertURL"`
	UnsubscribeURL   string `json:"UnsubscribeURL"`
	SubscribeURL     string `json:"SubscribeURL"`
	Token            string `json:"Token"`
}

// rtdnPayload is the Amazon in-app-purchasing notification carried as a
// JSON string inside Envelope.Message.
type rtdnPayload struct {
	NotificationType string `json:"notificationType"`
	ReceiptID        string `json:"receiptId"`
	UserID           string `json:"userId"`
	AppPackageName   string `json:"appPackageName"`
}

// certCache is a process-wide cache of fetched SNS signing certificates,
// keyed by URL, to avoid refetching on every notification.
var (
	certMu    sync.Mutex
	certCache = map[string]*rsaKeyHolder{}
)

type rsaKeyHolder struct {
	pemBytes []byte
}

// VerifySignature validates the envelope's SigningCertURL is an Amazon
// host, fetches (and caches) the certificate, builds the canonical
// string-to-sign per the envelope's Type, and verifies the base64-decoded
// Signature against it with RSASSA-PKCS1-v1_5/SHA-1.
func VerifySignature(ctx context.Context, env *Envelope) error {
	certURL, err := url.Parse(env.SigningCertURL)
	if err != nil {
		return fmt.Errorf("amazon: invalid SigningCertURL: %w", err)
	}
	if certURL.Scheme != "https" || !strings.HasSuffix(certURL.Hostname(), ".amazonaws.com") {
		return fmt.Errorf("amazon: SigningCertURL %q is not a trusted AWS host", env.SigningCertURL)
	}

	pemBytes, err := fetchCert(ctx, env.SigningCertURL)
	if err != nil {
		return err
	}

	pub, err := crypto.ImportRSAPublicFromPEM(pemBytes)
	if err != nil {
		return fmt.Errorf("amazon: failed to parse signing certificate: %w", err)
	}

	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return fmt.Errorf("amazon: failed to decode Signature: %w", err)
	}

	stringToSign := buildStringToSign(env)
	if err := crypto.VerifyRSASHA1(pub, []byte(stringToSign), sig); err != nil {
		return fmt.Errorf("amazon: signature verification failed: %w", err)
	}
	return nil
}

func fetchCert(ctx context.Context, certURL string) ([]byte, error) {
	certMu.Lock()
	if cached, ok := certCache[certURL]; ok {
		certMu.Unlock()
		return cached.pemBytes, nil
	}
	certMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to build cert request: %w", err)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to fetch signing certificate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to read signing certificate: %w", err)
	}

	certMu.Lock()
	certCache[certURL] = &rsaKeyHolder{pemBytes: body}
	certMu.Unlock()

	return body, nil
}

// buildStringToSign implements the SNS canonicalization: field order and
// presence differ between a Notification and a SubscriptionConfirmation
// per the SNS signature spec.
func buildStringToSign(env *Envelope) string {
	var b strings.Builder
	field := func(name, value string) {
		b.WriteString(name)
		b.WriteByte('\n')
		b.WriteString(value)
		b.WriteByte('\n')
	}

	switch env.Type {
	case "SubscriptionConfirmation", "UnsubscribeConfirmation":
		field("Message", env.Message)
		field("MessageId", env.MessageID)
		field("SubscribeURL", env.SubscribeURL)
		field("Timestamp", env.Timestamp)
		field("Token", env.Token)
		field("TopicArn", env.TopicArn)
		field("Type", env.Type)
	default: // Notification
		field("Message", env.Message)
		field("MessageId", env.MessageID)
		if env.Subject != "" {
			field("Subject", env.Subject)
		}
		field("Timestamp", env.Timestamp)
		field("TopicArn", env.TopicArn)
		field("Type", env.Type)
	}

	return b.String()
}

// ConfirmSubscription auto-confirms a new SNS subscription by fetching
// SubscribeURL, validated against the same trusted-host rule as the
// signing certificate.
func ConfirmSubscription(ctx context.Context, env *Envelope) error {
	subURL, err := url.Parse(env.SubscribeURL)
	if err != nil {
		return fmt.Errorf("amazon: invalid SubscribeURL: %w", err)
	}
	if subURL.Scheme != "https" || !strings.HasSuffix(subURL.Hostname(), ".amazonaws.com") {
		return fmt.Errorf("amazon: SubscribeURL %q is not a trusted AWS host", env.SubscribeURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.SubscribeURL, nil)
	if err != nil {
		return fmt.Errorf("amazon: failed to build confirmation request: %w", err)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("amazon: subscription confirmation request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("amazon: subscription confirmation returned status %d", resp.StatusCode)
	}
	return nil
}

// ParseNotification decodes the RTDN payload embedded in a verified SNS
// Notification and, for PURCHASE/RENEWAL types, re-verifies via the
// Receipt Verification Service before building the canonical.StoreEvent —
// the notification alone carries no authoritative subscription state.
func ParseNotification(ctx context.Context, env *Envelope, cfg *models.AmazonConfig) (canonical.StoreEvent, error) {
	var rtdn rtdnPayload
	if err := json.Unmarshal([]byte(env.Message), &rtdn); err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("amazon: failed to decode notification payload: %w", err)
	}

	evt := canonical.StoreEvent{
		Platform:         canonical.PlatformAmazon,
		NotificationUUID: env.MessageID,
		NotificationType: rtdn.NotificationType,
		EventType:        mapNotificationType(rtdn.NotificationType),
		ProviderHandle:   rtdn.ReceiptID,
		AppUserID:        rtdn.UserID,
	}
	if rtdn.ReceiptID != "" {
		evt.TransactionID = rtdn.ReceiptID
		evt.OriginalTransactionID = rtdn.ReceiptID
	}
	if ts, err := time.Parse(time.RFC3339, env.Timestamp); err == nil {
		evt.NotificationCreatedAt = ts.UTC()
	}

	switch rtdn.NotificationType {
	case "PURCHASE", "RENEWAL":
		rvs, err := VerifyReceipt(ctx, cfg, rtdn.UserID, rtdn.ReceiptID)
		if err != nil {
			return evt, fmt.Errorf("amazon: receipt verification failed: %w", err)
		}
		applyReceiptResponse(&evt, rvs)
	}

	return evt, nil
}

// ReceiptResponse is the subset of the Receipt Verification Service
// response this adapter consumes.
type ReceiptResponse struct {
	ReceiptID          string `json:"receiptId"`
	ProductID          string `json:"productId"`
	ProductType        string `json:"productType"`
	PurchaseDate       int64  `json:"purchaseDate"`
	CancelDate         int64  `json:"cancelDate"`
	RenewalDate        int64  `json:"renewalDate"`
	GracePeriodEndDate int64  `json:"gracePeriodEndDate"`
	FreeTrialEndDate   int64  `json:"freeTrialEndDate"`
	AutoRenewing       bool   `json:"autoRenewing"`
	TestTransaction    bool   `json:"testTransaction"`
}

// VerifyReceipt calls the Receipt Verification Service
// (/version/1.0/verifyReceiptId/developer/{secret}/user/{uid}/receiptId/{rid}),
// switching base URL on cfg.SandboxFlag.
func VerifyReceipt(ctx context.Context, cfg *models.AmazonConfig, userID, receiptID string) (*ReceiptResponse, error) {
	base := rvsBaseURL
	if cfg.SandboxFlag {
		base = rvsSandboxBaseURL
	}
	endpoint := fmt.Sprintf("%s/version/1.0/verifyReceiptId/developer/%s/user/%s/receiptId/%s",
		base, url.PathEscape(cfg.SharedSecret), url.PathEscape(userID), url.PathEscape(receiptID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to build RVS request: %w", err)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("amazon: RVS request failed: %w: %w", canonical.ErrTransientUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to read RVS response: %w: %w", canonical.ErrTransientUpstream, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("amazon: RVS returned status %d: %w", resp.StatusCode, canonical.ErrTransientUpstream)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("amazon: RVS returned status %d", resp.StatusCode)
	}

	var rvs ReceiptResponse
	if err := json.Unmarshal(body, &rvs); err != nil {
		return nil, fmt.Errorf("amazon: failed to decode RVS response: %w", err)
	}
	return &rvs, nil
}

func applyReceiptResponse(evt *canonical.StoreEvent, rvs *ReceiptResponse) {
	evt.ProductID = rvs.ProductID
	evt.IsSandbox = rvs.TestTransaction
	evt.WillRenew = rvs.AutoRenewing

	if rvs.PurchaseDate > 0 {
		evt.PurchaseDate = time.UnixMilli(rvs.PurchaseDate).UTC()
	}
	if rvs.RenewalDate > 0 {
		t := time.UnixMilli(rvs.RenewalDate).UTC()
		evt.ExpiresDate = &t
	} else if rvs.CancelDate > 0 {
		t := time.UnixMilli(rvs.CancelDate).UTC()
		evt.ExpiresDate = &t
	}
	if rvs.GracePeriodEndDate > 0 {
		t := time.UnixMilli(rvs.GracePeriodEndDate).UTC()
		evt.GracePeriodExpiresAt = &t
	}
	if rvs.FreeTrialEndDate > 0 {
		evt.IsTrial = time.Now().Before(time.UnixMilli(rvs.FreeTrialEndDate).UTC())
	}
}

// mapNotificationType translates Amazon's notificationType vocabulary
// into the closed canonical enum.
func mapNotificationType(t string) canonical.DomainEventType {
	switch t {
	case "PURCHASE":
		return canonical.InitialPurchase
	case "RENEWAL":
		return canonical.Renewal
	case "CANCEL":
		return canonical.Cancellation
	default:
		return canonical.Unknown
	}
}
