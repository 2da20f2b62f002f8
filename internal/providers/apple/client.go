package apple

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/crypto"
	"paycat.dev/gateway/internal/models"
)

const (
	productionBaseURL = "https://api.storekit.itunes.apple.com"
	sandboxBaseURL    = "https://api.storekit-sandbox.itunes.apple.com"
)

// Client calls the App Store Server API to re-read a transaction
// authoritatively, with production/sandbox dual retry. It backs
// client-initiated receipt verification (VerifyReceipt); the
// notification path does not call it.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a Client with the standard outbound timeout.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// GetTransactionInfo fetches and verifies a transaction by id, trying
// production first and falling back to sandbox when the production call
// returns any error (the modern-API counterpart of the legacy
// verifyReceipt 21007 sandbox redirect). The fallback does not tell a
// not-found answer apart from other production failures; when both
// calls fail, the sandbox call's error is returned.
func (c *Client) GetTransactionInfo(cfg *models.AppleConfig, transactionID string) (jwsTransactionDecodedPayload, error) {
	txn, err := c.fetchTransaction(cfg, productionBaseURL, transactionID)
	if err == nil {
		return txn, nil
	}
	return c.fetchTransaction(cfg, sandboxBaseURL, transactionID)
}

// VerifyReceipt is the client-initiated counterpart to ParseNotification:
// given a transaction id submitted directly to POST /v1/receipts, it
// re-reads the transaction via GetTransactionInfo and builds a
// canonical.StoreEvent as if an initial-purchase notification had just
// arrived, since the modern App Store Server API carries no standalone
// receipt blob to verify offline the way the deprecated verifyReceipt did.
func (c *Client) VerifyReceipt(cfg *models.AppleConfig, transactionID string) (canonical.StoreEvent, error) {
	txn, err := c.GetTransactionInfo(cfg, transactionID)
	if err != nil {
		return canonical.StoreEvent{}, fmt.Errorf("apple: receipt verification failed: %w", err)
	}

	evt := canonical.StoreEvent{
		Platform:              canonical.PlatformIOS,
		NotificationUUID:      transactionID,
		NotificationType:      "ReceiptVerification",
		EventType:             canonical.InitialPurchase,
		ProductID:             txn.ProductID,
		ProviderHandle:        txn.OriginalTransactionID,
		AppUserID:             txn.AppAccountToken,
		PurchaseDate:          millisToTime(txn.PurchaseDate),
		IsSandbox:             txn.Environment == "Sandbox",
		IsTrial:               txn.Type == "Auto-Renewable Subscription" && txn.Price == 0,
		RevenueAmount:         txn.Price,
		Currency:              txn.Currency,
		TransactionID:         txn.TransactionID,
		OriginalTransactionID: txn.OriginalTransactionID,
	}
	if txn.ExpiresDate != 0 {
		t := millisToTime(txn.ExpiresDate)
		evt.ExpiresDate = &t
	}
	return evt, nil
}

func (c *Client) fetchTransaction(cfg *models.AppleConfig, baseURL, transactionID string) (jwsTransactionDecodedPayload, error) {
	token, err := AuthToken(cfg)
	if err != nil {
		return jwsTransactionDecodedPayload{}, err
	}

	url := fmt.Sprintf("%s/inApps/v1/transactions/%s", baseURL, transactionID)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return jwsTransactionDecodedPayload{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jwsTransactionDecodedPayload{}, fmt.Errorf("call App Store Server API: %w: %w", canonical.ErrTransientUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return jwsTransactionDecodedPayload{}, fmt.Errorf("read response: %w: %w", canonical.ErrTransientUpstream, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return jwsTransactionDecodedPayload{}, fmt.Errorf("App Store Server API returned status %d: %w", resp.StatusCode, canonical.ErrTransientUpstream)
	}
	if resp.StatusCode != http.StatusOK {
		return jwsTransactionDecodedPayload{}, fmt.Errorf("App Store Server API returned status %d: %s", resp.StatusCode, string(body))
	}

	var wrapper struct {
		SignedTransactionInfo string `json:"signedTransactionInfo"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return jwsTransactionDecodedPayload{}, fmt.Errorf("decode transaction response: %w", err)
	}

	resolver := crypto.X5CResolver(crypto.PinnedAppleRootFingerprints, nil)
	payload, err := crypto.JWSDecodeVerify(wrapper.SignedTransactionInfo, "ES256", resolver)
	if err != nil {
		return jwsTransactionDecodedPayload{}, fmt.Errorf("verify transaction response JWS: %w", err)
	}

	var txn jwsTransactionDecodedPayload
	if err := json.Unmarshal(payload, &txn); err != nil {
		return jwsTransactionDecodedPayload{}, fmt.Errorf("decode transaction payload: %w", err)
	}
	return txn, nil
}
