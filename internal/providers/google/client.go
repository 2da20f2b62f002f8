package google

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/models"

	"golang.org/x/oauth2"
	xjwt "golang.org/x/oauth2/jwt"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// tokenSourceEarlyRefresh is how far before actual expiry the cached
// access token is considered stale and re-exchanged.
const tokenSourceEarlyRefresh = 5 * time.Minute

// tokenSourceCache holds one process-wide oauth2.TokenSource per service
// account email. oauth2.ReuseTokenSourceWithExpiry already serializes
// its own refresh internally, so the only shared mutable state here is
// the map itself.
var (
	tokenSourceMu    sync.Mutex
	tokenSourceCache = map[string]oauth2.TokenSource{}
)

func tokenSourceFor(cfg *models.GoogleConfig) (oauth2.TokenSource, error) {
	tokenSourceMu.Lock()
	defer tokenSourceMu.Unlock()

	if ts, ok := tokenSourceCache[cfg.ServiceAccountEmail]; ok {
		return ts, nil
	}

	jwtConf := &xjwt.Config{
		Email:      cfg.ServiceAccountEmail,
		PrivateKey: []byte(cfg.ServicePrivateKey),
		Scopes:     []string{androidpublisher.AndroidpublisherScope},
		TokenURL:   "https://oauth2.googleapis.com/token",
	}
	base := jwtConf.TokenSource(context.Background())
	ts := oauth2.ReuseTokenSourceWithExpiry(nil, base, tokenSourceEarlyRefresh)
	tokenSourceCache[cfg.ServiceAccountEmail] = ts
	return ts, nil
}

// NewClient builds an Android Publisher API client authenticated as
// cfg's service account, backed by the process-wide cached token source.
func NewClient(ctx context.Context, cfg *models.GoogleConfig) (*androidpublisher.Service, error) {
	ts, err := tokenSourceFor(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := androidpublisher.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("google: failed to build androidpublisher client: %w", err)
	}
	return svc, nil
}

// GetSubscriptionV2 performs the authoritative re-read the normalizer's
// tie-break rule requires: the notification's own status/event-type
// inference is overridden by this response.
func GetSubscriptionV2(ctx context.Context, cfg *models.GoogleConfig, purchaseToken string) (*androidpublisher.SubscriptionPurchaseV2, error) {
	svc, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sub, err := svc.Purchases.Subscriptionsv2.Get(cfg.PackageName, purchaseToken).Context(ctx).Do()
	if err != nil {
		// A 4xx means Google rejected the token; anything else (5xx,
		// network) is retryable.
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code < 500 {
			return nil, fmt.Errorf("google: subscriptionsv2.get failed: %w", err)
		}
		return nil, fmt.Errorf("google: subscriptionsv2.get failed: %w: %w", canonical.ErrTransientUpstream, err)
	}
	return sub, nil
}
