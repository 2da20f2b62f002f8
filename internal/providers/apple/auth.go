package apple

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"paycat.dev/gateway/internal/crypto"
	"paycat.dev/gateway/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// tokenCacheEntry is atomically swapped in, never mutated in place.
type tokenCacheEntry struct {
	token     string
	expiresAt time.Time
}

// TokenCache holds one process-wide cached App Store Server API auth
// token per app (keyed by kid), since Apple's guidance is to reuse a
// token for up to 55 minutes rather than minting one per call.
type TokenCache struct {
	entries sync.Map // keyID -> *atomic.Value holding *tokenCacheEntry
}

var sharedTokenCache = &TokenCache{}

// AuthToken returns a cached, still-valid App Store Server API JWT for
// cfg, minting a fresh one when absent or within 5 minutes of expiry.
func AuthToken(cfg *models.AppleConfig) (string, error) {
	slot, _ := sharedTokenCache.entries.LoadOrStore(cfg.KeyID, &atomic.Value{})
	val := slot.(*atomic.Value)

	if cur, ok := val.Load().(*tokenCacheEntry); ok && time.Until(cur.expiresAt) > 5*time.Minute {
		return cur.token, nil
	}

	token, expiresAt, err := mint(cfg)
	if err != nil {
		return "", err
	}
	val.Store(&tokenCacheEntry{token: token, expiresAt: expiresAt})
	return token, nil
}

// mint generates a fresh App Store Server API JWT, signed ES256 per
// Apple's authentication token requirements.
func mint(cfg *models.AppleConfig) (string, time.Time, error) {
	if cfg.KeyID == "" || cfg.IssuerID == "" || cfg.PrivateKey == "" {
		return "", time.Time{}, fmt.Errorf("apple: App Store Server API credentials not configured")
	}

	key, err := crypto.ImportECDSAP256PrivateFromPKCS8PEM([]byte(cfg.PrivateKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("apple: load private key: %w", err)
	}

	ttl := time.Hour
	claims := jwt.MapClaims{
		"iss": cfg.IssuerID,
		"aud": "appstoreconnect-v1",
	}
	if cfg.BundleID != "" {
		claims["bid"] = cfg.BundleID
	}

	token, err := crypto.ComposeES256JWT(key, cfg.KeyID, claims, ttl)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("apple: sign auth token: %w", err)
	}
	return token, time.Now().Add(ttl), nil
}
