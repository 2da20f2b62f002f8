// Package google implements the Google Play adapter: verification of the
// RTDN push-authentication JWT, the service-account OAuth2 exchange used
// to call the Android Publisher API, and normalization of
// subscriptionsv2 state into a canonical.StoreEvent.
package google

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const jwksURL = "https://www.googleapis.com/oauth2/v3/certs"

// jwk is the subset of a JSON Web Key this package consumes.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// jwkCache is a process-wide cache of Google's OAuth2 JWK set, populated
// lazily and refreshed every hour or once, immediately, on an unknown kid
// — atomic-replacement semantics so concurrent readers never see a torn
// map, per the concurrency model's cache policy.
type jwkCache struct {
	entries   atomic.Value // map[string]jwk
	fetchedAt atomic.Value // time.Time
	mu        sync.Mutex   // serializes refreshes; a duplicate fetch under races is accepted cost
	client    *http.Client
}

var sharedJWKCache = &jwkCache{client: &http.Client{Timeout: 10 * time.Second}}

// Resolve returns the RSA public key for kid, refreshing the cache when
// it is empty, older than an hour, or the kid is unrecognized. A single
// refresh-once retry covers Google's key rotation; concurrent callers
// racing the same refresh is an accepted, negligible duplicate cost.
func (c *jwkCache) Resolve(kid string) (*rsa.PublicKey, error) {
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	if err := c.refresh(); err != nil {
		return nil, err
	}
	key, ok := c.lookup(kid)
	if !ok {
		return nil, fmt.Errorf("google: unknown JWK kid %q after refresh", kid)
	}
	return key, nil
}

func (c *jwkCache) lookup(kid string) (*rsa.PublicKey, bool) {
	m, _ := c.entries.Load().(map[string]jwk)
	fetchedAt, _ := c.fetchedAt.Load().(time.Time)
	if m == nil || time.Since(fetchedAt) > time.Hour {
		return nil, false
	}
	k, ok := m[kid]
	if !ok {
		return nil, false
	}
	pub, err := decodeRSAKey(k)
	if err != nil {
		return nil, false
	}
	return pub, true
}

func (c *jwkCache) refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.client.Get(jwksURL)
	if err != nil {
		return fmt.Errorf("google: failed to fetch JWK set: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("google: failed to read JWK set response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google: JWK set endpoint returned status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("google: failed to decode JWK set: %w", err)
	}

	m := make(map[string]jwk, len(set.Keys))
	for _, k := range set.Keys {
		m[k.Kid] = k
	}
	c.entries.Store(m)
	c.fetchedAt.Store(time.Now())
	return nil
}

func decodeRSAKey(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("google: failed to decode JWK modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("google: failed to decode JWK exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
