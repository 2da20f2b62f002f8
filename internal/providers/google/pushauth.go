package google

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"paycat.dev/gateway/internal/crypto"
)

// pushClaims is the subset of a Pub/Sub push OIDC token's claims this
// package validates.
type pushClaims struct {
	Iss   string `json:"iss"`
	Aud   string `json:"aud"`
	Exp   int64  `json:"exp"`
	Email string `json:"email"`
}

// VerifyPushToken verifies the RS256 JWT Google's Pub/Sub push
// subscription attaches as the request's bearer token, per the
// verification policy: issuer must be accounts.google.com (either
// form), audience must match the app's configured push endpoint URL,
// exp must be in the future, and the claimed email must belong to a
// *.iam.gserviceaccount.com service account.
func VerifyPushToken(token string, expectedAudience string) error {
	payload, err := crypto.JWSDecodeVerifyRS256(token, func(header *crypto.JWSHeader) (*rsa.PublicKey, error) {
		return sharedJWKCache.Resolve(header.Kid)
	})
	if err != nil {
		return fmt.Errorf("google: push token verification failed: %w", err)
	}

	var claims pushClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return fmt.Errorf("google: failed to decode push token claims: %w", err)
	}

	if claims.Iss != "accounts.google.com" && claims.Iss != "https://accounts.google.com" {
		return fmt.Errorf("google: unexpected push token issuer %q", claims.Iss)
	}
	if expectedAudience != "" && claims.Aud != expectedAudience {
		return fmt.Errorf("google: push token audience %q does not match configured endpoint", claims.Aud)
	}
	if time.Now().Unix() >= claims.Exp {
		return fmt.Errorf("google: push token has expired")
	}
	if !strings.HasSuffix(claims.Email, ".iam.gserviceaccount.com") {
		return fmt.Errorf("google: push token email %q is not a service account", claims.Email)
	}

	return nil
}
