package crypto

import (
	"crypto/ecdsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ComposeES256JWT mints a compact ES256 JWT with the given key id,
// claims, and lifetime, matching the shape the App Store Server API
// authentication JWT requires (kid header, iss/bid/aud/iat/exp claims).
func ComposeES256JWT(key *ecdsa.PrivateKey, kid string, claims jwt.MapClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	if _, ok := claims["iat"]; !ok {
		claims["iat"] = now.Unix()
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = now.Add(ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

// ParseUnverifiedClaims parses a compact JWT's claims without verifying
// its signature — used only to read fields (e.g. Apple's
// signedTransactionInfo transaction id) before a deliberate, separate
// verification step runs.
func ParseUnverifiedClaims(compact string) (jwt.MapClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(compact, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}
	claims, _ := token.Claims.(jwt.MapClaims)
	return claims, nil
}
