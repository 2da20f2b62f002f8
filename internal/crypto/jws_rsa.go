package crypto

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// RSAKeyResolver returns the RSA verification key for a decoded JWS/JWT
// header. Google's push-authentication token and Android Publisher JWK
// set both resolve by kid.
type RSAKeyResolver func(header *JWSHeader) (*rsa.PublicKey, error)

// JWSDecodeVerifyRS256 decodes a compact JWS (header.payload.signature),
// resolves the verification key via resolver, checks alg is RS256,
// verifies the RSASSA-PKCS1-v1_5/SHA-256 signature, and returns the
// decoded payload bytes. Structurally identical to JWSDecodeVerify, but
// parameterized on RSA rather than the P-256 ES256 scheme Apple uses.
func JWSDecodeVerifyRS256(compact string, resolver RSAKeyResolver) ([]byte, error) {
	parts := strings.Split(compact, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("crypto: malformed JWS, expected 3 segments, got %d", len(parts))
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to decode JWS header: %w", err)
	}
	var header JWSHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("crypto: failed to parse JWS header: %w", err)
	}
	if header.Alg != "RS256" {
		return nil, fmt.Errorf("crypto: unexpected JWS alg %q, want RS256", header.Alg)
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to decode JWS payload: %w", err)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to decode JWS signature: %w", err)
	}

	key, err := resolver(&header)
	if err != nil {
		return nil, fmt.Errorf("crypto: key resolution failed: %w", err)
	}

	signingInput := []byte(parts[0] + "." + parts[1])
	if err := VerifyRS256(key, signingInput, sig); err != nil {
		return nil, fmt.Errorf("crypto: JWS signature verification failed: %w", err)
	}

	return payload, nil
}
