package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// JWSHeader is the subset of a compact-JWS protected header this package
// inspects.
type JWSHeader struct {
	Alg string   `json:"alg"`
	Kid string   `json:"kid"`
	X5C []string `json:"x5c"`
}

// KeyResolver returns the ECDSA verification key for a decoded JWS
// header; for Apple notifications X5CResolver walks the x5c chain.
// RS256 tokens such as Google's push JWT use RSAKeyResolver instead.
type KeyResolver func(header *JWSHeader) (*ecdsa.PublicKey, error)

// appleRootCAG3Fingerprint is the SHA-256 fingerprint of the Apple Root
// CA - G3 certificate that anchors App Store Server Notification chains.
const appleRootCAG3Fingerprint = "63343abfb89a6a03ebb57e9b3f5fa7be7c4f5c756f3017b3a8c488c3653e9179"

// PinnedAppleRootFingerprints holds the SHA-256 fingerprints of Apple's
// trusted root CAs. A chain terminating in an unlisted root logs but
// does not block verification, per the policy in the notification
// adapters — Apple operates multiple roots.
var PinnedAppleRootFingerprints = map[string]bool{
	appleRootCAG3Fingerprint: true,
}

// JWSDecodeVerify decodes a compact JWS (header.payload.signature),
// resolves the verification key via resolver, checks alg matches
// expectedAlg, verifies the ES256 signature, and returns the raw
// (still-base64url-decoded) payload bytes.
func JWSDecodeVerify(compact string, expectedAlg string, resolver KeyResolver) ([]byte, error) {
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
	if header.Alg != expectedAlg {
		return nil, fmt.Errorf("crypto: unexpected JWS alg %q, want %q", header.Alg, expectedAlg)
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

	signingInput := parts[0] + "." + parts[1]
	if !VerifyES256(key, []byte(signingInput), sig) {
		return nil, fmt.Errorf("crypto: JWS signature verification failed")
	}

	return payload, nil
}

// X5CResolver builds a KeyResolver that verifies the header's x5c
// certificate chain and returns the leaf's P-256 public key. Per policy,
// the chain must carry at least two certificates; the root's SHA-256
// fingerprint is compared against pinnedFingerprints but a mismatch only
// calls onRootMismatch (when non-nil) rather than rejecting, since Apple
// operates multiple roots.
func X5CResolver(pinnedFingerprints map[string]bool, onRootMismatch func(fingerprint string)) KeyResolver {
	return func(header *JWSHeader) (*ecdsa.PublicKey, error) {
		if len(header.X5C) < 2 {
			return nil, fmt.Errorf("crypto: x5c chain must contain at least 2 certificates, got %d", len(header.X5C))
		}

		certs := make([]*x509.Certificate, 0, len(header.X5C))
		for i, certB64 := range header.X5C {
			der, err := base64.StdEncoding.DecodeString(certB64)
			if err != nil {
				return nil, fmt.Errorf("crypto: failed to decode x5c[%d]: %w", i, err)
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, fmt.Errorf("crypto: failed to parse x5c[%d]: %w", i, err)
			}
			certs = append(certs, cert)
		}

		for i := 1; i < len(certs); i++ {
			if err := certs[i-1].CheckSignatureFrom(certs[i]); err != nil {
				return nil, fmt.Errorf("crypto: x5c chain signature check failed at link %d: %w", i, err)
			}
		}

		root := certs[len(certs)-1]
		fingerprint := sha256.Sum256(root.Raw)
		fingerprintHex := fmt.Sprintf("%x", fingerprint)
		if len(pinnedFingerprints) > 0 && !pinnedFingerprints[fingerprintHex] {
			if onRootMismatch != nil {
				onRootMismatch(fingerprintHex)
			}
		}

		leafKey, ok := certs[0].PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("crypto: x5c leaf certificate does not carry an ECDSA public key")
		}
		return leafKey, nil
	}
}
