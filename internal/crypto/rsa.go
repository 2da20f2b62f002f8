package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // required: Paddle/Amazon wire formats mandate RSASSA-PKCS1-v1_5/SHA-1
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// ImportRSAPrivateFromPKCS8PEM parses a PKCS8 PEM-encoded RSA private key.
func ImportRSAPrivateFromPKCS8PEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("crypto: failed to decode PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to parse PKCS8 private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("crypto: key is not an RSA private key")
	}
	return rsaKey, nil
}

// ImportRSAPublicFromPEM parses a PKIX PEM-encoded RSA public key, as
// supplied for Paddle/Amazon signature verification.
func ImportRSAPublicFromPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("crypto: failed to decode PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		// Some vendor-supplied keys are bare PKCS1 public keys.
		rsaKey, pkcs1Err := x509.ParsePKCS1PublicKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("crypto: failed to parse RSA public key: %w", err)
		}
		return rsaKey, nil
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("crypto: key is not an RSA public key")
	}
	return rsaKey, nil
}

// SignRS256 signs payload's SHA-256 digest with RSASSA-PKCS1-v1_5.
func SignRS256(key *rsa.PrivateKey, payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}

// VerifyRS256 verifies an RSASSA-PKCS1-v1_5/SHA-256 signature.
func VerifyRS256(pub *rsa.PublicKey, payload, sig []byte) error {
	digest := sha256.Sum256(payload)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig)
}

// VerifyRSASHA1 verifies an RSASSA-PKCS1-v1_5/SHA-1 signature, the
// legacy scheme Paddle and Amazon SNS both mandate.
func VerifyRSASHA1(pub *rsa.PublicKey, payload, sig []byte) error {
	digest := sha1.Sum(payload) //nolint:gosec
	return rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], sig)
}
