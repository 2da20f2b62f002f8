package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
)

// ImportECDSAP256PrivateFromPKCS8PEM parses a PKCS8 PEM-encoded P-256
// private key, as supplied in an App's AppleConfig.PrivateKey.
func ImportECDSAP256PrivateFromPKCS8PEM(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("crypto: failed to decode PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to parse PKCS8 private key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("crypto: key is not an ECDSA private key")
	}
	return ecKey, nil
}

// SignES256 signs payload with an ECDSA P-256 key over its SHA-256 digest
// and returns the 64-byte JWS-format signature (raw r||s, each 32 bytes
// big-endian, left-padded).
func SignES256(key *ecdsa.PrivateKey, payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: ecdsa sign failed: %w", err)
	}
	return rawSignatureFromRS(r, s, 32), nil
}

// VerifyES256 verifies a 64-byte JWS-format (raw r||s) signature over
// payload's SHA-256 digest against pub.
func VerifyES256(pub *ecdsa.PublicKey, payload, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	digest := sha256.Sum256(payload)
	return ecdsa.Verify(pub, digest[:], r, s)
}

func rawSignatureFromRS(r, s *big.Int, size int) []byte {
	out := make([]byte, 2*size)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(out[size-len(rBytes):size], rBytes)
	copy(out[2*size-len(sBytes):], sBytes)
	return out
}

type ecdsaSignature struct {
	R, S *big.Int
}

// RawToDER converts a 64-byte JWS r||s signature into ASN.1 DER, the
// format some x509/crypto tooling outside this package expects.
func RawToDER(raw []byte) ([]byte, error) {
	if len(raw) != 64 {
		return nil, fmt.Errorf("crypto: raw ECDSA signature must be 64 bytes, got %d", len(raw))
	}
	r := new(big.Int).SetBytes(raw[:32])
	s := new(big.Int).SetBytes(raw[32:])
	return asn1.Marshal(ecdsaSignature{r, s})
}

// DERToRaw converts an ASN.1 DER ECDSA signature into the 64-byte JWS
// raw r||s format.
func DERToRaw(der []byte) ([]byte, error) {
	var sig ecdsaSignature
	if _, err := asn1.Unmarshal(der, &sig); err != nil {
		return nil, fmt.Errorf("crypto: failed to parse DER signature: %w", err)
	}
	return rawSignatureFromRS(sig.R, sig.S, 32), nil
}
