package crypto

import (
	realecdsa "crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testChain builds a two-link certificate chain (leaf signed by a
// self-signed root) the way Apple's notification x5c headers carry one.
type testChain struct {
	leafKey *realecdsa.PrivateKey
	leafDER []byte
	rootDER []byte
}

func newTestChain(t *testing.T) testChain {
	t.Helper()

	rootKey, err := realecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	require.NoError(t, err)
	rootCert, err := x509.ParseCertificate(rootDER)
	require.NoError(t, err)

	leafKey, err := realecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Test Leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, rootCert, &leafKey.PublicKey, rootKey)
	require.NoError(t, err)

	return testChain{leafKey: leafKey, leafDER: leafDER, rootDER: rootDER}
}

func (c testChain) compactJWS(t *testing.T, payload []byte, extraCerts ...[]byte) string {
	t.Helper()

	x5c := []string{base64.StdEncoding.EncodeToString(c.leafDER)}
	if len(extraCerts) == 0 {
		x5c = append(x5c, base64.StdEncoding.EncodeToString(c.rootDER))
	}
	for _, der := range extraCerts {
		x5c = append(x5c, base64.StdEncoding.EncodeToString(der))
	}

	header, err := json.Marshal(map[string]any{"alg": "ES256", "x5c": x5c})
	require.NoError(t, err)

	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	sig, err := SignES256(c.leafKey, []byte(signingInput))
	require.NoError(t, err)

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func (c testChain) rootFingerprint() string {
	sum := sha256.Sum256(c.rootDER)
	return fmt.Sprintf("%x", sum)
}

func TestJWSDecodeVerifyAcceptsPinnedChain(t *testing.T) {
	chain := newTestChain(t)
	payload := []byte(`{"notificationType":"SUBSCRIBED"}`)

	var mismatched []string
	resolver := X5CResolver(map[string]bool{chain.rootFingerprint(): true}, func(fp string) {
		mismatched = append(mismatched, fp)
	})

	got, err := JWSDecodeVerify(chain.compactJWS(t, payload), "ES256", resolver)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Empty(t, mismatched)
}

func TestJWSDecodeVerifyUnpinnedRootLogsButVerifies(t *testing.T) {
	chain := newTestChain(t)

	var mismatched []string
	resolver := X5CResolver(map[string]bool{"0000000000000000000000000000000000000000000000000000000000000000": true},
		func(fp string) { mismatched = append(mismatched, fp) })

	_, err := JWSDecodeVerify(chain.compactJWS(t, []byte(`{}`)), "ES256", resolver)
	require.NoError(t, err)
	require.Len(t, mismatched, 1)
	assert.Equal(t, chain.rootFingerprint(), mismatched[0])
}

func TestJWSDecodeVerifyRejectsTamperedPayload(t *testing.T) {
	chain := newTestChain(t)
	resolver := X5CResolver(nil, nil)

	compact := chain.compactJWS(t, []byte(`{"a":1}`))
	// Swap in a different payload segment under the original signature.
	parts := strings.Split(compact, ".")
	forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(`{"a":2}`)) + "." + parts[2]

	_, err := JWSDecodeVerify(forged, "ES256", resolver)
	assert.Error(t, err)
}

func TestJWSDecodeVerifyRejectsWrongSignerKey(t *testing.T) {
	chain := newTestChain(t)
	other := newTestChain(t)

	// Sign with one chain's leaf key but present the other chain's certs.
	payload := []byte(`{}`)
	header, err := json.Marshal(map[string]any{"alg": "ES256", "x5c": []string{
		base64.StdEncoding.EncodeToString(other.leafDER),
		base64.StdEncoding.EncodeToString(other.rootDER),
	}})
	require.NoError(t, err)
	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	sig, err := SignES256(chain.leafKey, []byte(signingInput))
	require.NoError(t, err)

	_, err = JWSDecodeVerify(signingInput+"."+base64.RawURLEncoding.EncodeToString(sig), "ES256", X5CResolver(nil, nil))
	assert.Error(t, err)
}

func TestJWSDecodeVerifyRejectsShortChain(t *testing.T) {
	chain := newTestChain(t)

	header, err := json.Marshal(map[string]any{"alg": "ES256", "x5c": []string{
		base64.StdEncoding.EncodeToString(chain.leafDER),
	}})
	require.NoError(t, err)
	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString([]byte(`{}`))
	sig, err := SignES256(chain.leafKey, []byte(signingInput))
	require.NoError(t, err)

	_, err = JWSDecodeVerify(signingInput+"."+base64.RawURLEncoding.EncodeToString(sig), "ES256", X5CResolver(nil, nil))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2 certificates")
}

func TestJWSDecodeVerifyRejectsAlgMismatch(t *testing.T) {
	chain := newTestChain(t)
	_, err := JWSDecodeVerify(chain.compactJWS(t, []byte(`{}`)), "RS256", X5CResolver(nil, nil))
	assert.Error(t, err)
}

func TestJWSDecodeVerifyRejectsMalformedCompact(t *testing.T) {
	_, err := JWSDecodeVerify("only.two", "ES256", X5CResolver(nil, nil))
	assert.Error(t, err)
}

func TestJWSDecodeVerifyRS256ResolvesByKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	payload := []byte(`{"iss":"accounts.google.com"}`)
	header, err := json.Marshal(map[string]any{"alg": "RS256", "kid": "kid-1"})
	require.NoError(t, err)
	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	sig, err := SignRS256(key, []byte(signingInput))
	require.NoError(t, err)
	compact := signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)

	got, err := JWSDecodeVerifyRS256(compact, func(h *JWSHeader) (*rsa.PublicKey, error) {
		require.Equal(t, "kid-1", h.Kid)
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = JWSDecodeVerifyRS256(compact, func(h *JWSHeader) (*rsa.PublicKey, error) {
		other, kerr := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, kerr)
		return &other.PublicKey, nil
	})
	assert.Error(t, err)
}
