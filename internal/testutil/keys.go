package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// testKeyBits is large enough for RS512 and small enough to keep tests fast.
const testKeyBits = 2048

var (
	sharedKeyOnce sync.Once
	sharedKey     *rsa.PrivateKey
	sharedKeyErr  error
)

// RSAKey returns a process-wide RSA key. Key generation is slow, so tests
// that only need "the issuer's key" share one.
func RSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	sharedKeyOnce.Do(func() {
		sharedKey, sharedKeyErr = rsa.GenerateKey(rand.Reader, testKeyBits)
	})
	require.NoError(t, sharedKeyErr, "failed to generate shared RSA key")
	return sharedKey
}

// NewRSAKey generates a fresh RSA key, for tests that need a key other
// than the issuer's.
func NewRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, testKeyBits)
	require.NoError(t, err, "failed to generate RSA key")
	return key
}

// EncodePublicKey returns base64 SPKI DER, the JWT_PUBLIC_KEY format.
func EncodePublicKey(t testing.TB, key *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

// EncodePrivateKey returns base64 PKCS#8 DER, the JWT_PRIVATE_KEY format.
func EncodePrivateKey(t testing.TB, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

// Claims builds a claim map for a platform token that expires in one
// hour. Extra key/value pairs are merged in; a nil value deletes the key.
func Claims(subject, username, role string, extra ...any) jwt.MapClaims {
	mc := jwt.MapClaims{
		"sub":      subject,
		"username": username,
		"role":     role,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	for i := 0; i+1 < len(extra); i += 2 {
		k, _ := extra[i].(string)
		if extra[i+1] == nil {
			delete(mc, k)
			continue
		}
		mc[k] = extra[i+1]
	}
	return mc
}

// SignToken signs claims with key using RS256.
func SignToken(t testing.TB, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	return SignTokenWith(t, jwt.SigningMethodRS256, key, claims)
}

// SignTokenWith signs claims with an arbitrary method and key.
func SignTokenWith(t testing.TB, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err, "failed to sign test token")
	return signed
}
