package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"sync"
	"sync/atomic"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// ---------------------------------------------------------------------------
// Secret type: prevents accidental logging of sensitive values
// ---------------------------------------------------------------------------

// Secret is a string type that redacts its value in String(), GoString(), and
// MarshalText(). The raw value is only reachable through [Secret.Value]. The
// issuer's private key is always held as a Secret.
type Secret string

const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder, covering fmt's %#v verb.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret string.
func (s Secret) Value() string { return string(s) }

// MarshalText implements [encoding.TextMarshaler] with the redacted
// placeholder, so JSON, YAML and slog output never carry the value.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// ---------------------------------------------------------------------------
// KeySource: where a validator gets its verification key
// ---------------------------------------------------------------------------

// KeySource supplies the RSA public key used to verify token signatures.
//
// Implementations must be safe for concurrent use and must return the same
// key for the lifetime of the process once a call has succeeded.
type KeySource interface {
	PublicKey() (*rsa.PublicKey, error)
}

// ---------------------------------------------------------------------------
// PublicKeyProvider: verifier-side key material
// ---------------------------------------------------------------------------

// PublicKeyProvider lazily decodes a configured RSA public key and caches it
// for the lifetime of the process. It is the only state a verifying service
// shares across requests.
//
// The first successful call to [PublicKeyProvider.PublicKey] populates the
// cache under a mutex; every later call is a single atomic load. A failed
// decode is not cached, so the error is reported again on the next call.
//
// Services should call PublicKey once at startup and refuse to serve if it
// fails. Key errors are configuration faults, never per-request outcomes.
type PublicKeyProvider struct {
	encoded string

	mu  sync.Mutex
	key atomic.Pointer[rsa.PublicKey]
}

var _ KeySource = (*PublicKeyProvider)(nil)

// NewPublicKeyProvider returns a provider for the given encoded key. The
// encoding is base64 (standard alphabet, whitespace ignored) of a DER
// X.509 SubjectPublicKeyInfo document, as distributed in JWT_PUBLIC_KEY.
// A PEM "PUBLIC KEY" or "RSA PUBLIC KEY" block is accepted as well.
//
// Nothing is decoded until the first call to PublicKey.
func NewPublicKeyProvider(encoded string) *PublicKeyProvider {
	return &PublicKeyProvider{encoded: encoded}
}

// PublicKey returns the decoded key. It fails with code
// [sserr.CodeKeyFormat] when the configured value is not valid base64 or
// PEM, and with [sserr.CodeKeyDecode] when the decoded bytes are not an
// RSA public key.
func (p *PublicKeyProvider) PublicKey() (*rsa.PublicKey, error) {
	if key := p.key.Load(); key != nil {
		return key, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if key := p.key.Load(); key != nil {
		return key, nil
	}
	key, err := ParsePublicKey(p.encoded)
	if err != nil {
		return nil, err
	}
	p.key.Store(key)
	return key, nil
}

// ---------------------------------------------------------------------------
// KeyPairProvider: issuer-side key material
// ---------------------------------------------------------------------------

// KeyPair is the issuer's signing key together with the public key that
// verifiers are configured with.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// KeyPairProvider is the issuer-side counterpart of [PublicKeyProvider]. It
// also satisfies [KeySource], so an issuer can verify its own tokens.
type KeyPairProvider struct {
	public  string
	private Secret

	mu   sync.Mutex
	pair atomic.Pointer[KeyPair]
}

var _ KeySource = (*KeyPairProvider)(nil)

// NewKeyPairProvider returns a provider for an encoded public key and an
// encoded private key. The private key is base64 DER in PKCS#8 form, or
// PKCS#1 as a fallback; PEM blocks are accepted too.
func NewKeyPairProvider(publicEncoded string, privateEncoded Secret) *KeyPairProvider {
	return &KeyPairProvider{public: publicEncoded, private: privateEncoded}
}

// KeyPair decodes and caches both keys. Besides the format and decode
// failures documented on [PublicKeyProvider.PublicKey], it fails with
// [sserr.CodeKeyDecode] when the private key does not belong to the public
// key.
func (p *KeyPairProvider) KeyPair() (*KeyPair, error) {
	if pair := p.pair.Load(); pair != nil {
		return pair, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if pair := p.pair.Load(); pair != nil {
		return pair, nil
	}

	pub, err := ParsePublicKey(p.public)
	if err != nil {
		return nil, err
	}
	priv, err := parsePrivateKey(p.private)
	if err != nil {
		return nil, err
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, sserr.New(sserr.CodeKeyDecode,
			"auth: private key does not match the configured public key")
	}

	pair := &KeyPair{Public: pub, Private: priv}
	p.pair.Store(pair)
	return pair, nil
}

// PublicKey returns the public half of the pair.
func (p *KeyPairProvider) PublicKey() (*rsa.PublicKey, error) {
	pair, err := p.KeyPair()
	if err != nil {
		return nil, err
	}
	return pair.Public, nil
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParsePublicKey decodes an RSA public key from base64 SPKI DER or PEM.
func ParsePublicKey(encoded string) (*rsa.PublicKey, error) {
	der, blockType, err := decodeKeyMaterial(encoded, "public")
	if err != nil {
		return nil, err
	}

	if blockType == "RSA PUBLIC KEY" {
		key, err := x509.ParsePKCS1PublicKey(der)
		if err != nil {
			return nil, sserr.Wrap(err, sserr.CodeKeyDecode, "auth: public key is not a valid RSA key")
		}
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeKeyDecode, "auth: public key is not a valid X.509 key")
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, sserr.Newf(sserr.CodeKeyDecode, "auth: public key is %T, want RSA", parsed)
	}
	return key, nil
}

func parsePrivateKey(encoded Secret) (*rsa.PrivateKey, error) {
	der, _, err := decodeKeyMaterial(encoded.Value(), "private")
	if err != nil {
		return nil, err
	}

	parsed, pkcs8Err := x509.ParsePKCS8PrivateKey(der)
	if pkcs8Err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, sserr.Newf(sserr.CodeKeyDecode, "auth: private key is %T, want RSA", parsed)
		}
		return key, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, sserr.New(sserr.CodeKeyDecode, "auth: private key is neither PKCS#8 nor PKCS#1 RSA")
	}
	return key, nil
}

// decodeKeyMaterial returns the DER bytes of a base64 or PEM encoded key
// and, for PEM input, the block type.
func decodeKeyMaterial(encoded, kind string) ([]byte, string, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, "", sserr.Newf(sserr.CodeKeyFormat, "auth: %s key is empty", kind)
	}

	if strings.HasPrefix(trimmed, "-----BEGIN") {
		block, _ := pem.Decode([]byte(trimmed))
		if block == nil {
			return nil, "", sserr.Newf(sserr.CodeKeyFormat, "auth: %s key is not a valid PEM block", kind)
		}
		return block.Bytes, block.Type, nil
	}

	compact := strings.Join(strings.Fields(trimmed), "")
	der, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, "", sserr.Wrapf(err, sserr.CodeKeyFormat, "auth: %s key is not valid base64", kind)
	}
	return der, "", nil
}
