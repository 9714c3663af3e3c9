package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

var (
	ErrUnsupportedKey  = errors.New("crypto: unsupported key type")
	ErrEmptyEncoding   = errors.New("crypto: empty encoding")
	ErrMalformedKey    = errors.New("crypto: malformed public key")
	ErrUnsupportedSeed = errors.New("crypto: unsupported private key length")
)

// Limits to prevent DoS via oversized inputs
const (
	maxPublicKeyBase58Len = 256
	maxSignatureBase58Len = 256
)

// KeyPair bundles an ed25519 key with its derived wire identifiers.
type KeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
	// Encoded is base58(DER(Public)), the form carried on the wire
	Encoded string
	// Hash is the account identifier derived from the DER encoding
	Hash string
}

// GenerateKeyPair creates a fresh ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return NewKeyPair(priv)
}

// NewKeyPair accepts either a 32 byte seed or a full 64 byte private key.
func NewKeyPair(priv []byte) (*KeyPair, error) {
	switch len(priv) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(priv)
	case ed25519.PrivateKeySize:
	default:
		return nil, ErrUnsupportedSeed
	}
	sk := ed25519.PrivateKey(priv)
	pk := sk.Public().(ed25519.PublicKey)
	der, err := MarshalPublicKey(pk)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Private: sk,
		Public:  pk,
		Encoded: base58.Encode(der),
		Hash:    KeyHash(der),
	}, nil
}

// Sign signs msg and returns the base58 signature.
func (kp *KeyPair) Sign(msg []byte) string {
	return base58.Encode(ed25519.Sign(kp.Private, msg))
}

// MarshalPublicKey returns the PKIX DER encoding of pub.
func MarshalPublicKey(pub ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return der, nil
}

// EncodePublicKey returns base58(DER(pub)).
func EncodePublicKey(pub ed25519.PublicKey) (string, error) {
	der, err := MarshalPublicKey(pub)
	if err != nil {
		return "", err
	}
	return base58.Encode(der), nil
}

// DecodePublicKey parses the wire form of a public key and returns it along with its DER bytes.
func DecodePublicKey(encoded string) (ed25519.PublicKey, []byte, error) {
	if encoded == "" {
		return nil, nil, ErrEmptyEncoding
	}
	if len(encoded) > maxPublicKeyBase58Len {
		return nil, nil, ErrMalformedKey
	}
	der, err := base58.Decode(encoded)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, nil, ErrUnsupportedKey
	}
	return pub, der, nil
}

// KeyHash is base64(SHA-256(der)).
func KeyHash(der []byte) string {
	sum := sha256.Sum256(der)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// KeyHashOf decodes an encoded public key and returns its key hash.
func KeyHashOf(encoded string) (string, error) {
	_, der, err := DecodePublicKey(encoded)
	if err != nil {
		return "", err
	}
	return KeyHash(der), nil
}

// DecodeSignature returns the raw signature bytes of a base58 signature.
func DecodeSignature(sig string) ([]byte, error) {
	if sig == "" {
		return nil, ErrEmptyEncoding
	}
	if len(sig) > maxSignatureBase58Len {
		return nil, errors.New("crypto: signature too large")
	}
	raw, err := base58.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	return raw, nil
}

// Verify checks a base58 signature over msg. Malformed input never verifies.
func Verify(pub ed25519.PublicKey, msg []byte, sig string) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	raw, err := DecodeSignature(sig)
	if err != nil || len(raw) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, raw)
}

// VerifyEncoded is Verify for a public key still in wire form.
func VerifyEncoded(encodedPub string, msg []byte, sig string) bool {
	pub, _, err := DecodePublicKey(encodedPub)
	if err != nil {
		return false
	}
	return Verify(pub, msg, sig)
}
