package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
)

var (
	ErrNoPrivateKey = errors.New("signing key is not available")
	ErrWrongCurve   = errors.New("public key is not on P-256")
)

// GenerateKey creates a fresh P-256 signing keypair.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// Sign produces an ASN.1 ECDSA signature over the SHA-256 digest of payload.
func Sign(payload []byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, ErrNoPrivateKey
	}
	digest := sha256.Sum256(payload)
	return ecdsa.SignASN1(rand.Reader, priv, digest[:])
}

// Verify checks an ASN.1 ECDSA signature over the SHA-256 digest of payload.
// It is safe against attacker-controlled input: nil keys, truncated or
// malformed signatures and wrong-curve keys all report false.
func Verify(payload, sig []byte, pub *ecdsa.PublicKey) bool {
	if pub == nil || pub.Curve != elliptic.P256() || len(sig) == 0 {
		return false
	}
	digest := sha256.Sum256(payload)
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}

// MarshalPublicKey renders a public key in PKIX DER form for transport.
func MarshalPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, ErrNoPrivateKey
	}
	return x509.MarshalPKIXPublicKey(pub)
}

// ParsePublicKey parses a PKIX DER public key and requires P-256.
func ParsePublicKey(der []byte) (*ecdsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok || ecKey.Curve != elliptic.P256() {
		return nil, ErrWrongCurve
	}
	return ecKey, nil
}
