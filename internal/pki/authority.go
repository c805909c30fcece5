package pki

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/google/uuid"

	"drift-chat/go-backend/internal/keycodec"
	"drift-chat/go-backend/internal/signing"
)

const (
	// DefaultValidity is used when the caller does not request a window.
	DefaultValidity = 24 * time.Hour
	// MaxCertificateLifetime caps any requested window. Session certificates
	// are meant to be short-lived; this is the policy ceiling, not a default.
	MaxCertificateLifetime = 365 * 24 * time.Hour
)

// Authority is the session's self-signed certificate authority. Exactly one
// instance exists per session; its private key never leaves this struct.
type Authority struct {
	ID   string
	Name string

	priv        *ecdsa.PrivateKey
	pubDER      []byte
	now         func() time.Time
	maxLifetime time.Duration
}

// NewAuthority generates a fresh signing keypair and a session-unique id.
// Replacing an existing authority mid-session invalidates everything it
// issued; callers own that constraint.
func NewAuthority(name string, now func() time.Time, maxLifetime time.Duration) (*Authority, error) {
	if now == nil {
		now = time.Now
	}
	if maxLifetime <= 0 || maxLifetime > MaxCertificateLifetime {
		maxLifetime = MaxCertificateLifetime
	}
	priv, err := signing.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate authority key: %w", err)
	}
	pubDER, err := signing.MarshalPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Authority{
		ID:          "ca_" + uuid.NewString(),
		Name:        name,
		priv:        priv,
		pubDER:      append([]byte(nil), pubDER...),
		now:         now,
		maxLifetime: maxLifetime,
	}, nil
}

// PublicKeyDER returns the authority public key in wire form, so a verifier
// can re-derive trust in certificates embedded in exported records.
func (a *Authority) PublicKeyDER() []byte {
	if a == nil {
		return nil
	}
	return append([]byte(nil), a.pubDER...)
}

// Fingerprint is the stable textual id of the authority key.
func (a *Authority) Fingerprint() (string, error) {
	if a == nil || a.priv == nil {
		return "", ErrNotInitialized
	}
	return keycodec.Fingerprint(a.pubDER)
}

// Issue signs a certificate binding subject to publicKeyDER. The validity
// window starts now and is clamped to the authority's lifetime ceiling;
// validity <= 0 selects DefaultValidity.
func (a *Authority) Issue(subject string, publicKeyDER []byte, validity time.Duration) (Certificate, error) {
	if a == nil || a.priv == nil {
		return Certificate{}, ErrNotInitialized
	}
	if subject == "" {
		return Certificate{}, ErrInvalidSubject
	}
	if len(publicKeyDER) == 0 {
		return Certificate{}, ErrNoPublicKey
	}
	if validity <= 0 {
		validity = DefaultValidity
	}
	if validity > a.maxLifetime {
		validity = a.maxLifetime
	}

	issuedAt := a.now().UTC()
	cert := Certificate{
		ID:        "cert_" + uuid.NewString(),
		Subject:   subject,
		PublicKey: append([]byte(nil), publicKeyDER...),
		Issuer:    a.ID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(validity),
	}
	if !cert.IssuedAt.Before(cert.ExpiresAt) {
		return Certificate{}, ErrInvalidValidity
	}
	sig, err := signing.Sign(cert.signingBytes(), a.priv)
	if err != nil {
		return Certificate{}, fmt.Errorf("sign certificate: %w", err)
	}
	cert.Signature = sig
	return cert, nil
}

// Verify reports whether the certificate was signed by this authority and is
// inside its validity window. Any structural or cryptographic defect yields
// false; it never returns an error for untrusted input.
func (a *Authority) Verify(cert Certificate) bool {
	if a == nil || a.priv == nil {
		return false
	}
	return VerifyAt(cert, &a.priv.PublicKey, a.now())
}

// VerifyAt checks cert against an authority public key at an explicit time.
// It backs Authority.Verify and lets an exported record be checked by a
// verifier that only holds the authority's public key.
func VerifyAt(cert Certificate, caPub *ecdsa.PublicKey, now time.Time) bool {
	if caPub == nil {
		return false
	}
	if cert.Subject == "" || len(cert.PublicKey) == 0 || len(cert.Signature) == 0 {
		return false
	}
	if !cert.IssuedAt.Before(cert.ExpiresAt) {
		return false
	}
	if cert.ExpiredAt(now) {
		return false
	}
	return signing.Verify(cert.signingBytes(), cert.Signature, caPub)
}
