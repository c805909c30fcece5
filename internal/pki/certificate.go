package pki

import (
	"errors"
	"time"
)

var (
	ErrNotInitialized  = errors.New("certificate authority is not initialized")
	ErrInvalidValidity = errors.New("certificate validity window is invalid")
	ErrInvalidSubject  = errors.New("certificate subject is empty")
	ErrNoPublicKey     = errors.New("certificate public key is empty")
)

// Certificate binds a subject name to a public key for a bounded window,
// under the signature of the issuing session authority. Byte fields hold
// PKIX DER (PublicKey) and an ASN.1 ECDSA signature (Signature); JSON
// encoding renders them base64 per encoding/json.
type Certificate struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	PublicKey []byte    `json:"public_key"`
	Issuer    string    `json:"issuer"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Signature []byte    `json:"signature"`
}

// signingBytes is the canonical serialization the authority signs. The field
// order is frozen: subject, public key, issuer, issued-at, expires-at.
// Changing it invalidates every previously issued certificate.
func (c Certificate) signingBytes() []byte {
	b := make([]byte, 0, len(c.Subject)+len(c.PublicKey)+len(c.Issuer)+19)
	b = append(b, []byte(c.Subject)...)
	b = append(b, 0)
	b = append(b, c.PublicKey...)
	b = append(b, 0)
	b = append(b, []byte(c.Issuer)...)
	b = append(b, 0)
	b = appendUnixNano(b, c.IssuedAt)
	b = appendUnixNano(b, c.ExpiresAt)
	return b
}

// Clone returns an independent copy so callers cannot alias the byte slices
// held by session state.
func (c Certificate) Clone() Certificate {
	out := c
	out.PublicKey = append([]byte(nil), c.PublicKey...)
	out.Signature = append([]byte(nil), c.Signature...)
	return out
}

// ExpiredAt reports whether the certificate is past its window at now.
func (c Certificate) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func appendUnixNano(b []byte, t time.Time) []byte {
	v := uint64(t.UnixNano())
	return append(b, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
