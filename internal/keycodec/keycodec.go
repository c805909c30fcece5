package keycodec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

const fingerprintPrefix = "drift1"

var ErrEmptyInput = errors.New("empty key material")

// Encode renders raw key or signature bytes in transport-safe text form.
func Encode(raw []byte) string {
	return base58.Encode(raw)
}

// Decode reverses Encode. It rejects empty or non-alphabet input.
func Decode(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrEmptyInput
	}
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key text: %w", err)
	}
	return raw, nil
}

// Fingerprint builds the stable identifier for a public key. The same key
// always maps to the same id, so peers can compare certificate subjects
// without exchanging raw key bytes.
func Fingerprint(publicKey []byte) (string, error) {
	if len(publicKey) == 0 {
		return "", ErrEmptyInput
	}
	h := blake2b.Sum256(publicKey)
	return fingerprintPrefix + Encode(h[:]), nil
}

// IsFingerprint reports whether s has the shape produced by Fingerprint.
func IsFingerprint(s string) bool {
	if !strings.HasPrefix(s, fingerprintPrefix) {
		return false
	}
	raw, err := Decode(strings.TrimPrefix(s, fingerprintPrefix))
	return err == nil && len(raw) == blake2b.Size256
}
