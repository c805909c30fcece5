package forward

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// messageKeyInfo is the fixed domain-separation label for per-message
	// keys. Versioned so the derivation can rotate without ambiguity.
	messageKeyInfo = "drift/msg/key/v1"

	// SaltSize is the required per-message salt length.
	SaltSize = 32
	// KeySize is the derived symmetric key length.
	KeySize = chacha20poly1305.KeySize
)

var (
	ErrNoSharedSecret = errors.New("shared secret is empty")
	ErrBadSalt        = errors.New("per-message salt has the wrong size")
	ErrBadPeerKey     = errors.New("peer agreement key is invalid")
)

// DeriveMessageKey runs HKDF-SHA256 extract-then-expand over sharedSecret
// with a fresh per-message salt. The salt is not secret and travels with the
// ciphertext; it must never be reused for the same shared secret. Distinct
// salts yield computationally independent keys, so compromise of one key
// exposes neither the shared secret nor any sibling key.
func DeriveMessageKey(sharedSecret, salt []byte) ([]byte, error) {
	if len(sharedSecret) == 0 {
		return nil, ErrNoSharedSecret
	}
	if len(salt) != SaltSize {
		return nil, ErrBadSalt
	}
	reader := hkdf.New(sha256.New, sharedSecret, salt, []byte(messageKeyInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// NewSalt draws a fresh random per-message salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// SharedSecret performs X25519 agreement between the local agreement private
// key and a peer public key.
func SharedSecret(priv, peerPub []byte) ([]byte, error) {
	if len(priv) != curve25519.ScalarSize || len(peerPub) != curve25519.PointSize {
		return nil, ErrBadPeerKey
	}
	return curve25519.X25519(priv, peerPub)
}

// Seal encrypts plaintext under a key derived from sharedSecret and a fresh
// salt, returning the salt, nonce and ciphertext the peer needs.
func Seal(sharedSecret, plaintext, aad []byte) (salt, nonce, ciphertext []byte, err error) {
	salt, err = NewSalt()
	if err != nil {
		return nil, nil, nil, err
	}
	key, err := DeriveMessageKey(sharedSecret, salt)
	if err != nil {
		return nil, nil, nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, nil, err
	}
	nonce = make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, err
	}
	return salt, nonce, aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts a message sealed with Seal, re-deriving the per-message key
// from the transmitted salt.
func Open(sharedSecret, salt, nonce, ciphertext, aad []byte) ([]byte, error) {
	key, err := DeriveMessageKey(sharedSecret, salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, aad)
}
