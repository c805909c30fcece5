// Package simplesign is the lower-assurance signing path. Trust is keyed by
// a pre-shared symmetric secret instead of a certificate: anyone holding the
// shared key can produce a valid signature, so there is no non-repudiation.
// It is a distinct tier, never a silent substitute for the PKI path.
package simplesign

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const sharedKeyInfo = "drift/simplesign/key/v1"

// KeySize is the size of the pre-shared signing key.
const KeySize = 32

var (
	ErrNoSharedKey     = errors.New("shared key is empty")
	ErrInvalidMnemonic = errors.New("invalid shared-key mnemonic")
	ErrInvalidRecord   = errors.New("simple signature record is invalid")
)

// Record is the structured text artifact of the simple path. The verifier
// must be handed the original timestamp out-of-band: the signature covers it,
// and regenerating it yields a different canonical payload.
type Record struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Signature []byte `json:"signature"`
}

// Sign computes an HMAC-SHA256 over the canonical payload string.
func Sign(canonicalPayload string, sharedKey []byte) ([]byte, error) {
	if len(sharedKey) == 0 {
		return nil, ErrNoSharedKey
	}
	mac := hmac.New(sha256.New, sharedKey)
	mac.Write([]byte(canonicalPayload))
	return mac.Sum(nil), nil
}

// Verify recomputes the MAC and compares in constant time.
func Verify(canonicalPayload string, signature, sharedKey []byte) bool {
	if len(sharedKey) == 0 || len(signature) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, sharedKey)
	mac.Write([]byte(canonicalPayload))
	return hmac.Equal(mac.Sum(nil), signature)
}

// SignRecord builds and signs a record for a file's metadata.
func SignRecord(filename string, size int64, fileType string, sharedKey []byte, now func() time.Time) (Record, error) {
	if strings.TrimSpace(filename) == "" || size < 0 {
		return Record{}, ErrInvalidRecord
	}
	if now == nil {
		now = time.Now
	}
	rec := Record{
		Filename:  filename,
		Size:      size,
		Type:      fileType,
		Timestamp: now().UTC().UnixMilli(),
	}
	sig, err := Sign(rec.canonicalPayload(), sharedKey)
	if err != nil {
		return Record{}, err
	}
	rec.Signature = sig
	return rec, nil
}

// VerifyRecord checks a record against the shared key using the timestamp
// carried in the record itself.
func VerifyRecord(rec Record, sharedKey []byte) bool {
	if len(rec.Signature) == 0 {
		return false
	}
	return Verify(rec.canonicalPayload(), rec.Signature, sharedKey)
}

// canonicalPayload is the exact byte input to the MAC. Field order is frozen.
func (r Record) canonicalPayload() string {
	return strings.Join([]string{
		r.Filename,
		strconv.FormatInt(r.Size, 10),
		r.Type,
		strconv.FormatInt(r.Timestamp, 10),
	}, "\x00")
}

// NewSharedKey draws fresh entropy and returns both the shareable mnemonic
// and the derived signing key. The mnemonic is how the secret is exchanged
// out-of-band between the two ends of the low-trust path.
func NewSharedKey() (string, []byte, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", nil, err
	}
	key, err := KeyFromMnemonic(mnemonic)
	if err != nil {
		return "", nil, err
	}
	return mnemonic, key, nil
}

// KeyFromMnemonic re-derives the signing key on the receiving side.
func KeyFromMnemonic(mnemonic string) ([]byte, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	reader := hkdf.New(sha512.New, seed, nil, []byte(sharedKeyInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
