package docsign

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"drift-chat/go-backend/internal/pki"
	"drift-chat/go-backend/internal/signing"
)

// FileSuffix is appended to the signed document's name for the exported record.
const FileSuffix = ".sig"

var (
	ErrMalformedRecord = errors.New("detached signature record is malformed")
	ErrNoCertificate   = errors.New("detached signature requires a certificate")
)

// DetachedSignature is the portable record exported as `<name>.sig`. It is
// the only artifact that crosses the session boundary as a file, so its wire
// form must round-trip byte for byte. The embedded certificate must be
// verified against the issuing authority by the caller before the public key
// it carries is trusted here.
type DetachedSignature struct {
	DocumentHash []byte          `json:"document_hash"`
	Signature    []byte          `json:"signature"`
	Certificate  pki.Certificate `json:"certificate"`
	Timestamp    int64           `json:"timestamp"`
}

// HashDocument computes the SHA-256 digest of the full document content.
// An empty document hashes like any other byte sequence.
func HashDocument(fileBytes []byte) []byte {
	sum := sha256.Sum256(fileBytes)
	return sum[:]
}

// SignDocument hashes fileBytes, signs the digest and binds the signer's
// certificate plus the current time into a detached record.
func SignDocument(fileBytes []byte, priv *ecdsa.PrivateKey, cert pki.Certificate, now func() time.Time) (DetachedSignature, error) {
	if len(cert.PublicKey) == 0 || len(cert.Signature) == 0 {
		return DetachedSignature{}, ErrNoCertificate
	}
	if now == nil {
		now = time.Now
	}
	digest := HashDocument(fileBytes)
	sig, err := signing.Sign(digest, priv)
	if err != nil {
		return DetachedSignature{}, fmt.Errorf("sign document digest: %w", err)
	}
	return DetachedSignature{
		DocumentHash: digest,
		Signature:    sig,
		Certificate:  cert.Clone(),
		Timestamp:    now().UTC().UnixMilli(),
	}, nil
}

// VerifyDocumentSignature recomputes the digest of the presented bytes,
// rejects immediately on a hash mismatch (tamper or wrong file), then checks
// the signature over the recomputed digest. Certificate validity is the
// caller's concern and is deliberately not re-checked here.
func VerifyDocumentSignature(fileBytes []byte, record DetachedSignature, pub *ecdsa.PublicKey) bool {
	digest := HashDocument(fileBytes)
	if !bytes.Equal(digest, record.DocumentHash) {
		return false
	}
	return signing.Verify(digest, record.Signature, pub)
}

// EncodeFile renders the record in its `.sig` wire form.
func EncodeFile(record DetachedSignature) ([]byte, error) {
	if len(record.DocumentHash) == 0 || len(record.Signature) == 0 {
		return nil, ErrMalformedRecord
	}
	return json.Marshal(record)
}

// DecodeFile parses a `.sig` file. The record is loadable with no other
// session state; verification needs only the embedded certificate and the
// authority key the verifier already trusts.
func DecodeFile(data []byte) (DetachedSignature, error) {
	var record DetachedSignature
	if err := json.Unmarshal(data, &record); err != nil {
		return DetachedSignature{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if len(record.DocumentHash) != sha256.Size || len(record.Signature) == 0 {
		return DetachedSignature{}, ErrMalformedRecord
	}
	if record.Certificate.Subject == "" || len(record.Certificate.PublicKey) == 0 {
		return DetachedSignature{}, ErrMalformedRecord
	}
	return record, nil
}
