package simplesign

import (
	"bytes"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestSignVerifyRecord(t *testing.T) {
	mnemonic, key, err := NewSharedKey()
	if err != nil {
		t.Fatalf("new shared key: %v", err)
	}
	rec, err := SignRecord("notes.txt", 2048, "text/plain", key, fixedClock)
	if err != nil {
		t.Fatalf("sign record: %v", err)
	}
	if !VerifyRecord(rec, key) {
		t.Fatal("record must verify with the shared key")
	}

	// The receiving side rebuilds the key from the mnemonic alone.
	peerKey, err := KeyFromMnemonic(mnemonic)
	if err != nil {
		t.Fatalf("key from mnemonic: %v", err)
	}
	if !bytes.Equal(key, peerKey) {
		t.Fatal("mnemonic must re-derive the same key")
	}
	if !VerifyRecord(rec, peerKey) {
		t.Fatal("record must verify with the re-derived key")
	}
}

func TestVerifyRejectsTamper(t *testing.T) {
	_, key, err := NewSharedKey()
	if err != nil {
		t.Fatalf("new shared key: %v", err)
	}
	rec, err := SignRecord("notes.txt", 2048, "text/plain", key, fixedClock)
	if err != nil {
		t.Fatalf("sign record: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(r *Record)
	}{
		{"filename", func(r *Record) { r.Filename = "Notes.txt" }},
		{"size", func(r *Record) { r.Size++ }},
		{"type", func(r *Record) { r.Type = "text/html" }},
		{"timestamp", func(r *Record) { r.Timestamp++ }},
		{"signature", func(r *Record) { r.Signature[0] ^= 0x01 }},
	}
	for _, tc := range cases {
		mutated := rec
		mutated.Signature = append([]byte(nil), rec.Signature...)
		tc.mutate(&mutated)
		if VerifyRecord(mutated, key) {
			t.Fatalf("record with altered %s must not verify", tc.name)
		}
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, keyA, err := NewSharedKey()
	if err != nil {
		t.Fatalf("new shared key: %v", err)
	}
	_, keyB, err := NewSharedKey()
	if err != nil {
		t.Fatalf("new shared key: %v", err)
	}
	rec, err := SignRecord("notes.txt", 1, "text/plain", keyA, fixedClock)
	if err != nil {
		t.Fatalf("sign record: %v", err)
	}
	if VerifyRecord(rec, keyB) {
		t.Fatal("record must not verify under a different shared key")
	}
	if VerifyRecord(rec, nil) {
		t.Fatal("record must not verify without a key")
	}
}

func TestSignPayloadDirect(t *testing.T) {
	_, key, err := NewSharedKey()
	if err != nil {
		t.Fatalf("new shared key: %v", err)
	}
	sig, err := Sign("payload", key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify("payload", sig, key) {
		t.Fatal("payload must verify")
	}
	if Verify("payloae", sig, key) {
		t.Fatal("altered payload must not verify")
	}
	if _, err := Sign("payload", nil); err == nil {
		t.Fatal("expected error without shared key")
	}
}

func TestKeyFromMnemonicValidation(t *testing.T) {
	if _, err := KeyFromMnemonic("definitely not a valid mnemonic"); err == nil {
		t.Fatal("invalid mnemonic must be rejected")
	}
}

func TestSignRecordValidation(t *testing.T) {
	_, key, err := NewSharedKey()
	if err != nil {
		t.Fatalf("new shared key: %v", err)
	}
	if _, err := SignRecord("", 1, "text/plain", key, fixedClock); err == nil {
		t.Fatal("empty filename must be rejected")
	}
	if _, err := SignRecord("notes.txt", -1, "text/plain", key, fixedClock); err == nil {
		t.Fatal("negative size must be rejected")
	}
}
