package rpc

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/curve25519"

	"drift-chat/go-backend/internal/config"
	"drift-chat/go-backend/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	disabled := false
	cfg.RPC.RateLimitEnabled = &disabled
	sessions := session.NewManager(session.Options{
		IdleTimeout:  time.Hour,
		CertValidity: 24 * time.Hour,
	})
	return NewServer(cfg, sessions)
}

func callRPC(t *testing.T, s *Server, method string, params any) rpcResponse {
	t.Helper()
	body := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		body["params"] = params
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s: http status %d: %s", method, rec.Code, rec.Body.String())
	}
	var resp rpcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s: decode response: %v", method, err)
	}
	return resp
}

func resultField[T any](t *testing.T, resp rpcResponse, field string) T {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode result object: %v", err)
	}
	var out T
	if err := json.Unmarshal(m[field], &out); err != nil {
		t.Fatalf("decode result field %q: %v", field, err)
	}
	return out
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	resp := callRPC(t, s, "health_check", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestSignBeforeStartFailsWithNotInitialized(t *testing.T) {
	s := newTestServer(t)
	resp := callRPC(t, s, "data_sign", map[string]any{"payload": []byte("x")})
	if resp.Error == nil || resp.Error.Code != codeNotInitialized {
		t.Fatalf("expected not-initialized error, got %+v", resp.Error)
	}
}

func TestSessionSignVerifyFlow(t *testing.T) {
	s := newTestServer(t)

	resp := callRPC(t, s, "session_start", map[string]any{"subject": "alice-7f3a"})
	if resp.Error != nil {
		t.Fatalf("session_start: %+v", resp.Error)
	}

	payload := []byte("payload to sign")
	resp = callRPC(t, s, "data_sign", map[string]any{"payload": payload})
	if resp.Error != nil {
		t.Fatalf("data_sign: %+v", resp.Error)
	}
	sig := resultField[[]byte](t, resp, "signature")
	cert := resultField[map[string]json.RawMessage](t, resp, "certificate")

	resp = callRPC(t, s, "certificate_verify", map[string]any{"certificate": json.RawMessage(mustMarshal(t, cert))})
	if resp.Error != nil || !resultField[bool](t, resp, "valid") {
		t.Fatalf("certificate_verify: %+v", resp)
	}

	var pubKey []byte
	if err := json.Unmarshal(cert["public_key"], &pubKey); err != nil {
		t.Fatalf("decode cert public key: %v", err)
	}
	resp = callRPC(t, s, "data_verify", map[string]any{
		"payload":    payload,
		"signature":  sig,
		"public_key": pubKey,
	})
	if !resultField[bool](t, resp, "valid") {
		t.Fatal("signature must verify over RPC")
	}

	resp = callRPC(t, s, "data_verify", map[string]any{
		"payload":    []byte("different payload"),
		"signature":  sig,
		"public_key": pubKey,
	})
	if resultField[bool](t, resp, "valid") {
		t.Fatal("wrong payload must not verify")
	}
}

func TestDocumentSignVerifyFlow(t *testing.T) {
	s := newTestServer(t)
	if resp := callRPC(t, s, "session_start", nil); resp.Error != nil {
		t.Fatalf("session_start: %+v", resp.Error)
	}

	doc := []byte("the document body")
	resp := callRPC(t, s, "document_sign", map[string]any{"document": doc})
	if resp.Error != nil {
		t.Fatalf("document_sign: %+v", resp.Error)
	}
	sigFile := resultField[[]byte](t, resp, "sig_file")

	resp = callRPC(t, s, "document_verify", map[string]any{"document": doc, "sig_file": sigFile})
	if !resultField[bool](t, resp, "valid") {
		t.Fatal("document must verify against its sig file")
	}

	resp = callRPC(t, s, "document_verify", map[string]any{"document": []byte("tampered"), "sig_file": sigFile})
	if resultField[bool](t, resp, "valid") {
		t.Fatal("tampered document must not verify")
	}

	resp = callRPC(t, s, "document_verify", map[string]any{"document": doc, "sig_file": []byte("not a record")})
	if resp.Error == nil || resp.Error.Code != codeMalformedInput {
		t.Fatalf("expected malformed-input error, got %+v", resp.Error)
	}
}

func TestSessionResetPath(t *testing.T) {
	s := newTestServer(t)
	if resp := callRPC(t, s, "session_start", nil); resp.Error != nil {
		t.Fatalf("session_start: %+v", resp.Error)
	}
	if resp := callRPC(t, s, "session_reset", nil); resp.Error != nil {
		t.Fatalf("session_reset: %+v", resp.Error)
	}
	resp := callRPC(t, s, "data_sign", map[string]any{"payload": []byte("x")})
	if resp.Error == nil || resp.Error.Code != codeSessionReset {
		t.Fatalf("expected session-reset error, got %+v", resp.Error)
	}
}

func TestSimpleSignVerifyFlow(t *testing.T) {
	s := newTestServer(t)

	resp := callRPC(t, s, "simple_key_new", nil)
	if resp.Error != nil {
		t.Fatalf("simple_key_new: %+v", resp.Error)
	}
	mnemonic := resultField[string](t, resp, "mnemonic")

	resp = callRPC(t, s, "simple_sign", map[string]any{
		"mnemonic": mnemonic,
		"filename": "notes.txt",
		"size":     128,
		"type":     "text/plain",
	})
	if resp.Error != nil {
		t.Fatalf("simple_sign: %+v", resp.Error)
	}
	record := resultField[json.RawMessage](t, resp, "record")

	resp = callRPC(t, s, "simple_verify", map[string]any{"mnemonic": mnemonic, "record": record})
	if !resultField[bool](t, resp, "valid") {
		t.Fatal("simple record must verify with the original mnemonic")
	}

	resp = callRPC(t, s, "simple_sign", map[string]any{"mnemonic": "bogus words", "filename": "a", "size": 1, "type": "t"})
	if resp.Error == nil || resp.Error.Code != codeMalformedInput {
		t.Fatalf("expected malformed-input for bad mnemonic, got %+v", resp.Error)
	}
}

func TestSessionStatusAndMessageKeyDerive(t *testing.T) {
	s := newTestServer(t)
	if resp := callRPC(t, s, "session_start", nil); resp.Error != nil {
		t.Fatalf("session_start: %+v", resp.Error)
	}

	resp := callRPC(t, s, "session_status", nil)
	if got := resultField[string](t, resp, "state"); got != "active" {
		t.Fatalf("state = %q", got)
	}
	if fp := resultField[string](t, resp, "authority_fingerprint"); fp == "" {
		t.Fatal("authority fingerprint must be reported")
	}

	var peerPriv [32]byte
	if _, err := rand.Read(peerPriv[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	peerPub, err := curve25519.X25519(peerPriv[:], curve25519.Basepoint)
	if err != nil {
		t.Fatalf("peer pub: %v", err)
	}

	resp = callRPC(t, s, "message_key_derive", map[string]any{"peer_public_key": peerPub})
	if resp.Error != nil {
		t.Fatalf("message_key_derive: %+v", resp.Error)
	}
	keyA := resultField[[]byte](t, resp, "key")
	saltA := resultField[[]byte](t, resp, "salt")
	if len(keyA) != 32 || len(saltA) != 32 {
		t.Fatalf("key/salt sizes: %d/%d", len(keyA), len(saltA))
	}

	resp = callRPC(t, s, "message_key_derive", map[string]any{"peer_public_key": peerPub})
	keyB := resultField[[]byte](t, resp, "key")
	if bytes.Equal(keyA, keyB) {
		t.Fatal("fresh salts must derive distinct message keys")
	}

	// Re-supplying the first salt reproduces the first key.
	resp = callRPC(t, s, "message_key_derive", map[string]any{"peer_public_key": peerPub, "salt": saltA})
	if !bytes.Equal(keyA, resultField[[]byte](t, resp, "key")) {
		t.Fatal("same salt must reproduce the same key")
	}
}

func TestMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := callRPC(t, s, "no_such_method", nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp.Error)
	}
}

func TestAuthTokenRequired(t *testing.T) {
	t.Setenv("DRIFT_RPC_TOKEN", "hunter2")
	s := newTestServer(t)

	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"health_check"}`)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(raw))
	req.Header.Set("X-Drift-RPC-Token", "hunter2")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status %d", rec.Code)
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}
