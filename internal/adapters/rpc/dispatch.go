package rpc

import (
	"encoding/json"
	"errors"
	"time"

	"drift-chat/go-backend/internal/docsign"
	"drift-chat/go-backend/internal/forward"
	"drift-chat/go-backend/internal/observability"
	"drift-chat/go-backend/internal/pki"
	"drift-chat/go-backend/internal/session"
	"drift-chat/go-backend/internal/signing"
	"drift-chat/go-backend/internal/simplesign"
)

func (s *Server) dispatch(method string, rawParams json.RawMessage) (any, *rpcError) {
	switch method {
	case "health_check":
		return map[string]string{"status": "ok"}, nil

	case "session_start":
		var params struct {
			Subject string `json:"subject"`
		}
		// Params are optional here: an empty subject defaults to the key
		// fingerprint.
		if len(rawParams) > 0 {
			if err := json.Unmarshal(rawParams, &params); err != nil {
				return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params"}
			}
		}
		cert, err := s.sessions.Start(params.Subject)
		if err != nil {
			return nil, mapSessionError(err)
		}
		return map[string]any{"certificate": cert}, nil

	case "session_touch":
		if err := s.sessions.Touch(); err != nil {
			return nil, mapSessionError(err)
		}
		return map[string]any{"state": s.sessions.State()}, nil

	case "session_status":
		result := map[string]any{"state": s.sessions.State()}
		if cert, err := s.sessions.Certificate(); err == nil {
			result["certificate"] = cert
		}
		if fp, err := s.sessions.AuthorityFingerprint(); err == nil {
			result["authority_fingerprint"] = fp
		}
		if der, err := s.sessions.AuthorityPublicKeyDER(); err == nil {
			result["authority_public_key"] = der
		}
		if pub, err := s.sessions.AgreementPublicKey(); err == nil {
			result["agreement_public_key"] = pub
		}
		return result, nil

	case "session_reset":
		s.sessions.Reset()
		observability.SessionResets.Inc()
		return map[string]any{"state": s.sessions.State()}, nil

	case "certificate_issue":
		params, rpcErr := decodeParams[struct {
			Subject    string `json:"subject"`
			PublicKey  []byte `json:"public_key"`
			ValidityMS int64  `json:"validity_ms"`
		}](rawParams)
		if rpcErr != nil {
			return nil, rpcErr
		}
		cert, err := s.sessions.IssueCertificate(params.Subject, params.PublicKey, time.Duration(params.ValidityMS)*time.Millisecond)
		if err != nil {
			return nil, mapSessionError(err)
		}
		observability.CertificatesIssued.Inc()
		return map[string]any{"certificate": cert}, nil

	case "certificate_verify":
		params, rpcErr := decodeParams[struct {
			Certificate pki.Certificate `json:"certificate"`
		}](rawParams)
		if rpcErr != nil {
			return nil, rpcErr
		}
		valid := s.sessions.VerifyCertificate(params.Certificate)
		observability.ObserveVerification("certificate", valid)
		return map[string]any{"valid": valid}, nil

	case "data_sign":
		params, rpcErr := decodeParams[struct {
			Payload []byte `json:"payload"`
		}](rawParams)
		if rpcErr != nil {
			return nil, rpcErr
		}
		signer, err := s.sessions.Signer()
		if err != nil {
			return nil, mapSessionError(err)
		}
		sig, err := signer.SignData(params.Payload)
		if err != nil {
			return nil, mapSessionError(err)
		}
		observability.SignaturesCreated.WithLabelValues("data").Inc()
		return map[string]any{"signature": sig, "certificate": signer.Certificate()}, nil

	case "data_verify":
		params, rpcErr := decodeParams[struct {
			Payload   []byte `json:"payload"`
			Signature []byte `json:"signature"`
			PublicKey []byte `json:"public_key"`
		}](rawParams)
		if rpcErr != nil {
			return nil, rpcErr
		}
		pub, err := signing.ParsePublicKey(params.PublicKey)
		valid := err == nil && signing.Verify(params.Payload, params.Signature, pub)
		observability.ObserveVerification("data", valid)
		return map[string]any{"valid": valid}, nil

	case "document_sign":
		params, rpcErr := decodeParams[struct {
			Document []byte `json:"document"`
		}](rawParams)
		if rpcErr != nil {
			return nil, rpcErr
		}
		signer, err := s.sessions.Signer()
		if err != nil {
			return nil, mapSessionError(err)
		}
		record, err := docsign.SignDocument(params.Document, signer.Key(), signer.Certificate(), nil)
		if err != nil {
			return nil, mapSessionError(err)
		}
		encoded, err := docsign.EncodeFile(record)
		if err != nil {
			return nil, &rpcError{Code: codeInternal, Message: "encode signature record"}
		}
		observability.SignaturesCreated.WithLabelValues("document").Inc()
		return map[string]any{"record": record, "sig_file": encoded}, nil

	case "document_verify":
		params, rpcErr := decodeParams[struct {
			Document []byte `json:"document"`
			SigFile  []byte `json:"sig_file"`
		}](rawParams)
		if rpcErr != nil {
			return nil, rpcErr
		}
		record, err := docsign.DecodeFile(params.SigFile)
		if err != nil {
			return nil, &rpcError{Code: codeMalformedInput, Message: "malformed signature record"}
		}
		// Certificate trust first, then the hash+signature binding.
		certValid := s.sessions.VerifyCertificate(record.Certificate)
		docValid := false
		if certValid {
			if pub, err := signing.ParsePublicKey(record.Certificate.PublicKey); err == nil {
				docValid = docsign.VerifyDocumentSignature(params.Document, record, pub)
			}
		}
		observability.ObserveVerification("document", certValid && docValid)
		return map[string]any{"valid": certValid && docValid, "certificate_valid": certValid}, nil

	case "message_key_derive":
		params, rpcErr := decodeParams[struct {
			PeerPublicKey []byte `json:"peer_public_key"`
			Salt          []byte `json:"salt"`
		}](rawParams)
		if rpcErr != nil {
			return nil, rpcErr
		}
		secret, err := s.sessions.SharedSecretWith(params.PeerPublicKey)
		if err != nil {
			return nil, mapSessionError(err)
		}
		salt := params.Salt
		if len(salt) == 0 {
			salt, err = forward.NewSalt()
			if err != nil {
				return nil, &rpcError{Code: codeInternal, Message: "salt generation failed"}
			}
		}
		key, err := forward.DeriveMessageKey(secret, salt)
		if err != nil {
			return nil, &rpcError{Code: codeMalformedInput, Message: err.Error()}
		}
		observability.MessageKeysDerived.Inc()
		return map[string]any{"key": key, "salt": salt}, nil

	case "simple_key_new":
		mnemonic, _, err := simplesign.NewSharedKey()
		if err != nil {
			return nil, &rpcError{Code: codeInternal, Message: "shared key generation failed"}
		}
		return map[string]any{"mnemonic": mnemonic}, nil

	case "simple_sign":
		params, rpcErr := decodeParams[struct {
			Mnemonic string `json:"mnemonic"`
			Filename string `json:"filename"`
			Size     int64  `json:"size"`
			Type     string `json:"type"`
		}](rawParams)
		if rpcErr != nil {
			return nil, rpcErr
		}
		key, err := simplesign.KeyFromMnemonic(params.Mnemonic)
		if err != nil {
			return nil, &rpcError{Code: codeMalformedInput, Message: err.Error()}
		}
		record, err := simplesign.SignRecord(params.Filename, params.Size, params.Type, key, nil)
		if err != nil {
			return nil, &rpcError{Code: codeMalformedInput, Message: err.Error()}
		}
		observability.SignaturesCreated.WithLabelValues("simple").Inc()
		return map[string]any{"record": record}, nil

	case "simple_verify":
		params, rpcErr := decodeParams[struct {
			Mnemonic string            `json:"mnemonic"`
			Record   simplesign.Record `json:"record"`
		}](rawParams)
		if rpcErr != nil {
			return nil, rpcErr
		}
		key, err := simplesign.KeyFromMnemonic(params.Mnemonic)
		if err != nil {
			return nil, &rpcError{Code: codeMalformedInput, Message: err.Error()}
		}
		valid := simplesign.VerifyRecord(params.Record, key)
		observability.ObserveVerification("simple", valid)
		return map[string]any{"valid": valid}, nil
	}

	return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found"}
}

func mapSessionError(err error) *rpcError {
	switch {
	case errors.Is(err, session.ErrNotInitialized):
		return &rpcError{Code: codeNotInitialized, Message: "session is not initialized"}
	case errors.Is(err, session.ErrSessionExpired):
		return &rpcError{Code: codeSessionExpired, Message: "session expired"}
	case errors.Is(err, session.ErrSessionReset):
		return &rpcError{Code: codeSessionReset, Message: "session has been reset"}
	case errors.Is(err, session.ErrAlreadyActive):
		return &rpcError{Code: codeInvalidRequest, Message: "session is already active"}
	case errors.Is(err, pki.ErrNotInitialized):
		return &rpcError{Code: codeNotInitialized, Message: "certificate authority is not initialized"}
	case errors.Is(err, pki.ErrInvalidSubject), errors.Is(err, pki.ErrNoPublicKey), errors.Is(err, pki.ErrInvalidValidity):
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &rpcError{Code: codeInternal, Message: "internal error"}
	}
}
