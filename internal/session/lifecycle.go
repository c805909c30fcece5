// Package session owns the process-wide key lifecycle: the session authority,
// the local agreement and signing keypairs and the active certificate. All
// transitions go through the Manager; sign and verify paths read immutable
// snapshots and never observe a half-wiped state.
package session

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/curve25519"

	"drift-chat/go-backend/internal/forward"
	"drift-chat/go-backend/internal/keycodec"
	"drift-chat/go-backend/internal/pki"
	"drift-chat/go-backend/internal/signing"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateActive        State = "active"
	StateExpired       State = "expired"
)

const (
	DefaultIdleTimeout = 15 * time.Minute
)

var (
	ErrNotInitialized = errors.New("session is not initialized")
	ErrAlreadyActive  = errors.New("session is already active")
	ErrSessionExpired = errors.New("session expired from inactivity")
	ErrSessionReset   = errors.New("session has been reset")
)

type Options struct {
	// IdleTimeout is the inactivity threshold for Active -> Expired.
	IdleTimeout time.Duration
	// CertValidity is the validity window of the local certificate.
	CertValidity time.Duration
	// MaxCertLifetime caps every window the authority will sign.
	MaxCertLifetime time.Duration
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// Manager is the lifecycle singleton. One writer performs transitions;
// signing and verification take read-locked snapshots.
type Manager struct {
	mu sync.RWMutex

	state     State
	wasReset  bool
	now       func() time.Time
	opts      Options
	authority *pki.Authority

	signPriv  *ecdsa.PrivateKey
	agreePriv []byte
	agreePub  []byte
	cert      pki.Certificate
	lastSeen  time.Time
}

func NewManager(opts Options) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.CertValidity <= 0 {
		opts.CertValidity = pki.DefaultValidity
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		state: StateUninitialized,
		now:   opts.Clock,
		opts:  opts,
	}
}

// Start moves the session to Active: fresh agreement keypair, fresh signing
// keypair, a new authority and the local certificate bound to the signing
// public key. subject may be empty, in which case the signing key fingerprint
// is used.
func (m *Manager) Start(subject string) (pki.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateActive {
		return pki.Certificate{}, ErrAlreadyActive
	}

	signPriv, err := signing.GenerateKey()
	if err != nil {
		return pki.Certificate{}, fmt.Errorf("generate signing key: %w", err)
	}
	signPubDER, err := signing.MarshalPublicKey(&signPriv.PublicKey)
	if err != nil {
		return pki.Certificate{}, err
	}

	agreePriv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(agreePriv); err != nil {
		return pki.Certificate{}, fmt.Errorf("generate agreement key: %w", err)
	}
	agreePub, err := curve25519.X25519(agreePriv, curve25519.Basepoint)
	if err != nil {
		return pki.Certificate{}, fmt.Errorf("derive agreement public key: %w", err)
	}

	authority, err := pki.NewAuthority("drift session authority", m.now, m.opts.MaxCertLifetime)
	if err != nil {
		return pki.Certificate{}, err
	}
	if subject == "" {
		subject, err = keycodec.Fingerprint(signPubDER)
		if err != nil {
			return pki.Certificate{}, err
		}
	}
	cert, err := authority.Issue(subject, signPubDER, m.opts.CertValidity)
	if err != nil {
		return pki.Certificate{}, err
	}

	m.state = StateActive
	m.wasReset = false
	m.authority = authority
	m.signPriv = signPriv
	m.agreePriv = agreePriv
	m.agreePub = agreePub
	m.cert = cert
	m.lastSeen = m.now()
	return cert.Clone(), nil
}

// Touch marks activity, extending the session's liveness. It does not
// reissue the certificate.
func (m *Manager) Touch() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureActiveLocked(); err != nil {
		return err
	}
	m.lastSeen = m.now()
	return nil
}

// State reports the current lifecycle state, applying the idle transition
// first so callers never observe a stale Active.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireIfIdleLocked()
	return m.state
}

// ExpireIfIdle applies Active -> Expired when the idle threshold has passed
// and reports whether the session is expired.
func (m *Manager) ExpireIfIdle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireIfIdleLocked()
	return m.state == StateExpired
}

// Reset wipes all key material and returns the lifecycle to its terminal
// reset state. Snapshots already handed out keep their own key references;
// only the manager's slots are cleared, so an in-flight signing call is not
// corrupted, while every later snapshot request fails with ErrSessionReset.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	zeroBytes(m.agreePriv)
	zeroBytes(m.agreePub)
	m.agreePriv = nil
	m.agreePub = nil
	m.signPriv = nil
	m.authority = nil
	m.cert = pki.Certificate{}
	m.state = StateUninitialized
	m.wasReset = true
}

// Signer returns an immutable snapshot of the signing key and certificate.
// The snapshot stays valid across a concurrent Reset.
func (m *Manager) Signer() (Signer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireIfIdleLocked()
	if err := m.ensureActiveLocked(); err != nil {
		return Signer{}, err
	}
	return Signer{priv: m.signPriv, cert: m.cert.Clone()}, nil
}

// Certificate returns a copy of the local certificate.
func (m *Manager) Certificate() (pki.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ensureActiveLocked(); err != nil {
		return pki.Certificate{}, err
	}
	return m.cert.Clone(), nil
}

// IssueCertificate issues a peer certificate under the session authority.
func (m *Manager) IssueCertificate(subject string, publicKeyDER []byte, validity time.Duration) (pki.Certificate, error) {
	m.mu.RLock()
	authority := m.authority
	err := m.ensureActiveLocked()
	m.mu.RUnlock()
	if err != nil {
		return pki.Certificate{}, err
	}
	return authority.Issue(subject, publicKeyDER, validity)
}

// VerifyCertificate checks a certificate against the session authority.
// It fails closed: no session, no trust.
func (m *Manager) VerifyCertificate(cert pki.Certificate) bool {
	m.mu.RLock()
	authority := m.authority
	m.mu.RUnlock()
	return authority.Verify(cert)
}

// AuthorityPublicKeyDER exposes the authority key in wire form so exported
// records can be verified outside this process.
func (m *Manager) AuthorityPublicKeyDER() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ensureActiveLocked(); err != nil {
		return nil, err
	}
	return m.authority.PublicKeyDER(), nil
}

// AuthorityFingerprint is the stable textual id of the authority key,
// suitable for out-of-band comparison between peers.
func (m *Manager) AuthorityFingerprint() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ensureActiveLocked(); err != nil {
		return "", err
	}
	return m.authority.Fingerprint()
}

// AgreementPublicKey returns the public half of the agreement keypair. The
// private half never leaves the manager.
func (m *Manager) AgreementPublicKey() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ensureActiveLocked(); err != nil {
		return nil, err
	}
	return append([]byte(nil), m.agreePub...), nil
}

// SharedSecretWith runs X25519 agreement against a peer public key without
// exporting the local private half.
func (m *Manager) SharedSecretWith(peerPub []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ensureActiveLocked(); err != nil {
		return nil, err
	}
	return forward.SharedSecret(m.agreePriv, peerPub)
}

func (m *Manager) ensureActiveLocked() error {
	switch m.state {
	case StateActive:
		return nil
	case StateExpired:
		return ErrSessionExpired
	default:
		if m.wasReset {
			return ErrSessionReset
		}
		return ErrNotInitialized
	}
}

func (m *Manager) expireIfIdleLocked() {
	if m.state != StateActive {
		return
	}
	if m.now().Sub(m.lastSeen) > m.opts.IdleTimeout {
		m.state = StateExpired
	}
}

// Signer is a point-in-time snapshot of the active signing identity. It owns
// its certificate copy and a stable key reference, so a concurrent lifecycle
// reset cannot invalidate an operation that already started.
type Signer struct {
	priv *ecdsa.PrivateKey
	cert pki.Certificate
}

func (s Signer) Key() *ecdsa.PrivateKey { return s.priv }

func (s Signer) Certificate() pki.Certificate { return s.cert.Clone() }

// SignData signs an arbitrary payload with the snapshot key.
func (s Signer) SignData(payload []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, ErrNotInitialized
	}
	return signing.Sign(payload, s.priv)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
