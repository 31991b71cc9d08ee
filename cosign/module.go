package cosign

import (
	"context"
	"crypto"
	"fmt"
	"sync"

	"github.com/alapierre/gocosign/common"
	"github.com/alapierre/gocosign/signer"
)

// Config is supplied once when the module is created.
type Config struct {
	// Endpoint is the SAPI Web Services address or its WSDL URL.
	Endpoint    string
	Credentials Credentials

	// Digest defaults to SHA-256.
	Digest    crypto.Hash
	Timestamp *TimestampConfig
	TLS       TransportConfig
	Logger    common.Logger
}

// Module is a signature module that delegates signing to a CoSign server.
type Module struct {
	creds     Credentials
	transport Transport
	log       common.Logger

	mu        sync.RWMutex
	digest    crypto.Hash
	timestamp *TimestampConfig
}

var _ signer.Module = (*Module)(nil)

// New creates a module that talks to the service through transport.
func New(config Config, transport Transport) *Module {
	m := &Module{
		creds:     config.Credentials,
		transport: transport,
		log:       common.OrDiscard(config.Logger),
		digest:    config.Digest,
	}
	if m.digest == 0 {
		m.digest = crypto.SHA256
	}
	if config.Timestamp != nil {
		ts := *config.Timestamp
		m.timestamp = &ts
	}
	return m
}

// NewHTTPModule creates a module using the SOAP over HTTP transport.
func NewHTTPModule(config Config) (*Module, error) {
	transport, err := NewHTTPTransport(config.Endpoint, config.TLS, config.Logger)
	if err != nil {
		return nil, err
	}
	return New(config, transport), nil
}

// SetDigest selects the digest algorithm. Only SHA-1, SHA-256, SHA-384 and SHA-512
// are accepted by the service; anything else makes Sign fail.
func (m *Module) SetDigest(hash crypto.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digest = hash
}

func (m *Module) Digest() crypto.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.digest
}

// SetTimestampData makes the service timestamp the signature using the given authority.
func (m *Module) SetTimestampData(url, username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timestamp = &TimestampConfig{URL: url, Username: username, Password: password}
}

func (m *Module) ClearTimestampData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timestamp = nil
}

func (m *Module) snapshot() (crypto.Hash, *TimestampConfig) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.timestamp == nil {
		return m.digest, nil
	}
	ts := *m.timestamp
	return m.digest, &ts
}

// Sign hashes the buffer at path and has the service sign the digest.
func (m *Module) Sign(ctx context.Context, path string) ([]byte, error) {
	hash, ts := m.snapshot()

	if _, err := Flags(hash); err != nil {
		return nil, err
	}

	digest, err := signer.DigestFile(hash, path)
	if err != nil {
		return nil, err
	}

	return m.sign(ctx, hash, ts, digest)
}

// SignDigest has the service sign a digest computed by the caller with Digest().
func (m *Module) SignDigest(ctx context.Context, digest []byte) ([]byte, error) {
	hash, ts := m.snapshot()
	return m.sign(ctx, hash, ts, digest)
}

func (m *Module) sign(ctx context.Context, hash crypto.Hash, ts *TimestampConfig, digest []byte) ([]byte, error) {
	req, err := NewSignRequest(m.creds, hash, digest, ts)
	if err != nil {
		return nil, err
	}

	m.log.Debug("sending DssSign request",
		"user", m.creds.Username,
		"domain", m.creds.Domain,
		"digest", hash.String(),
		"flags", fmt.Sprintf("0x%08x", req.Flags),
		"timestamp", ts != nil)

	resp, err := m.transport.DssSign(ctx, req)
	if err != nil {
		return nil, err
	}

	if !resp.Succeeded() {
		m.log.Info("CoSign rejected signing request", "resultMajor", resp.ResultMajor, "resultMinor", resp.ResultMinor)
		return nil, &RemoteSigningError{
			ResultMajor: resp.ResultMajor,
			ResultMinor: resp.ResultMinor,
			Message:     resp.ResultMessage,
		}
	}

	return resp.Signature, nil
}
