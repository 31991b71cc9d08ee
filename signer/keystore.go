package signer

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
)

// KeyStoreModule signs with an RSA key and certificate loaded from PEM files.
type KeyStoreModule struct {
	privateKey  *rsa.PrivateKey
	certificate *x509.Certificate

	mu   sync.RWMutex
	hash crypto.Hash
}

var _ Module = (*KeyStoreModule)(nil)

func NewKeyStoreModule(privateKeyPath string, certificatePath string) (*KeyStoreModule, error) {
	privateKey, err := loadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, err
	}

	certificate, err := loadCertificate(certificatePath)
	if err != nil {
		return nil, err
	}

	return &KeyStoreModule{
		privateKey:  privateKey,
		certificate: certificate,
		hash:        crypto.SHA256,
	}, nil
}

// SetDigest selects the digest used by Sign. It is validated when signing.
func (k *KeyStoreModule) SetDigest(hash crypto.Hash) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hash = hash
}

func (k *KeyStoreModule) Digest() crypto.Hash {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.hash
}

// Sign returns a detached CMS signature over the source content.
func (k *KeyStoreModule) Sign(ctx context.Context, path string) ([]byte, error) {
	hash := k.Digest()
	if !Supported(hash) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, hash)
	}

	content, err := ReadSource(path)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return signDetached(content, hash, k.certificate, k.privateKey)
}

func (k *KeyStoreModule) Certificate() *x509.Certificate {
	return k.certificate
}

func (k *KeyStoreModule) Public() crypto.PublicKey {
	return k.privateKey.Public()
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path, "PRIVATE KEY")
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key in %s is not an RSA key", path)
	}
	return rsaKey, nil
}

func loadCertificate(path string) (*x509.Certificate, error) {
	block, err := readPEM(path, "CERTIFICATE")
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

func readPEM(path, blockType string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != blockType {
		return nil, fmt.Errorf("%s: expected PEM block %q", path, blockType)
	}
	return block, nil
}
