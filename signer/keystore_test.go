package signer

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyStore(t *testing.T) (keyPath, certPath string) {
	t.Helper()
	dir := t.TempDir()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPath = filepath.Join(dir, "private_key.pem")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	template := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "Test Signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	certPath = filepath.Join(dir, "certificate.pem")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}), 0o600))

	return keyPath, certPath
}

func TestKeyStoreModule(t *testing.T) {
	keyPath, certPath := writeKeyStore(t)

	module, err := NewKeyStoreModule(keyPath, certPath)
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA256, module.Digest())
	assert.Equal(t, "Test Signer", module.Certificate().Subject.CommonName)

	module.SetDigest(crypto.SHA512)
	source := writeSource(t, "Hello World!")

	signed, err := module.Sign(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, byte(0x30), signed[0], "DER SEQUENCE")

	p7, err := pkcs7.Parse(signed)
	require.NoError(t, err)
	assert.Empty(t, p7.Content, "detached")
	require.Len(t, p7.Certificates, 1)
	assert.Equal(t, module.Certificate().Raw, p7.Certificates[0].Raw)
	require.Len(t, p7.Signers, 1)
	assert.True(t, p7.Signers[0].DigestAlgorithm.Algorithm.Equal(pkcs7.OIDDigestAlgorithmSHA512))

	p7.Content = []byte("Hello World!")
	assert.NoError(t, p7.Verify())

	p7.Content = []byte("Hello World?")
	assert.Error(t, p7.Verify())
}

func TestKeyStoreModuleErrors(t *testing.T) {
	keyPath, certPath := writeKeyStore(t)

	module, err := NewKeyStoreModule(keyPath, certPath)
	require.NoError(t, err)

	_, err = module.Sign(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	module.SetDigest(crypto.MD5)
	_, err = module.Sign(context.Background(), writeSource(t, "x"))
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = NewKeyStoreModule(certPath, certPath)
	assert.Error(t, err)

	_, err = NewKeyStoreModule(keyPath, keyPath)
	assert.Error(t, err)
}

func TestKeyStoreModuleCanceled(t *testing.T) {
	keyPath, certPath := writeKeyStore(t)

	module, err := NewKeyStoreModule(keyPath, certPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = module.Sign(ctx, writeSource(t, "x"))
	assert.ErrorIs(t, err, context.Canceled)
}
