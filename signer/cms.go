package signer

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"

	"github.com/digitorus/pkcs7"
)

var cmsDigestAlgorithms = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA1:   pkcs7.OIDDigestAlgorithmSHA1,
	crypto.SHA256: pkcs7.OIDDigestAlgorithmSHA256,
	crypto.SHA384: pkcs7.OIDDigestAlgorithmSHA384,
	crypto.SHA512: pkcs7.OIDDigestAlgorithmSHA512,
}

// signDetached returns a DER encoded CMS SignedData (RFC 3369) over content. The
// content itself is left out; the signer certificate is embedded.
func signDetached(content []byte, hash crypto.Hash, cert *x509.Certificate, key crypto.Signer) ([]byte, error) {
	oid, ok := cmsDigestAlgorithms[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, hash)
	}
	if cert == nil {
		return nil, errors.New("no signing certificate")
	}

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("failed to create signed data: %w", err)
	}
	sd.SetDigestAlgorithm(oid)

	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("signing error: %w", err)
	}
	sd.Detach()

	signed, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("failed to encode signed data: %w", err)
	}
	return signed, nil
}

// DigestInfo prefixes (RFC 8017 section 9.2) for keys that only do raw PKCS#1 v1.5 padding.
var digestInfoPrefixes = map[crypto.Hash][]byte{
	crypto.SHA1:   {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	crypto.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	crypto.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	crypto.SHA512: {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

// rawRSAKey is a crypto.Signer over a key that signs complete DigestInfo blocks,
// such as a token key used with CKM_RSA_PKCS.
type rawRSAKey struct {
	public crypto.PublicKey
	sign   func(digestInfo []byte) ([]byte, error)
}

func (k rawRSAKey) Public() crypto.PublicKey {
	return k.public
}

func (k rawRSAKey) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	hash := opts.HashFunc()
	prefix, ok := digestInfoPrefixes[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, hash)
	}
	if len(digest) != hash.Size() {
		return nil, fmt.Errorf("%w: digest length %d does not match %v", ErrInvalidInput, len(digest), hash)
	}

	digestInfo := make([]byte, 0, len(prefix)+len(digest))
	digestInfo = append(digestInfo, prefix...)
	digestInfo = append(digestInfo, digest...)
	return k.sign(digestInfo)
}
