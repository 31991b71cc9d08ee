package signer

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"io"
	"os"
	"strings"
)

var digestNames = map[string]crypto.Hash{
	"sha1":    crypto.SHA1,
	"sha-1":   crypto.SHA1,
	"sha256":  crypto.SHA256,
	"sha-256": crypto.SHA256,
	"sha384":  crypto.SHA384,
	"sha-384": crypto.SHA384,
	"sha512":  crypto.SHA512,
	"sha-512": crypto.SHA512,
}

// Supported reports whether hash is one of SHA-1, SHA-256, SHA-384 or SHA-512.
func Supported(hash crypto.Hash) bool {
	switch hash {
	case crypto.SHA1, crypto.SHA256, crypto.SHA384, crypto.SHA512:
		return true
	}
	return false
}

// ParseDigest resolves a digest name such as "sha256" or "SHA-512".
func ParseDigest(name string) (crypto.Hash, error) {
	hash, ok := digestNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
	return hash, nil
}

// DigestFile hashes the content of the file at path.
func DigestFile(hash crypto.Hash, path string) ([]byte, error) {
	if !Supported(hash) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, hash)
	}

	f, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := hash.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidInput, path, err)
	}
	return h.Sum(nil), nil
}

// ReadSource returns the whole content of the file at path.
func ReadSource(path string) ([]byte, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidInput, path, err)
	}
	return data, nil
}

func openSource(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty source path", ErrInvalidInput)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: signature source cannot be read: %v", ErrInvalidInput, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: signature source %s is a directory", ErrInvalidInput, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: signature source cannot be read: %v", ErrInvalidInput, err)
	}
	return f, nil
}
