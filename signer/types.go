package signer

import (
	"context"
	"errors"
)

var (
	// ErrInvalidInput is returned when the source to be signed cannot be read.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedAlgorithm is returned for digest algorithms outside the supported set.
	ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")
)

// Module is the contract a signing host calls to obtain signed bytes.
type Module interface {

	// Sign reads the buffer prepared by the host at path and returns the signature
	// produced for it. Nothing is retained between calls.
	Sign(ctx context.Context, path string) ([]byte, error)
}
