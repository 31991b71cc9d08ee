package cosign

import (
	"errors"
	"fmt"

	"github.com/alapierre/gocosign/signer"
)

var (
	ErrInvalidInput         = signer.ErrInvalidInput
	ErrUnsupportedAlgorithm = signer.ErrUnsupportedAlgorithm

	// ErrRemoteSigningFailed matches every *RemoteSigningError.
	ErrRemoteSigningFailed = errors.New("remote signing failed")

	// ErrMalformedResponse is returned when the response is not a DssSign SOAP response.
	ErrMalformedResponse = errors.New("malformed DssSign response")
)

// RemoteSigningError is returned when the service answers with a result major other than Success.
type RemoteSigningError struct {
	ResultMajor string
	ResultMinor string
	Message     string
}

func (e *RemoteSigningError) Error() string {
	return fmt.Sprintf("CoSign webservice returned an error: %s", e.Message)
}

func (e *RemoteSigningError) Is(target error) bool {
	return target == ErrRemoteSigningFailed
}

// FaultError carries a SOAP fault returned by the endpoint.
type FaultError struct {
	Code   string
	String string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("soap fault %s: %s", e.Code, e.String)
}

// StatusError is returned for a non-2xx HTTP answer without a SOAP fault.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %s", e.Status)
}
