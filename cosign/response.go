package cosign

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/russellhaering/goxmldsig/etreeutils"
)

// SignResponse is the decoded DssSignResult.
type SignResponse struct {
	ResultMajor   string
	ResultMinor   string
	ResultMessage string

	// Signature holds the signed output; empty unless ResultMajor is Success.
	Signature []byte
}

// Succeeded reports whether the service returned the Success result major.
func (r *SignResponse) Succeeded() bool {
	return r.ResultMajor == ResultMajorSuccess
}

// ParseSignResponse decodes a SOAP DssSign response envelope. A SOAP fault is
// returned as *FaultError.
func ParseSignResponse(data []byte) (*SignResponse, error) {
	resp, _, err := decodeSignResponse(data)
	return resp, err
}

// decodeSignResponse also returns the Result element for diagnostics.
func decodeSignResponse(data []byte) (*SignResponse, *etree.Element, error) {
	body, err := soapBody(data)
	if err != nil {
		return nil, nil, err
	}

	fault, err := parseFault(body)
	if err != nil {
		return nil, nil, err
	}
	if fault != nil {
		return nil, nil, fault
	}

	result := body.FindElement("//" + DssSignResultTag)
	if result == nil {
		return nil, nil, fmt.Errorf("%w: no %s element", ErrMalformedResponse, DssSignResultTag)
	}

	status := result.SelectElement(ResultTag)
	if status == nil {
		return nil, nil, fmt.Errorf("%w: no %s element", ErrMalformedResponse, ResultTag)
	}

	resp := &SignResponse{
		ResultMajor:   childText(status, ResultMajorTag),
		ResultMinor:   childText(status, ResultMinorTag),
		ResultMessage: childText(status, ResultMessageTag),
	}
	if !resp.Succeeded() {
		return resp, status, nil
	}

	payload := result.FindElement("./" + OptionalOutputsTag + "/" + DocumentWithSignatureTag + "/" + DocumentTag + "/" + Base64DataTag)
	if payload == nil {
		payload = result.FindElement("./" + SignatureObjectTag + "/" + Base64SignatureTag)
	}
	if payload == nil {
		return nil, nil, fmt.Errorf("%w: successful result without signed document", ErrMalformedResponse)
	}

	resp.Signature, err = decodeBase64(payload.Text())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return resp, status, nil
}

// IsFault reports whether data is a SOAP envelope carrying a fault.
func IsFault(data []byte) (*FaultError, bool) {
	body, err := soapBody(data)
	if err != nil {
		return nil, false
	}
	fault, err := parseFault(body)
	if err != nil || fault == nil {
		return nil, false
	}
	return fault, true
}

func soapBody(data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedResponse)
	}

	body, err := etreeutils.NSFindOne(root, SoapNamespace, BodyTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body == nil {
		return nil, fmt.Errorf("%w: no SOAP body", ErrMalformedResponse)
	}
	return body, nil
}

func parseFault(body *etree.Element) (*FaultError, error) {
	ctx, err := etreeutils.NSBuildParentContext(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	fault, err := etreeutils.NSFindOneChildCtx(ctx, body, SoapNamespace, FaultTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if fault == nil {
		return nil, nil
	}
	return &FaultError{
		Code:   childText(fault, "faultcode"),
		String: childText(fault, "faultstring"),
	}, nil
}

func childText(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}

func decodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	return base64.StdEncoding.DecodeString(clean)
}
