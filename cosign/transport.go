package cosign

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alapierre/gocosign/common"
)

// Responses larger than this are rejected.
const maxResponseSize = 32 * 1024 * 1024

// Transport performs a single DssSign exchange.
type Transport interface {
	DssSign(ctx context.Context, req *SignRequest) (*SignResponse, error)
}

// TransportConfig holds the trust settings of the HTTP transport. Timeout bounds
// the whole exchange; zero means no timeout.
type TransportConfig struct {
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// HTTPTransport posts SOAP 1.1 envelopes to the SAPI Web Services endpoint.
type HTTPTransport struct {
	url    string
	client *http.Client
	log    common.Logger
}

var _ Transport = (*HTTPTransport)(nil)

func NewHTTPTransport(endpoint string, config TransportConfig, log common.Logger) (*HTTPTransport, error) {
	serviceURL, err := ServiceURL(endpoint)
	if err != nil {
		return nil, err
	}

	tlsConfig, err := config.tlsConfig()
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &HTTPTransport{
		url: serviceURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		log: common.OrDiscard(log),
	}, nil
}

// ServiceURL turns a WSDL reference such as ".../dss.asmx?WSDL" into the service address.
func ServiceURL(endpoint string) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", fmt.Errorf("%w: no endpoint configured", ErrInvalidInput)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: invalid endpoint: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported endpoint scheme %q", ErrInvalidInput, u.Scheme)
	}

	if strings.EqualFold(u.RawQuery, "wsdl") {
		u.RawQuery = ""
	}
	return u.String(), nil
}

func (c TransportConfig) tlsConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // explicit opt-in
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA file %s", c.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// DssSign sends the request and decodes the response. Errors from the HTTP client
// are returned as they are.
func (t *HTTPTransport) DssSign(ctx context.Context, req *SignRequest) (*SignResponse, error) {
	payload, err := req.Envelope().WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", `"`+SoapAction+`"`)

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize+1))
	if err != nil {
		return nil, err
	}

	t.log.Debug("DssSign exchange finished", "url", t.url, "status", httpResp.StatusCode, "duration", time.Since(start), "responseBytes", len(body))

	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrMalformedResponse, maxResponseSize)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		if fault, ok := IsFault(body); ok {
			return nil, fault
		}
		return nil, &StatusError{StatusCode: httpResp.StatusCode, Status: httpResp.Status}
	}

	resp, result, err := decodeSignResponse(body)
	if err != nil {
		return nil, err
	}
	if !resp.Succeeded() {
		t.log.Debug("DssSign rejected", "url", t.url, "result", common.XMLString(result))
	}
	return resp, nil
}
