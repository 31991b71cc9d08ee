package cosign

import (
	"context"
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alapierre/gocosign/signer"
)

type fakeTransport struct {
	mu       sync.Mutex
	requests []*SignRequest
	resp     *SignResponse
	err      error
}

func (f *fakeTransport) DssSign(_ context.Context, req *SignRequest) (*SignResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func succeeding(payload []byte) *fakeTransport {
	return &fakeTransport{resp: &SignResponse{ResultMajor: ResultMajorSuccess, Signature: payload}}
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tmp-signature.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestModuleSign(t *testing.T) {
	payload := []byte("\x30\x80signed-cms\x00\xff")
	transport := succeeding(payload)
	module := New(Config{Credentials: testCreds}, transport)

	assert.Equal(t, crypto.SHA256, module.Digest())

	signed, err := module.Sign(context.Background(), writeSource(t, "to be signed"))
	require.NoError(t, err)
	assert.Equal(t, payload, signed)

	require.Equal(t, 1, transport.calls())
	req := transport.requests[0]

	want := sha256.Sum256([]byte("to be signed"))
	assert.Equal(t, want[:], req.Document.Data)
	assert.Equal(t, FlagHashSigning|FlagSHA256, req.Flags)
	assert.Equal(t, "john@example.com", req.ClaimedIdentity.Name)
	assert.Equal(t, "arx", req.ClaimedIdentity.NameQualifier)
	assert.Equal(t, "secret", req.ClaimedIdentity.LogonPassword)
	assert.Empty(t, req.ConfigurationValues)
}

func TestModuleSetDigest(t *testing.T) {
	transport := succeeding([]byte("sig"))
	module := New(Config{Credentials: testCreds}, transport)
	module.SetDigest(crypto.SHA1)

	_, err := module.Sign(context.Background(), writeSource(t, "to be signed"))
	require.NoError(t, err)

	want := sha1.Sum([]byte("to be signed"))
	assert.Equal(t, want[:], transport.requests[0].Document.Data)
	assert.Equal(t, uint32(0x00100400), transport.requests[0].Flags)
}

func TestModuleSignDeterministicDigest(t *testing.T) {
	transport := succeeding([]byte("sig"))
	module := New(Config{Credentials: testCreds, Digest: crypto.SHA512}, transport)
	source := writeSource(t, "same bytes")

	for i := 0; i < 2; i++ {
		_, err := module.Sign(context.Background(), source)
		require.NoError(t, err)
	}

	require.Equal(t, 2, transport.calls())
	assert.Equal(t, transport.requests[0].Document.Data, transport.requests[1].Document.Data)
	assert.Len(t, transport.requests[0].Document.Data, 64)
}

func TestModuleUnsupportedAlgorithm(t *testing.T) {
	transport := succeeding([]byte("sig"))
	module := New(Config{Credentials: testCreds}, transport)

	for _, hash := range []crypto.Hash{crypto.MD5, crypto.SHA224, crypto.Hash(0)} {
		module.SetDigest(hash)

		_, err := module.Sign(context.Background(), writeSource(t, "x"))
		assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
	}

	// also before the source is looked at
	_, err := module.Sign(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	assert.Zero(t, transport.calls())
}

func TestModuleInvalidInput(t *testing.T) {
	transport := succeeding([]byte("sig"))
	module := New(Config{Credentials: testCreds}, transport)

	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing"), t.TempDir()} {
		_, err := module.Sign(context.Background(), path)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.ErrorIs(t, err, signer.ErrInvalidInput)
	}

	assert.Zero(t, transport.calls())
}

func TestModuleTimestamp(t *testing.T) {
	transport := succeeding([]byte("sig"))
	module := New(Config{Credentials: testCreds}, transport)
	source := writeSource(t, "x")

	module.SetTimestampData("http://zeitstempel.dfn.de", "", "")
	_, err := module.Sign(context.Background(), source)
	require.NoError(t, err)

	module.ClearTimestampData()
	_, err = module.Sign(context.Background(), source)
	require.NoError(t, err)

	require.Equal(t, 2, transport.calls())

	withTS := transport.requests[0].ConfigurationValues
	require.Len(t, withTS, 4)
	assert.Equal(t, ConfUseTimestamp, withTS[0].ID)
	assert.Equal(t, ConfTimestampURL, withTS[1].ID)
	assert.Equal(t, "http://zeitstempel.dfn.de", *withTS[1].StringValue)
	assert.Equal(t, ConfTimestampUser, withTS[2].ID)
	assert.Equal(t, ConfTimestampPWD, withTS[3].ID)

	assert.Empty(t, transport.requests[1].ConfigurationValues)
}

func TestModuleTimestampFromConfig(t *testing.T) {
	ts := &TimestampConfig{URL: "http://tsa.example.com", Username: "u", Password: "p"}
	transport := succeeding([]byte("sig"))
	module := New(Config{Credentials: testCreds, Timestamp: ts}, transport)

	ts.URL = "http://changed.example.com"

	_, err := module.Sign(context.Background(), writeSource(t, "x"))
	require.NoError(t, err)
	assert.Equal(t, "http://tsa.example.com", *transport.requests[0].ConfigurationValues[1].StringValue)
}

func TestModuleRemoteFailure(t *testing.T) {
	transport := &fakeTransport{resp: &SignResponse{
		ResultMajor:   failureMajor,
		ResultMinor:   "urn:oasis:names:tc:dss:1.0:resultminor:AuthenticationError",
		ResultMessage: "Wrong user name or password",
	}}
	module := New(Config{Credentials: testCreds}, transport)

	signed, err := module.Sign(context.Background(), writeSource(t, "x"))
	assert.Nil(t, signed)
	require.ErrorIs(t, err, ErrRemoteSigningFailed)

	var remote *RemoteSigningError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "Wrong user name or password", remote.Message)
	assert.Equal(t, failureMajor, remote.ResultMajor)
	assert.Equal(t, "CoSign webservice returned an error: Wrong user name or password", err.Error())
}

func TestModuleTransportErrorUnchanged(t *testing.T) {
	netErr := errors.New("dial tcp: connection refused")
	transport := &fakeTransport{err: netErr}
	module := New(Config{Credentials: testCreds}, transport)

	_, err := module.Sign(context.Background(), writeSource(t, "x"))
	assert.Same(t, netErr, err)
	assert.NotErrorIs(t, err, ErrRemoteSigningFailed)
}

func TestModuleSignDigest(t *testing.T) {
	transport := succeeding([]byte("sig"))
	module := New(Config{Credentials: testCreds}, transport)

	digest := testDigest("precomputed")
	signed, err := module.SignDigest(context.Background(), digest)
	require.NoError(t, err)
	assert.Equal(t, []byte("sig"), signed)
	assert.Equal(t, digest, transport.requests[0].Document.Data)

	_, err = module.SignDigest(context.Background(), []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 1, transport.calls())
}

func TestModuleConcurrentSign(t *testing.T) {
	transport := succeeding([]byte("sig"))
	module := New(Config{Credentials: testCreds}, transport)
	source := writeSource(t, "x")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				module.SetTimestampData("http://tsa.example.com", "", "")
			}
			_, err := module.Sign(context.Background(), source)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, transport.calls())
}

func TestNewHTTPModuleRequiresEndpoint(t *testing.T) {
	_, err := NewHTTPModule(Config{Credentials: testCreds})
	assert.ErrorIs(t, err, ErrInvalidInput)

	module, err := NewHTTPModule(Config{Endpoint: "https://prime.cosigntrial.com:8080/sapiws/dss.asmx?WSDL", Credentials: testCreds})
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA256, module.Digest())
}
