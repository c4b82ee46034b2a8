package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-psrpcore/authwrap"
)

func TestHTTPConnectionSendRoundTrips(t *testing.T) {
	var gotContentType, gotAcceptEncoding string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAcceptEncoding = r.Header.Get("Accept-Encoding")
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "request-body", string(body))
		w.Write([]byte("response-body"))
	}))
	defer server.Close()

	conn := NewHTTPConnection(server.URL, nil)
	require.NoError(t, conn.Open(context.Background()))

	resp, err := conn.Send(context.Background(), []byte("request-body"))
	require.NoError(t, err)
	assert.Equal(t, "response-body", string(resp))
	assert.Equal(t, ContentTypeSOAP, gotContentType)
	assert.Equal(t, "identity", gotAcceptEncoding)
}

func TestHTTPConnectionUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	conn := NewHTTPConnection(server.URL, nil)
	_, err := conn.Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHTTPConnectionWithTimeout(t *testing.T) {
	conn := NewHTTPConnection("http://example.invalid", nil, WithTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, conn.client.Timeout)
}

type recordingProvider struct {
	wrapped   bool
	unwrapped bool
}

func (p *recordingProvider) Authenticate(req *http.Request) (*http.Request, error) {
	req.Header.Set("Authorization", "Fake token")
	return req, nil
}

func (p *recordingProvider) Wrap(body []byte, contentType string) ([]byte, string, error) {
	p.wrapped = true
	return append([]byte("wrapped:"), body...), "multipart/encrypted", nil
}

func (p *recordingProvider) Unwrap(body []byte, contentType string) ([]byte, error) {
	p.unwrapped = true
	return body[len("wrapped:"):], nil
}

func (p *recordingProvider) RequiresEncryption() bool { return true }
func (p *recordingProvider) ChannelBindingToken() []byte { return nil }

func TestHTTPConnectionDelegatesWrapAndAuth(t *testing.T) {
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "wrapped:hello", string(body))
		w.Write([]byte("wrapped:reply"))
	}))
	defer server.Close()

	provider := &recordingProvider{}
	conn := NewHTTPConnection(server.URL, provider)

	resp, err := conn.Send(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "reply", string(resp))
	assert.Equal(t, "Fake token", gotAuth)
	assert.Equal(t, "multipart/encrypted", gotContentType)
	assert.True(t, provider.wrapped)
	assert.True(t, provider.unwrapped)
}

var _ authwrap.Provider = (*recordingProvider)(nil)
