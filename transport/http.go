package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/smnsjas/go-psrpcore/authwrap"
)

// ErrUnauthorized is returned when the server responds with 401 Unauthorized
// after the provider's Authenticate round trip has been exhausted.
var ErrUnauthorized = errors.New("transport: authentication failed (401 Unauthorized)")

const (
	// ContentTypeSOAP is the content type for unwrapped SOAP 1.2 messages.
	ContentTypeSOAP = "application/soap+xml;charset=UTF-8"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	defaultBufferSize = 32 * 1024
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, defaultBufferSize))
	},
}

func getBuffer() *bytes.Buffer { return bufferPool.Get().(*bytes.Buffer) }

func putBuffer(buf *bytes.Buffer) {
	buf.Reset()
	bufferPool.Put(buf)
}

func readAllPooled(r io.Reader) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// HTTPConnection implements Connection by POSTing WSMan SOAP envelopes to a
// WinRM endpoint. Authentication and, when required, message encryption are
// delegated to an authwrap.Provider; this type never branches on auth
// scheme itself.
type HTTPConnection struct {
	endpoint string
	client   *http.Client
	provider authwrap.Provider
}

// HTTPOption configures an HTTPConnection.
type HTTPOption func(*HTTPConnection)

// NewHTTPConnection creates an HTTP-backed Connection to endpoint. provider
// may be nil, in which case authwrap.NoneProvider{} is used (no auth, no
// encryption).
func NewHTTPConnection(endpoint string, provider authwrap.Provider, opts ...HTTPOption) *HTTPConnection {
	if provider == nil {
		provider = authwrap.NoneProvider{}
	}
	c := &HTTPConnection{
		endpoint: endpoint,
		provider: provider,
		client: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				DisableKeepAlives:   false,
				DisableCompression:  true,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPConnection) { c.client.Timeout = d }
}

// WithInsecureSkipVerify disables TLS certificate verification. Testing
// only.
func WithInsecureSkipVerify(skip bool) HTTPOption {
	return func(c *HTTPConnection) {
		transport := c.ensureHTTPTransport()
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		transport.TLSClientConfig.InsecureSkipVerify = skip
	}
}

// WithTLSConfig sets a custom TLS configuration, enforcing TLS 1.2 minimum.
func WithTLSConfig(cfg *tls.Config) HTTPOption {
	return func(c *HTTPConnection) {
		if cfg.MinVersion < tls.VersionTLS12 {
			cfg.MinVersion = tls.VersionTLS12
		}
		c.ensureHTTPTransport().TLSClientConfig = cfg
	}
}

func (c *HTTPConnection) ensureHTTPTransport() *http.Transport {
	transport, ok := c.client.Transport.(*http.Transport)
	if !ok {
		transport = &http.Transport{}
		c.client.Transport = transport
	}
	return transport
}

// Open is a no-op for HTTP: the client dials lazily on first Send.
func (c *HTTPConnection) Open(ctx context.Context) error { return nil }

// Close releases idle connections.
func (c *HTTPConnection) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPConnection) Endpoint() string { return c.endpoint }

// MaxPayloadHint matches the MaxEnvelopeSize (153600) that wsman.Client
// writes into the headers of its Create, Command, Send, Receive and Connect
// requests.
func (c *HTTPConnection) MaxPayloadHint() int { return 153600 }

// Send wraps, authenticates, and POSTs body, returning the unwrapped
// response. Accept-Encoding is forced to identity: WSMan responses are
// already compact CLIXML/SOAP text and compressing them would only need to
// be undone before the fault/fragment parser can run.
func (c *HTTPConnection) Send(ctx context.Context, body []byte) ([]byte, error) {
	contentType := ContentTypeSOAP
	wireBody := body
	if c.provider.RequiresEncryption() {
		var err error
		wireBody, contentType, err = c.provider.Wrap(body, contentType)
		if err != nil {
			return nil, fmt.Errorf("transport: wrap request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(wireBody))
	if err != nil {
		return nil, fmt.Errorf("transport: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept-Encoding", "identity")

	req, err = c.provider.Authenticate(req)
	if err != nil {
		return nil, fmt.Errorf("transport: authenticate: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := readAllPooled(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("transport: access denied (403 Forbidden)")
	}
	if resp.StatusCode >= 400 {
		preview := string(respBody)
		if len(preview) > 3000 {
			preview = preview[:3000] + "..."
		}
		return nil, fmt.Errorf("transport: HTTP %d: %s", resp.StatusCode, preview)
	}

	if c.provider.RequiresEncryption() {
		return c.provider.Unwrap(respBody, resp.Header.Get("Content-Type"))
	}
	return respBody, nil
}
