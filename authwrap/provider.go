package authwrap

import "net/http"

// Provider is the contract transport/http.go delegates to for HTTP
// authentication and, when required, WSMan message-level encryption. It
// plays the same role wsman/auth.Authenticator and wsman/auth.SecurityProvider
// play together, collapsed into the single request/response shape the
// connection abstraction needs.
//
// Implementations are expected to live outside this module: SPNEGO, NTLM,
// Kerberos and CredSSP providers are none of this package's concern. A
// Provider may be stateful across a session (token exchange, encryption
// context) and is not required to be safe for concurrent use by more than
// one Connection.
type Provider interface {
	// Authenticate decorates req with whatever headers/challenge-response
	// round trip the scheme requires and returns the request to send. It
	// may be called more than once per logical operation if the server
	// challenges with 401/Negotiate.
	Authenticate(req *http.Request) (*http.Request, error)

	// Wrap packages body for transmission when RequiresEncryption is true,
	// returning the wrapped bytes and the Content-Type header to send with
	// them (typically "multipart/encrypted" or "multipart/x-multi-encrypted",
	// per the container EncodeSegments in container.go frames). When encryption is
	// not required, implementations may return body unchanged.
	Wrap(body []byte, contentType string) ([]byte, string, error)

	// Unwrap reverses Wrap, given the bytes and Content-Type of a received
	// response, returning the plaintext SOAP body.
	Unwrap(body []byte, contentType string) ([]byte, error)

	// RequiresEncryption reports whether Wrap/Unwrap must be applied to
	// every request/response. SPNEGO and Kerberos over plain HTTP require
	// it; Basic/NTLM over TLS do not.
	RequiresEncryption() bool

	// ChannelBindingToken returns the TLS channel-binding token ("tls-server-end-point"
	// hash) to present during authentication over HTTPS, or nil when not
	// applicable (plain HTTP, or a scheme that does not bind channels).
	ChannelBindingToken() []byte
}

// NoneProvider is a Provider that performs no authentication and no
// encryption. It is the default for anonymous WSMan endpoints and the
// provider the demo and tests use against a loopback listener.
type NoneProvider struct{}

var _ Provider = NoneProvider{}

func (NoneProvider) Authenticate(req *http.Request) (*http.Request, error) { return req, nil }

func (NoneProvider) Wrap(body []byte, contentType string) ([]byte, string, error) {
	return body, contentType, nil
}

func (NoneProvider) Unwrap(body []byte, contentType string) ([]byte, error) {
	return body, nil
}

func (NoneProvider) RequiresEncryption() bool { return false }

func (NoneProvider) ChannelBindingToken() []byte { return nil }
