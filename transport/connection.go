package transport

import "context"

// Connection is the minimal contract the WSMan driver and the process
// backend both satisfy: open once, issue request/response exchanges, close
// once. A Connection does not know about SOAP or PSRP; it moves bytes.
type Connection interface {
	// Open establishes the underlying channel (TCP+TLS handshake for HTTP,
	// process spawn for the process backend). Implementations that have no
	// separate connect phase (plain HTTP) may treat this as a no-op.
	Open(ctx context.Context) error

	// Send issues one request/response exchange, returning the response
	// body. For HTTP this is one POST; for the process backend this writes
	// one length-prefixed frame and reads the next one back.
	Send(ctx context.Context, body []byte) ([]byte, error)

	// Close releases the underlying channel.
	Close() error

	// Endpoint returns a human-readable identifier for logging (URL or
	// executable path).
	Endpoint() string

	// MaxPayloadHint returns the largest body Send can reasonably carry in
	// one exchange, used by the fragmenter to size fragments. Zero means no
	// known limit.
	MaxPayloadHint() int
}
