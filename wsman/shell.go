package wsman

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
)

// Shell adapts the request/response WSMan Create/Send/Receive actions into
// an io.ReadWriter, so runspace.Pool (and pipeline.Pipeline, which shares the
// pool's transport) can drive a PSRP session over WSMan the same way they
// drive a raw process pipe. All PSRP traffic - pool-scoped and
// pipeline-scoped alike - travels the shell-level stream with no CommandId:
// MS-WSMV permits Send/Receive against the Shell resource directly, and a
// single stream keeps fragment ordering simple. A driver wanting true
// per-pipeline CommandId multiplexing would issue Command per pipeline and
// demultiplex Receive by CommandId instead; this module does not do that.
type Shell struct {
	client  *Client
	options map[string]string

	mu      sync.Mutex
	epr     *EndpointReference
	pending []byte // creationXml fragments buffered before Open
	readBuf []byte

	closed bool
}

// NewShell creates a Shell bound to client. options are additional OptionSet
// entries for Create (e.g. "protocolversion").
func NewShell(client *Client, options map[string]string) *Shell {
	return &Shell{client: client, options: options}
}

// Write buffers or forwards PSRP fragment bytes. Before Open has run, writes
// accumulate into the creationXml payload Open sends with Create; a
// runspace.Pool with SkipHandshakeSend=false writes its handshake fragments
// this way as its very first Write, matching the contract
// runspace.Pool.Open documents for transports that want the handshake
// delivered out of band via GetHandshakeFragments instead should set
// SkipHandshakeSend and call Open(ctx, creationXML) directly.
func (s *Shell) Write(p []byte) (int, error) {
	s.mu.Lock()
	epr := s.epr
	s.mu.Unlock()

	if epr == nil {
		s.mu.Lock()
		s.pending = append(s.pending, p...)
		s.mu.Unlock()
		return len(p), nil
	}

	if err := s.client.Send(context.Background(), epr, "", "stdin", p); err != nil {
		return 0, fmt.Errorf("wsman: shell write: %w", err)
	}
	return len(p), nil
}

// Read blocks, polling Receive, until fragment bytes are available or the
// shell is closed.
func (s *Shell) Read(p []byte) (int, error) {
	s.mu.Lock()
	epr := s.epr
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, io.EOF
	}
	if epr == nil {
		return 0, fmt.Errorf("wsman: shell not open")
	}

	for {
		s.mu.Lock()
		if len(s.readBuf) > 0 {
			n := copy(p, s.readBuf)
			s.readBuf = s.readBuf[n:]
			s.mu.Unlock()
			return n, nil
		}
		if s.closed {
			s.mu.Unlock()
			return 0, io.EOF
		}
		s.mu.Unlock()

		result, err := s.client.Receive(context.Background(), epr, "")
		if err != nil {
			return 0, fmt.Errorf("wsman: shell read: %w", err)
		}
		if len(result.Stdout) == 0 {
			if result.Done {
				s.mu.Lock()
				s.closed = true
				s.mu.Unlock()
				return 0, io.EOF
			}
			continue
		}

		s.mu.Lock()
		s.readBuf = append(s.readBuf, result.Stdout...)
		n := copy(p, s.readBuf)
		s.readBuf = s.readBuf[n:]
		s.mu.Unlock()
		return n, nil
	}
}

// Open issues the WSMan Create carrying any fragments already buffered by
// Write (or explicitly passed in creationXML, for callers that deliver the
// handshake out of band via runspace.Pool.GetHandshakeFragments) as
// creationXml.
func (s *Shell) Open(ctx context.Context, creationXML []byte) error {
	s.mu.Lock()
	if creationXML == nil {
		creationXML = s.pending
	}
	s.pending = nil
	s.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(creationXML)
	epr, err := s.client.Create(ctx, s.options, encoded)
	if err != nil {
		return fmt.Errorf("wsman: open shell: %w", err)
	}

	s.mu.Lock()
	s.epr = epr
	s.mu.Unlock()
	return nil
}

// Disconnect issues WSMan Disconnect, leaving the shell alive on the server.
func (s *Shell) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	epr := s.epr
	s.mu.Unlock()
	if epr == nil {
		return fmt.Errorf("wsman: shell not open")
	}
	return s.client.Disconnect(ctx, epr)
}

// Reconnect resumes a shell this same client previously disconnected.
func (s *Shell) Reconnect(ctx context.Context, shellID string) error {
	return s.client.Reconnect(ctx, shellID)
}

// Connect attaches to a shell disconnected by a different client, sending
// connectXML (base64 CONNECT_RUNSPACEPOOL fragments) and returning the
// decoded response fragments.
func (s *Shell) Connect(ctx context.Context, shellID string, connectXML []byte) ([]byte, error) {
	resp, err := s.client.Connect(ctx, shellID, base64.StdEncoding.EncodeToString(connectXML))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.epr = &EndpointReference{ResourceURI: ResourceURIPowerShell, Selectors: []Selector{{Name: "ShellId", Value: shellID}}}
	s.mu.Unlock()
	return resp, nil
}

// Delete closes the shell on the server and marks Read as exhausted.
func (s *Shell) Delete(ctx context.Context) error {
	s.mu.Lock()
	epr := s.epr
	s.closed = true
	s.mu.Unlock()
	if epr == nil {
		return nil
	}
	return s.client.Delete(ctx, epr)
}

// ListShells enumerates the PowerShell-resource shells visible on client's
// endpoint, the WSMan-level half of `get_runspace_pools(connection)`
// (spec scenario F): a fresh connection discovers shell ids left behind by
// disconnected sessions, each of which NewShell + Connect can then attach
// to.
func ListShells(ctx context.Context, client *Client) ([]string, error) {
	return client.Enumerate(ctx)
}

// ShellID returns the server-assigned ShellId selector, once Open/Connect
// has completed.
func (s *Shell) ShellID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epr == nil {
		return ""
	}
	for _, sel := range s.epr.Selectors {
		if sel.Name == "ShellId" {
			return sel.Value
		}
	}
	return ""
}
