package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
)

// ProcessConnection implements Connection by spawning a local PowerShell
// process in server mode and exchanging the PSRP fragment stream over its
// stdin/stdout, each message framed with a 4-byte big-endian length prefix.
// Stderr is logged, never parsed.
type ProcessConnection struct {
	path string
	args []string
	log  *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	readBuf []byte
}

// NewProcessConnection configures a process-backed Connection. path is
// typically "pwsh" or "powershell"; args defaults to {"-ServerMode"} when
// empty.
func NewProcessConnection(path string, args ...string) *ProcessConnection {
	if len(args) == 0 {
		args = []string{"-ServerMode"}
	}
	return &ProcessConnection{path: path, args: args}
}

// SetLogger attaches a logger for stderr lines and lifecycle events.
func (p *ProcessConnection) SetLogger(logger *slog.Logger) { p.log = logger }

func (p *ProcessConnection) Endpoint() string { return p.path }

// MaxPayloadHint returns 0: the process transport has no envelope-size
// negotiation, so the fragmenter falls back to its own default.
func (p *ProcessConnection) MaxPayloadHint() int { return 0 }

// Open spawns the child process and wires its pipes.
func (p *ProcessConnection) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := exec.CommandContext(ctx, p.path, p.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("transport: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("transport: start %s: %w", p.path, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = bufio.NewReader(stdout)

	go p.logStderr(stderr)

	return nil
}

func (p *ProcessConnection) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if p.log != nil {
			p.log.Debug("process stderr", "line", scanner.Text())
		}
	}
}

// Send writes one length-prefixed PSRP message to stdin and reads the next
// length-prefixed message back from stdout. End of stream on stdout (io.EOF)
// is returned verbatim so the caller's read loop can treat it as the pool
// going Closed.
func (p *ProcessConnection) Send(ctx context.Context, body []byte) ([]byte, error) {
	p.mu.Lock()
	stdin, stdout := p.stdin, p.stdout
	p.mu.Unlock()
	if stdin == nil || stdout == nil {
		return nil, fmt.Errorf("transport: process connection not open")
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := stdin.Write(lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("transport: write frame length: %w", err)
	}
	if _, err := stdin.Write(body); err != nil {
		return nil, fmt.Errorf("transport: write frame body: %w", err)
	}

	if _, err := io.ReadFull(stdout, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	resp := make([]byte, n)
	if _, err := io.ReadFull(stdout, resp); err != nil {
		return nil, fmt.Errorf("transport: read frame body: %w", err)
	}
	return resp, nil
}

// Write sends one length-prefixed frame carrying p to the child's stdin.
// Unlike Send, it does not wait for a reply: runspace.Pool writes one frame
// per outgoing PSRP fragment and reads replies independently through Read,
// so ProcessConnection doubles as the io.ReadWriter a Pool can be driven
// over directly, without the WSMan/SOAP layer in between.
func (p *ProcessConnection) Write(b []byte) (int, error) {
	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return 0, fmt.Errorf("transport: process connection not open")
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(b)))
	if _, err := stdin.Write(lenPrefix[:]); err != nil {
		return 0, fmt.Errorf("transport: write frame length: %w", err)
	}
	if _, err := stdin.Write(b); err != nil {
		return 0, fmt.Errorf("transport: write frame body: %w", err)
	}
	return len(b), nil
}

// Read returns the next length-prefixed frame's bytes from the child's
// stdout, buffering any excess beyond len(p) for the next call. EOF
// propagates verbatim so a Pool's read loop treats child exit as the
// runspace going Closed/Broken.
func (p *ProcessConnection) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.readBuf) > 0 {
		n := copy(b, p.readBuf)
		p.readBuf = p.readBuf[n:]
		p.mu.Unlock()
		return n, nil
	}
	stdout := p.stdout
	p.mu.Unlock()
	if stdout == nil {
		return 0, fmt.Errorf("transport: process connection not open")
	}

	var lenPrefix [4]byte
	if _, err := io.ReadFull(stdout, lenPrefix[:]); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	frame := make([]byte, n)
	if _, err := io.ReadFull(stdout, frame); err != nil {
		return 0, fmt.Errorf("transport: read frame body: %w", err)
	}

	copied := copy(b, frame)
	if copied < len(frame) {
		p.mu.Lock()
		p.readBuf = append(p.readBuf, frame[copied:]...)
		p.mu.Unlock()
	}
	return copied, nil
}

// Close closes stdin (signalling EOF to the child) and waits for exit.
func (p *ProcessConnection) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.cmd == nil {
		return nil
	}
	return p.cmd.Wait()
}
