package runspace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/smnsjas/go-psrpcore/clixml"
	"github.com/smnsjas/go-psrpcore/fragment"
	internallog "github.com/smnsjas/go-psrpcore/internal/log"
	"github.com/smnsjas/go-psrpcore/messages"
	"github.com/smnsjas/go-psrpcore/serialization"
)

// protocolVersion is the PSRP protocol version this module negotiates.
// [MS-PSRP] requires the server to support >= 2.1; this module targets the
// same baseline pypsrp and go-psrp target.
const protocolVersion = "2.3"

// defaultFragmentSize is the blob budget the pool uses for every message it
// fragments: the handshake and all later pool-scoped and pipeline-scoped
// messages alike. It is not derived from a WSMan MaxEnvelopeSize, and no
// other package refragments: wsman.Shell forwards the bytes it is given as
// written.
const defaultFragmentSize = 32 * 1024

// VersionMismatchError reports a server protocol version below the minimum
// this module supports.
type VersionMismatchError struct {
	ServerVersion string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("runspace: server protocol version %q is below the minimum supported (2.1)", e.ServerVersion)
}

// PipelineHandle is the subset of *pipeline.Pipeline behavior the pool needs
// in order to create, route messages to, and track a pipeline. It is
// declared here rather than importing package pipeline directly: Pipeline
// holds a *Pool back-reference, so Pool cannot import pipeline in turn
// without a cycle. Package pipeline registers a constructor via
// RegisterPipelineFactory so CreatePipeline can still return a concrete
// *pipeline.Pipeline to callers.
type PipelineHandle interface {
	ID() uuid.UUID
	SkipInvokeSend()
	GetCreatePipelineDataWithID(msgID uint64) ([]byte, error)
	Invoke(ctx context.Context) error
	HandleMessage(msg *messages.Message) error
	Done() <-chan struct{}
	Output() <-chan *messages.Message
	Error() <-chan *messages.Message
	Warning() <-chan *messages.Message
	Verbose() <-chan *messages.Message
	Debug() <-chan *messages.Message
	Progress() <-chan *messages.Message
	Information() <-chan *messages.Message
	Wait() error
	Fail(err error)
	MarkReconnected()
}

var pipelineFactory func(pool *Pool, id uuid.UUID, script string) PipelineHandle

// RegisterPipelineFactory installs the constructor package pipeline uses to
// build a *pipeline.Pipeline from within this package's CreatePipeline and
// AdoptPipeline logic. Called from pipeline's init().
func RegisterPipelineFactory(f func(pool *Pool, id uuid.UUID, script string) PipelineHandle) {
	pipelineFactory = f
}

// HostCall is a RUNSPACEPOOL_HOST_CALL invocation, [MS-PSRP] §2.2.3.17.
type HostCall struct {
	CallID int64
	Method int32
	Params []clixml.Value
}

// HostCallback answers a pool-scoped host call. Return ok=false to indicate
// a void method (no response sent); returning a non-nil err sends a host
// method exception instead of a method return value.
type HostCallback func(call HostCall) (result clixml.Value, ok bool, err error)

// SecurityEventCallback receives best-effort notifications about
// security-relevant protocol events (capability negotiation outcome, key
// exchange), for audit logging by the embedder.
type SecurityEventCallback func(event string, details map[string]any)

// Pool is the client side of a PSRP runspace pool.
type Pool struct {
	mu sync.Mutex

	id        uuid.UUID
	transport io.ReadWriter

	state   State
	lastErr error

	// SkipHandshakeSend, when true, tells Open not to write the handshake
	// fragments itself because the caller already delivered them out of
	// band (WSMan's Create carries them in creationXml).
	SkipHandshakeSend bool

	minRunspaces int
	maxRunspaces int
	available    int
	total        int

	fragmenter   *fragment.Fragmenter
	defragmenter *fragment.Defragmenter

	pipelines map[uuid.UUID]PipelineHandle

	dispatchOnce sync.Once
	ready        chan struct{}
	readyOnce    sync.Once
	openErr      error

	availCond *sync.Cond

	securityCB SecurityEventCallback
	hostCB     HostCallback
	logger     *slog.Logger
	debugLog   bool

	nextCallID int64

	pendingKeyPair *serialization.SessionKeyPair
	sessionKey     *serialization.SessionKey

	pendingCalls map[int64]chan int64
}

// New constructs a Pool bound to transport (a duplex byte stream to the
// remote runspace pool, whatever its underlying backend) with the given
// pool id.
func New(transport io.ReadWriter, id uuid.UUID) *Pool {
	p := &Pool{
		id:           id,
		transport:    transport,
		state:        StateBeforeOpen,
		fragmenter:   fragment.NewFragmenter(),
		defragmenter: fragment.NewDefragmenter(),
		pipelines:    make(map[uuid.UUID]PipelineHandle),
		ready:        make(chan struct{}),
		minRunspaces: 1,
		maxRunspaces: 1,
		logger:       slog.Default(),
		pendingCalls: make(map[int64]chan int64),
	}
	p.availCond = sync.NewCond(&p.mu)
	return p
}

// ID returns the runspace pool's identifier.
func (p *Pool) ID() uuid.UUID { return p.id }

// State returns the pool's current lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetSecurityEventCallback registers a best-effort audit hook.
func (p *Pool) SetSecurityEventCallback(cb SecurityEventCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.securityCB = cb
}

// SetHostCallback registers the handler for RUNSPACEPOOL_HOST_CALL
// messages. Without one, no host response is sent for any host call: void
// methods and methods expecting a return value alike get no reply, and no
// "no host configured" error record is produced.
func (p *Pool) SetHostCallback(cb HostCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hostCB = cb
}

// SetSlogLogger replaces the pool's structured logger. The logger's handler
// is wrapped in internal/log.RedactingHandler regardless of what the caller
// passed in, so session-key and SecureString material can never reach a
// sink through pool debug logging even if the caller forgets to redact.
func (p *Pool) SetSlogLogger(logger *slog.Logger) error {
	if logger == nil {
		return fmt.Errorf("runspace: nil logger")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = slog.New(internallog.NewRedactingHandler(logger.Handler()))
	return nil
}

// EnableDebugLogging turns on verbose per-message tracing at debug level.
func (p *Pool) EnableDebugLogging() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.debugLog = true
}

// SetMessageID seeds the fragmenter's object-id counter, so object ids stay
// correlated with a caller-tracked call-id sequence across reconnects.
func (p *Pool) SetMessageID(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fragmenter.SetNextObjectID(id)
}

func (p *Pool) emitSecurityEvent(event string, details map[string]any) {
	p.mu.Lock()
	cb := p.securityCB
	p.mu.Unlock()
	if cb != nil {
		cb(event, details)
	}
}

func (p *Pool) logDebug(msg string, args ...any) {
	p.mu.Lock()
	logger, on := p.logger, p.debugLog
	p.mu.Unlock()
	if on && logger != nil {
		logger.Debug(msg, args...)
	}
}

// send fragments and writes a pool-scoped message (pipeline id is the nil
// UUID) to the transport.
func (p *Pool) send(msgType messages.MessageType, payload []byte) error {
	msg := &messages.Message{
		Destination: messages.DestinationServer,
		Type:        msgType,
		RunspaceID:  p.id,
		Data:        payload,
	}
	return p.writeMessage(msg)
}

func (p *Pool) writeMessage(msg *messages.Message) error {
	frags, err := p.fragmenter.Fragment(msg.Encode(), defaultFragmentSize)
	if err != nil {
		return err
	}
	for _, f := range frags {
		if _, err := p.transport.Write(f.Encode()); err != nil {
			return fmt.Errorf("runspace: write fragment: %w", err)
		}
	}
	return nil
}

// nextCall allocates a monotonic call id for SET_MIN_RUNSPACES /
// SET_MAX_RUNSPACES / GET_AVAILABLE_RUNSPACES correlation.
func (p *Pool) nextCall() int64 {
	return atomic.AddInt64(&p.nextCallID, 1)
}

// GetActivePipelineIDs returns the ids of pipelines currently tracked by
// this pool.
func (p *Pool) GetActivePipelineIDs() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(p.pipelines))
	for id := range p.pipelines {
		ids = append(ids, id)
	}
	return ids
}

// RunspaceUtilization reports (available, total) runspaces as last reported
// by the server's RUNSPACE_AVAILABILITY responses.
func (p *Pool) RunspaceUtilization() (available, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available, p.total
}

// InitializeAvailabilityIfNeeded seeds the availability counters from the
// negotiated min/max runspace counts before the server has sent its first
// RUNSPACE_AVAILABILITY message.
func (p *Pool) InitializeAvailabilityIfNeeded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == 0 {
		p.total = p.maxRunspaces
		p.available = p.maxRunspaces
	}
}

// WaitForAvailability blocks until at least n runspaces are available or ctx
// is done.
func (p *Pool) WaitForAvailability(ctx context.Context, n int) error {
	done := make(chan struct{})
	go func() {
		p.mu.Lock()
		for p.available < n && p.state != StateBroken && p.state != StateClosed {
			p.availCond.Wait()
		}
		p.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		p.mu.Lock()
		state := p.state
		p.mu.Unlock()
		if state == StateBroken || state == StateClosed {
			return fmt.Errorf("runspace: pool %s while waiting for availability", state)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) setAvailability(available, total int) {
	p.mu.Lock()
	p.available = available
	p.total = total
	p.mu.Unlock()
	p.availCond.Broadcast()
}

// AdoptPipeline registers an already-constructed pipeline handle (typically
// built with pipeline.NewWithID against a pipeline id recovered from a
// reconnect) so incoming messages route to it.
func (p *Pool) AdoptPipeline(h PipelineHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.pipelines[h.ID()]; exists {
		return fmt.Errorf("runspace: pipeline %s already adopted", h.ID())
	}
	p.pipelines[h.ID()] = h
	return nil
}

// CreatePipeline builds a new pipeline bound to this pool running script.
func (p *Pool) CreatePipeline(script string) (PipelineHandle, error) {
	if pipelineFactory == nil {
		return nil, fmt.Errorf("runspace: no pipeline factory registered; import package pipeline")
	}
	h := pipelineFactory(p, uuid.New(), script)
	p.mu.Lock()
	p.pipelines[h.ID()] = h
	p.mu.Unlock()
	return h, nil
}

// forgetPipeline drops a completed pipeline from the routing table.
func (p *Pool) forgetPipeline(id uuid.UUID) {
	p.mu.Lock()
	delete(p.pipelines, id)
	p.mu.Unlock()
}

// SendPipelineMessage fragments and writes a pipeline-scoped message over
// the pool's transport. Used by pipeline.Pipeline when the pool (not a
// per-pipeline WSMan command transport) owns the wire.
func (p *Pool) SendPipelineMessage(msg *messages.Message) error {
	return p.writeMessage(msg)
}

// FragmentMessage fragments msg using this pool's object-id sequence and
// returns the concatenated wire bytes, without writing them anywhere. The
// WSMan driver uses this to build a Command body (or creationXml-style
// payload) for a pipeline, keeping fragment object ids coherent across
// every message the pool and its pipelines send.
func (p *Pool) FragmentMessage(msg *messages.Message) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	frags, err := p.fragmenter.Fragment(msg.Encode(), defaultFragmentSize)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, f := range frags {
		out = append(out, f.Encode()...)
	}
	return out, nil
}

// Serializer returns a fresh CLIXML serializer, so callers building message
// payloads share this package's namespace/version constants.
func (p *Pool) Serializer() *serialization.Serializer { return serialization.NewSerializer() }
