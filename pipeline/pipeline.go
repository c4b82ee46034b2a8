package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/smnsjas/go-psrpcore/clixml"
	"github.com/smnsjas/go-psrpcore/messages"
	"github.com/smnsjas/go-psrpcore/runspace"
	"github.com/smnsjas/go-psrpcore/serialization"
)

func init() {
	runspace.RegisterPipelineFactory(func(pool *runspace.Pool, id uuid.UUID, script string) runspace.PipelineHandle {
		p := NewWithID(pool, pool.ID(), id)
		p.Builder.AddScript(script)
		return p
	})
}

const streamBuffer = 256

// InvalidOperationError reports a caller-side misuse of the pipeline API
// that the protocol layer itself would never produce: a nested pipeline
// request against a pipeline that doesn't support one, for example. It is
// distinct from fragment.ProtocolError and the transport/serialization
// error kinds, which all report the wire saying something unexpected;
// InvalidOperationError reports the caller asking for something the wire
// was never going to be told to do.
type InvalidOperationError struct {
	Message string
}

func (e *InvalidOperationError) Error() string { return "pipeline: " + e.Message }

// Pipeline is the client side of one PSRP pipeline invocation.
type Pipeline struct {
	Builder

	pool *runspace.Pool
	id   uuid.UUID

	mu             sync.Mutex
	state          State
	err            error
	hadErrors      bool
	skipInvokeSend bool
	isNested       bool
	reconnected    bool

	done     chan struct{}
	doneOnce sync.Once

	output      chan *messages.Message
	errStream   chan *messages.Message
	warning     chan *messages.Message
	verbose     chan *messages.Message
	debug       chan *messages.Message
	progress    chan *messages.Message
	information chan *messages.Message

	stopFunc func(context.Context) error
}

// New creates a pipeline bound to pool, identified by a freshly generated id.
func New(pool *runspace.Pool, script string) *Pipeline {
	p := NewWithID(pool, pool.ID(), uuid.New())
	if script != "" {
		p.Builder.AddScript(script)
	}
	return p
}

// NewWithID creates a pipeline with an explicit pipeline id: used directly
// by the pool's registered factory for ordinary top-level pipelines, by a
// caller adopting a pipeline recovered from a reconnect (followed by
// MarkReconnected), and by CreateNestedPipeline for a nested child. The
// runspace id parameter exists for symmetry with the wire message shape;
// the pipeline always addresses its owning pool directly for the id it
// actually sends.
func NewWithID(pool *runspace.Pool, _ uuid.UUID, pipelineID uuid.UUID) *Pipeline {
	return &Pipeline{
		pool:        pool,
		id:          pipelineID,
		state:       StateNotStarted,
		done:        make(chan struct{}),
		output:      make(chan *messages.Message, streamBuffer),
		errStream:   make(chan *messages.Message, streamBuffer),
		warning:     make(chan *messages.Message, streamBuffer),
		verbose:     make(chan *messages.Message, streamBuffer),
		debug:       make(chan *messages.Message, streamBuffer),
		progress:    make(chan *messages.Message, streamBuffer),
		information: make(chan *messages.Message, streamBuffer),
	}
}

// ID returns the pipeline's identifier.
func (p *Pipeline) ID() uuid.UUID { return p.id }

// State returns the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SkipInvokeSend tells Invoke not to write the CREATE_PIPELINE message
// itself, because the caller already delivered it out of band (a WSMan
// Command body built from GetCreatePipelineDataWithID).
func (p *Pipeline) SkipInvokeSend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skipInvokeSend = true
}

// MarkReconnected flags this pipeline as recovered from a disconnected pool
// (built with NewWithID against a pipeline id returned by
// GetRunspacePools-style enumeration, then handed to Pool.AdoptPipeline)
// rather than created locally and invoked directly. [MS-PSRP] §3.2.5.2's
// nested pipeline creation is only ever defined against a live, locally
// created pipeline, so CreateNestedPipeline refuses once this is set.
func (p *Pipeline) MarkReconnected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconnected = true
}

// IsNested reports whether this pipeline was itself created as a nested
// pipeline via CreateNestedPipeline.
func (p *Pipeline) IsNested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isNested
}

// CreateNestedPipeline builds and invokes a new pipeline nested inside p,
// sharing p's runspace pool. [MS-PSRP] §3.2.5.2 allows this only while p is
// a live, locally created pipeline in state Running; a pipeline adopted
// from a disconnected pool's enumeration is rejected with
// InvalidOperationError, matching PowerShell's own refusal to nest a
// pipeline "connected to remotely" rather than owned by this client.
func (p *Pipeline) CreateNestedPipeline(ctx context.Context, script string) (*Pipeline, error) {
	p.mu.Lock()
	reconnected := p.reconnected
	state := p.state
	p.mu.Unlock()

	if reconnected {
		return nil, &InvalidOperationError{Message: "cannot create a nested pipeline on a pipeline connected to remotely (reconnected from a disconnected pool)"}
	}
	if state != StateRunning {
		return nil, &InvalidOperationError{Message: fmt.Sprintf("cannot create a nested pipeline while the parent pipeline is %s, not Running", state)}
	}

	nested := NewWithID(p.pool, p.pool.ID(), uuid.New())
	nested.isNested = true
	if script != "" {
		nested.Builder.AddScript(script)
	}

	if err := p.pool.AdoptPipeline(nested); err != nil {
		return nil, err
	}
	if err := nested.Invoke(ctx); err != nil {
		return nested, err
	}
	return nested, nil
}

// SetStopFunc installs the callback Stop uses to issue the out-of-band
// signal (a WSMan Signal action) that requests the server halt the
// pipeline. Without one, Stop only marks the pipeline Stopping locally and
// waits for the server's own PIPELINE_STATE to arrive.
func (p *Pipeline) SetStopFunc(f func(context.Context) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopFunc = f
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	if s.IsTerminal() {
		p.closeDone()
	}
}

func (p *Pipeline) closeDone() {
	p.doneOnce.Do(func() { close(p.done) })
}

// Done signals when the pipeline reaches a terminal state.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// Output, Error, Warning, Verbose, Debug, Progress, and Information return
// the respective record streams. Each channel is single-producer
// (dispatch) / multi-consumer (caller); a slow consumer applies
// backpressure to the whole pool's dispatch loop, by design.
func (p *Pipeline) Output() <-chan *messages.Message      { return p.output }
func (p *Pipeline) Error() <-chan *messages.Message       { return p.errStream }
func (p *Pipeline) Warning() <-chan *messages.Message     { return p.warning }
func (p *Pipeline) Verbose() <-chan *messages.Message     { return p.verbose }
func (p *Pipeline) Debug() <-chan *messages.Message       { return p.debug }
func (p *Pipeline) Progress() <-chan *messages.Message    { return p.progress }
func (p *Pipeline) Information() <-chan *messages.Message { return p.information }

// Wait blocks until the pipeline reaches a terminal state and returns its
// final error, if any.
func (p *Pipeline) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Fail forces the pipeline to Failed with err, for use by a caller (the
// pool's dispatch loop, a transport) that detects the pipeline can no
// longer make progress.
func (p *Pipeline) Fail(err error) {
	p.mu.Lock()
	p.state = StateFailed
	p.err = err
	p.mu.Unlock()
	p.closeDone()
}

// Invoke sends the CREATE_PIPELINE message and transitions the pipeline to
// Running. If SkipInvokeSend was called, it only performs the local state
// transition.
func (p *Pipeline) Invoke(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateNotStarted {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("pipeline: Invoke called in state %s", state)
	}
	skip := p.skipInvokeSend
	p.mu.Unlock()

	if !skip {
		payload, err := p.buildCreatePipelinePayload()
		if err != nil {
			return err
		}
		msg := &messages.Message{
			Destination: messages.DestinationServer,
			Type:        messages.MessageTypeCreatePipeline,
			RunspaceID:  p.pool.ID(),
			PipelineID:  p.id,
			Data:        payload,
		}
		if err := p.pool.SendPipelineMessage(msg); err != nil {
			return err
		}
	}
	p.setState(StateRunning)
	return nil
}

// GetCreatePipelineDataWithID builds the fragmented CREATE_PIPELINE wire
// bytes for a transport (WSMan's Command) that delivers them itself rather
// than through the pool's shared transport; msgID lets the caller correlate
// this fragment stream with its own request bookkeeping, but does not
// affect the PSRP payload.
func (p *Pipeline) GetCreatePipelineDataWithID(msgID uint64) ([]byte, error) {
	_ = msgID
	payload, err := p.buildCreatePipelinePayload()
	if err != nil {
		return nil, err
	}
	msg := &messages.Message{
		Destination: messages.DestinationServer,
		Type:        messages.MessageTypeCreatePipeline,
		RunspaceID:  p.pool.ID(),
		PipelineID:  p.id,
		Data:        payload,
	}
	return p.pool.FragmentMessage(msg)
}

// Stop requests the server halt the pipeline: it transitions locally to
// Stopping, invokes the injected signal callback if one was set, and then
// waits for the server's own PIPELINE_STATE(Stopped).
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.state.IsTerminal() {
		p.mu.Unlock()
		return nil
	}
	p.state = StateStopping
	fn := p.stopFunc
	p.mu.Unlock()

	if fn != nil {
		if err := fn(ctx); err != nil {
			return err
		}
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendInput streams one object to the pipeline's input stream,
// [MS-PSRP] §2.2.2.18. CloseInput must be called once the input source is
// exhausted.
func (p *Pipeline) SendInput(value interface{}) error {
	ser := serialization.NewSerializer()
	data, err := ser.Serialize(value)
	if err != nil {
		return err
	}
	msg := &messages.Message{
		Destination: messages.DestinationServer,
		Type:        messages.MessageTypePipelineInput,
		RunspaceID:  p.pool.ID(),
		PipelineID:  p.id,
		Data:        data,
	}
	return p.pool.SendPipelineMessage(msg)
}

// CloseInput sends END_OF_PIPELINE_INPUT, signaling no further SendInput
// calls will follow.
func (p *Pipeline) CloseInput() error {
	msg := &messages.Message{
		Destination: messages.DestinationServer,
		Type:        messages.MessageTypeEndOfPipelineInput,
		RunspaceID:  p.pool.ID(),
		PipelineID:  p.id,
	}
	return p.pool.SendPipelineMessage(msg)
}

// HadErrors reports whether any ERROR_RECORD, terminating or not, has been
// observed for this pipeline.
func (p *Pipeline) HadErrors() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hadErrors
}

// HandleMessage routes one pipeline-scoped message to the appropriate
// stream channel or state transition. Called from the owning pool's
// dispatch loop.
func (p *Pipeline) HandleMessage(m *messages.Message) error {
	switch m.Type {
	case messages.MessageTypePipelineOutput:
		p.output <- m
	case messages.MessageTypeErrorRecord:
		p.mu.Lock()
		p.hadErrors = true
		p.mu.Unlock()
		p.errStream <- m
	case messages.MessageTypeWarningRecord:
		p.warning <- m
	case messages.MessageTypeVerboseRecord:
		p.verbose <- m
	case messages.MessageTypeDebugRecord:
		p.debug <- m
	case messages.MessageTypeProgressRecord:
		p.progress <- m
	case messages.MessageTypeInformationRecord:
		p.information <- m
	case messages.MessageTypePipelineHostCall:
		return p.handleHostCall(m)
	case messages.MessageTypePipelineState:
		return p.handleState(m)
	}
	return nil
}

func (p *Pipeline) handleState(m *messages.Message) error {
	deser := serialization.NewDeserializer()
	v, err := deser.DeserializeOne(m.Data)
	if err != nil {
		return err
	}
	obj, ok := v.(*clixml.PSObject)
	if !ok {
		return fmt.Errorf("pipeline: PIPELINE_STATE payload is not an object")
	}
	raw, ok := obj.Adapted.Get("PipelineState")
	if !ok {
		return fmt.Errorf("pipeline: PIPELINE_STATE missing PipelineState")
	}
	stateVal, ok := raw.(clixml.Int32)
	if !ok {
		return fmt.Errorf("pipeline: PipelineState is not an Int32")
	}
	next := State(messages.PipelineState(stateVal))

	if next == StateFailed {
		var reason string
		if exc, ok := obj.Adapted.Get("ExceptionAsErrorRecord"); ok {
			if excObj, ok := exc.(*clixml.PSObject); ok && excObj.HasToString {
				reason = excObj.ToStringValue
			}
		}
		p.mu.Lock()
		p.err = fmt.Errorf("pipeline: failed: %s", reason)
		p.mu.Unlock()
	}

	p.setState(next)
	return nil
}

func (p *Pipeline) handleHostCall(m *messages.Message) error {
	deser := serialization.NewDeserializer()
	v, err := deser.DeserializeOne(m.Data)
	if err != nil {
		return err
	}
	obj, ok := v.(*clixml.PSObject)
	if !ok {
		return fmt.Errorf("pipeline: PIPELINE_HOST_CALL payload is not an object")
	}
	ciRaw, _ := obj.Adapted.Get("ci")
	miRaw, _ := obj.Adapted.Get("mi")
	ci, _ := ciRaw.(clixml.Int64)
	mi, _ := miRaw.(clixml.Int32)

	var params []clixml.Value
	if mpRaw, ok := obj.Adapted.Get("mp"); ok {
		if list, ok := mpRaw.(*clixml.PSObject); ok {
			params = list.Elements
		}
	}

	result, hasResult, callErr := p.pool.DispatchHostCall(runspace.HostCall{CallID: int64(ci), Method: int32(mi), Params: params})
	if callErr != nil {
		return p.sendHostResponse(int64(ci), nil, callErr)
	}
	if !hasResult {
		return nil
	}
	return p.sendHostResponse(int64(ci), result, nil)
}

func (p *Pipeline) sendHostResponse(ci int64, result clixml.Value, callErr error) error {
	obj := clixml.NewPSObject()
	obj.Adapted.Set("ci", clixml.Int64(ci))
	if callErr != nil {
		errObj := clixml.NewPSObject("System.Management.Automation.RemoteException", "System.Exception")
		errObj.HasToString = true
		errObj.ToStringValue = callErr.Error()
		errObj.Adapted.Set("Message", clixml.String(callErr.Error()))
		obj.Adapted.Set("me", errObj)
	} else {
		obj.Adapted.Set("mr", result)
	}
	ser := serialization.NewSerializer()
	data, err := ser.Serialize(obj)
	if err != nil {
		return err
	}
	msg := &messages.Message{
		Destination: messages.DestinationServer,
		Type:        messages.MessageTypePipelineHostResponse,
		RunspaceID:  p.pool.ID(),
		PipelineID:  p.id,
		Data:        data,
	}
	return p.pool.SendPipelineMessage(msg)
}
