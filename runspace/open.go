package runspace

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/smnsjas/go-psrpcore/clixml"
	"github.com/smnsjas/go-psrpcore/messages"
	"github.com/smnsjas/go-psrpcore/serialization"
)

// Open drives the pool from BeforeOpen/Connecting through to Opened. If
// SkipHandshakeSend is false, it writes the SESSION_CAPABILITY/
// INIT_RUNSPACEPOOL fragments itself; either way it starts the read/dispatch
// loop (idempotently) and blocks until negotiation completes, fails, or ctx
// is done.
func (p *Pool) Open(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateBeforeOpen {
		p.mu.Unlock()
		return fmt.Errorf("runspace: Open called in state %s", p.state)
	}
	skip := p.SkipHandshakeSend
	p.state = StateOpening
	p.mu.Unlock()

	p.ensureDispatchLoop()

	if !skip {
		data, err := p.GetHandshakeFragments()
		if err != nil {
			return err
		}
		if _, err := p.transport.Write(data); err != nil {
			return fmt.Errorf("runspace: write handshake: %w", err)
		}
	}

	select {
	case <-p.ready:
		p.mu.Lock()
		err := p.openErr
		p.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartDispatchLoop starts the background goroutine that reads fragments
// from the pool's transport, reassembles them into messages, and routes
// pool-scoped messages to this pool's handler and pipeline-scoped messages
// to their owning pipeline. Safe to call more than once; only the first
// call has effect.
func (p *Pool) StartDispatchLoop() {
	p.ensureDispatchLoop()
}

func (p *Pool) ensureDispatchLoop() {
	p.dispatchOnce.Do(func() {
		go p.readLoop()
	})
}

func (p *Pool) readLoop() {
	buf := make([]byte, 0, 64*1024)
	tmp := make([]byte, 32*1024)
	for {
		n, err := p.transport.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			msgs, leftover, ferr := p.defragmenter.Feed(buf)
			if ferr != nil {
				p.fail(ferr)
				return
			}
			buf = append(buf[:0], buf[len(buf)-leftover:]...)
			for _, raw := range msgs {
				m, derr := messages.Decode(raw)
				if derr != nil {
					p.fail(derr)
					return
				}
				if herr := p.route(m); herr != nil {
					p.fail(herr)
					return
				}
			}
		}
		if err != nil {
			p.fail(fmt.Errorf("runspace: transport read: %w", err))
			return
		}
	}
}

func (p *Pool) route(m *messages.Message) error {
	if m.PipelineID == uuid.Nil {
		return p.handlePoolMessage(m)
	}
	p.mu.Lock()
	h, ok := p.pipelines[m.PipelineID]
	p.mu.Unlock()
	if !ok {
		p.logDebug("message for unknown pipeline", "pipeline_id", m.PipelineID, "type", m.Type)
		return nil
	}
	return h.HandleMessage(m)
}

func (p *Pool) fail(err error) {
	p.mu.Lock()
	if p.state.canTransitionTo(StateBroken) {
		p.state = StateBroken
	}
	p.lastErr = err
	p.mu.Unlock()
	p.availCond.Broadcast()
	p.failOpen(err)
}

func (p *Pool) failOpen(err error) {
	p.mu.Lock()
	if p.openErr == nil {
		p.openErr = err
	}
	p.mu.Unlock()
	p.readyOnce.Do(func() { close(p.ready) })
}

// handlePoolMessage processes one pool-scoped (PipelineID == nil) message.
func (p *Pool) handlePoolMessage(m *messages.Message) error {
	switch m.Type {
	case messages.MessageTypeSessionCapability:
		return p.handleSessionCapability(m)
	case messages.MessageTypeApplicationPrivateData:
		return nil
	case messages.MessageTypeRunspacePoolState:
		return p.handleRunspacePoolState(m)
	case messages.MessageTypeRunspaceAvailability:
		return p.handleRunspaceAvailability(m)
	case messages.MessageTypePublicKeyRequest:
		return p.initiateSessionKeyExchange()
	case messages.MessageTypeEncryptedSessionKey:
		return p.handleEncryptedSessionKey(m)
	case messages.MessageTypeRunspacePoolHostCall:
		return p.handleHostCall(m)
	default:
		p.logDebug("unhandled pool-scoped message", "type", m.Type)
		return nil
	}
}

func (p *Pool) handleSessionCapability(m *messages.Message) error {
	deser := serialization.NewDeserializer()
	v, err := deser.DeserializeOne(m.Data)
	if err != nil {
		return err
	}
	obj, ok := v.(*clixml.PSObject)
	if !ok {
		return fmt.Errorf("runspace: SESSION_CAPABILITY payload is not an object")
	}
	raw, ok := obj.Adapted.Get("protocolversion")
	if !ok {
		return fmt.Errorf("runspace: SESSION_CAPABILITY missing protocolversion")
	}
	ver, ok := raw.(clixml.Version)
	if !ok {
		return fmt.Errorf("runspace: protocolversion is not a Version")
	}
	if versionLess(ver, minProtocolVersion) {
		p.mu.Lock()
		p.state = StateBroken
		p.mu.Unlock()
		verr := &VersionMismatchError{ServerVersion: fmt.Sprintf("%d.%d", ver.Major, ver.Minor)}
		p.emitSecurityEvent("capability_negotiation_failed", map[string]any{"server_version": verr.ServerVersion})
		p.failOpen(verr)
		return nil
	}
	p.mu.Lock()
	if p.state == StateOpening {
		p.state = StateNegotiationSent
	}
	if p.state == StateNegotiationSent {
		p.state = StateNegotiationSucceeded
	}
	p.mu.Unlock()
	p.emitSecurityEvent("capability_negotiated", map[string]any{"server_version": fmt.Sprintf("%d.%d", ver.Major, ver.Minor)})
	return nil
}

func (p *Pool) handleRunspacePoolState(m *messages.Message) error {
	deser := serialization.NewDeserializer()
	v, err := deser.DeserializeOne(m.Data)
	if err != nil {
		return err
	}
	obj, ok := v.(*clixml.PSObject)
	if !ok {
		return fmt.Errorf("runspace: RUNSPACEPOOL_STATE payload is not an object")
	}
	raw, ok := obj.Adapted.Get("RunspaceState")
	if !ok {
		return fmt.Errorf("runspace: RUNSPACEPOOL_STATE missing RunspaceState")
	}
	stateVal, ok := raw.(clixml.Int32)
	if !ok {
		return fmt.Errorf("runspace: RunspaceState is not an Int32")
	}
	next := messages.RunspacePoolState(stateVal)

	p.mu.Lock()
	switch next {
	case messages.RunspacePoolStateNegotiationSucceeded:
		if p.state.canTransitionTo(StateNegotiationSucceeded) {
			p.state = StateNegotiationSucceeded
		}
	case messages.RunspacePoolStateOpened:
		if p.state == StateConnecting || p.state.canTransitionTo(StateOpened) {
			p.state = StateOpened
		}
	case messages.RunspacePoolStateBroken:
		p.state = StateBroken
	case messages.RunspacePoolStateClosed:
		p.state = StateClosed
	case messages.RunspacePoolStateDisconnected:
		p.state = StateDisconnected
	}
	opened := p.state == StateOpened
	broken := p.state == StateBroken
	p.mu.Unlock()

	if broken {
		var msg string
		if exc, ok := obj.Adapted.Get("ExceptionAsErrorRecord"); ok {
			if excObj, ok := exc.(*clixml.PSObject); ok && excObj.HasToString {
				msg = excObj.ToStringValue
			}
		}
		p.failOpen(fmt.Errorf("runspace: pool broken: %s", msg))
		return nil
	}
	if opened {
		p.readyOnce.Do(func() { close(p.ready) })
	}
	return nil
}

func (p *Pool) handleRunspaceAvailability(m *messages.Message) error {
	deser := serialization.NewDeserializer()
	v, err := deser.DeserializeOne(m.Data)
	if err != nil {
		return err
	}
	obj, ok := v.(*clixml.PSObject)
	if !ok {
		return nil
	}
	availRaw, ok := obj.Adapted.Get("available")
	if !ok {
		return nil
	}
	avail, ok := availRaw.(clixml.Int64)
	if !ok {
		return nil
	}

	if ciRaw, ok := obj.Adapted.Get("ci"); ok {
		if ci, ok := ciRaw.(clixml.Int64); ok {
			p.mu.Lock()
			ch, pending := p.pendingCalls[int64(ci)]
			delete(p.pendingCalls, int64(ci))
			p.mu.Unlock()
			if pending {
				ch <- int64(avail)
				close(ch)
				return nil
			}
		}
	}

	p.mu.Lock()
	total := p.maxRunspaces
	p.mu.Unlock()
	p.setAvailability(int(avail), total)
	return nil
}
