package runspace

import (
	"fmt"
	"io"
)

// Close moves a pool straight to Closed, from Opening or from any state with
// an edge to Closing; it does not stop in Closing. It does not itself send a
// WSMan Delete; transports are responsible for tearing down the underlying
// shell once the pool reports Closed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.canTransitionTo(StateClosing) && p.state != StateOpening {
		return fmt.Errorf("runspace: cannot close pool in state %s", p.state)
	}
	p.state = StateClosed
	return nil
}

// Disconnect marks a pool Disconnected after the caller has completed the
// WSMan-level Disconnect action. The pool's pipelines remain registered so
// a subsequent Connect/AdoptPipeline sequence can resume delivering to them.
func (p *Pool) Disconnect() error {
	p.mu.Lock()
	if !p.state.canTransitionTo(StateDisconnected) {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("runspace: cannot disconnect pool in state %s", state)
	}
	p.state = StateDisconnected
	p.mu.Unlock()
	return nil
}

// BeginConnect moves a Disconnected pool to Connecting, ahead of sending a
// fresh CONNECT_RUNSPACEPOOL handshake over a new transport. Every pipeline
// still registered from before the disconnect is marked reconnected: per
// [MS-PSRP] §3.2.5.2, a pipeline recovered this way can no longer host a
// nested pipeline, even though it goes on streaming output normally.
func (p *Pool) BeginConnect(transport io.ReadWriter) error {
	p.mu.Lock()
	if !p.state.canTransitionTo(StateConnecting) && p.state != StateBeforeOpen {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("runspace: cannot connect pool in state %s", state)
	}
	wasDisconnected := p.state == StateDisconnected
	p.transport = transport
	p.state = StateConnecting
	var pipelines []PipelineHandle
	if wasDisconnected {
		for _, h := range p.pipelines {
			pipelines = append(pipelines, h)
		}
	}
	p.mu.Unlock()

	for _, h := range pipelines {
		h.MarkReconnected()
	}
	return nil
}
