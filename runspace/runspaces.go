package runspace

import (
	"context"
	"fmt"

	"github.com/smnsjas/go-psrpcore/clixml"
	"github.com/smnsjas/go-psrpcore/messages"
	"github.com/smnsjas/go-psrpcore/serialization"
)

// registerCall allocates a fresh ci (call id) and a channel the matching
// RUNSPACE_AVAILABILITY response will be delivered to.
func (p *Pool) registerCall() (int64, chan int64) {
	ci := p.nextCall()
	ch := make(chan int64, 1)
	p.mu.Lock()
	p.pendingCalls[ci] = ch
	p.mu.Unlock()
	return ci, ch
}

func (p *Pool) awaitCall(ctx context.Context, ci int64, ch chan int64) (int64, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.pendingCalls, ci)
		p.mu.Unlock()
		return 0, ctx.Err()
	}
}

// SetMinRunspaces requests the server change the pool's minimum runspace
// count, [MS-PSRP] §2.2.2.8.
func (p *Pool) SetMinRunspaces(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("runspace: min runspaces must be >= 1, got %d", n)
	}
	ci, ch := p.registerCall()
	obj := clixml.NewPSObject()
	obj.Adapted.Set("MinRunspaces", clixml.Int32(n))
	obj.Adapted.Set("ci", clixml.Int64(ci))
	data, err := p.Serializer().Serialize(obj)
	if err != nil {
		return err
	}
	if err := p.send(messages.MessageTypeSetMinRunspaces, data); err != nil {
		return err
	}
	if _, err := p.awaitCall(ctx, ci, ch); err != nil {
		return err
	}
	p.mu.Lock()
	p.minRunspaces = n
	p.mu.Unlock()
	return nil
}

// SetMaxRunspaces requests the server change the pool's maximum runspace
// count, [MS-PSRP] §2.2.2.9.
func (p *Pool) SetMaxRunspaces(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("runspace: max runspaces must be >= 1, got %d", n)
	}
	ci, ch := p.registerCall()
	obj := clixml.NewPSObject()
	obj.Adapted.Set("MaxRunspaces", clixml.Int32(n))
	obj.Adapted.Set("ci", clixml.Int64(ci))
	data, err := p.Serializer().Serialize(obj)
	if err != nil {
		return err
	}
	if err := p.send(messages.MessageTypeSetMaxRunspaces, data); err != nil {
		return err
	}
	if _, err := p.awaitCall(ctx, ci, ch); err != nil {
		return err
	}
	p.mu.Lock()
	p.maxRunspaces = n
	p.mu.Unlock()
	p.setAvailability(p.available, n)
	return nil
}

// GetAvailableRunspaces asks the server for the current available-runspace
// count, [MS-PSRP] §2.2.2.10.
func (p *Pool) GetAvailableRunspaces(ctx context.Context) (int, error) {
	ci, ch := p.registerCall()
	obj := clixml.NewPSObject()
	obj.Adapted.Set("ci", clixml.Int64(ci))
	data, err := p.Serializer().Serialize(obj)
	if err != nil {
		return 0, err
	}
	if err := p.send(messages.MessageTypeGetAvailableRunspaces, data); err != nil {
		return 0, err
	}
	n, err := p.awaitCall(ctx, ci, ch)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// handleHostCall dispatches a RUNSPACEPOOL_HOST_CALL to the registered host
// callback, replying with RUNSPACEPOOL_HOST_RESPONSE per the default policy
// described in [MS-PSRP] §2.2.3.17 when no host is configured.
func (p *Pool) handleHostCall(m *messages.Message) error {
	deser := serialization.NewDeserializer()
	v, err := deser.DeserializeOne(m.Data)
	if err != nil {
		return err
	}
	obj, ok := v.(*clixml.PSObject)
	if !ok {
		return fmt.Errorf("runspace: RUNSPACEPOOL_HOST_CALL payload is not an object")
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

	call := HostCall{CallID: int64(ci), Method: int32(mi), Params: params}
	result, hasResult, err := p.DispatchHostCall(call)
	if err != nil {
		return p.sendHostResponseError(int64(ci), err.Error())
	}
	if !hasResult {
		return nil
	}
	return p.sendHostResponse(int64(ci), result)
}

// DispatchHostCall runs the pool's registered host callback for call. With
// no callback registered, it reports ok=false (void/no-response): this
// package has no per-method arity table distinguishing void host methods
// from ones expecting a return value, so a caller that wants the "no host
// configured" error-record reply for a specific method must supply a
// callback that returns that error itself. It is exported so package
// pipeline can reuse it for PIPELINE_HOST_CALL, which uses the same host as
// its owning pool.
func (p *Pool) DispatchHostCall(call HostCall) (clixml.Value, bool, error) {
	p.mu.Lock()
	cb := p.hostCB
	p.mu.Unlock()
	if cb == nil {
		return nil, false, nil
	}
	return cb(call)
}

func (p *Pool) sendHostResponse(ci int64, result clixml.Value) error {
	obj := clixml.NewPSObject()
	obj.Adapted.Set("ci", clixml.Int64(ci))
	obj.Adapted.Set("mr", result)
	data, err := p.Serializer().Serialize(obj)
	if err != nil {
		return err
	}
	return p.send(messages.MessageTypeRunspacePoolHostResp, data)
}

func (p *Pool) sendHostResponseError(ci int64, reason string) error {
	errObj := clixml.NewPSObject("System.Management.Automation.RemoteException", "System.Exception")
	errObj.HasToString = true
	errObj.ToStringValue = reason
	errObj.Adapted.Set("Message", clixml.String(reason))

	obj := clixml.NewPSObject()
	obj.Adapted.Set("ci", clixml.Int64(ci))
	obj.Adapted.Set("me", errObj)
	data, err := p.Serializer().Serialize(obj)
	if err != nil {
		return err
	}
	return p.send(messages.MessageTypeRunspacePoolHostResp, data)
}
