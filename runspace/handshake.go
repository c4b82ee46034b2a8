package runspace

import (
	"fmt"

	"github.com/smnsjas/go-psrpcore/clixml"
	"github.com/smnsjas/go-psrpcore/messages"
)

// minProtocolVersion is the lowest PSRP protocol version this module will
// negotiate with a server, per [MS-PSRP] §3.1.4.1.
var minProtocolVersion = clixml.Version{Major: 2, Minor: 1}

func mustVersion(s string) clixml.Version {
	v, err := clixml.ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func versionLess(a, b clixml.Version) bool {
	if a.Major != b.Major {
		return a.Major < b.Major
	}
	return a.Minor < b.Minor
}

// buildSessionCapability builds the SESSION_CAPABILITY payload, [MS-PSRP] §2.2.2.1.
func (p *Pool) buildSessionCapability() ([]byte, error) {
	obj := clixml.NewPSObject()
	obj.Adapted.Set("PSVersion", mustVersion("2.0"))
	obj.Adapted.Set("protocolversion", mustVersion(protocolVersion))
	obj.Adapted.Set("SerializationVersion", mustVersion("1.1.0.1"))
	data, err := p.Serializer().Serialize(obj)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// buildInitRunspacePool builds the INIT_RUNSPACEPOOL payload, [MS-PSRP] §2.2.2.2.
func (p *Pool) buildInitRunspacePool() ([]byte, error) {
	obj := clixml.NewPSObject()
	obj.Adapted.Set("MinRunspaces", clixml.Int32(p.minRunspaces))
	obj.Adapted.Set("MaxRunspaces", clixml.Int32(p.maxRunspaces))
	obj.Adapted.Set("PSThreadOptions", threadOptionsObject())
	obj.Adapted.Set("ApartmentState", apartmentStateObject())
	obj.Adapted.Set("ApplicationArguments", clixml.Null{})
	obj.Adapted.Set("HostInfo", hostInfoObject())
	data, err := p.Serializer().Serialize(obj)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// threadOptionsObject/apartmentStateObject encode the two enums
// INIT_RUNSPACEPOOL carries as Int32-backed PSObjects with their .NET
// enum type name chain, matching how PowerShell's own client renders them.
func threadOptionsObject() clixml.Value {
	obj := clixml.NewPSObject("System.Management.Automation.Runspaces.PSThreadOptions", "System.Enum", "System.ValueType", "System.Object")
	obj.BaseValue = clixml.Int32(0) // Default
	return obj
}

func apartmentStateObject() clixml.Value {
	obj := clixml.NewPSObject("System.Management.Automation.Runspaces.ApartmentState", "System.Enum", "System.ValueType", "System.Object")
	obj.BaseValue = clixml.Int32(2) // Unknown
	return obj
}

// hostInfo carries _isHostNull=true: this module implements no interactive
// host UI, only the RUNSPACEPOOL_HOST_CALL/RESPONSE wire contract, so the
// server is told up front not to expect host UI capabilities.
func hostInfoObject() clixml.Value {
	obj := clixml.NewPSObject()
	obj.Adapted.Set("_isHostNull", clixml.Bool(true))
	obj.Adapted.Set("_isHostRawUINull", clixml.Bool(true))
	obj.Adapted.Set("_useRunspaceHost", clixml.Bool(false))
	obj.Adapted.Set("_isHostNullRef", clixml.Bool(true))
	return obj
}

// buildConnectRunspacePool builds the optional CONNECT_RUNSPACEPOOL payload sent
// when reattaching to a pool this process did not create, [MS-PSRP] §2.2.2.3.
func (p *Pool) buildConnectRunspacePool() ([]byte, error) {
	obj := clixml.NewPSObject()
	obj.Adapted.Set("MinRunspaces", clixml.Int32(p.minRunspaces))
	obj.Adapted.Set("MaxRunspaces", clixml.Int32(p.maxRunspaces))
	data, err := p.Serializer().Serialize(obj)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// GetHandshakeFragments builds the concatenated fragment stream for
// SESSION_CAPABILITY + INIT_RUNSPACEPOOL, for transports (WSMan's Create)
// that deliver the initial handshake out of band from Open's own write.
func (p *Pool) GetHandshakeFragments() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	capData, err := p.buildSessionCapability()
	if err != nil {
		return nil, err
	}
	initData, err := p.buildInitRunspacePool()
	if err != nil {
		return nil, err
	}

	var out []byte
	for _, m := range []*messages.Message{
		{Destination: messages.DestinationServer, Type: messages.MessageTypeSessionCapability, RunspaceID: p.id, Data: capData},
		{Destination: messages.DestinationServer, Type: messages.MessageTypeInitRunspacePool, RunspaceID: p.id, Data: initData},
	} {
		frags, err := p.fragmenter.Fragment(m.Encode(), defaultFragmentSize)
		if err != nil {
			return nil, err
		}
		for _, f := range frags {
			out = append(out, f.Encode()...)
		}
	}
	p.state = StateOpening
	return out, nil
}

// GetConnectHandshakeFragments builds the fragment stream for a
// CONNECT_RUNSPACEPOOL request used when reattaching to an existing pool.
func (p *Pool) GetConnectHandshakeFragments() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	connData, err := p.buildConnectRunspacePool()
	if err != nil {
		return nil, err
	}
	m := &messages.Message{Destination: messages.DestinationServer, Type: messages.MessageTypeConnectRunspacePool, RunspaceID: p.id, Data: connData}
	frags, err := p.fragmenter.Fragment(m.Encode(), defaultFragmentSize)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, f := range frags {
		out = append(out, f.Encode()...)
	}
	p.state = StateConnecting
	return out, nil
}

// ProcessConnectResponse feeds the server's response to a connect
// handshake (SESSION_CAPABILITY + RUNSPACEPOOL_STATE, and possibly
// RUNSPACEPOOL_APPLICATION_PRIVATE_DATA) through the normal pool-scoped
// message handler, without requiring the dispatch loop to be running.
func (p *Pool) ProcessConnectResponse(respData []byte) error {
	msgs, leftover, err := p.defragmenter.Feed(respData)
	if err != nil {
		return err
	}
	if leftover != 0 {
		return fmt.Errorf("runspace: %d trailing bytes in connect response", leftover)
	}
	for _, raw := range msgs {
		msg, err := messages.Decode(raw)
		if err != nil {
			return err
		}
		if err := p.handlePoolMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

// ResumeOpened marks a reconnected pool Opened without replaying the full
// negotiation state-transition checks; used once ProcessConnectResponse has
// already validated the server's capability and state.
func (p *Pool) ResumeOpened() {
	p.mu.Lock()
	p.state = StateOpened
	p.mu.Unlock()
	p.readyOnce.Do(func() { close(p.ready) })
}
