package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/smnsjas/go-psrpcore/fragment"
	"github.com/smnsjas/go-psrpcore/messages"
	_ "github.com/smnsjas/go-psrpcore/pipeline" // registers the pipeline factory
	"github.com/smnsjas/go-psrpcore/runspace"
)

// MockPSRPTransport simulates the WSMan-delivered fragment stream for
// end-to-end exercise of runspace.Pool without a real WinRM endpoint. It
// captures outgoing fragments and queues scripted responses.
type MockPSRPTransport struct {
	mu sync.Mutex

	readBuf bytes.Buffer

	poolID   uuid.UUID
	objectID uint64

	closedCh chan struct{}
}

func NewMockPSRPTransport(poolID uuid.UUID) *MockPSRPTransport {
	return &MockPSRPTransport{
		poolID:   poolID,
		closedCh: make(chan struct{}),
	}
}

// Write captures PSRP fragments sent by the client.
func (m *MockPSRPTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for data := p; len(data) >= fragment.HeaderSize; {
		frag, n, err := fragment.Decode(data)
		if err != nil {
			break
		}
		if msg, err := messages.Decode(frag.Blob); err == nil {
			m.generateResponse(msg)
		}
		data = data[n:]
	}

	return len(p), nil
}

// Read returns mock PSRP responses, blocking until data is available or the
// transport is closed.
func (m *MockPSRPTransport) Read(p []byte) (int, error) {
	for {
		m.mu.Lock()
		if m.readBuf.Len() > 0 {
			n, err := m.readBuf.Read(p)
			m.mu.Unlock()
			return n, err
		}
		m.mu.Unlock()

		select {
		case <-m.closedCh:
			return 0, io.EOF
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Close shuts down the mock transport.
func (m *MockPSRPTransport) Close() {
	select {
	case <-m.closedCh:
	default:
		close(m.closedCh)
	}
}

func (m *MockPSRPTransport) generateResponse(msg *messages.Message) {
	switch msg.Type {
	case messages.MessageTypeSessionCapability:
		m.queueSessionCapabilityResponse()
	case messages.MessageTypeInitRunspacePool:
		m.queueRunspacePoolStateResponse()
	case messages.MessageTypeCreatePipeline:
		m.queuePipelineStateResponse(msg.PipelineID, messages.PipelineStateRunning)
		m.queuePipelineOutputResponse(msg.PipelineID, "Hello from mock!")
		m.queuePipelineStateResponse(msg.PipelineID, messages.PipelineStateCompleted)
	}
}

func (m *MockPSRPTransport) queuePipelineStateResponse(pipelineID uuid.UUID, state messages.PipelineState) {
	stateData := []byte(fmt.Sprintf(
		`<Objs Version="1.1.0.1" xmlns="http://schemas.microsoft.com/powershell/2004/04">`+
			`<Obj RefId="0"><Props><I32 N="PipelineState">%d</I32></Props></Obj></Objs>`,
		state))

	m.queueMessage(&messages.Message{
		Destination: messages.DestinationClient,
		Type:        messages.MessageTypePipelineState,
		RunspaceID:  m.poolID,
		PipelineID:  pipelineID,
		Data:        stateData,
	})
}

func (m *MockPSRPTransport) queuePipelineOutputResponse(pipelineID uuid.UUID, output string) {
	outputData := []byte(fmt.Sprintf(
		`<Objs Version="1.1.0.1" xmlns="http://schemas.microsoft.com/powershell/2004/04"><S>%s</S></Objs>`,
		output))

	m.queueMessage(&messages.Message{
		Destination: messages.DestinationClient,
		Type:        messages.MessageTypePipelineOutput,
		RunspaceID:  m.poolID,
		PipelineID:  pipelineID,
		Data:        outputData,
	})
}

func (m *MockPSRPTransport) queueSessionCapabilityResponse() {
	capData := []byte(`<Objs Version="1.1.0.1" xmlns="http://schemas.microsoft.com/powershell/2004/04">` +
		`<Obj RefId="0"><Props>` +
		`<Version N="protocolversion">2.3</Version>` +
		`<Version N="PSVersion">2.0</Version>` +
		`<Version N="SerializationVersion">1.1.0.1</Version>` +
		`</Props></Obj></Objs>`)

	m.queueMessage(&messages.Message{
		Destination: messages.DestinationClient,
		Type:        messages.MessageTypeSessionCapability,
		RunspaceID:  m.poolID,
		PipelineID:  uuid.Nil,
		Data:        capData,
	})
}

func (m *MockPSRPTransport) queueRunspacePoolStateResponse() {
	// State = 2 (Opened) per [MS-PSRP] §2.2.2.2
	stateData := []byte(`<Objs Version="1.1.0.1" xmlns="http://schemas.microsoft.com/powershell/2004/04">` +
		`<Obj RefId="0"><Props><I32 N="RunspaceState">2</I32></Props></Obj></Objs>`)

	m.queueMessage(&messages.Message{
		Destination: messages.DestinationClient,
		Type:        messages.MessageTypeRunspacePoolState,
		RunspaceID:  m.poolID,
		PipelineID:  uuid.Nil,
		Data:        stateData,
	})
}

func (m *MockPSRPTransport) queueMessage(msg *messages.Message) {
	msgBytes := msg.Encode()

	frag := fragment.Fragment{
		ObjectID:   m.objectID,
		FragmentID: 0,
		Start:      true,
		End:        true,
		Blob:       msgBytes,
	}
	m.objectID++
	m.readBuf.Write(frag.Encode())
}

func TestMockTransport_ImplementsReadWriter(_ *testing.T) {
	var _ io.ReadWriter = (*MockPSRPTransport)(nil)
}

func TestPSRPCore_PoolCreation(t *testing.T) {
	poolID := uuid.New()
	transport := NewMockPSRPTransport(poolID)

	pool := runspace.New(transport, poolID)
	if pool == nil {
		t.Fatal("runspace.New returned nil")
	}
	if pool.State() != runspace.StateBeforeOpen {
		t.Errorf("State = %v, want StateBeforeOpen", pool.State())
	}
}

func TestPSRPCore_PoolOpen(t *testing.T) {
	poolID := uuid.New()
	transport := NewMockPSRPTransport(poolID)
	pool := runspace.New(transport, poolID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Open(ctx); err != nil {
		t.Errorf("Open failed: %v", err)
	}
	if pool.State() != runspace.StateOpened {
		t.Errorf("State = %v, want StateOpened", pool.State())
	}
}

func TestPSRPCore_PoolOpenClose(t *testing.T) {
	poolID := uuid.New()
	transport := NewMockPSRPTransport(poolID)
	pool := runspace.New(transport, poolID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	transport.Close()
	time.Sleep(50 * time.Millisecond)

	if pool.State() != runspace.StateClosed {
		t.Errorf("State = %v, want StateClosed", pool.State())
	}
}

func TestMockPSRPTransport_GeneratesResponses(t *testing.T) {
	poolID := uuid.New()
	transport := NewMockPSRPTransport(poolID)

	capMsg := &messages.Message{
		Destination: messages.DestinationServer,
		Type:        messages.MessageTypeSessionCapability,
		RunspaceID:  poolID,
		PipelineID:  uuid.Nil,
		Data:        []byte(`<test/>`),
	}

	frag := fragment.Fragment{
		ObjectID:   0,
		FragmentID: 0,
		Start:      true,
		End:        true,
		Blob:       capMsg.Encode(),
	}
	if _, err := transport.Write(frag.Encode()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := transport.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n == 0 {
		t.Fatal("expected non-empty response")
	}

	respFrag, _, err := fragment.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode fragment failed: %v", err)
	}
	respMsg, err := messages.Decode(respFrag.Blob)
	if err != nil {
		t.Fatalf("Decode message failed: %v", err)
	}

	if respMsg.Type != messages.MessageTypeSessionCapability {
		t.Errorf("Response type = %v, want SESSION_CAPABILITY", respMsg.Type)
	}
	if respMsg.Destination != messages.DestinationClient {
		t.Errorf("Response destination = %v, want DestinationClient", respMsg.Destination)
	}
}

func TestPSRPCore_PipelineExecution(t *testing.T) {
	poolID := uuid.New()
	transport := NewMockPSRPTransport(poolID)
	pool := runspace.New(transport, poolID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer pool.Close()

	pl, err := pool.CreatePipeline("Write-Output 'Hello'")
	if err != nil {
		t.Fatalf("CreatePipeline failed: %v", err)
	}
	if pl == nil {
		t.Fatal("pipeline is nil")
	}

	t.Logf("Pipeline created with ID: %v", pl.ID())
}
