package messages

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	m := &Message{
		Destination: DestinationServer,
		Type:        MessageTypeCreatePipeline,
		RunspaceID:  uuid.New(),
		PipelineID:  uuid.New(),
		Data:        []byte(`<Objs Version="1.1.0.1"></Objs>`),
	}

	wire := m.Encode()
	assert.Len(t, wire, HeaderSize+len(m.Data))

	got, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, m.Destination, got.Destination)
	assert.Equal(t, m.Type, got.Type)
	assert.Equal(t, m.RunspaceID, got.RunspaceID)
	assert.Equal(t, m.PipelineID, got.PipelineID)
	assert.Equal(t, m.Data, got.Data)
}

func TestMessagePoolScopedHasZeroPipelineID(t *testing.T) {
	m := &Message{
		Destination: DestinationClient,
		Type:        MessageTypeRunspacePoolState,
		RunspaceID:  uuid.New(),
		Data:        []byte("payload"),
	}
	wire := m.Encode()
	got, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, got.PipelineID)
}

func TestDecodeTrimsBOM(t *testing.T) {
	m := &Message{Destination: DestinationClient, Type: MessageTypePipelineOutput, RunspaceID: uuid.New(), PipelineID: uuid.New()}
	wire := m.Encode()
	wire = append(wire, utf8BOM...)
	wire = append(wire, []byte("<Objs/>")...)

	got, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, []byte("<Objs/>"), got.Data)
}

func TestDecodeRejectsTruncatedHeader(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	require.Error(t, err)
}

func TestWireGUIDByteSwapIsInvolution(t *testing.T) {
	u := uuid.New()
	w := toWireGUID(u)
	assert.Equal(t, u, fromWireGUID(w))
	// The trailing 8 bytes (Data4) must be untouched by the conversion.
	assert.Equal(t, u[8:], w[8:])
}

func TestMessageTypeStringKnown(t *testing.T) {
	assert.Equal(t, "CreatePipeline", MessageTypeCreatePipeline.String())
	assert.Equal(t, "Unknown", MessageType(0xDEADBEEF).String())
}
