package messages

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// HeaderSize is the fixed PSRP message header length: destination (4) +
// message type (4) + runspace pool id (16) + pipeline id (16) + reserved
// (4, always zero).
const HeaderSize = 44

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Message is one PSRP message: a typed, addressed CLIXML payload.
type Message struct {
	Destination Destination
	Type        MessageType
	RunspaceID  uuid.UUID
	PipelineID  uuid.UUID // zero for pool-scoped messages
	Data        []byte    // CLIXML payload
}

// Encode renders the 44-byte header followed by Data, per [MS-PSRP] §2.2.1.
// Header integers are little-endian. GUIDs go out in .NET's Guid.ToByteArray
// layout (the first three fields byte-swapped, the last two left as-is),
// which differs from uuid.UUID's RFC 4122 big-endian layout; toWireGUID
// performs that conversion so a runspace/pipeline id compares equal by text
// on both sides of the wire.
func (m *Message) Encode() []byte {
	out := make([]byte, HeaderSize+len(m.Data))
	binary.LittleEndian.PutUint32(out[0:4], uint32(m.Destination))
	binary.LittleEndian.PutUint32(out[4:8], uint32(m.Type))
	copy(out[8:24], toWireGUID(m.RunspaceID)[:])
	copy(out[24:40], toWireGUID(m.PipelineID)[:])
	// bytes 40:44 are reserved and always zero.
	binary.LittleEndian.PutUint32(out[40:44], 0)
	copy(out[HeaderSize:], m.Data)
	return out
}

// Decode parses a PSRP message from data, tolerating an optional UTF-8 BOM
// immediately preceding the CLIXML payload.
func Decode(data []byte) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("messages: header truncated: have %d bytes, need %d", len(data), HeaderSize)
	}

	m := &Message{
		Destination: Destination(binary.LittleEndian.Uint32(data[0:4])),
		Type:        MessageType(binary.LittleEndian.Uint32(data[4:8])),
	}
	var rp, pl [16]byte
	copy(rp[:], data[8:24])
	copy(pl[:], data[24:40])
	m.RunspaceID = fromWireGUID(rp)
	m.PipelineID = fromWireGUID(pl)

	payload := data[HeaderSize:]
	payload = bytes.TrimPrefix(payload, utf8BOM)
	m.Data = append([]byte(nil), payload...)
	return m, nil
}

// toWireGUID converts an RFC 4122 big-endian uuid.UUID to .NET's
// Guid.ToByteArray layout: Data1 (4 bytes) and Data2/Data3 (2 bytes each)
// are byte-swapped to little-endian; Data4 (the trailing 8 bytes) is
// unchanged.
func toWireGUID(u uuid.UUID) [16]byte {
	var w [16]byte
	w[0], w[1], w[2], w[3] = u[3], u[2], u[1], u[0]
	w[4], w[5] = u[5], u[4]
	w[6], w[7] = u[7], u[6]
	copy(w[8:], u[8:])
	return w
}

// fromWireGUID reverses toWireGUID.
func fromWireGUID(w [16]byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = w[3], w[2], w[1], w[0]
	u[4], u[5] = w[5], w[4]
	u[6], u[7] = w[7], w[6]
	copy(u[8:], w[8:])
	return u
}
