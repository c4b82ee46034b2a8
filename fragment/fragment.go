package fragment

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed length of a fragment header: object_id (8) +
// fragment_id (8) + flags (1) + length (4).
const HeaderSize = 21

// Fragment is one piece of a fragmented PSRP message, [MS-PSRP] §2.2.4.
type Fragment struct {
	ObjectID   uint64
	FragmentID uint64
	Start      bool
	End        bool
	Blob       []byte
}

// flagsByte packs Start/End into the single flags byte: bit 0 = End, bit 1
// = Start.
func (f Fragment) flagsByte() byte {
	var b byte
	if f.End {
		b |= 0x01
	}
	if f.Start {
		b |= 0x02
	}
	return b
}

// Encode renders the fragment's wire bytes: 21-byte header followed by Blob.
func (f Fragment) Encode() []byte {
	out := make([]byte, HeaderSize+len(f.Blob))
	binary.BigEndian.PutUint64(out[0:8], f.ObjectID)
	binary.BigEndian.PutUint64(out[8:16], f.FragmentID)
	out[16] = f.flagsByte()
	binary.BigEndian.PutUint32(out[17:21], uint32(len(f.Blob)))
	copy(out[HeaderSize:], f.Blob)
	return out
}

// Decode parses one fragment (header plus exactly its blob) from the front
// of data, returning the fragment and the number of bytes consumed. data may
// carry additional fragments or messages after it; callers loop over the
// consumed count.
func Decode(data []byte) (Fragment, int, error) {
	if len(data) < HeaderSize {
		return Fragment{}, 0, fmt.Errorf("fragment: header truncated: have %d bytes, need %d", len(data), HeaderSize)
	}
	objectID := binary.BigEndian.Uint64(data[0:8])
	fragmentID := binary.BigEndian.Uint64(data[8:16])
	flags := data[16]
	length := binary.BigEndian.Uint32(data[17:21])

	total := HeaderSize + int(length)
	if len(data) < total {
		return Fragment{}, 0, fmt.Errorf("fragment: blob truncated: have %d bytes, need %d", len(data), total)
	}

	blob := make([]byte, length)
	copy(blob, data[HeaderSize:total])

	f := Fragment{
		ObjectID:   objectID,
		FragmentID: fragmentID,
		Start:      flags&0x02 != 0,
		End:        flags&0x01 != 0,
		Blob:       blob,
	}
	return f, total, nil
}

// Fragmenter cuts PSRP messages into Fragments, assigning object_id from a
// monotonic per-sender counter.
type Fragmenter struct {
	nextObjectID uint64
}

// NewFragmenter returns a Fragmenter whose first message gets object_id 0.
func NewFragmenter() *Fragmenter {
	return &Fragmenter{}
}

// SetNextObjectID overrides the counter used for the next call to Fragment,
// so a caller can keep object ids correlated with its own message-id
// sequence across a reconnect.
func (fr *Fragmenter) SetNextObjectID(id uint64) {
	fr.nextObjectID = id
}

// Fragment splits msg into fragments no larger than maxBlob bytes each (the
// last may be shorter), in [1, len(msg)] chunks. maxBlob must be at least 1;
// a zero-length msg still produces exactly one fragment (S=1, E=1, empty
// blob), matching an empty PSRP message.
func (fr *Fragmenter) Fragment(msg []byte, maxBlob int) ([]Fragment, error) {
	if maxBlob < 1 {
		return nil, fmt.Errorf("fragment: max_blob must be >= 1, got %d", maxBlob)
	}

	objectID := fr.nextObjectID
	fr.nextObjectID++

	if len(msg) == 0 {
		return []Fragment{{ObjectID: objectID, FragmentID: 0, Start: true, End: true}}, nil
	}

	var frags []Fragment
	var fragmentID uint64
	for offset := 0; offset < len(msg); {
		end := offset + maxBlob
		if end > len(msg) {
			end = len(msg)
		}
		frags = append(frags, Fragment{
			ObjectID:   objectID,
			FragmentID: fragmentID,
			Start:      fragmentID == 0,
			End:        end == len(msg),
			Blob:       msg[offset:end],
		})
		fragmentID++
		offset = end
	}
	return frags, nil
}
