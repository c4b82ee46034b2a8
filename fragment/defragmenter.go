package fragment

import "fmt"

// ProtocolError reports a fragment sequence violation: out-of-order
// fragment_id, a second S=1 for an object already in progress, E without a
// preceding S, or a length mismatch. Callers should treat this as fatal for
// the connection, per [MS-PSRP]'s framing guarantees.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "fragment: protocol error: " + e.Reason }

type objectState struct {
	nextFragmentID uint64
	buf            []byte
}

// Defragmenter reassembles a fragment stream back into complete PSRP
// messages, tracking state per object_id. It does not reject a new object
// that starts while another is still in progress, so fragments of different
// objects may interleave; a start fragment is rejected only when its
// object_id is not above every object_id started before it.
type Defragmenter struct {
	objects map[uint64]*objectState

	// maxObjectID and haveMax track the high-water mark of every object_id
	// ever started (completed or in progress). object_id is required to be
	// strictly monotonic per sender (§4.2), so once an id has been started
	// and dropped from objects on E=1, seeing it again as a fresh start is a
	// protocol violation, not a new object — it can only mean the sender
	// reused (or a corrupted stream replayed) a completed object_id.
	maxObjectID uint64
	haveMax     bool
}

// NewDefragmenter returns an empty Defragmenter.
func NewDefragmenter() *Defragmenter {
	return &Defragmenter{objects: make(map[uint64]*objectState)}
}

// Add feeds one fragment into the reassembly state. It returns the complete
// message bytes and true when f was the terminal (E=1) fragment of its
// object; otherwise it returns (nil, false, nil) and the caller should keep
// feeding fragments.
func (d *Defragmenter) Add(f Fragment) ([]byte, bool, error) {
	st, exists := d.objects[f.ObjectID]

	if f.FragmentID == 0 {
		if !f.Start {
			return nil, false, &ProtocolError{Reason: fmt.Sprintf("object %d: fragment 0 missing S bit", f.ObjectID)}
		}
		if exists {
			return nil, false, &ProtocolError{Reason: fmt.Sprintf("object %d: duplicate start fragment", f.ObjectID)}
		}
		if d.haveMax && f.ObjectID <= d.maxObjectID {
			return nil, false, &ProtocolError{Reason: fmt.Sprintf("object %d: duplicate object_id reused after completion", f.ObjectID)}
		}
		d.maxObjectID = f.ObjectID
		d.haveMax = true
		st = &objectState{nextFragmentID: 1, buf: append([]byte(nil), f.Blob...)}
		d.objects[f.ObjectID] = st
	} else {
		if f.Start {
			return nil, false, &ProtocolError{Reason: fmt.Sprintf("object %d: S bit set on non-zero fragment_id %d", f.ObjectID, f.FragmentID)}
		}
		if !exists {
			return nil, false, &ProtocolError{Reason: fmt.Sprintf("object %d: fragment %d received with no start fragment", f.ObjectID, f.FragmentID)}
		}
		if f.FragmentID != st.nextFragmentID {
			return nil, false, &ProtocolError{Reason: fmt.Sprintf("object %d: expected fragment_id %d, got %d", f.ObjectID, st.nextFragmentID, f.FragmentID)}
		}
		st.buf = append(st.buf, f.Blob...)
		st.nextFragmentID++
	}

	if f.End {
		msg := st.buf
		delete(d.objects, f.ObjectID)
		return msg, true, nil
	}
	return nil, false, nil
}

// Feed decodes and adds every fragment found in data (which may hold one or
// more whole fragments back-to-back, as a connection's raw byte stream
// would), returning every PSRP message completed along the way in arrival
// order, and the number of trailing bytes left over (a partial fragment
// header/blob still waiting on more data).
func (d *Defragmenter) Feed(data []byte) ([][]byte, int, error) {
	var messages [][]byte
	offset := 0
	for offset < len(data) {
		f, n, err := Decode(data[offset:])
		if err != nil {
			// Not necessarily fatal: may just be a partial read waiting on
			// more bytes from the transport.
			return messages, len(data) - offset, nil
		}
		msg, done, err := d.Add(f)
		if err != nil {
			return messages, 0, err
		}
		if done {
			messages = append(messages, msg)
		}
		offset += n
	}
	return messages, 0, nil
}
