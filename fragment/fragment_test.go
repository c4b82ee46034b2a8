package fragment

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentEncodeDecodeRoundTrip(t *testing.T) {
	f := Fragment{ObjectID: 5, FragmentID: 2, Start: false, End: true, Blob: []byte("hello")}
	wire := f.Encode()
	assert.Len(t, wire, HeaderSize+len("hello"))

	got, n, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, f, got)
}

func TestFragmenterSingleFragment(t *testing.T) {
	fr := NewFragmenter()
	frags, err := fr.Fragment([]byte("small message"), 1024)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.True(t, frags[0].Start)
	assert.True(t, frags[0].End)
	assert.Equal(t, uint64(0), frags[0].FragmentID)
}

func TestFragmenterMultipleFragments(t *testing.T) {
	fr := NewFragmenter()
	msg := bytes.Repeat([]byte("x"), 25)
	frags, err := fr.Fragment(msg, 10)
	require.NoError(t, err)
	require.Len(t, frags, 3)
	assert.True(t, frags[0].Start)
	assert.False(t, frags[0].End)
	assert.False(t, frags[1].Start)
	assert.False(t, frags[1].End)
	assert.False(t, frags[2].Start)
	assert.True(t, frags[2].End)

	var reassembled []byte
	for _, f := range frags {
		reassembled = append(reassembled, f.Blob...)
	}
	assert.Equal(t, msg, reassembled)
}

// TestFragmentationPropertyHolds is the general form of spec property 4:
// for any message and any legal max_blob, fragment concatenation reproduces
// the original bytes, S=1 on the first fragment, E=1 on the last, and
// fragment_ids run 0..k.
func TestFragmentationPropertyHolds(t *testing.T) {
	msg := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to pad this out")
	for maxBlob := 1; maxBlob <= len(msg); maxBlob++ {
		fr := NewFragmenter()
		frags, err := fr.Fragment(msg, maxBlob)
		require.NoError(t, err)

		var reassembled []byte
		for i, f := range frags {
			assert.Equal(t, uint64(i), f.FragmentID)
			assert.Equal(t, i == 0, f.Start)
			assert.Equal(t, i == len(frags)-1, f.End)
			reassembled = append(reassembled, f.Blob...)
		}
		assert.Equal(t, msg, reassembled, "maxBlob=%d", maxBlob)
	}
}

func TestFragmenterObjectIDsMonotonic(t *testing.T) {
	fr := NewFragmenter()
	f1, err := fr.Fragment([]byte("a"), 10)
	require.NoError(t, err)
	f2, err := fr.Fragment([]byte("b"), 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f1[0].ObjectID)
	assert.Equal(t, uint64(1), f2[0].ObjectID)
}

func TestDefragmenterReassemblesAcrossFragments(t *testing.T) {
	fr := NewFragmenter()
	msg := []byte("a longer payload that needs splitting across fragments")
	frags, err := fr.Fragment(msg, 12)
	require.NoError(t, err)

	d := NewDefragmenter()
	var got []byte
	var done bool
	for _, f := range frags {
		got, done, err = d.Add(f)
		require.NoError(t, err)
	}
	assert.True(t, done)
	assert.Equal(t, msg, got)
}

func TestDefragmenterFeedHandlesWireBytes(t *testing.T) {
	fr := NewFragmenter()
	msg1Frags, err := fr.Fragment([]byte("message one"), 6)
	require.NoError(t, err)
	msg2Frags, err := fr.Fragment([]byte("message two, a bit longer"), 9)
	require.NoError(t, err)

	var wire []byte
	for _, f := range msg1Frags {
		wire = append(wire, f.Encode()...)
	}
	for _, f := range msg2Frags {
		wire = append(wire, f.Encode()...)
	}

	d := NewDefragmenter()
	msgs, leftover, err := d.Feed(wire)
	require.NoError(t, err)
	assert.Equal(t, 0, leftover)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("message one"), msgs[0])
	assert.Equal(t, []byte("message two, a bit longer"), msgs[1])
}

func TestDefragmenterFeedPartialTrailer(t *testing.T) {
	fr := NewFragmenter()
	frags, err := fr.Fragment([]byte("whole message"), 100)
	require.NoError(t, err)
	wire := frags[0].Encode()

	d := NewDefragmenter()
	msgs, leftover, err := d.Feed(wire[:10])
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 10, leftover)
}

func TestDefragmenterRejectsOutOfOrderFragmentID(t *testing.T) {
	d := NewDefragmenter()
	_, _, err := d.Add(Fragment{ObjectID: 1, FragmentID: 0, Start: true, Blob: []byte("a")})
	require.NoError(t, err)
	_, _, err = d.Add(Fragment{ObjectID: 1, FragmentID: 2, Blob: []byte("c")})
	require.Error(t, err)
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestDefragmenterRejectsStartOnNonZeroFragmentID(t *testing.T) {
	d := NewDefragmenter()
	_, _, err := d.Add(Fragment{ObjectID: 1, FragmentID: 1, Start: true, Blob: []byte("a")})
	require.Error(t, err)
}

func TestDefragmenterRejectsDuplicateStart(t *testing.T) {
	d := NewDefragmenter()
	_, _, err := d.Add(Fragment{ObjectID: 1, FragmentID: 0, Start: true, End: false, Blob: []byte("a")})
	require.NoError(t, err)
	_, _, err = d.Add(Fragment{ObjectID: 1, FragmentID: 0, Start: true, Blob: []byte("b")})
	require.Error(t, err)
}

func TestDefragmenterRejectsFragmentWithNoStart(t *testing.T) {
	d := NewDefragmenter()
	_, _, err := d.Add(Fragment{ObjectID: 9, FragmentID: 1, Blob: []byte("orphan")})
	require.Error(t, err)
}

func TestDefragmenterRejectsObjectIDReuseAfterCompletion(t *testing.T) {
	d := NewDefragmenter()
	_, done, err := d.Add(Fragment{ObjectID: 3, FragmentID: 0, Start: true, End: true, Blob: []byte("a")})
	require.NoError(t, err)
	require.True(t, done)

	// Same object_id restarting at fragment_id 0 must be rejected even
	// though the prior object already completed and was removed from the
	// in-progress map.
	_, _, err = d.Add(Fragment{ObjectID: 3, FragmentID: 0, Start: true, Blob: []byte("b")})
	require.Error(t, err)
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestDefragmenterAcceptsMonotonicObjectIDsAfterCompletion(t *testing.T) {
	d := NewDefragmenter()
	_, done, err := d.Add(Fragment{ObjectID: 3, FragmentID: 0, Start: true, End: true, Blob: []byte("a")})
	require.NoError(t, err)
	require.True(t, done)

	_, done, err = d.Add(Fragment{ObjectID: 4, FragmentID: 0, Start: true, End: true, Blob: []byte("b")})
	require.NoError(t, err)
	require.True(t, done)
}
