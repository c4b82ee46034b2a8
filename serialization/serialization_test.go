package serialization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-psrpcore/clixml"
)

func roundTrip(t *testing.T, v clixml.Value) clixml.Value {
	t.Helper()
	doc, err := NewSerializer().Serialize(v)
	require.NoError(t, err)
	out, err := NewDeserializer().DeserializeOne(doc)
	require.NoError(t, err)
	return out
}

func TestPrimitiveRoundTrip(t *testing.T) {
	cases := []clixml.Value{
		clixml.String("hello world"),
		clixml.Bool(true),
		clixml.Bool(false),
		clixml.Int32(-42),
		clixml.UInt64(18446744073709551615),
		clixml.Double(3.14159),
		clixml.Single(2.5),
		clixml.Null{},
	}
	for _, c := range cases {
		out := roundTrip(t, c)
		assert.Equal(t, c, out)
	}
}

func TestStringEscapesControlAndSurrogatePairs(t *testing.T) {
	s := clixml.String("tab\there\nnewline\x01control\U0001F600emoji")
	out := roundTrip(t, s)
	assert.Equal(t, s, out)
}

func TestStringLiteralEscapeLookalikeDisambiguated(t *testing.T) {
	s := clixml.String("literal _x0041_ text")
	doc, err := NewSerializer().Serialize(s)
	require.NoError(t, err)
	out, err := NewDeserializer().DeserializeOne(doc)
	require.NoError(t, err)
	assert.Equal(t, s, out)
}

func TestFloatSpecialValuesRoundTrip(t *testing.T) {
	for _, f := range []float64{
		0,
		-0.0,
		1.0 / 3.0,
		math.Inf(1),
		math.Inf(-1),
	} {
		out := roundTrip(t, clixml.Double(f))
		assert.Equal(t, clixml.Double(f), out)
	}
	out := roundTrip(t, clixml.Double(math.NaN()))
	assert.True(t, math.IsNaN(float64(out.(clixml.Double))))
}

func TestByteArrayRoundTrip(t *testing.T) {
	b := clixml.ByteArray{0x00, 0x01, 0xFF, 0x10, 0x20}
	out := roundTrip(t, b)
	assert.Equal(t, b, out)
}

func TestGUIDVersionDurationDateTimeRoundTrip(t *testing.T) {
	g, err := clixml.ParseGUID("3f2504e0-4f89-11d3-9a0c-0305e82c3301")
	require.NoError(t, err)
	out := roundTrip(t, g)
	assert.Equal(t, g, out)

	v, err := clixml.ParseVersion("7.4.1")
	require.NoError(t, err)
	out = roundTrip(t, v)
	assert.Equal(t, v, out)

	dur, err := clixml.ParseDuration("1.02:03:04.1234567")
	require.NoError(t, err)
	out = roundTrip(t, dur)
	assert.Equal(t, dur, out)
}

func TestSimplePSObjectRoundTrip(t *testing.T) {
	obj := clixml.NewPSObject("System.Management.Automation.PSCustomObject", "System.Object")
	obj.HasToString = true
	obj.ToStringValue = "custom object"
	obj.Adapted.Set("Name", clixml.String("widget"))
	obj.Adapted.Set("Count", clixml.Int32(3))

	out := roundTrip(t, obj)
	got, ok := out.(*clixml.PSObject)
	require.True(t, ok)
	assert.Equal(t, obj.TypeNames, got.TypeNames)
	assert.Equal(t, obj.ToStringValue, got.ToStringValue)
	name, ok := got.Adapted.Get("Name")
	require.True(t, ok)
	assert.Equal(t, clixml.String("widget"), name)
	count, ok := got.Adapted.Get("Count")
	require.True(t, ok)
	assert.Equal(t, clixml.Int32(3), count)
}

func TestCollectionRoundTrip(t *testing.T) {
	obj := clixml.NewPSObject("System.Collections.ArrayList")
	obj.Collection = clixml.CollectionList
	obj.Elements = []clixml.Value{clixml.Int32(1), clixml.Int32(2), clixml.String("three")}

	out := roundTrip(t, obj)
	got, ok := out.(*clixml.PSObject)
	require.True(t, ok)
	require.Len(t, got.Elements, 3)
	assert.Equal(t, clixml.Int32(1), got.Elements[0])
	assert.Equal(t, clixml.String("three"), got.Elements[2])
}

func TestDictionaryRoundTrip(t *testing.T) {
	obj := clixml.NewPSObject("System.Collections.Hashtable")
	obj.Collection = clixml.CollectionDictionary
	obj.Dict = []clixml.DictionaryEntry{
		{Key: clixml.String("a"), Value: clixml.Int32(1)},
		{Key: clixml.String("b"), Value: clixml.String("two")},
	}

	out := roundTrip(t, obj)
	got, ok := out.(*clixml.PSObject)
	require.True(t, ok)
	require.Len(t, got.Dict, 2)
	assert.Equal(t, clixml.String("a"), got.Dict[0].Key)
	assert.Equal(t, clixml.String("two"), got.Dict[1].Value)
}

// TestCyclicGraphTerminates verifies a self-referencing object serializes
// to a bounded document (via Ref) rather than recursing forever, and that
// the deserializer reconstructs the identical cycle.
func TestCyclicGraphTerminates(t *testing.T) {
	obj := clixml.NewPSObject("Cyclic")
	obj.Adapted.Set("Self", obj)

	doc, err := NewSerializer().Serialize(obj)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "<Ref")

	out, err := NewDeserializer().DeserializeOne(doc)
	require.NoError(t, err)
	got, ok := out.(*clixml.PSObject)
	require.True(t, ok)
	self, ok := got.Adapted.Get("Self")
	require.True(t, ok)
	assert.Same(t, got, self)
}

// TestSharedReferenceDeduped verifies two fields pointing at the same
// object emit one Obj and one Ref, and decode back to the same pointer.
func TestSharedReferenceDeduped(t *testing.T) {
	shared := clixml.NewPSObject("Shared")
	shared.Adapted.Set("Value", clixml.Int32(7))

	parent := clixml.NewPSObject("Parent")
	parent.Adapted.Set("A", shared)
	parent.Adapted.Set("B", shared)

	doc, err := NewSerializer().Serialize(parent)
	require.NoError(t, err)

	out, err := NewDeserializer().DeserializeOne(doc)
	require.NoError(t, err)
	got := out.(*clixml.PSObject)
	a, _ := got.Adapted.Get("A")
	b, _ := got.Adapted.Get("B")
	assert.Same(t, a, b)
}

func TestUnknownTopLevelTagIsProtocolError(t *testing.T) {
	_, err := NewDeserializer().Deserialize([]byte(`<Objs Version="1.1.0.1" xmlns="http://schemas.microsoft.com/powershell/2004/04"><Bogus>x</Bogus></Objs>`))
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindUnknownTag, serr.Kind)
}

func TestUnknownObjChildDegradesToUnparsed(t *testing.T) {
	doc := `<Objs Version="1.1.0.1" xmlns="http://schemas.microsoft.com/powershell/2004/04">` +
		`<Obj RefId="0"><TN RefId="0"><T>Custom</T></TN><FutureExtension>unsupported</FutureExtension></Obj></Objs>`
	out, err := NewDeserializer().DeserializeOne([]byte(doc))
	require.NoError(t, err)
	obj, ok := out.(*clixml.PSObject)
	require.True(t, ok)
	// The unrecognized element is a direct child of a known Obj, so it
	// degrades to raw XML rather than failing the whole document.
	require.Len(t, obj.Unparsed, 1)
	assert.Contains(t, obj.Unparsed[0], "FutureExtension")
}

func TestSecureStringRequiresKeyExchange(t *testing.T) {
	_, err := EncryptSecureString(nil, "hunter2")
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindSecureStringBeforeKeyExchange, serr.Kind)

	_, err = NewSerializer().Serialize(clixml.SecureString{})
	require.Error(t, err)
}

func TestSecureStringRoundTripThroughSessionKey(t *testing.T) {
	pair, err := GenerateSessionKeyPair()
	require.NoError(t, err)

	// Simulate the server encrypting a session key to our public key: here
	// we just exercise decrypt/encrypt symmetry directly since this package
	// owns both halves for test purposes.
	aesKey := make([]byte, 16)
	for i := range aesKey {
		aesKey[i] = byte(i)
	}
	key := &SessionKey{aesKey: aesKey}

	ss, err := EncryptSecureString(key, "correct horse battery staple")
	require.NoError(t, err)
	require.NotNil(t, ss.Ciphertext)

	plain, err := DecryptSecureString(key, ss)
	require.NoError(t, err)
	assert.Equal(t, "correct horse battery staple", plain)

	_ = pair // keypair generation exercised above; wrapping to it is covered by DecryptSessionKey in integration paths.
}

func TestMultipleTopLevelValues(t *testing.T) {
	doc, err := NewSerializer().Serialize(clixml.String("first"), clixml.Int32(2))
	require.NoError(t, err)
	values, err := NewDeserializer().Deserialize(doc)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, clixml.String("first"), values[0])
	assert.Equal(t, clixml.Int32(2), values[1])
}
