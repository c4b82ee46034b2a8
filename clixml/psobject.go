package clixml

// Property is a single named value inside a property bag. Order is
// significant: PSRP property bags are ordered mappings, and round-tripping
// must preserve the order the server sent them in.
type Property struct {
	Name  string
	Value Value
}

// PropertyBag is an ordered name->value mapping, used for both the Adapted
// ("Props") and Extended ("MS") property sets of a PSObject.
type PropertyBag struct {
	entries []Property
	index   map[string]int
}

// Set adds or replaces a property, preserving first-insertion order.
func (b *PropertyBag) Set(name string, v Value) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[name]; ok {
		b.entries[i].Value = v
		return
	}
	b.index[name] = len(b.entries)
	b.entries = append(b.entries, Property{Name: name, Value: v})
}

// Get looks up a property by name.
func (b *PropertyBag) Get(name string) (Value, bool) {
	if b == nil || b.index == nil {
		return nil, false
	}
	i, ok := b.index[name]
	if !ok {
		return nil, false
	}
	return b.entries[i].Value, true
}

// Len returns the number of properties in the bag.
func (b *PropertyBag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// All returns the properties in insertion order. Callers must not mutate the
// returned slice.
func (b *PropertyBag) All() []Property {
	if b == nil {
		return nil
	}
	return b.entries
}

// CollectionKind distinguishes the PSObject collection specializations from
// a plain complex object.
type CollectionKind int

const (
	// CollectionNone means the PSObject is not a collection.
	CollectionNone CollectionKind = iota
	CollectionList
	CollectionStack
	CollectionQueue
	CollectionDictionary
	CollectionEnumerable
)

// DictionaryEntry is one Key/Value pair of a PSRP dictionary ("DCT").
type DictionaryEntry struct {
	Key   Value
	Value Value
}

// PSObject is the general complex-type value: an ordered type-name chain
// (most-derived first), adapted/extended property bags, optional ToString
// text, an optional primitive base value (when the object wraps a
// primitive, e.g. an enum backed by an Int32), and an optional collection
// payload. List/Stack/Queue/Dictionary/enumerable values are PSObject
// specializations distinguished by Collection.
type PSObject struct {
	// RefID is assigned by the serializer/deserializer for this pass; it is
	// not part of the logical value and is not compared by tests that build
	// PSObjects by hand.
	RefID int64

	TypeNames []string
	Adapted   PropertyBag
	Extended  PropertyBag

	// ToStringValue holds the <ToString> text, if the server/client supplied
	// one. HasToString distinguishes "no ToString element" from "ToString
	// value is the empty string".
	ToStringValue string
	HasToString   bool

	// BaseValue is set when this object decorates a primitive (for example
	// an error record's enum category, or any object created from a
	// primitive base with extended properties attached).
	BaseValue Value

	Collection CollectionKind
	Elements   []Value           // List / Stack / Queue / IEnumerable
	Dict       []DictionaryEntry // Dictionary

	// Unparsed holds raw inner XML for child elements the deserializer did
	// not recognize, keyed by their position among Obj's unrecognized
	// children. This lets round trips through unknown extension types avoid
	// data loss instead of failing outright.
	Unparsed []string
}

// NewPSObject returns an empty PSObject with the given most-derived-first
// type name chain.
func NewPSObject(typeNames ...string) *PSObject {
	return &PSObject{TypeNames: typeNames}
}

// MostDerivedType returns the first (most specific) type name, or "" if the
// object has no type-name chain (an anonymous/base object).
func (o *PSObject) MostDerivedType() string {
	if len(o.TypeNames) == 0 {
		return ""
	}
	return o.TypeNames[0]
}

// Members returns the union of Adapted and Extended properties, Extended
// taking precedence on name collision, matching PSRP member-resolution
// order used for host dispatch.
func (o *PSObject) Members() map[string]Value {
	m := make(map[string]Value, o.Adapted.Len()+o.Extended.Len())
	for _, p := range o.Adapted.All() {
		m[p.Name] = p.Value
	}
	for _, p := range o.Extended.All() {
		m[p.Name] = p.Value
	}
	return m
}
