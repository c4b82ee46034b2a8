package serialization

import "github.com/smnsjas/go-psrpcore/clixml"

// refTable assigns monotonically increasing RefIds to *PSObject instances
// and to distinct type-name chains within a single serialization pass, and
// recognizes when an object or chain has already been emitted so the
// encoder can emit Ref/TNRef instead of re-expanding it. This is what makes
// cyclic graphs terminate: an ancestor object is already in objectRefs by
// the time its descendant tries to serialize it again.
type refTable struct {
	next        int64
	objectRefs  map[*clixml.PSObject]int64
	typeNameRef map[string]int64
}

func newRefTable() *refTable {
	return &refTable{
		objectRefs:  make(map[*clixml.PSObject]int64),
		typeNameRef: make(map[string]int64),
	}
}

// assignObject returns (refID, alreadySeen). If this is the first time obj
// is encountered, it is recorded immediately (before recursing into its
// children) so a self-reference discovered while serializing those children
// resolves to this same RefId.
func (t *refTable) assignObject(obj *clixml.PSObject) (int64, bool) {
	if id, ok := t.objectRefs[obj]; ok {
		return id, true
	}
	id := t.next
	t.next++
	t.objectRefs[obj] = id
	return id, false
}

// typeNameChainKey joins a type-name chain into a table key. Two objects
// with the same chain share one TN record via TNRef.
func typeNameChainKey(chain []string) string {
	key := ""
	for i, n := range chain {
		if i > 0 {
			key += "\x00"
		}
		key += n
	}
	return key
}

// assignTypeNames returns (refID, alreadySeen) for a type-name chain.
func (t *refTable) assignTypeNames(chain []string) (int64, bool) {
	key := typeNameChainKey(chain)
	if id, ok := t.typeNameRef[key]; ok {
		return id, true
	}
	id := t.next
	t.next++
	t.typeNameRef[key] = id
	return id, false
}
