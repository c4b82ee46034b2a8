package serialization

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/smnsjas/go-psrpcore/clixml"
)

// clixmlNamespace is the xmlns carried on every <Objs> root element.
const clixmlNamespace = "http://schemas.microsoft.com/powershell/2004/04"

// maxDepth guards against pathological (not necessarily cyclic) nesting;
// legitimate PSRP traffic never approaches this, and the ref table already
// makes true cycles terminate in O(1) per repeated node.
const maxDepth = 4096

// Serializer converts clixml.Value graphs to CLIXML. One Serializer
// instance is scoped to one top-level document: construct a fresh one per
// PSRP message.
type Serializer struct {
	refs *refTable
}

// NewSerializer returns a Serializer with a fresh reference table.
func NewSerializer() *Serializer {
	return &Serializer{refs: newRefTable()}
}

// Serialize encodes one or more top-level values as a single <Objs>
// document, per [MS-PSRP] §2.2.5's CLIXML root element. Each value may be a
// clixml.Value directly, or a plain Go value (string, bool, the sized
// int/uint/float kinds, []byte, or nil), which is mapped to its CLIXML
// primitive equivalent; this lets callers building PSRP messages (pipeline
// state, simple output records) pass native literals without constructing
// clixml.Value wrappers by hand.
func (s *Serializer) Serialize(values ...interface{}) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<Objs Version="1.1.0.1" xmlns="%s">`, clixmlNamespace)
	for _, raw := range values {
		v, err := toClixmlValue(raw)
		if err != nil {
			return nil, err
		}
		if err := s.encode(&buf, v, "", 0); err != nil {
			return nil, err
		}
	}
	buf.WriteString("</Objs>")
	return buf.Bytes(), nil
}

// toClixmlValue normalizes a Serialize argument to a clixml.Value.
func toClixmlValue(raw interface{}) (clixml.Value, error) {
	if raw == nil {
		return clixml.Null{}, nil
	}
	if v, ok := raw.(clixml.Value); ok {
		return v, nil
	}
	switch t := raw.(type) {
	case string:
		return clixml.String(t), nil
	case bool:
		return clixml.Bool(t), nil
	case int8:
		return clixml.SByte(t), nil
	case uint8:
		return clixml.Byte(t), nil
	case int16:
		return clixml.Int16(t), nil
	case uint16:
		return clixml.UInt16(t), nil
	case int32:
		return clixml.Int32(t), nil
	case uint32:
		return clixml.UInt32(t), nil
	case int64:
		return clixml.Int64(t), nil
	case uint64:
		return clixml.UInt64(t), nil
	case int:
		return clixml.Int32(int32(t)), nil
	case float32:
		return clixml.Single(t), nil
	case float64:
		return clixml.Double(t), nil
	case []byte:
		return clixml.ByteArray(t), nil
	default:
		return nil, newError(KindMalformedDocument, fmt.Sprintf("cannot serialize native type %T; construct a clixml.Value", raw))
	}
}

// nameAttr renders the optional N="propName" attribute used inside Props/MS
// bags; top-level and collection-element values carry no name attribute.
func nameAttr(name string) string {
	if name == "" {
		return ""
	}
	return fmt.Sprintf(` N="%s"`, escapeString(name))
}

func (s *Serializer) encode(buf *bytes.Buffer, v clixml.Value, name string, depth int) error {
	if depth > maxDepth {
		return newError(KindCycleLimitExceeded, "serialization depth limit exceeded")
	}

	switch val := v.(type) {
	case nil:
		fmt.Fprintf(buf, "<Nil%s/>", nameAttr(name))
	case clixml.Null:
		fmt.Fprintf(buf, "<Nil%s/>", nameAttr(name))
	case clixml.String:
		fmt.Fprintf(buf, "<S%s>%s</S>", nameAttr(name), escapeString(string(val)))
	case clixml.ScriptBlock:
		fmt.Fprintf(buf, "<SBK%s>%s</SBK>", nameAttr(name), escapeString(string(val)))
	case clixml.XMLDocument:
		fmt.Fprintf(buf, "<XD%s>%s</XD>", nameAttr(name), escapeString(string(val)))
	case clixml.Char:
		fmt.Fprintf(buf, "<C%s>%d</C>", nameAttr(name), uint16(val))
	case clixml.Bool:
		b := "false"
		if val {
			b = "true"
		}
		fmt.Fprintf(buf, "<B%s>%s</B>", nameAttr(name), b)
	case clixml.Byte:
		fmt.Fprintf(buf, "<By%s>%d</By>", nameAttr(name), uint8(val))
	case clixml.SByte:
		fmt.Fprintf(buf, "<SB%s>%d</SB>", nameAttr(name), int8(val))
	case clixml.UInt16:
		fmt.Fprintf(buf, "<U16%s>%d</U16>", nameAttr(name), uint16(val))
	case clixml.Int16:
		fmt.Fprintf(buf, "<I16%s>%d</I16>", nameAttr(name), int16(val))
	case clixml.UInt32:
		fmt.Fprintf(buf, "<U32%s>%d</U32>", nameAttr(name), uint32(val))
	case clixml.Int32:
		fmt.Fprintf(buf, "<I32%s>%d</I32>", nameAttr(name), int32(val))
	case clixml.UInt64:
		fmt.Fprintf(buf, "<U64%s>%d</U64>", nameAttr(name), uint64(val))
	case clixml.Int64:
		fmt.Fprintf(buf, "<I64%s>%d</I64>", nameAttr(name), int64(val))
	case clixml.Single:
		fmt.Fprintf(buf, "<Sg%s>%s</Sg>", nameAttr(name), formatFloat(float64(val), 32))
	case clixml.Double:
		fmt.Fprintf(buf, "<Db%s>%s</Db>", nameAttr(name), formatFloat(float64(val), 64))
	case clixml.Decimal:
		fmt.Fprintf(buf, "<D%s>%s</D>", nameAttr(name), escapeString(string(val)))
	case clixml.ByteArray:
		fmt.Fprintf(buf, "<BA%s>%s</BA>", nameAttr(name), base64.StdEncoding.EncodeToString(val))
	case clixml.GUID:
		fmt.Fprintf(buf, "<G%s>%s</G>", nameAttr(name), val.String())
	case clixml.URI:
		fmt.Fprintf(buf, "<URI%s>%s</URI>", nameAttr(name), escapeString(string(val)))
	case clixml.Version:
		fmt.Fprintf(buf, "<Version%s>%s</Version>", nameAttr(name), val.String())
	case clixml.DateTime:
		fmt.Fprintf(buf, "<DT%s>%s</DT>", nameAttr(name), val.String())
	case clixml.Duration:
		fmt.Fprintf(buf, "<TS%s>%s</TS>", nameAttr(name), val.String())
	case clixml.SecureString:
		if val.Ciphertext == nil {
			return newError(KindSecureStringBeforeKeyExchange, "SecureString serialized before key exchange")
		}
		fmt.Fprintf(buf, "<SS%s>%s</SS>", nameAttr(name), base64.StdEncoding.EncodeToString(val.Ciphertext))
	case *clixml.PSObject:
		return s.encodeObject(buf, val, name, depth)
	default:
		return newError(KindMalformedDocument, fmt.Sprintf("unsupported value type %T", v))
	}
	return nil
}

func (s *Serializer) encodeObject(buf *bytes.Buffer, obj *clixml.PSObject, name string, depth int) error {
	refID, seen := s.refs.assignObject(obj)
	if seen {
		fmt.Fprintf(buf, `<Ref%s RefId="%d"/>`, nameAttr(name), refID)
		return nil
	}

	fmt.Fprintf(buf, `<Obj%s RefId="%d">`, nameAttr(name), refID)

	if obj.HasToString {
		fmt.Fprintf(buf, "<ToString>%s</ToString>", escapeString(obj.ToStringValue))
	}

	if len(obj.TypeNames) > 0 {
		if err := s.encodeTypeNames(buf, obj.TypeNames); err != nil {
			return err
		}
	}

	if obj.BaseValue != nil {
		if err := s.encode(buf, obj.BaseValue, "", depth+1); err != nil {
			return err
		}
	}

	switch obj.Collection {
	case clixml.CollectionList, clixml.CollectionEnumerable:
		tag := "LST"
		if obj.Collection == clixml.CollectionEnumerable {
			tag = "IE"
		}
		fmt.Fprintf(buf, "<%s>", tag)
		for _, el := range obj.Elements {
			if err := s.encode(buf, el, "", depth+1); err != nil {
				return err
			}
		}
		fmt.Fprintf(buf, "</%s>", tag)
	case clixml.CollectionStack:
		buf.WriteString("<STK>")
		for _, el := range obj.Elements {
			if err := s.encode(buf, el, "", depth+1); err != nil {
				return err
			}
		}
		buf.WriteString("</STK>")
	case clixml.CollectionQueue:
		buf.WriteString("<QUE>")
		for _, el := range obj.Elements {
			if err := s.encode(buf, el, "", depth+1); err != nil {
				return err
			}
		}
		buf.WriteString("</QUE>")
	case clixml.CollectionDictionary:
		buf.WriteString("<DCT>")
		for _, entry := range obj.Dict {
			buf.WriteString("<En>")
			if err := s.encode(buf, entry.Key, "Key", depth+1); err != nil {
				return err
			}
			if err := s.encode(buf, entry.Value, "Value", depth+1); err != nil {
				return err
			}
			buf.WriteString("</En>")
		}
		buf.WriteString("</DCT>")
	}

	if obj.Adapted.Len() > 0 {
		buf.WriteString("<Props>")
		for _, p := range obj.Adapted.All() {
			if err := s.encode(buf, p.Value, p.Name, depth+1); err != nil {
				return err
			}
		}
		buf.WriteString("</Props>")
	}

	if obj.Extended.Len() > 0 {
		buf.WriteString("<MS>")
		for _, p := range obj.Extended.All() {
			if err := s.encode(buf, p.Value, p.Name, depth+1); err != nil {
				return err
			}
		}
		buf.WriteString("</MS>")
	}

	buf.WriteString("</Obj>")
	return nil
}

func (s *Serializer) encodeTypeNames(buf *bytes.Buffer, chain []string) error {
	refID, seen := s.refs.assignTypeNames(chain)
	if seen {
		fmt.Fprintf(buf, `<TNRef RefId="%d"/>`, refID)
		return nil
	}
	fmt.Fprintf(buf, `<TN RefId="%d">`, refID)
	for _, n := range chain {
		fmt.Fprintf(buf, "<T>%s</T>", escapeString(n))
	}
	buf.WriteString("</TN>")
	return nil
}
