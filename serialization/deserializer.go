package serialization

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/smnsjas/go-psrpcore/clixml"
)

// Deserializer converts CLIXML back to clixml.Value graphs. Like
// Serializer, one instance is scoped to one top-level document.
type Deserializer struct {
	objectRefs map[int64]*clixml.PSObject
	typeRefs   map[int64][]string
}

// NewDeserializer returns a Deserializer with fresh reference tables.
func NewDeserializer() *Deserializer {
	return &Deserializer{
		objectRefs: make(map[int64]*clixml.PSObject),
		typeRefs:   make(map[int64][]string),
	}
}

// Deserialize parses a <Objs> document and returns its top-level values in
// document order.
func (d *Deserializer) Deserialize(data []byte) ([]clixml.Value, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	// Find the Objs root.
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "reading CLIXML root", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			if se.Name.Local != "Objs" {
				return nil, newError(KindMalformedDocument, "expected <Objs> root, got <"+se.Name.Local+">")
			}
			break
		}
	}

	var values []clixml.Value
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "reading CLIXML body", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			v, err := d.decodeValue(dec, t)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		case xml.EndElement:
			if t.Name.Local == "Objs" {
				return values, nil
			}
		}
	}
}

// DeserializeOne is a convenience wrapper for documents known to carry
// exactly one top-level value.
func (d *Deserializer) DeserializeOne(data []byte) (clixml.Value, error) {
	values, err := d.Deserialize(data)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, newError(KindMalformedDocument, "CLIXML document carried no top-level value")
	}
	return values[0], nil
}

func getAttr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (d *Deserializer) decodeValue(dec *xml.Decoder, start xml.StartElement) (clixml.Value, error) {
	tag := clixml.Tag(start.Name.Local)

	if tag == clixml.TagRef {
		skipToEnd(dec, start)
		refAttr, ok := getAttr(start, "RefId")
		if !ok {
			return nil, newError(KindMalformedDocument, "Ref element missing RefId")
		}
		id, err := strconv.ParseInt(refAttr, 10, 64)
		if err != nil {
			return nil, wrapError(KindMalformedDocument, "Ref RefId not numeric", err)
		}
		obj, ok := d.objectRefs[id]
		if !ok {
			return nil, newError(KindMalformedDocument, fmt.Sprintf("Ref to unseen RefId %d", id))
		}
		return obj, nil
	}

	if tag == clixml.TagObject {
		return d.decodeObject(dec, start)
	}

	if clixml.IsPrimitiveTag(tag) {
		return d.decodePrimitive(dec, start, tag)
	}

	// Unknown tag in a non-Obj-wrapped position is a protocol error: only
	// children of a known Obj may degrade to raw XML.
	raw, err := captureInnerXML(dec, start)
	if err != nil {
		return nil, err
	}
	return nil, newError(KindUnknownTag, fmt.Sprintf("unrecognized CLIXML tag <%s>: %s", tag, raw))
}

func (d *Deserializer) decodePrimitive(dec *xml.Decoder, start xml.StartElement, tag clixml.Tag) (clixml.Value, error) {
	if tag == clixml.TagNil {
		skipToEnd(dec, start)
		return clixml.Null{}, nil
	}

	text, err := readText(dec, start)
	if err != nil {
		return nil, err
	}

	switch tag {
	case clixml.TagString:
		s, err := unescapeString(text)
		if err != nil {
			return nil, err
		}
		return clixml.String(s), nil
	case clixml.TagScriptBlock:
		s, err := unescapeString(text)
		if err != nil {
			return nil, err
		}
		return clixml.ScriptBlock(s), nil
	case clixml.TagXMLDocument:
		s, err := unescapeString(text)
		if err != nil {
			return nil, err
		}
		return clixml.XMLDocument(s), nil
	case clixml.TagChar:
		n, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "bad Char value", err)
		}
		c, cerr := clixml.NewChar(uint32(n))
		if cerr != nil {
			return nil, wrapError(KindTypeRangeOverflow, "Char out of range", cerr)
		}
		return c, nil
	case clixml.TagBool:
		return clixml.Bool(text == "true"), nil
	case clixml.TagByte:
		n, err := strconv.ParseUint(text, 10, 8)
		if err != nil {
			return nil, wrapError(KindTypeRangeOverflow, "Byte out of range", err)
		}
		return clixml.Byte(n), nil
	case clixml.TagSByte:
		n, err := strconv.ParseInt(text, 10, 8)
		if err != nil {
			return nil, wrapError(KindTypeRangeOverflow, "SByte out of range", err)
		}
		return clixml.SByte(n), nil
	case clixml.TagUInt16:
		n, err := strconv.ParseUint(text, 10, 16)
		if err != nil {
			return nil, wrapError(KindTypeRangeOverflow, "UInt16 out of range", err)
		}
		return clixml.UInt16(n), nil
	case clixml.TagInt16:
		n, err := strconv.ParseInt(text, 10, 16)
		if err != nil {
			return nil, wrapError(KindTypeRangeOverflow, "Int16 out of range", err)
		}
		return clixml.Int16(n), nil
	case clixml.TagUInt32:
		n, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return nil, wrapError(KindTypeRangeOverflow, "UInt32 out of range", err)
		}
		return clixml.UInt32(n), nil
	case clixml.TagInt32:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, wrapError(KindTypeRangeOverflow, "Int32 out of range", err)
		}
		return clixml.Int32(n), nil
	case clixml.TagUInt64:
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return nil, wrapError(KindTypeRangeOverflow, "UInt64 out of range", err)
		}
		return clixml.UInt64(n), nil
	case clixml.TagInt64:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, wrapError(KindTypeRangeOverflow, "Int64 out of range", err)
		}
		return clixml.Int64(n), nil
	case clixml.TagSingle:
		f, err := parseFloat(text, 32)
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "bad Single value", err)
		}
		return clixml.Single(f), nil
	case clixml.TagDouble:
		f, err := parseFloat(text, 64)
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "bad Double value", err)
		}
		return clixml.Double(f), nil
	case clixml.TagDecimal:
		s, err := unescapeString(text)
		if err != nil {
			return nil, err
		}
		return clixml.Decimal(s), nil
	case clixml.TagByteArray:
		b, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "bad base64 in BA", err)
		}
		return clixml.ByteArray(b), nil
	case clixml.TagGUID:
		g, err := clixml.ParseGUID(text)
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "bad GUID", err)
		}
		return g, nil
	case clixml.TagURI:
		s, err := unescapeString(text)
		if err != nil {
			return nil, err
		}
		return clixml.URI(s), nil
	case clixml.TagVersion:
		v, err := clixml.ParseVersion(text)
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "bad Version", err)
		}
		return v, nil
	case clixml.TagDateTime:
		dt, err := clixml.ParseDateTime(text)
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "bad DateTime", err)
		}
		return dt, nil
	case clixml.TagDuration:
		dur, err := clixml.ParseDuration(text)
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "bad Duration", err)
		}
		return dur, nil
	case clixml.TagSecureString:
		b, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "bad base64 in SS", err)
		}
		return clixml.SecureString{Ciphertext: b}, nil
	default:
		return nil, newError(KindUnknownTag, "unhandled primitive tag "+string(tag))
	}
}

func (d *Deserializer) decodeObject(dec *xml.Decoder, start xml.StartElement) (*clixml.PSObject, error) {
	obj := &clixml.PSObject{}

	var refID int64 = -1
	if attr, ok := getAttr(start, "RefId"); ok {
		id, err := strconv.ParseInt(attr, 10, 64)
		if err != nil {
			return nil, wrapError(KindMalformedDocument, "Obj RefId not numeric", err)
		}
		refID = id
		obj.RefID = id
		d.objectRefs[id] = obj // register before recursing, so a cycle resolves.
	}

	sawValueChild := false

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "reading Obj body", err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "Obj" {
				_ = refID
				return obj, nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "ToString":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				s, err := unescapeString(text)
				if err != nil {
					return nil, err
				}
				obj.ToStringValue = s
				obj.HasToString = true
			case "TN":
				chain, tnRefID, err := d.decodeTypeNames(dec, t)
				if err != nil {
					return nil, err
				}
				obj.TypeNames = chain
				d.typeRefs[tnRefID] = chain
			case "TNRef":
				skipToEnd(dec, t)
				attr, ok := getAttr(t, "RefId")
				if !ok {
					return nil, newError(KindMalformedDocument, "TNRef missing RefId")
				}
				id, err := strconv.ParseInt(attr, 10, 64)
				if err != nil {
					return nil, wrapError(KindMalformedDocument, "TNRef RefId not numeric", err)
				}
				chain, ok := d.typeRefs[id]
				if !ok {
					return nil, newError(KindMalformedDocument, fmt.Sprintf("TNRef to unseen RefId %d", id))
				}
				obj.TypeNames = chain
			case "Props":
				bag, err := d.decodePropertyBag(dec, t)
				if err != nil {
					return nil, err
				}
				obj.Adapted = bag
			case "MS":
				bag, err := d.decodePropertyBag(dec, t)
				if err != nil {
					return nil, err
				}
				obj.Extended = bag
			case "LST", "IE":
				elems, err := d.decodeElements(dec, t)
				if err != nil {
					return nil, err
				}
				obj.Elements = elems
				if t.Name.Local == "LST" {
					obj.Collection = clixml.CollectionList
				} else {
					obj.Collection = clixml.CollectionEnumerable
				}
			case "STK":
				elems, err := d.decodeElements(dec, t)
				if err != nil {
					return nil, err
				}
				obj.Elements = elems
				obj.Collection = clixml.CollectionStack
			case "QUE":
				elems, err := d.decodeElements(dec, t)
				if err != nil {
					return nil, err
				}
				obj.Elements = elems
				obj.Collection = clixml.CollectionQueue
			case "DCT":
				entries, err := d.decodeDictionary(dec, t)
				if err != nil {
					return nil, err
				}
				obj.Dict = entries
				obj.Collection = clixml.CollectionDictionary
			default:
				if !sawValueChild && clixml.IsPrimitiveTag(clixml.Tag(t.Name.Local)) {
					v, err := d.decodeValue(dec, t)
					if err != nil {
						return nil, err
					}
					obj.BaseValue = v
					sawValueChild = true
					continue
				}
				raw, err := captureInnerXML(dec, t)
				if err != nil {
					return nil, err
				}
				obj.Unparsed = append(obj.Unparsed, raw)
			}
		}
	}
}

func (d *Deserializer) decodeTypeNames(dec *xml.Decoder, start xml.StartElement) ([]string, int64, error) {
	attr, ok := getAttr(start, "RefId")
	if !ok {
		return nil, 0, newError(KindMalformedDocument, "TN missing RefId")
	}
	refID, err := strconv.ParseInt(attr, 10, 64)
	if err != nil {
		return nil, 0, wrapError(KindMalformedDocument, "TN RefId not numeric", err)
	}

	var chain []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, 0, wrapError(KindInvalidEncoding, "reading TN body", err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "TN" {
				return chain, refID, nil
			}
		case xml.StartElement:
			if t.Name.Local == "T" {
				text, err := readText(dec, t)
				if err != nil {
					return nil, 0, err
				}
				s, err := unescapeString(text)
				if err != nil {
					return nil, 0, err
				}
				chain = append(chain, s)
			} else {
				if err := dec.Skip(); err != nil {
					return nil, 0, err
				}
			}
		}
	}
}

func (d *Deserializer) decodePropertyBag(dec *xml.Decoder, start xml.StartElement) (clixml.PropertyBag, error) {
	var bag clixml.PropertyBag
	endTag := start.Name.Local
	for {
		tok, err := dec.Token()
		if err != nil {
			return bag, wrapError(KindInvalidEncoding, "reading property bag", err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == endTag {
				return bag, nil
			}
		case xml.StartElement:
			v, err := d.decodeValue(dec, t)
			if err != nil {
				return bag, err
			}
			name, _ := getAttr(t, "N")
			bag.Set(name, v)
		}
	}
}

func (d *Deserializer) decodeElements(dec *xml.Decoder, start xml.StartElement) ([]clixml.Value, error) {
	var elems []clixml.Value
	endTag := start.Name.Local
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "reading collection", err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == endTag {
				return elems, nil
			}
		case xml.StartElement:
			v, err := d.decodeValue(dec, t)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
	}
}

func (d *Deserializer) decodeDictionary(dec *xml.Decoder, start xml.StartElement) ([]clixml.DictionaryEntry, error) {
	var entries []clixml.DictionaryEntry
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapError(KindInvalidEncoding, "reading DCT", err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "DCT" {
				return entries, nil
			}
		case xml.StartElement:
			if t.Name.Local != "En" {
				if err := dec.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			bag, err := d.decodePropertyBag(dec, t)
			if err != nil {
				return nil, err
			}
			key, _ := bag.Get("Key")
			value, _ := bag.Get("Value")
			entries = append(entries, clixml.DictionaryEntry{Key: key, Value: value})
		}
	}
}

// readText consumes tokens until the end element matching start, returning
// concatenated character data. Unexpected nested elements (shouldn't occur
// for well-formed primitives) are skipped rather than treated as fatal.
func readText(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var buf bytes.Buffer
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", newError(KindMalformedDocument, "unexpected EOF in <"+start.Name.Local+">")
		}
		if err != nil {
			return "", wrapError(KindInvalidEncoding, "reading text content", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 && t.Name.Local == start.Name.Local {
				return buf.String(), nil
			}
			depth--
		}
	}
}

// skipToEnd discards tokens through the end element matching start, for
// self-closing or empty elements whose content we don't need.
func skipToEnd(dec *xml.Decoder, start xml.StartElement) {
	_ = dec.Skip()
	_ = start
}

// captureInnerXML re-serializes an unrecognized element (and its subtree) as
// raw XML text, so unknown extension types round-trip without data loss.
func captureInnerXML(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := enc.EncodeToken(start); err != nil {
		return "", err
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", wrapError(KindInvalidEncoding, "capturing unparsed element", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if err := enc.EncodeToken(t); err != nil {
				return "", err
			}
		case xml.EndElement:
			depth--
			if err := enc.EncodeToken(t); err != nil {
				return "", err
			}
		default:
			if err := enc.EncodeToken(tok); err != nil {
				return "", err
			}
		}
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
