package clixml

// Tag is the CLIXML element name used on the wire for a given value kind.
// The tag set is fixed by [MS-PSRP] §2.2.5 and must never change spelling or
// case: readers key off these exact strings.
type Tag string

// Primitive element tags, [MS-PSRP] §2.2.5.1.
const (
	TagString       Tag = "S"
	TagChar         Tag = "C"
	TagBool         Tag = "B"
	TagDateTime     Tag = "DT"
	TagDuration     Tag = "TS"
	TagByte         Tag = "By"
	TagSByte        Tag = "SB"
	TagUInt16       Tag = "U16"
	TagInt16        Tag = "I16"
	TagUInt32       Tag = "U32"
	TagInt32        Tag = "I32"
	TagUInt64       Tag = "U64"
	TagInt64        Tag = "I64"
	TagSingle       Tag = "Sg"
	TagDouble       Tag = "Db"
	TagDecimal      Tag = "D"
	TagByteArray    Tag = "BA"
	TagGUID         Tag = "G"
	TagURI          Tag = "URI"
	TagVersion      Tag = "Version"
	TagXMLDocument  Tag = "XD"
	TagScriptBlock  Tag = "SBK"
	TagSecureString Tag = "SS"
	TagNil          Tag = "Nil"
)

// Complex/container element tags, [MS-PSRP] §2.2.5.2-§2.2.5.3.
const (
	TagObject       Tag = "Obj"
	TagTypeNames    Tag = "TN"
	TagTypeNamesRef Tag = "TNRef"
	TagTypeName     Tag = "T"
	TagMembers      Tag = "MS"    // extended properties
	TagProps        Tag = "Props" // adapted properties
	TagList         Tag = "LST"
	TagIEnumerable  Tag = "IE"
	TagStack        Tag = "STK"
	TagQueue        Tag = "QUE"
	TagDictionary   Tag = "DCT"
	TagDictEntry    Tag = "En"
	TagRef          Tag = "Ref"
	TagToString     Tag = "ToString"
)

// primitiveTags is used by the serializer/deserializer to recognize a
// primitive leaf element without a type switch at every call site.
var primitiveTags = map[Tag]bool{
	TagString: true, TagChar: true, TagBool: true, TagDateTime: true,
	TagDuration: true, TagByte: true, TagSByte: true, TagUInt16: true,
	TagInt16: true, TagUInt32: true, TagInt32: true, TagUInt64: true,
	TagInt64: true, TagSingle: true, TagDouble: true, TagDecimal: true,
	TagByteArray: true, TagGUID: true, TagURI: true, TagVersion: true,
	TagXMLDocument: true, TagScriptBlock: true, TagSecureString: true,
	TagNil: true,
}

// IsPrimitiveTag reports whether tag names a primitive leaf element.
func IsPrimitiveTag(tag Tag) bool {
	return primitiveTags[tag]
}
