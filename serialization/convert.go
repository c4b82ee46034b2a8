package serialization

import "github.com/smnsjas/go-psrpcore/clixml"

// ToNative unwraps a primitive clixml.Value to the native Go value it
// represents, so simple pipeline output (strings, numbers, booleans) can be
// consumed without a type import on clixml. Complex values (*clixml.PSObject,
// collections) are returned unchanged: callers that need structured access
// to properties should use the clixml package directly.
func ToNative(v clixml.Value) interface{} {
	switch t := v.(type) {
	case clixml.Null:
		return nil
	case clixml.String:
		return string(t)
	case clixml.ScriptBlock:
		return string(t)
	case clixml.XMLDocument:
		return string(t)
	case clixml.Bool:
		return bool(t)
	case clixml.Byte:
		return uint8(t)
	case clixml.SByte:
		return int8(t)
	case clixml.UInt16:
		return uint16(t)
	case clixml.Int16:
		return int16(t)
	case clixml.UInt32:
		return uint32(t)
	case clixml.Int32:
		return int32(t)
	case clixml.UInt64:
		return uint64(t)
	case clixml.Int64:
		return int64(t)
	case clixml.Single:
		return float32(t)
	case clixml.Double:
		return float64(t)
	case clixml.Decimal:
		return string(t)
	case clixml.ByteArray:
		return []byte(t)
	case clixml.Char:
		return uint16(t)
	case clixml.GUID:
		return t.UUID()
	case clixml.URI:
		return string(t)
	default:
		return v
	}
}
