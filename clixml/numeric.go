package clixml

// Bool is the PSRP boolean primitive ("true"/"false" lowercase on the wire).
type Bool bool

// Byte is .NET's System.Byte: an unsigned 8-bit integer, 0-255.
type Byte uint8

// SByte is .NET's System.SByte: a signed 8-bit integer, -128-127.
type SByte int8

// UInt16 is .NET's System.UInt16: 0-65535.
type UInt16 uint16

// Int16 is .NET's System.Int16: -32768-32767.
type Int16 int16

// UInt32 is .NET's System.UInt32.
type UInt32 uint32

// Int32 is .NET's System.Int32.
type Int32 int32

// UInt64 is .NET's System.UInt64.
type UInt64 uint64

// Int64 is .NET's System.Int64.
type Int64 int64

// Single is .NET's System.Single (32-bit IEEE 754 float).
type Single float32

// Double is .NET's System.Double (64-bit IEEE 754 float).
type Double float64

// Char is .NET's System.Char: exactly one UTF-16 code unit (0-65535). It may
// be one half of a surrogate pair and still be a valid Char — .NET does not
// require chars to be individually valid Unicode scalar values.
type Char uint16

// NewChar validates and constructs a Char from a UTF-16 code unit.
func NewChar(codeUnit uint32) (Char, error) {
	if codeUnit > 0xFFFF {
		return 0, &RangeError{Type: "Char", Value: int64(codeUnit), Min: 0, Max: 0xFFFF}
	}
	return Char(codeUnit), nil
}

// Decimal is .NET's System.Decimal: a base-10 floating point value with up
// to 28-29 significant digits. Unlike the binary float primitives it cannot
// be represented exactly by float64, so it is carried as its canonical wire
// string (invariant-culture decimal text, e.g. "-79228162514264337593543950335").
// Arithmetic on Decimal values is out of scope for this module: callers that
// need to compute with them should parse the string themselves.
type Decimal string
