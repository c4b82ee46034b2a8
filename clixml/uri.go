package clixml

import "net/url"

// URI is .NET's System.Uri, carried as its string form. PSRP does not
// require the URI to be absolute; we only validate that it parses as a URI
// reference at all.
type URI string

// ValidateURI checks that s parses as a URI reference.
func ValidateURI(s string) error {
	if _, err := url.Parse(s); err != nil {
		return &FormatError{Type: "URI", Reason: err.Error()}
	}
	return nil
}

// ByteArray is .NET's System.Byte[], carried base64-encoded on the wire.
type ByteArray []byte
