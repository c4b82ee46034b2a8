package clixml

import "github.com/google/uuid"

// GUID is .NET's System.Guid, carried as a 16-byte value. It reuses
// google/uuid's layout so runspace/pipeline/message identifiers and CLIXML
// GUID values share one representation throughout this module.
type GUID uuid.UUID

// NewGUID wraps a uuid.UUID as a GUID value.
func NewGUID(u uuid.UUID) GUID { return GUID(u) }

// UUID returns the underlying uuid.UUID.
func (g GUID) UUID() uuid.UUID { return uuid.UUID(g) }

// String renders the GUID in canonical hyphenated lowercase form, matching
// uuid.UUID.String(). The wire form uses the same text.
func (g GUID) String() string { return uuid.UUID(g).String() }

// ParseGUID parses the canonical GUID text form used on the wire.
func ParseGUID(s string) (GUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, &FormatError{Type: "GUID", Reason: err.Error()}
	}
	return GUID(u), nil
}
