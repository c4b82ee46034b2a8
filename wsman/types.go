package wsman

// EndpointReference represents a WS-Addressing Endpoint Reference (EPR), the
// identity Create returns for a shell. Enumerate does not return
// EndpointReferences; it returns the ShellId strings it reads from each
// item's SelectorSet. A caller reattaches to a disconnected runspace pool by
// passing a ShellId to Connect.
type EndpointReference struct {
	Address     string
	ResourceURI string
	Selectors   []Selector
}

// Selector represents a single WS-Management SelectorSet entry, most
// commonly the "ShellId" selector that names which shell a Command/Send/
// Receive/Signal/Delete action targets.
type Selector struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

// ShellID returns the value of the "ShellId" selector, or "" if the
// endpoint reference carries none — the id that Client.Connect and
// Shell.Connect take.
func (e EndpointReference) ShellID() string {
	for _, s := range e.Selectors {
		if s.Name == "ShellId" {
			return s.Value
		}
	}
	return ""
}
