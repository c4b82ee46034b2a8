package clixml

// Well-known .NET type name chains used by the higher layers (messages,
// runspace, pipeline) when building or recognizing complex objects. These
// are the type names PSRP actually puts on the wire for its own control
// objects; application data can carry arbitrary chains the registry knows
// nothing about, which is fine — Decode degrades unknown chains to a
// generic *PSObject that keeps the chain intact.
var (
	TypeNamesErrorRecord = []string{
		"System.Management.Automation.ErrorRecord",
	}
	TypeNamesInformationalRecord = []string{
		"System.Management.Automation.InformationalRecord",
	}
	TypeNamesProgressRecord = []string{
		"System.Management.Automation.Remoting.RemotingProgressRecord",
	}
	TypeNamesInformationRecord = []string{
		"System.Management.Automation.InformationRecord",
	}
	TypeNamesPSCredential = []string{
		"System.Management.Automation.PSCredential",
	}
	TypeNamesHashtable = []string{
		"System.Collections.Hashtable",
	}
	TypeNamesPSPrimitiveDictionary = []string{
		"System.Management.Automation.PSPrimitiveDictionary",
		"System.Collections.Hashtable",
	}
)

// descriptor records how a registered type name chain should be treated on
// decode: currently just a human label, since each consumer package (the
// message layer, runspace, pipeline) knows how to interpret the concrete
// shape of its own control objects once clixml has handed back a *PSObject
// with the matching MostDerivedType.
type descriptor struct {
	Label string
}

// registry is the compile-time table replacing what the original PSRP
// implementation kept as global mutable state keyed by message ids: a
// read-only map built once at package initialization.
var registry = map[string]descriptor{
	TypeNamesErrorRecord[0]:          {Label: "ErrorRecord"},
	TypeNamesInformationalRecord[0]:  {Label: "InformationalRecord"},
	TypeNamesProgressRecord[0]:       {Label: "ProgressRecord"},
	TypeNamesInformationRecord[0]:    {Label: "InformationRecord"},
	TypeNamesPSCredential[0]:         {Label: "PSCredential"},
	TypeNamesHashtable[0]:            {Label: "Hashtable"},
	TypeNamesPSPrimitiveDictionary[0]: {Label: "PSPrimitiveDictionary"},
}

// LookupTypeName reports whether typeName is a type this module's control
// plane recognizes, and a short label for it if so.
func LookupTypeName(typeName string) (label string, known bool) {
	d, ok := registry[typeName]
	return d.Label, ok
}
