// Package clixml defines the PSRP/.NET value model transmitted as CLIXML
// ([MS-PSRP] §2.2.5): the primitive types, the PSObject complex-type
// envelope, and the type-name registry used to decide how an object is
// dispatched.
//
// The type hierarchy PSRP carries on the wire (an ordered list of .NET type
// names, most-derived first) is data here, not Go interface inheritance:
// every known type is a tag plus a type-name chain, and dispatch on decode is
// a table lookup keyed by that chain. Unknown type names degrade to a
// generic Object that keeps its chain intact rather than failing to parse.
package clixml
