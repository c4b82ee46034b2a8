// Package serialization implements the CLIXML codec described in
// [MS-PSRP] §2.2.5: bidirectional conversion between clixml.Value graphs and
// the <Objs>...</Objs> XML document PSRP carries as a message payload.
//
// A Serializer/Deserializer pair is scoped to one top-level serialization
// pass: NewSerializer and NewDeserializer each start a fresh reference-ID
// table (the one that detects shared and cyclic object references), and
// Serialize does not reset it, so a new instance is made per document, since
// [MS-PSRP] drops reference ids at the end of each top-level document
// rather than carrying them across messages.
package serialization
