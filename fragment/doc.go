// Package fragment implements the PSRP fragment framing layer: cutting a
// serialized PSRP message into ordered, length-capped fragments for
// transport, and reassembling a fragment stream back into PSRP messages.
//
// See [MS-PSRP] §2.2.4.
package fragment
