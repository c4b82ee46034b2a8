// Package messages implements the PSRP message layer: the 44-byte header
// (destination, message type, runspace pool id, pipeline id) that wraps
// every CLIXML payload, and the typed constants for runspace-pool and
// pipeline state.
//
// See [MS-PSRP] §2.2.1-§2.2.2.
package messages
