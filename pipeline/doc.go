// Package pipeline implements the client side of a PSRP pipeline: command
// and statement construction, the CREATE_PIPELINE message, and dispatch of
// the inbound record streams (output, error, warning, verbose, debug,
// information, progress, host call, state) a running pipeline produces.
//
// See [MS-PSRP] §3.2 (Pipeline) and §2.2.3.
package pipeline
