// Package transport implements the Connection abstraction the runspace pool
// and WSMan driver send PSRP fragment bytes over: one request/response HTTP
// POST per WSMan action, or a length-prefixed stream to a local PowerShell
// process running in server mode.
package transport
