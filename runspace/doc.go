// Package runspace implements the client side of the PSRP runspace pool
// state machine: capability negotiation, session-key exchange, pipeline
// bookkeeping, and host-call dispatch for RUNSPACEPOOL_HOST_CALL messages.
//
// See [MS-PSRP] §3.1 (Runspace Pool) and §2.2.3.
package runspace
