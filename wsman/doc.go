// Package wsman implements a WS-Management (WSMan) client for communicating
// with WinRM endpoints.
//
// This package provides the driver layer for PowerShell Remoting Protocol (PSRP),
// handling SOAP envelope construction, WS-Addressing headers, and the core WSMan
// operations: Create, Delete, Command, Send, Receive, and Signal. It sends those
// envelopes over a github.com/smnsjas/go-psrpcore/transport.Connection, and
// delegates HTTP authentication and WSMan message encryption to a
// github.com/smnsjas/go-psrpcore/authwrap.Provider the caller supplies - this
// package has no knowledge of SPNEGO, NTLM, Kerberos, or CredSSP.
//
// Shell adapts the request/response Create/Send/Receive exchange into an
// io.ReadWriter so a runspace.Pool can drive a WSMan-backed session the same
// way it drives a raw process pipe.
//
// # WSMan Operations
//
// The following operations are supported for PSRP:
//
//   - Create: Open a RunspacePool shell
//   - Command: Create a Pipeline
//   - Send: Send PSRP fragments (stdin stream)
//   - Receive: Get PSRP fragments (stdout stream)
//   - Signal: Terminate pipeline or close shell
//   - Delete: Close RunspacePool shell
package wsman
