// Package psrpcore implements the client-side core of the PowerShell Remoting
// Protocol (PSRP, [MS-PSRP]) layered over WS-Management (WSMan, [MS-WSMV])
// over HTTP(S).
//
// This is a protocol engine, not a convenience client: the object
// serializer, the PSRP message framer/fragmenter, the runspace-pool and
// pipeline state machines, and the WSMan shell/command driver that moves
// fragments on the wire. A higher-level façade (connection pooling,
// authentication, a CLI) is expected to live in a separate package that
// imports this one, the way github.com/smnsjas/go-psrp imports
// github.com/smnsjas/go-psrpcore today.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────┐
//	│  runspace/, pipeline/     PSRP state machines             │
//	├─────────────────────────────────────────────────────────┤
//	│  messages/, fragment/     PSRP wire framing                │
//	├─────────────────────────────────────────────────────────┤
//	│  serialization/, clixml/  CLIXML value codec               │
//	├─────────────────────────────────────────────────────────┤
//	│  wsman/                   SOAP/WSMan command-set driver     │
//	├─────────────────────────────────────────────────────────┤
//	│  transport/               Connection abstraction (HTTP,    │
//	│                           spawned-process backends)         │
//	└─────────────────────────────────────────────────────────┘
//
// # Quick start
//
//	conn := transport.NewProcessConnection("pwsh", "-ServerMode")
//	if err := conn.Open(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	pool := runspace.New(conn, uuid.New())
//	if err := pool.Open(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	pl, err := pool.CreatePipeline("'hello world'")
//	pl.Invoke(ctx)
//	for out := range pl.Output() {
//	    fmt.Println(out)
//	}
package psrpcore
