// psrpcore-demo exercises Open/Invoke/Close against a process-transport
// runspace pool: it spawns a local PowerShell in server mode, opens a
// runspace pool over its stdin/stdout, invokes one scripted pipeline, and
// prints whatever PSRP streams the pipeline produces.
//
// Usage:
//
//	psrpcore-demo [-exe pwsh] [-script '1+1']
//
// This is the minimal demo named in this module's scope; a connection-
// pooling, authenticated, multi-host client belongs in a separate façade
// package that imports this one.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/smnsjas/go-psrpcore/clixml"
	internallog "github.com/smnsjas/go-psrpcore/internal/log"
	"github.com/smnsjas/go-psrpcore/pipeline"
	"github.com/smnsjas/go-psrpcore/runspace"
	"github.com/smnsjas/go-psrpcore/serialization"
	"github.com/smnsjas/go-psrpcore/transport"
)

func main() {
	exe := flag.String("exe", "pwsh", "PowerShell executable to spawn in server mode")
	script := flag.String("script", "'hello from psrpcore'", "script to run in the pipeline")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline for open+invoke+close")
	debug := flag.Bool("debug", false, "enable protocol-level debug logging")
	logFile := flag.String("logfile", "", "write redacted protocol trace to this rotating log file instead of stderr")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var debugLogger *slog.Logger
	if *debug {
		if *logFile != "" {
			rf, err := internallog.NewRotatingFile(*logFile, 10*1024*1024, 3)
			if err != nil {
				fmt.Fprintf(os.Stderr, "psrpcore-demo: open log file: %v\n", err)
				os.Exit(1)
			}
			rf.OnRotate(func(backup string) {
				fmt.Fprintf(os.Stderr, "psrpcore-demo: rotated protocol trace to %s\n", backup)
			})
			defer func() {
				rotations, bytesTotal := rf.Stats()
				fmt.Fprintf(os.Stderr, "psrpcore-demo: wrote %d bytes of protocol trace (%d rotations)\n", bytesTotal, rotations)
				rf.Close()
			}()
			debugLogger = internallog.NewLogger(rf, slog.LevelDebug)
		} else {
			debugLogger = internallog.NewLogger(os.Stderr, slog.LevelDebug)
		}
	}

	conn := transport.NewProcessConnection(*exe, "-ServerMode")
	if debugLogger != nil {
		conn.SetLogger(debugLogger)
	}
	if err := conn.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "psrpcore-demo: spawn %s: %v\n", *exe, err)
		os.Exit(1)
	}
	defer conn.Close()

	pool := runspace.New(conn, uuid.New())
	if debugLogger != nil {
		if err := pool.SetSlogLogger(debugLogger); err != nil {
			fmt.Fprintf(os.Stderr, "psrpcore-demo: enable logging: %v\n", err)
		}
	}

	fmt.Printf("opening runspace pool %s over %s...\n", pool.ID(), conn.Endpoint())
	if err := pool.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "psrpcore-demo: open pool: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "psrpcore-demo: close pool: %v\n", err)
		}
	}()

	pl := pipeline.New(pool, *script)
	if err := pl.Invoke(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "psrpcore-demo: invoke: %v\n", err)
		os.Exit(1)
	}

	deser := serialization.NewDeserializer()
	go drainRecords(pl, deser)

	if err := pl.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "psrpcore-demo: pipeline failed: %v\n", err)
		os.Exit(1)
	}
	if pl.HadErrors() {
		fmt.Fprintln(os.Stderr, "psrpcore-demo: pipeline completed with non-terminating errors")
	}
}

// drainRecords prints every output/error/warning/verbose/debug/information
// record until the pipeline reaches a terminal state and its channels
// close, decoding each PSRP message payload back into a clixml.Value on the
// way.
func drainRecords(pl *pipeline.Pipeline, deser *serialization.Deserializer) {
	for {
		select {
		case m, ok := <-pl.Output():
			if !ok {
				return
			}
			printRecord("out", m.Data, deser)
		case m, ok := <-pl.Error():
			if !ok {
				continue
			}
			printRecord("err", m.Data, deser)
		case m, ok := <-pl.Warning():
			if !ok {
				continue
			}
			printRecord("warn", m.Data, deser)
		case m, ok := <-pl.Verbose():
			if !ok {
				continue
			}
			printRecord("verbose", m.Data, deser)
		case m, ok := <-pl.Debug():
			if !ok {
				continue
			}
			printRecord("debug", m.Data, deser)
		case m, ok := <-pl.Information():
			if !ok {
				continue
			}
			printRecord("info", m.Data, deser)
		case <-pl.Done():
			return
		}
	}
}

func printRecord(stream string, data []byte, deser *serialization.Deserializer) {
	v, err := deser.DeserializeOne(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "psrpcore-demo: decode %s record: %v\n", stream, err)
		return
	}
	if obj, ok := v.(*clixml.PSObject); ok && obj.HasToString {
		fmt.Printf("[%s] %s\n", stream, obj.ToStringValue)
		return
	}
	fmt.Printf("[%s] %v\n", stream, v)
}
