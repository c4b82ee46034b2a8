package transport

import (
	"context"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestProcessConnectionEchoesFrames spawns `cat`, which echoes stdin to
// stdout verbatim, to exercise the 4-byte length-prefix framing without
// depending on a PowerShell install being present.
func TestProcessConnectionEchoesFrames(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("cat is not available on windows runners")
	}
	if _, err := os.Stat("/bin/cat"); err != nil {
		t.Skip("/bin/cat not available")
	}

	conn := NewProcessConnection("/bin/cat")
	require.NoError(t, conn.Open(context.Background()))
	defer conn.Close()

	resp, err := conn.Send(context.Background(), []byte("hello psrp"))
	require.NoError(t, err)
	require.Equal(t, "hello psrp", string(resp))
}
