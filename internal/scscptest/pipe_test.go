package scscptest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scscp.dev/scscpd"
	"scscp.dev/scscpd/internal/scscptest"
	"scscp.dev/scscpd/mux"
)

func TestNewPipeNegotiates(t *testing.T) {
	peer, done, cancel := scscptest.NewPipe(mux.New())
	defer cancel()

	line, err := peer.ReadLine()
	require.NoError(t, err)
	require.Contains(t, line, "service_name")

	require.NoError(t, peer.SendLine(`<?scscp quit?>`))

	select {
	case err := <-done:
		require.ErrorIs(t, err, scscp.ErrClientQuit)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after quit")
	}
}
