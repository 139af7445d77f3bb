package server_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scscp.dev/scscpd/mux"
	"scscp.dev/scscpd/server"
)

func TestAcceptorServesNegotiation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	a := server.NewAcceptor(mux.New(), server.AcceptGrace(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.Contains(line, "service_name"), line)

	_, err = conn.Write([]byte(`<?scscp version="1.3"?>` + "\n"))
	require.NoError(t, err)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, `version="1.3"`)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor did not shut down after ctx cancellation")
	}
}

func TestAcceptorShutdownCancelsLiveSessions(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	a := server.NewAcceptor(mux.New(), server.AcceptGrace(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	_, err = r.ReadString('\n')
	require.NoError(t, err)

	// Shutdown, not ctx cancellation, must still close the listener and
	// drain the live session within its grace period.
	require.NoError(t, a.Shutdown())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor did not shut down after Shutdown()")
	}
}
