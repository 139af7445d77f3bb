package scscp_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scscp.dev/scscpd"
	"scscp.dev/scscpd/call"
	"scscp.dev/scscpd/mux"
	"scscp.dev/scscpd/openmath"
)

// fakeClient wraps one end of a net.Pipe with the line-level helpers a
// scripted test peer needs: read a single frame line, or send a whole
// transaction body bracketed in start/end frames.
type fakeClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newFakeClient(t *testing.T, conn net.Conn) *fakeClient {
	return &fakeClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *fakeClient) readLine() string {
	c.t.Helper()
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\r\n")
}

func (c *fakeClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *fakeClient) sendTransaction(body string) {
	c.t.Helper()
	c.send(`<?scscp start?>`)
	c.send(body)
	c.send(`<?scscp end?>`)
}

// readTransaction reads frames until it has collected one full
// start/body/end sequence and returns the body lines joined.
func (c *fakeClient) readTransaction() string {
	c.t.Helper()
	line := c.readLine()
	require.Equal(c.t, `<?scscp start?>`, line)
	var body []string
	for {
		line = c.readLine()
		if line == `<?scscp end?>` {
			break
		}
		body = append(body, line)
	}
	return strings.Join(body, "\n")
}

func procedureCallBody(callID, cd, name string, args ...openmath.Object) string {
	return procedureCallBodyWithDebugLevel(callID, cd, name, 0, args...)
}

func procedureCallBodyWithDebugLevel(callID, cd, name string, debugLevel int64, args ...openmath.Object) string {
	children := []openmath.Object{
		openmath.Sym("scscp1", "call_id"), openmath.StrObj(callID),
		openmath.Sym("scscp1", "option_return_object"), openmath.StrObj(""),
	}
	if debugLevel != 0 {
		children = append(children,
			openmath.Sym("scscp1", "option_debuglevel"), openmath.IntObj(debugLevel))
	}
	atp := openmath.Object{Kind: openmath.ATP, Children: children}
	invocation := openmath.App1(openmath.Sym(cd, name), args...)
	body := openmath.App1(openmath.Sym("scscp1", "procedure_call"), invocation)
	obj := openmath.Wrap(openmath.Object{Kind: openmath.Attribution, Children: []openmath.Object{atp, body}})
	data, err := openmath.Marshal(obj)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func plusMux() *mux.Mux {
	return mux.New(mux.HandleFunc("arith1", "plus", func(_ context.Context, pc call.ProcedureCall) (openmath.Object, error) {
		var sum int64
		for _, a := range pc.Args {
			sum += a.Int
		}
		return openmath.IntObj(sum), nil
	}))
}

func runSession(t *testing.T, m *mux.Mux, opt ...scscp.Option) (*fakeClient, func()) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	s := scscp.NewSession("test-peer", serverConn, serverConn, m, opt...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	client := newFakeClient(t, clientConn)
	// Drain the server's identity frame.
	client.readLine()

	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("session did not shut down")
		}
		clientConn.Close()
	}
	return client, stop
}

func negotiate(t *testing.T, client *fakeClient) {
	t.Helper()
	client.send(`<?scscp version="1.3"?>`)
	line := client.readLine()
	require.Equal(t, `<?scscp version="1.3"?>`, line)
}

func TestNegotiationHappyPath(t *testing.T) {
	client, stop := runSession(t, plusMux())
	defer stop()

	negotiate(t, client)

	client.sendTransaction(procedureCallBody("c1", "arith1", "plus", openmath.IntObj(2), openmath.IntObj(3)))
	body := client.readTransaction()
	require.Contains(t, body, "procedure_completed")
	require.Contains(t, body, `<OMI>5</OMI>`)

	client.send(`<?scscp quit?>`)
}

func TestNegotiationRejection(t *testing.T) {
	client, stop := runSession(t, plusMux())
	defer stop()

	client.send(`<?scscp version="9.9"?>`)
	line := client.readLine()
	require.Contains(t, line, "quit")
	require.Contains(t, line, "reason")
}

func TestUnknownSymbol(t *testing.T) {
	client, stop := runSession(t, plusMux())
	defer stop()

	negotiate(t, client)

	client.sendTransaction(procedureCallBody("c2", "arith1", "no_such_procedure", openmath.IntObj(1)))
	body := client.readTransaction()
	require.Contains(t, body, "procedure_terminated")
	require.Contains(t, body, "error_system_specific")
	require.Contains(t, body, "unknown symbol")
}

func TestCancellation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := mux.New(mux.HandleFunc("test1", "block", func(ctx context.Context, pc call.ProcedureCall) (openmath.Object, error) {
		close(started)
		select {
		case <-release:
			return openmath.IntObj(0), nil
		case <-ctx.Done():
			return openmath.Object{}, ctx.Err()
		}
	}))

	client, stop := runSession(t, blocking)
	defer func() {
		close(release)
		stop()
	}()

	negotiate(t, client)

	client.sendTransaction(procedureCallBody("c3", "test1", "block"))
	<-started

	client.send(`<?scscp terminate call_id="c3"?>`)
	body := client.readTransaction()
	require.Contains(t, body, "procedure_terminated")
	require.Contains(t, body, "error_CAS_terminated")
}

func TestDuplicateCallIDInActiveRegistry(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := mux.New(mux.HandleFunc("test1", "block", func(ctx context.Context, pc call.ProcedureCall) (openmath.Object, error) {
		close(started)
		select {
		case <-release:
			return openmath.IntObj(0), nil
		case <-ctx.Done():
			return openmath.Object{}, ctx.Err()
		}
	}))

	client, stop := runSession(t, blocking)
	defer func() {
		close(release)
		client.send(`<?scscp terminate call_id="c1"?>`)
		client.readTransaction()
		stop()
	}()

	negotiate(t, client)

	client.sendTransaction(procedureCallBody("c1", "test1", "block"))
	<-started

	// Reusing call_id "c1" while the first invocation is still in flight must
	// be reported against the new arrival, not crash the session.
	client.sendTransaction(procedureCallBody("c1", "test1", "block"))
	body := client.readTransaction()
	require.Contains(t, body, "procedure_terminated")
	require.Contains(t, body, "error_system_specific")
	require.Contains(t, body, "already active")
}

func TestDebugLevelEcho(t *testing.T) {
	client, stop := runSession(t, plusMux())
	defer stop()

	negotiate(t, client)

	client.sendTransaction(procedureCallBodyWithDebugLevel("c4", "arith1", "plus", 2, openmath.IntObj(1), openmath.IntObj(1)))
	body := client.readTransaction()
	require.Contains(t, body, "procedure_completed")
	require.Contains(t, body, "option_debuglevel")

	client.send(`<?scscp quit?>`)
}

func TestTaskReaped(t *testing.T) {
	release := make(chan struct{})
	blocking := mux.New(mux.HandleFunc("test1", "block", func(ctx context.Context, pc call.ProcedureCall) (openmath.Object, error) {
		select {
		case <-release:
			return openmath.IntObj(0), nil
		case <-ctx.Done():
			return openmath.Object{}, ctx.Err()
		}
	}))

	client, stop := runSession(t, blocking,
		scscp.ReapInterval(10*time.Millisecond),
		scscp.ReapMaxAge(20*time.Millisecond),
	)
	defer func() {
		close(release)
		stop()
	}()

	negotiate(t, client)

	client.sendTransaction(procedureCallBody("c5", "test1", "block"))

	// The reaper emits a wire-level info frame ahead of the cancellation
	// response, distinct from the result frame.
	line := client.readLine()
	require.Contains(t, line, "info")
	require.Contains(t, line, "reaped")

	body := client.readTransaction()
	require.Contains(t, body, "procedure_terminated")
	require.Contains(t, body, "error_CAS_terminated")
}

func TestMidTransactionQuit(t *testing.T) {
	client, stop := runSession(t, plusMux())

	negotiate(t, client)

	client.send(`<?scscp start?>`)
	client.send(`<OMOBJ xmlns="http://www.openmath.org/OpenMath">`)
	client.send(`<?scscp quit?>`)

	stop()
}
