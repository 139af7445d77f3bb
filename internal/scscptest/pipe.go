// Package scscptest provides in-memory net.Pipe-backed session harnesses
// for testing SCSCP servers without a real TCP connection, the way the
// teacher's internal/xmpptest builds a Session over a plain io.ReadWriter
// for its own tests.
package scscptest // import "scscp.dev/scscpd/internal/scscptest"

import (
	"bufio"
	"context"
	"net"
	"strings"

	"scscp.dev/scscpd"
	"scscp.dev/scscpd/mux"
)

// Peer is the client-facing end of a piped Session: a net.Conn plus
// line-level helpers for driving the wire protocol directly in tests.
type Peer struct {
	net.Conn
	r *bufio.Reader
}

// ReadLine reads one newline-terminated line (a control frame or a fragment
// of transaction body), with the trailing newline stripped.
func (p *Peer) ReadLine() (string, error) {
	line, err := p.r.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}

// SendLine writes s plus a trailing newline.
func (p *Peer) SendLine(s string) error {
	_, err := p.Conn.Write([]byte(s + "\n"))
	return err
}

// NewPipe starts a Session on one end of an in-memory pipe, dispatching
// through m, and returns the client-facing Peer for the other end along
// with the Session's eventual Run result and a cancel func that tears the
// session down.
func NewPipe(m *mux.Mux, opt ...scscp.Option) (peer *Peer, done <-chan error, cancel context.CancelFunc) {
	serverConn, clientConn := net.Pipe()
	sess := scscp.NewSession("test-peer", serverConn, serverConn, m, opt...)

	ctx, cancelFn := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- sess.Run(ctx) }()

	return &Peer{Conn: clientConn, r: bufio.NewReader(clientConn)}, result, cancelFn
}
