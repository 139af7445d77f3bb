package server // import "scscp.dev/scscpd/server"

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"scscp.dev/scscpd"
	"scscp.dev/scscpd/mux"
)

// Acceptor listens on a TCP address and runs one Session per accepted
// connection until Shutdown is called or the listener fails.
type Acceptor struct {
	opts    options
	mux     *mux.Mux
	metrics *Metrics

	mu              sync.Mutex
	ln              net.Listener
	cancelSessions  context.CancelFunc
	shutdownStarted bool
	wg              sync.WaitGroup
}

// NewAcceptor returns an Acceptor dispatching accepted sessions' procedure
// calls through m.
func NewAcceptor(m *mux.Mux, opt ...Option) *Acceptor {
	o := getOpts(opt...)
	return &Acceptor{
		opts:    o,
		mux:     m,
		metrics: NewMetrics(o.registerer),
	}
}

// ListenAndServe listens on the configured address (127.0.0.1:26133 unless
// overridden with Addr) and serves accepted connections until ctx is done.
func (a *Acceptor) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.opts.addr)
	if err != nil {
		return fmt.Errorf("scscp: listen on %s: %w", a.opts.addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln, spawning an independent Session goroutine
// for each, until ctx is done or Accept fails. It blocks until every
// in-flight session has ended (see Shutdown for the cancellation grace
// period applied to sessions still alive when ctx is done).
func (a *Acceptor) Serve(ctx context.Context, ln net.Listener) error {
	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	a.mu.Lock()
	a.ln = ln
	a.cancelSessions = cancelSessions
	a.shutdownStarted = false
	a.mu.Unlock()

	// Close the listener (unblocking Accept) and, after the configured
	// grace period, cancel every live session's context, the way
	// bassosimone-nop's CancelWatchFunc ties connection lifetime to a
	// context rather than relying on a blocking read to notice on its own.
	// beginShutdown is shared with Shutdown so both paths converge on the
	// same close-then-grace-then-cancel sequence.
	stop := context.AfterFunc(ctx, func() { a.beginShutdown() })
	defer stop()

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			a.mu.Lock()
			shuttingDown := a.shutdownStarted
			a.mu.Unlock()
			if shuttingDown {
				acceptErr = nil
			} else {
				acceptErr = err
			}
			break
		}
		a.wg.Add(1)
		go a.serveConn(sessionCtx, conn)
	}
	a.wg.Wait()
	return acceptErr
}

// Shutdown closes the listener and, after the acceptor's configured accept
// grace period, cancels every in-flight session — the same effect as
// cancelling the context passed to Serve, for a caller that only holds the
// Acceptor. It returns as soon as the listener is closed and the grace
// timer (if any) is scheduled; Serve's own return is what signals every
// session has actually drained.
func (a *Acceptor) Shutdown() error {
	return a.beginShutdown()
}

// beginShutdown closes the listener, then cancels every live session
// immediately (AcceptGrace <= 0) or after AcceptGrace elapses. It is safe to
// call more than once, and concurrently with Serve's own ctx-cancellation
// path: only the first call acts.
func (a *Acceptor) beginShutdown() error {
	a.mu.Lock()
	if a.shutdownStarted {
		a.mu.Unlock()
		return nil
	}
	a.shutdownStarted = true
	ln := a.ln
	cancelSessions := a.cancelSessions
	a.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	if cancelSessions == nil {
		return err
	}
	if a.opts.acceptGrace <= 0 {
		cancelSessions()
		return err
	}
	go func() {
		<-time.After(a.opts.acceptGrace)
		cancelSessions()
	}()
	return err
}

func (a *Acceptor) serveConn(ctx context.Context, conn net.Conn) {
	defer a.wg.Done()
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	a.metrics.sessionStarted()
	defer a.metrics.sessionEnded()

	sessOpts := append([]scscp.Option{scscp.WithInstrumentation(a.metrics)}, a.opts.serviceOpts...)
	sess := scscp.NewSession(conn.RemoteAddr().String(), conn, conn, a.mux, sessOpts...)
	_ = sess.Run(ctx)
}
