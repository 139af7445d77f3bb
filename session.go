package scscp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"scscp.dev/scscpd/call"
	"scscp.dev/scscpd/mux"
	"scscp.dev/scscpd/openmath"
	"scscp.dev/scscpd/registry"
)

// SessionPhase is one state of the per-connection protocol driver, per the
// transition table in §4.4.
type SessionPhase int

const (
	// Negotiating is the initial phase: the session has sent its identity
	// frame and is waiting for the client to offer a protocol version.
	Negotiating SessionPhase = iota
	// Idle is the phase between transactions: the session accepts `start`,
	// `terminate`, `quit`, and advisory `info` frames.
	Idle
	// ReceivingTransaction is entered on `start` and left on `end`/`cancel`:
	// incoming lines are fed to the OpenMath parser instead of being
	// interpreted as control frames.
	ReceivingTransaction
	// Closing is the terminal phase; the session is tearing down.
	Closing
)

func (p SessionPhase) String() string {
	switch p {
	case Negotiating:
		return "Negotiating"
	case Idle:
		return "Idle"
	case ReceivingTransaction:
		return "ReceivingTransaction"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// protocolVersion is the only SCSCP wire version this session negotiates.
const protocolVersion = "1.3"

// Session drives one accepted connection: framing, version negotiation,
// transaction assembly, dispatch, and client-initiated cancellation. A
// Session exclusively owns its reader, writer, OpenMath parser, and task
// registry; all phase transitions and writes happen on the goroutine
// running Run.
type Session struct {
	peer string
	r    *bufio.Reader
	w    io.Writer
	wmu  sync.Mutex

	phase  SessionPhase
	parser *openmath.Parser

	registry *registry.Registry
	mux      *mux.Mux
	opts     options

	results chan callResult

	// ctx is the session's lifetime context, set by Run; cancelling it tears
	// down the reaper and any in-flight handler tasks.
	ctx context.Context
}

// callResult is how a handler goroutine hands a finished call back to the
// session's single-threaded main loop, which performs the actual write.
type callResult struct {
	pc     call.ProcedureCall
	result openmath.Object
	err    error
	cause  error
}

// NewSession constructs a Session over r/w for the named peer, dispatching
// accepted procedure calls through m.
func NewSession(peer string, r io.Reader, w io.Writer, m *mux.Mux, opt ...Option) *Session {
	o := defaultOptions()
	for _, f := range opt {
		f(&o)
	}
	return &Session{
		peer:     peer,
		r:        bufio.NewReader(r),
		w:        w,
		phase:    Negotiating,
		registry: registry.New(),
		mux:      m,
		opts:     o,
		results:  make(chan callResult),
	}
}

// Phase returns the session's current phase. Safe to call only from the
// goroutine running Run, or after Run has returned.
func (s *Session) Phase() SessionPhase { return s.phase }

type lineMsg struct {
	line string
	err  error
}

// Run drives the session to completion: it sends the initial negotiation
// frame, then services incoming frames, transaction bytes, and handler
// completions until the connection closes, the peer quits, or ctx is
// cancelled. It returns the reason the session ended; ErrClientQuit and
// ErrConnectionClosed are expected, non-fatal outcomes.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.registry.CancelAll()
	s.ctx = ctx

	lines := make(chan lineMsg)
	go s.readLines(ctx, lines)

	if err := s.writeFrame("service_name", s.opts.serviceName, "service_version", s.opts.serviceVersion,
		"service_id", s.opts.serviceID, "scscp_versions", protocolVersion); err != nil {
		return fmt.Errorf("scscp: sending negotiation frame: %w", err)
	}

	var endCause error
loop:
	for {
		select {
		case <-ctx.Done():
			endCause = ErrConnectionClosed
			break loop
		case res := <-s.results:
			s.handleResult(res)
		case lm, ok := <-lines:
			if !ok {
				endCause = ErrConnectionClosed
				break loop
			}
			if lm.err != nil {
				endCause = ErrConnectionClosed
				break loop
			}
			if err := s.handleLine(lm.line); err != nil {
				endCause = err
				break loop
			}
			if s.phase == Closing {
				endCause = nil
				break loop
			}
		}
	}

	s.phase = Closing
	s.registry.CancelAll()
	s.drainInFlight()
	return endCause
}

// drainInFlight waits briefly for in-flight handler goroutines to observe
// cancellation and report in, so their responses (if any manage to send
// before the reader loop above already exited) don't leak a goroutine
// blocked forever on s.results. Run calls registry.CancelAll just before
// this, so every in-flight task has already been asked to stop.
func (s *Session) drainInFlight() {
	for s.registry.Len() > 0 {
		select {
		case res := <-s.results:
			s.registry.Remove(res.pc.CallID)
			s.opts.instrumentation.TaskEnded()
		case <-time.After(time.Second):
			return
		}
	}
}

func (s *Session) readLines(ctx context.Context, out chan<- lineMsg) {
	defer close(out)
	for {
		line, err := s.r.ReadString('\n')
		if line != "" {
			select {
			case out <- lineMsg{line: line}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case out <- lineMsg{err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// handleLine routes one line of input according to the current phase: a
// well-formed <?scscp ...?> frame is always dispatched as an instruction;
// anything else is transaction body content while ReceivingTransaction, or
// a malformed frame otherwise.
func (s *Session) handleLine(raw string) error {
	trimmed := strings.TrimRight(raw, "\r\n")

	f, err := DecodeFrame(trimmed)
	if err != nil {
		if s.phase == ReceivingTransaction {
			s.parser.Feed([]byte(raw))
			return nil
		}
		s.opts.log.Warn("malformed frame", "peer", s.peer, "line", trimmed, "error", err)
		return nil
	}
	return s.handleFrame(f)
}

func (s *Session) handleFrame(f Frame) error {
	switch s.phase {
	case Negotiating:
		return s.handleNegotiating(f)
	case Idle:
		return s.handleIdle(f)
	case ReceivingTransaction:
		return s.handleReceiving(f)
	default:
		return nil
	}
}

func (s *Session) handleNegotiating(f Frame) error {
	if f.Key == "quit" {
		s.phase = Closing
		return ErrClientQuit
	}
	version, ok := f.Attr["version"]
	if !ok {
		return s.rejectNegotiation(fmt.Sprintf("unexpected frame during negotiation: %q", f.Key))
	}
	if !versionOffered(version, protocolVersion) {
		return s.rejectNegotiation("not supported version")
	}
	if err := s.writeFrame("version", protocolVersion); err != nil {
		return err
	}
	s.phase = Idle
	go s.registry.Reap(s.ctx, s.opts.reapInterval, s.opts.reapMaxAge)
	return nil
}

func (s *Session) rejectNegotiation(reason string) error {
	_ = s.writeFrame("quit", "reason", reason)
	s.phase = Closing
	return &NegotiationError{Reason: reason}
}

func versionOffered(list, want string) bool {
	for _, v := range strings.Fields(list) {
		if v == want {
			return true
		}
	}
	return false
}

func (s *Session) handleIdle(f Frame) error {
	switch {
	case f.Key == "start":
		s.phase = ReceivingTransaction
		s.parser = openmath.NewParser()
		return nil
	case f.Key == "quit":
		s.phase = Closing
		return ErrClientQuit
	case f.Key == "terminate":
		return s.handleTerminate(f)
	case f.Has("info"):
		s.opts.log.Info("peer info", "peer", s.peer, "info", f.Attr["info"])
		return nil
	case f.Key == "cancel" || f.Key == "end":
		s.writeInfo(fmt.Sprintf("protocol error: %q not valid outside a transaction", f.Key))
		return nil
	default:
		s.writeInfo(fmt.Sprintf("unrecognised frame %q", f.Key))
		return nil
	}
}

func (s *Session) handleReceiving(f Frame) error {
	switch f.Key {
	case "end":
		obj, err := s.parser.Close()
		s.parser = nil
		s.phase = Idle
		if err != nil {
			s.opts.log.Warn("malformed openmath transaction", "peer", s.peer, "error", err)
			return nil
		}
		s.verifyAndDispatch(obj)
		return nil
	case "cancel":
		s.parser = nil
		s.phase = Idle
		return nil
	case "start":
		s.parser = nil
		s.phase = Idle
		s.writeInfo("protocol error: start while already receiving a transaction")
		return nil
	case "quit":
		s.parser = nil
		s.phase = Closing
		return ErrClientQuit
	case "terminate":
		return s.handleTerminate(f)
	default:
		if f.Has("info") {
			s.opts.log.Info("peer info", "peer", s.peer, "info", f.Attr["info"])
			return nil
		}
		s.writeInfo(fmt.Sprintf("unrecognised frame %q during transaction", f.Key))
		return nil
	}
}

func (s *Session) handleTerminate(f Frame) error {
	callID, ok := f.Attr["call_id"]
	if !ok {
		s.writeInfo("terminate missing call_id")
		return nil
	}
	if !s.registry.Cancel(callID) {
		s.opts.log.Info("terminate for unknown or completed call_id", "peer", s.peer, "call_id", callID)
	}
	return nil
}

// verifyAndDispatch validates obj as a procedure_call and, if it resolves,
// starts a cancellable task for it; otherwise it emits whatever response
// §7's InvalidCall policy allows.
func (s *Session) verifyAndDispatch(obj openmath.Object) {
	pc, err := call.Verify(obj)
	if err != nil {
		s.opts.log.Warn("invalid procedure call", "peer", s.peer, "error", err)
		if pc.CallID != "" {
			s.writeResponse(mux.FailedResponse(pc.CallID, err.Error()))
		}
		return
	}

	h, ok := s.mux.Handler(pc.CD, pc.Name)
	if !ok {
		s.writeResponse(mux.UnresolvedResponse(pc))
		return
	}

	if _, dup := s.registry.Lookup(pc.CallID); dup {
		// The verifier only catches a call_id repeated within one OMATP;
		// reuse across transactions while the first is still in-flight
		// surfaces here instead. §8: reported against the new arrival, the
		// registry's own Insert panic never fires.
		s.opts.log.Warn("duplicate call_id in active registry", "peer", s.peer, "call_id", pc.CallID)
		s.writeResponse(mux.FailedResponse(pc.CallID, fmt.Sprintf("call_id %q already active", pc.CallID)))
		return
	}

	ctx, cancel := context.WithCancelCause(s.ctx)
	s.registry.Insert(pc.CallID, pc.ReturnType, cancel)
	s.opts.instrumentation.TaskStarted()
	s.opts.log.Debug("task started", "peer", s.peer, "call_id", pc.CallID, "cd", pc.CD, "name", pc.Name)
	go func() {
		result, err := h.HandleCall(ctx, pc)
		s.results <- callResult{pc: pc, result: result, err: err, cause: context.Cause(ctx)}
	}()
}

// handleResult runs the completion callback described in §4.5: remove the
// entry from the registry before writing the response, so a concurrent
// `terminate` cannot race a response already in flight.
func (s *Session) handleResult(res callResult) {
	s.registry.Remove(res.pc.CallID)
	s.opts.instrumentation.TaskEnded()

	switch {
	case errors.Is(res.cause, registry.ErrReaped):
		s.opts.log.Warn("task reaped", "peer", s.peer, "call_id", res.pc.CallID)
		s.writeInfo(fmt.Sprintf("task %s reaped: exceeded max age without completing", res.pc.CallID))
		s.writeResponse(mux.CancelledResponse(res.pc.CallID))
	case errors.Is(res.cause, registry.ErrTerminated):
		s.writeResponse(mux.CancelledResponse(res.pc.CallID))
	case res.err != nil:
		s.writeResponse(mux.FailedResponse(res.pc.CallID, res.err.Error()))
	default:
		s.writeResponse(s.finalResult(res.pc, res.result))
	}
}

func (s *Session) finalResult(pc call.ProcedureCall, result openmath.Object) openmath.Object {
	switch pc.ReturnType {
	case call.ReturnCookie:
		token := s.registry.StoreResult(result)
		return mux.CompletedResponse(pc.CallID, call.ReturnCookie, openmath.StrObj(token), pc.DebugLevel)
	case call.ReturnNothing:
		return mux.CompletedResponse(pc.CallID, call.ReturnNothing, openmath.Object{}, pc.DebugLevel)
	default:
		return mux.CompletedResponse(pc.CallID, call.ReturnObject, result, pc.DebugLevel)
	}
}

func (s *Session) writeResponse(obj openmath.Object) {
	data, err := openmath.Marshal(obj)
	if err != nil {
		s.opts.log.Error("marshal response", "peer", s.peer, "error", err)
		return
	}
	if err := s.writeFrame("start"); err != nil {
		return
	}
	s.wmu.Lock()
	_, werr := s.w.Write(data)
	if werr == nil {
		_, werr = io.WriteString(s.w, "\n")
	}
	s.wmu.Unlock()
	if werr != nil {
		s.opts.log.Error("write transaction body", "peer", s.peer, "error", werr)
		return
	}
	_ = s.writeFrame("end")
}

func (s *Session) writeFrame(parts ...string) error {
	line := EncodeFrame(parts...)
	s.wmu.Lock()
	_, err := io.WriteString(s.w, line)
	s.wmu.Unlock()
	if err != nil {
		s.opts.log.Error("write frame", "peer", s.peer, "error", err)
		return err
	}
	s.opts.instrumentation.FrameWritten()
	return nil
}

func (s *Session) writeInfo(msg string) {
	_ = s.writeFrame("info", msg)
}
