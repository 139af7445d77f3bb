// Package mux resolves the (cd, name) of a procedure_call to a registered
// handler, the way [mellium.im/xmpp/mux] resolves a stanza payload to an
// IQ/Message/Presence handler: an explicit registry populated at startup,
// with a well-defined fallback when nothing matches.
package mux // import "scscp.dev/scscpd/mux"

import (
	"context"
	"fmt"

	"scscp.dev/scscpd/call"
	"scscp.dev/scscpd/internal/ns"
	"scscp.dev/scscpd/openmath"
)

// ProcedureHandler invokes a registered procedure with the arguments and
// options decoded from a procedure_call transaction.
type ProcedureHandler interface {
	HandleCall(ctx context.Context, pc call.ProcedureCall) (openmath.Object, error)
}

// ProcedureHandlerFunc adapts a plain function to a ProcedureHandler.
type ProcedureHandlerFunc func(ctx context.Context, pc call.ProcedureCall) (openmath.Object, error)

// HandleCall calls f.
func (f ProcedureHandlerFunc) HandleCall(ctx context.Context, pc call.ProcedureCall) (openmath.Object, error) {
	return f(ctx, pc)
}

type pattern struct {
	CD, Name string
}

func (p pattern) String() string {
	return fmt.Sprintf("%s.%s", p.CD, p.Name)
}

// Mux is a procedure dispatcher: a registry mapping a symbol's (cd, name) to
// the handler that implements it.
type Mux struct {
	handlers map[pattern]ProcedureHandler
}

// New allocates a Mux and applies opt in order.
func New(opt ...Option) *Mux {
	m := &Mux{handlers: make(map[pattern]ProcedureHandler)}
	for _, o := range opt {
		o(m)
	}
	return m
}

// Handle registers h for the symbol (cd, name). It panics if a handler is
// already registered for that symbol: handler registration happens once,
// at startup, and a collision there is a programmer error.
func (m *Mux) Handle(cd, name string, h ProcedureHandler) {
	p := pattern{CD: cd, Name: name}
	if _, ok := m.handlers[p]; ok {
		panic(fmt.Sprintf("mux: handler already registered for %s", p))
	}
	m.handlers[p] = h
}

// Handler returns the handler registered for (cd, name), if any.
func (m *Mux) Handler(cd, name string) (ProcedureHandler, bool) {
	h, ok := m.handlers[pattern{CD: cd, Name: name}]
	return h, ok
}

// Heads returns the (cd, name) pairs of every registered handler in map
// iteration order, which is unspecified and may differ between calls.
// Backs the get_allowed_heads introspection handler.
func (m *Mux) Heads() []call.Head {
	heads := make([]call.Head, 0, len(m.handlers))
	for p := range m.handlers {
		heads = append(heads, call.Head{CD: p.CD, Name: p.Name})
	}
	return heads
}

// UnknownSymbolError reports that a procedure_call named a (cd, name) with
// no registered handler.
type UnknownSymbolError struct {
	CD, Name string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("unknown symbol: cd=%s, name=%s", e.CD, e.Name)
}

// errorResponse builds a procedure_terminated object carrying callID and an
// error_* symbol from ns.CD1, per §4.5/§7 of the response format.
func errorResponse(callID, condition, message string) openmath.Object {
	atp := openmath.Object{
		Kind: openmath.ATP,
		Children: []openmath.Object{
			openmath.Sym(ns.CD1, "call_id"), openmath.StrObj(callID),
		},
	}
	errObj := openmath.Object{
		Kind: openmath.Err,
		Children: []openmath.Object{
			openmath.Sym(ns.CD1, condition),
			openmath.StrObj(message),
		},
	}
	body := openmath.App1(openmath.Sym(ns.CD1, "procedure_terminated"), errObj)
	return openmath.Wrap(openmath.Object{
		Kind:     openmath.Attribution,
		Children: []openmath.Object{atp, body},
	})
}

// UnresolvedResponse builds the procedure_terminated/error_system_specific
// response emitted when pc names a symbol with no registered handler.
func UnresolvedResponse(pc call.ProcedureCall) openmath.Object {
	err := &UnknownSymbolError{CD: pc.CD, Name: pc.Name}
	return errorResponse(pc.CallID, "error_system_specific", err.Error())
}

// CancelledResponse builds the procedure_terminated/error_CAS_terminated
// response emitted when a task is cancelled via `terminate`.
func CancelledResponse(callID string) openmath.Object {
	return errorResponse(callID, "error_CAS_terminated", "task terminated by client")
}

// FailedResponse builds the procedure_terminated/error_system_specific
// response emitted when a handler returns an error.
func FailedResponse(callID, message string) openmath.Object {
	return errorResponse(callID, "error_system_specific", message)
}

// CompletedResponse builds the procedure_completed response for a
// successful call, shaping the body according to returnType: the result
// itself for Object, an empty object for Nothing, or a cookie reference
// string for Cookie. When debugLevel is non-zero, it is echoed back as
// option_debuglevel, matching the original server's behavior of reflecting
// the requested debug level on completion.
func CompletedResponse(callID string, returnType call.ReturnType, result openmath.Object, debugLevel int64) openmath.Object {
	atpChildren := []openmath.Object{
		openmath.Sym(ns.CD1, "call_id"), openmath.StrObj(callID),
	}
	if debugLevel != 0 {
		atpChildren = append(atpChildren,
			openmath.Sym(ns.CD1, "option_debuglevel"), openmath.IntObj(debugLevel))
	}
	atp := openmath.Object{
		Kind:     openmath.ATP,
		Children: atpChildren,
	}
	head := openmath.Sym(ns.CD1, "procedure_completed")
	var body openmath.Object
	if returnType == call.ReturnNothing {
		// An OMA with only the head satisfies the "at least one child"
		// invariant without asserting a meaningless payload value.
		body = openmath.Object{Kind: openmath.App, Children: []openmath.Object{head}}
	} else {
		body = openmath.App1(head, result)
	}
	return openmath.Wrap(openmath.Object{
		Kind:     openmath.Attribution,
		Children: []openmath.Object{atp, body},
	})
}
