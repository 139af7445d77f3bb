package server

import (
	"context"

	"scscp.dev/scscpd/call"
	"scscp.dev/scscpd/internal/ns"
	"scscp.dev/scscpd/mux"
	"scscp.dev/scscpd/openmath"
)

// Service bundles a procedure dispatcher with the introspection handler
// every SCSCP server advertises (get_allowed_heads), the supplemented
// feature from SPEC_FULL §13: a server-side capability reply is
// introspection, not the client-role discovery the Non-goals exclude.
type Service struct {
	m *mux.Mux
}

// NewService builds a Mux from opt and pre-registers get_allowed_heads
// against it.
func NewService(opt ...mux.Option) *Service {
	m := mux.New(opt...)
	svc := &Service{m: m}
	m.Handle(ns.CDTransient1, "get_allowed_heads", mux.ProcedureHandlerFunc(svc.getAllowedHeads))
	return svc
}

// Mux returns the underlying dispatcher, for acceptor construction.
func (s *Service) Mux() *mux.Mux { return s.m }

// getAllowedHeads answers scscp_transient_1.get_allowed_heads with the
// (cd, name) of every registered procedure, as an application headed by the
// same symbol and carrying one OMS child per head.
func (s *Service) getAllowedHeads(_ context.Context, _ call.ProcedureCall) (openmath.Object, error) {
	heads := s.m.Heads()
	children := make([]openmath.Object, 0, len(heads)+1)
	children = append(children, openmath.Sym(ns.CDTransient1, "get_allowed_heads"))
	for _, h := range heads {
		children = append(children, openmath.Sym(h.CD, h.Name))
	}
	return openmath.Object{Kind: openmath.App, Children: children}, nil
}
