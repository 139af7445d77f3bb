// Package server binds SCSCP sessions to TCP connections: an Acceptor runs
// the listen/accept loop and hands each connection to its own
// scscp.Session, and a Service bundles a procedure dispatcher with the
// built-in introspection handler every SCSCP server advertises.
package server // import "scscp.dev/scscpd/server"
