package scscp

import (
	"errors"
	"fmt"
)

// MalformedFrameError reports that a control line was not a well-formed
// <?scscp ...?> processing instruction (§7: MalformedFrame). The session
// logs it and ignores the line; phase is unchanged.
type MalformedFrameError struct {
	Line   string
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("scscp: malformed frame %q: %s", e.Line, e.Reason)
}

// NegotiationError reports an incompatible or illegal frame received during
// Negotiating (§7: NegotiationFailed). The session emits a `quit` frame with
// Reason and closes.
type NegotiationError struct {
	Reason string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("scscp: negotiation failed: %s", e.Reason)
}

// ErrClientQuit is the cause recorded when the peer sends an orderly `quit`
// frame. It is not an error condition; the session cancels outstanding
// tasks and closes.
var ErrClientQuit = errors.New("scscp: client requested quit")

// ErrConnectionClosed is the cause recorded when the connection is lost
// without an explicit `quit`, treated as an implicit quit per §7.
var ErrConnectionClosed = errors.New("scscp: connection closed")
