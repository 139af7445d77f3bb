// Package call decodes and validates SCSCP procedure_call transactions from
// parsed OpenMath trees, per the scscp1 content dictionary.
package call // import "scscp.dev/scscpd/call"

import (
	"fmt"

	"scscp.dev/scscpd/internal/ns"
	"scscp.dev/scscpd/openmath"
)

// ReturnType selects how a procedure's result is delivered back to the
// client, driven by which option_return_* symbol accompanied the call.
type ReturnType int

const (
	// ReturnObject answers with the computed value inline, as an OpenMath
	// object, via option_return_object. Verify rejects a call that carries no
	// option_return_* at all.
	ReturnObject ReturnType = iota
	// ReturnCookie answers with a string token under which the session's task
	// registry keeps the result, via option_return_cookie.
	ReturnCookie
	// ReturnNothing discards the result and answers with an empty
	// procedure_completed, via option_return_nothing.
	ReturnNothing
)

func (r ReturnType) String() string {
	switch r {
	case ReturnObject:
		return "object"
	case ReturnCookie:
		return "cookie"
	case ReturnNothing:
		return "nothing"
	default:
		return "unknown"
	}
}

// ProcedureCall is the decoded, validated form of a procedure_call
// transaction body: the call identifier, the symbol being invoked, its
// arguments, and the options that accompanied it.
type ProcedureCall struct {
	CallID     string
	CD, Name   string
	Args       []openmath.Object
	ReturnType ReturnType
	RunTime    int64 // option_runtime, in seconds; zero if unset
	MinMemory  int64 // option_min_memory, in bytes; zero if unset
	MaxMemory  int64 // option_max_memory, in bytes; zero if unset
	DebugLevel int64 // option_debuglevel; zero if unset

	// Options holds every option_* pair not among the recognised ones above,
	// keyed by symbol name, verbatim. Unknown options never fail the
	// verifier; they are simply carried for handlers that care to inspect
	// them.
	Options map[string]openmath.Object

	// Object is the procedure symbol itself, retained for dispatch
	// diagnostics (unknown-cd vs. unknown-name reporting).
	Object openmath.Object
}

// Head identifies a registered procedure symbol by its content dictionary
// and name, used by the get_allowed_heads introspection handler.
type Head struct {
	CD, Name string
}

// InvalidCallError reports that a transaction body was well-formed OpenMath
// but did not match the procedure_call shape required by scscp1.
type InvalidCallError struct {
	Reason string
}

func (e *InvalidCallError) Error() string {
	return fmt.Sprintf("scscp: invalid procedure call: %s", e.Reason)
}

func invalid(format string, args ...any) error {
	return &InvalidCallError{Reason: fmt.Sprintf(format, args...)}
}

// Verify walks obj, the root OMOBJ parsed from a transaction body, and
// decodes it into a ProcedureCall. obj must be the top-level OMOBJ wrapping
// an OMATTR whose body is an OMA application of scscp1.procedure_call.
//
// On failure, Verify still returns whatever fields it had already decoded
// (notably CallID, if the OMATP was reached before the failing step), so
// that a caller can report the error against the right call_id when one was
// extractable (§7: InvalidCall).
func Verify(obj openmath.Object) (ProcedureCall, error) {
	pc := ProcedureCall{ReturnType: ReturnObject}

	if obj.Kind != openmath.OBJ || len(obj.Children) != 1 {
		return pc, invalid("expected a single top-level OMOBJ")
	}
	attribution := obj.Children[0]
	if attribution.Kind != openmath.Attribution || len(attribution.Children) != 2 {
		return pc, invalid("expected OMOBJ to wrap an OMATTR with call_id and body")
	}

	atp := attribution.Children[0]
	body := attribution.Children[1]

	if err := applyOptions(&pc, atp); err != nil {
		return pc, err
	}
	if pc.CallID == "" {
		return pc, invalid("missing scscp1.call_id attribute")
	}

	if body.Kind != openmath.App || len(body.Children) != 2 {
		return pc, invalid("OMATTR body must be an OMA of (procedure_call, invocation)")
	}
	if !body.Children[0].Is(ns.CD1, "procedure_call") {
		return pc, invalid("OMATTR body head must be scscp1.procedure_call")
	}

	invocation := body.Children[1]
	if invocation.Kind != openmath.App || len(invocation.Children) == 0 {
		return pc, invalid("procedure_call argument must be an OMA application")
	}
	head := invocation.Children[0]
	if head.Kind != openmath.Symbol {
		return pc, invalid("invocation head must be an OMS symbol")
	}

	pc.Object = head
	pc.CD, pc.Name = head.CD, head.Name
	pc.Args = invocation.Children[1:]
	return pc, nil
}

// applyOptions decodes the OMATP attribute pairs that accompany a
// procedure_call: call_id and the option_* family from scscp1. Exactly one
// call_id and one option_return_* must be present; unrecognized option_*
// names are captured rather than rejected.
func applyOptions(pc *ProcedureCall, atp openmath.Object) error {
	if atp.Kind != openmath.ATP || len(atp.Children)%2 != 0 {
		return invalid("expected an OMATP with an even number of children")
	}
	sawCallID := false
	sawReturnType := false
	for i := 0; i < len(atp.Children); i += 2 {
		key := atp.Children[i]
		val := atp.Children[i+1]
		if key.Kind != openmath.Symbol || key.CD != ns.CD1 {
			return invalid("unrecognized attribute pair key %q", key.Name)
		}
		switch key.Name {
		case "call_id":
			if sawCallID {
				return invalid("duplicate call_id")
			}
			if val.Kind != openmath.Str {
				return invalid("call_id value must be an OMSTR")
			}
			pc.CallID = val.Str
			sawCallID = true
		case "option_return_object", "option_return_cookie", "option_return_nothing":
			if sawReturnType {
				return invalid("duplicate option_return_*")
			}
			switch key.Name {
			case "option_return_object":
				pc.ReturnType = ReturnObject
			case "option_return_cookie":
				pc.ReturnType = ReturnCookie
			case "option_return_nothing":
				pc.ReturnType = ReturnNothing
			}
			sawReturnType = true
		case "option_runtime":
			n, err := intValue(val)
			if err != nil {
				return invalid("option_runtime: %v", err)
			}
			pc.RunTime = n
		case "option_min_memory":
			n, err := intValue(val)
			if err != nil {
				return invalid("option_min_memory: %v", err)
			}
			pc.MinMemory = n
		case "option_max_memory":
			n, err := intValue(val)
			if err != nil {
				return invalid("option_max_memory: %v", err)
			}
			pc.MaxMemory = n
		case "option_debuglevel":
			n, err := intValue(val)
			if err != nil {
				return invalid("option_debuglevel: %v", err)
			}
			pc.DebugLevel = n
		default:
			if pc.Options == nil {
				pc.Options = make(map[string]openmath.Object)
			}
			pc.Options[key.Name] = val
		}
	}
	if !sawReturnType {
		return invalid("missing option_return_* attribute")
	}
	return nil
}

func intValue(o openmath.Object) (int64, error) {
	if o.Kind != openmath.Int {
		return 0, fmt.Errorf("value must be an OMI, got %s", o.Kind)
	}
	return o.Int, nil
}
