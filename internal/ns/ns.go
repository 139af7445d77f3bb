// Package ns provides namespace and literal constants shared by the call,
// mux and server packages.
package ns // import "scscp.dev/scscpd/internal/ns"

const (
	// OpenMath is the XML namespace of an OpenMath object.
	OpenMath = "http://www.openmath.org/OpenMath"

	// Target is the processing instruction target used by every SCSCP frame.
	Target = "scscp"

	// CD1 is the content dictionary defining the scscp1 control symbols
	// (procedure_call, procedure_completed, procedure_terminated, call_id,
	// option_*, error_*).
	CD1 = "scscp1"

	// CDTransient1 is the content dictionary of the built-in, server-side
	// introspection symbols such as get_allowed_heads.
	CDTransient1 = "scscp_transient_1"
)
