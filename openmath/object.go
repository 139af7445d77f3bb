// Package openmath implements the subset of the OpenMath XML object model
// required to decode procedure calls and encode procedure results, per the
// OpenMath 2.0 standard as profiled by SCSCP 1.3.
package openmath // import "scscp.dev/scscpd/openmath"

import "fmt"

// Kind identifies the tag of an Object node. The set is closed: a parsed or
// hand-built tree never contains a Kind outside this list.
type Kind int

// The closed set of OpenMath node kinds this package understands.
const (
	// OBJ wraps exactly one child: the top-level OpenMath object.
	OBJ Kind = iota
	// Int is an OMI integer leaf.
	Int
	// Float is an OMF floating point leaf.
	Float
	// Str is an OMSTR string leaf.
	Str
	// Bytes is an OMB byte-array leaf.
	Bytes
	// Symbol is an OMS symbol leaf, identified by CD and Name.
	Symbol
	// Var is an OMV variable leaf, identified by Name.
	Var
	// App is an OMA application: first child is the head, the rest arguments.
	App
	// Attribution is an OMATTR: children are (ATP, body).
	Attribution
	// ATP is an attribute pair list: an even number of (symbol, value)
	// children.
	ATP
	// Bind is an OMBIND with exactly three children (head, variables, body).
	// There is no OMBVAR kind, so the parser rejects an OMBVAR element.
	Bind
	// Err is an OMERROR: first child is a symbol, the rest are arguments.
	Err
	// Foreign is an OMFOREIGN leaf carrying opaque encoded data.
	Foreign
)

func (k Kind) String() string {
	switch k {
	case OBJ:
		return "OMOBJ"
	case Int:
		return "OMI"
	case Float:
		return "OMF"
	case Str:
		return "OMSTR"
	case Bytes:
		return "OMB"
	case Symbol:
		return "OMS"
	case Var:
		return "OMV"
	case App:
		return "OMA"
	case Attribution:
		return "OMATTR"
	case ATP:
		return "OMATP"
	case Bind:
		return "OMBIND"
	case Err:
		return "OMERROR"
	case Foreign:
		return "OMFOREIGN"
	default:
		return "UNKNOWN"
	}
}

// Object is a single node of an OpenMath tree. Only the fields relevant to
// its Kind are populated; the zero value of the others is ignored.
//
// Object is a plain owned value: there is no aliasing between trees and no
// cycles, so it needs no shared-ownership scheme.
type Object struct {
	Kind Kind

	// Int is populated for Kind == Int. OpenMath integers are unbounded, but
	// SCSCP procedure arguments in practice fit an int64; larger literals are
	// rejected by the parser with MalformedOpenMath.
	Int int64

	// Float is populated for Kind == Float.
	Float float64

	// Str is populated for Kind == Str.
	Str string

	// Bytes is populated for Kind == Bytes.
	Bytes []byte

	// CD and Name are populated for Kind == Symbol.
	CD, Name string

	// Name is also reused for Kind == Var (the variable's name).

	// Encoding and Foreign are populated for Kind == Foreign.
	Encoding string
	Foreign  string

	// ID is the optional "id" attribute carried by any OpenMath element.
	ID string

	Children []Object
}

// Sym builds a Symbol leaf.
func Sym(cd, name string) Object {
	return Object{Kind: Symbol, CD: cd, Name: name}
}

// IntObj builds an Int leaf.
func IntObj(v int64) Object {
	return Object{Kind: Int, Int: v}
}

// StrObj builds a Str leaf.
func StrObj(v string) Object {
	return Object{Kind: Str, Str: v}
}

// App1 builds an application of head to args.
func App1(head Object, args ...Object) Object {
	return Object{Kind: App, Children: append([]Object{head}, args...)}
}

// Wrap builds an OBJ node wrapping child.
func Wrap(child Object) Object {
	return Object{Kind: OBJ, Children: []Object{child}}
}

// Is reports whether o is a Symbol with the given CD and name.
func (o Object) Is(cd, name string) bool {
	return o.Kind == Symbol && o.CD == cd && o.Name == name
}

// Error describes a structural violation discovered while building or
// walking an Object tree. Reason identifies the failing step so that callers
// (and tests) can assert on it without string-matching prose.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("openmath: %s", e.Reason)
}

func errf(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}
