package openmath

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"scscp.dev/scscpd/internal/attr"
	"scscp.dev/scscpd/internal/decl"
)

// Parser incrementally accumulates the XML bytes of one OpenMath object.
//
// Feed may be called any number of times with partial input; nothing is
// parsed until Close, matching the transaction buffer invariant in the
// session state machine: interim partials are never consumed, only the
// complete, well-formed document handed to Close is.
type Parser struct {
	buf bytes.Buffer
}

// NewParser returns an empty Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends p to the accumulated input.
func (d *Parser) Feed(p []byte) {
	d.buf.Write(p)
}

// Close parses the accumulated bytes as a single OpenMath object and returns
// its root. The Parser must not be reused afterwards.
func (d *Parser) Close() (Object, error) {
	dec := xml.NewDecoder(&d.buf)
	r := decl.Skip(dec)

	start, err := nextStart(r)
	if err != nil {
		return Object{}, malformed("reading root element: %v", err)
	}
	obj, err := buildNode(r, start)
	if err != nil {
		return Object{}, err
	}
	if obj.Kind != OBJ {
		return Object{}, malformed("root element is %s, want OMOBJ", start.Name.Local)
	}
	return obj, nil
}

// malformed wraps a root cause as the MalformedOpenMath kind from §7: parse
// failure inside a transaction body.
func malformed(format string, args ...any) error {
	return &MalformedError{msg: sprintf(format, args...)}
}

// MalformedError reports that the accumulated transaction bytes were not a
// well-formed OpenMath object.
type MalformedError struct {
	msg string
}

func (e *MalformedError) Error() string { return "openmath: malformed: " + e.msg }

func sprintf(format string, args ...any) string {
	return errf(format, args...).Error()[len("openmath: "):]
}

// nextStart reads tokens until it finds a StartElement, skipping whitespace
// CharData, comments, processing instructions and directives; anything else
// is a structural failure.
func nextStart(r xml.TokenReader) (xml.StartElement, error) {
	for {
		tok, err := r.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, nil
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return xml.StartElement{}, malformed("unexpected character data %q", string(t))
			}
		case xml.Comment, xml.ProcInst, xml.Directive:
			// ignored
		default:
			return xml.StartElement{}, malformed("unexpected token %T", tok)
		}
	}
}

// kindFromTag maps the local name of an OpenMath element to a Kind.
func kindFromTag(local string) (Kind, bool) {
	switch local {
	case "OMOBJ":
		return OBJ, true
	case "OMI":
		return Int, true
	case "OMF":
		return Float, true
	case "OMSTR":
		return Str, true
	case "OMB":
		return Bytes, true
	case "OMS":
		return Symbol, true
	case "OMV":
		return Var, true
	case "OMA":
		return App, true
	case "OMATTR":
		return Attribution, true
	case "OMATP":
		return ATP, true
	case "OMBIND":
		return Bind, true
	case "OMERROR":
		return Err, true
	case "OMFOREIGN":
		return Foreign, true
	default:
		return 0, false
	}
}

// buildNode recursively decodes the element named by start (already
// consumed from r) into an Object, consuming up to and including its
// matching EndElement.
func buildNode(r xml.TokenReader, start xml.StartElement) (Object, error) {
	kind, ok := kindFromTag(start.Name.Local)
	if !ok {
		return Object{}, malformed("unknown element %q", start.Name.Local)
	}
	obj := Object{Kind: kind}
	if _, id := attr.Get(start.Attr, "id"); id != "" {
		obj.ID = id
	}

	switch kind {
	case Symbol:
		_, cd := attr.Get(start.Attr, "cd")
		_, name := attr.Get(start.Attr, "name")
		if cd == "" || name == "" {
			return Object{}, malformed("OMS missing cd or name attribute")
		}
		obj.CD, obj.Name = cd, name
		return obj, skipToEnd(r, start.Name)
	case Var:
		_, name := attr.Get(start.Attr, "name")
		if name == "" {
			return Object{}, malformed("OMV missing name attribute")
		}
		obj.Name = name
		return obj, skipToEnd(r, start.Name)
	case Int:
		text, err := readText(r, start.Name)
		if err != nil {
			return Object{}, err
		}
		v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return Object{}, malformed("OMI payload %q is not an integer: %v", text, err)
		}
		obj.Int = v
		return obj, nil
	case Float:
		var text string
		var err error
		if _, dec := attr.Get(start.Attr, "dec"); dec != "" {
			text = dec
			if err := skipToEnd(r, start.Name); err != nil {
				return Object{}, err
			}
		} else {
			text, err = readText(r, start.Name)
			if err != nil {
				return Object{}, err
			}
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return Object{}, malformed("OMF payload %q is not a float: %v", text, err)
		}
		obj.Float = v
		return obj, nil
	case Str:
		text, err := readText(r, start.Name)
		if err != nil {
			return Object{}, err
		}
		obj.Str = text
		return obj, nil
	case Bytes:
		text, err := readText(r, start.Name)
		if err != nil {
			return Object{}, err
		}
		raw, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return Object{}, malformed("OMB payload is not valid base64: %v", err)
		}
		obj.Bytes = raw
		return obj, nil
	case Foreign:
		_, enc := attr.Get(start.Attr, "encoding")
		obj.Encoding = enc
		text, err := readText(r, start.Name)
		if err != nil {
			return Object{}, err
		}
		obj.Foreign = text
		return obj, nil
	default:
		// Container kinds: OBJ, App, Attribution, ATP, Bind, Err.
		children, err := readChildren(r, start.Name)
		if err != nil {
			return Object{}, err
		}
		obj.Children = children
		if err := validateContainer(kind, children); err != nil {
			return Object{}, err
		}
		return obj, nil
	}
}

// readChildren reads nested elements until the end tag matching name,
// recursing into buildNode for each child and discarding interleaved
// whitespace.
func readChildren(r xml.TokenReader, name xml.Name) ([]Object, error) {
	var out []Object
	for {
		tok, err := r.Token()
		if err != nil {
			return nil, malformed("reading children of %s: %v", name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := buildNode(r, t)
			if err != nil {
				return nil, err
			}
			out = append(out, child)
		case xml.EndElement:
			if t.Name != name {
				return nil, malformed("mismatched end element %s, want %s", t.Name.Local, name.Local)
			}
			return out, nil
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return nil, malformed("unexpected character data inside %s", name.Local)
			}
		case xml.Comment, xml.ProcInst, xml.Directive:
			// ignored
		default:
			return nil, malformed("unexpected token %T inside %s", tok, name.Local)
		}
	}
}

// readText reads character data up to the end tag matching name. Leaves
// carrying a payload (OMI, OMF, OMSTR, OMB, OMFOREIGN) have no element
// children, only text.
func readText(r xml.TokenReader, name xml.Name) (string, error) {
	var buf bytes.Buffer
	for {
		tok, err := r.Token()
		if err != nil {
			return "", malformed("reading payload of %s: %v", name.Local, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.EndElement:
			if t.Name != name {
				return "", malformed("mismatched end element %s, want %s", t.Name.Local, name.Local)
			}
			return buf.String(), nil
		case xml.StartElement:
			return "", malformed("unexpected nested element %s inside leaf %s", t.Name.Local, name.Local)
		case xml.Comment, xml.ProcInst, xml.Directive:
			// ignored
		default:
			return "", malformed("unexpected token %T inside %s", tok, name.Local)
		}
	}
}

// skipToEnd consumes tokens through the end tag matching name, for elements
// whose payload is carried entirely in attributes (OMS, OMV).
func skipToEnd(r xml.TokenReader, name xml.Name) error {
	for {
		tok, err := r.Token()
		if err != nil {
			return malformed("reading %s: %v", name.Local, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name != name {
				return malformed("mismatched end element %s, want %s", t.Name.Local, name.Local)
			}
			return nil
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return malformed("unexpected character data inside %s", name.Local)
			}
		case xml.StartElement:
			return malformed("unexpected nested element %s inside %s", t.Name.Local, name.Local)
		}
	}
}

// validateContainer enforces the per-Kind arity invariants from the data
// model: OBJ wraps exactly one child, ATTR has exactly two (ATP, value),
// ATP holds an even number of (symbol, value) pairs.
func validateContainer(kind Kind, children []Object) error {
	switch kind {
	case OBJ:
		if len(children) != 1 {
			return malformed("OMOBJ must wrap exactly one child, got %d", len(children))
		}
	case Attribution:
		if len(children) != 2 {
			return malformed("OMATTR must have exactly two children (OMATP, value), got %d", len(children))
		}
		if children[0].Kind != ATP {
			return malformed("OMATTR first child must be OMATP, got %s", children[0].Kind)
		}
	case ATP:
		if len(children)%2 != 0 {
			return malformed("OMATP must have an even number of children, got %d", len(children))
		}
		for i := 0; i < len(children); i += 2 {
			if children[i].Kind != Symbol {
				return malformed("OMATP pair %d key must be OMS, got %s", i/2, children[i].Kind)
			}
		}
	case App:
		if len(children) == 0 {
			return malformed("OMA must have at least one child (the head)")
		}
	case Bind:
		if len(children) != 3 {
			return malformed("OMBIND must have exactly three children, got %d", len(children))
		}
	case Err:
		if len(children) == 0 {
			return malformed("OMERROR must have at least one child (the symbol)")
		}
		if children[0].Kind != Symbol {
			return malformed("OMERROR first child must be OMS, got %s", children[0].Kind)
		}
	}
	return nil
}

var _ io.Writer = (*bytes.Buffer)(nil)
