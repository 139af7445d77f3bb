package scscp

import (
	"regexp"
	"strings"
)

// Frame is one decoded `<?scscp ...?>` processing instruction: an optional
// bare key token and an unordered attribute map, per §4.1 of the wire
// protocol.
type Frame struct {
	Key  string
	Attr map[string]string
}

// Has reports whether attr is present on the frame.
func (f Frame) Has(attr string) bool {
	_, ok := f.Attr[attr]
	return ok
}

var frameLine = regexp.MustCompile(`^<\?\s*scscp(.*)\?>$`)
var attrPair = regexp.MustCompile(`([A-Za-z0-9_]+)="([^"]*)"`)

// DecodeFrame parses one trimmed line as a control frame. It fails with
// *MalformedFrameError if the line does not begin with "<?", does not
// contain the literal token "scscp", or does not end with "?>".
func DecodeFrame(line string) (Frame, error) {
	trimmed := strings.TrimSpace(line)
	m := frameLine.FindStringSubmatch(trimmed)
	if m == nil {
		return Frame{}, &MalformedFrameError{Line: line, Reason: "not a well-formed <?scscp ...?> instruction"}
	}

	rest := strings.TrimSpace(m[1])
	f := Frame{Attr: make(map[string]string)}
	if rest == "" {
		return f, nil
	}

	fields := strings.Fields(rest)
	if !strings.Contains(fields[0], "=") {
		f.Key = fields[0]
		rest = strings.TrimSpace(rest[len(fields[0]):])
	}

	for _, pair := range attrPair.FindAllStringSubmatch(rest, -1) {
		f.Attr[pair[1]] = unescapeAttr(pair[2])
	}
	return f, nil
}

// EncodeFrame renders parts as a single `<?scscp ...?>\n` line. If len(parts)
// is odd, parts[0] is the bare key and the remainder are (attr, value)
// pairs; if even, every element is part of a pair. Values are escaped as
// XML attribute values.
func EncodeFrame(parts ...string) string {
	var b strings.Builder
	b.WriteString("<?scscp")

	start := 0
	if len(parts)%2 == 1 {
		b.WriteByte(' ')
		b.WriteString(parts[0])
		start = 1
	}
	for i := start; i+1 < len(parts); i += 2 {
		b.WriteByte(' ')
		b.WriteString(parts[i])
		b.WriteString(`="`)
		b.WriteString(escapeAttr(parts[i+1]))
		b.WriteByte('"')
	}
	b.WriteString("?>\n")
	return b.String()
}

func escapeAttr(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '"':
			b.WriteString("&quot;")
		case '\t':
			b.WriteString("&#9;")
		case '\n':
			b.WriteString("&#10;")
		case '\r':
			b.WriteString("&#13;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var entityReplacer = strings.NewReplacer(
	"&quot;", `"`,
	"&lt;", "<",
	"&#9;", "\t",
	"&#10;", "\n",
	"&#13;", "\r",
	"&amp;", "&",
)

func unescapeAttr(s string) string {
	return entityReplacer.Replace(s)
}
