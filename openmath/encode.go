package openmath

import (
	"encoding/base64"
	"encoding/xml"
	"strconv"

	"mellium.im/xmlstream"
)

// TokenReader returns a streaming xml.TokenReader that emits o as a
// well-formed OpenMath element, including its closing tag. Container kinds
// are composed from their children's readers via xmlstream.Wrap, matching
// the teacher's approach to building nested XML documents out of smaller
// token readers rather than a tree-walking Encoder.
func (o Object) TokenReader() xml.TokenReader {
	start := xml.StartElement{Name: xml.Name{Local: o.Kind.String()}}
	if o.ID != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: o.ID})
	}

	switch o.Kind {
	case Symbol:
		start.Attr = append(start.Attr,
			xml.Attr{Name: xml.Name{Local: "cd"}, Value: o.CD},
			xml.Attr{Name: xml.Name{Local: "name"}, Value: o.Name},
		)
		return xmlstream.Wrap(nil, start)
	case Var:
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "name"}, Value: o.Name})
		return xmlstream.Wrap(nil, start)
	case Int:
		return xmlstream.Wrap(xmlstream.Token(xml.CharData(strconv.FormatInt(o.Int, 10))), start)
	case Float:
		return xmlstream.Wrap(xmlstream.Token(xml.CharData(strconv.FormatFloat(o.Float, 'g', -1, 64))), start)
	case Str:
		return xmlstream.Wrap(xmlstream.Token(xml.CharData(o.Str)), start)
	case Bytes:
		return xmlstream.Wrap(xmlstream.Token(xml.CharData(base64.StdEncoding.EncodeToString(o.Bytes))), start)
	case Foreign:
		if o.Encoding != "" {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "encoding"}, Value: o.Encoding})
		}
		return xmlstream.Wrap(xmlstream.Token(xml.CharData(o.Foreign)), start)
	default:
		readers := make([]xml.TokenReader, len(o.Children))
		for i, c := range o.Children {
			readers[i] = c.TokenReader()
		}
		return xmlstream.Wrap(xmlstream.MultiReader(readers...), start)
	}
}

// Marshal renders o as a self-contained OpenMath document (no leading XML
// declaration), suitable as an SCSCP transaction body.
func Marshal(o Object) ([]byte, error) {
	var buf []byte
	w := &byteSliceWriter{buf: &buf}
	e := xml.NewEncoder(w)
	if _, err := xmlstream.Copy(e, o.TokenReader()); err != nil {
		return nil, err
	}
	if err := e.Flush(); err != nil {
		return nil, err
	}
	return buf, nil
}

// byteSliceWriter adapts a *[]byte to io.Writer without pulling in
// bytes.Buffer just for Marshal's one-shot use.
type byteSliceWriter struct {
	buf *[]byte
}

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}
