package docx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Element is an XML element located by byte offsets into the part it was
// parsed from. Nothing is re-encoded: edits splice raw bytes, so every byte
// outside an edited span is kept as it was.
type Element struct {
	Name        string // prefixed name as written, e.g. "w:tbl"
	Start       int    // offset of '<'
	InnerStart  int    // offset just after the start tag
	InnerEnd    int    // offset of the end tag
	End         int    // offset just after the end tag
	SelfClosing bool
	Attrs       []xml.Attr
	Children    []*Element
	Parent      *Element
}

// Attr returns the value of the attribute with the given local name.
func (e *Element) Attr(local string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Find returns every descendant with the given name in document order.
// It does not descend into a match.
func (e *Element) Find(name string) []*Element {
	var out []*Element
	var walk func(*Element)
	walk = func(el *Element) {
		for _, c := range el.Children {
			if c.Name == name {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(e)
	return out
}

// FindAll is Find that also descends into matches.
func (e *Element) FindAll(name string) []*Element {
	var out []*Element
	var walk func(*Element)
	walk = func(el *Element) {
		for _, c := range el.Children {
			if c.Name == name {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(e)
	return out
}

// Within reports whether e is nested inside an ancestor named name.
func (e *Element) Within(name string) bool {
	for p := e.Parent; p != nil; p = p.Parent {
		if p.Name == name {
			return true
		}
	}
	return false
}

type edit struct {
	start, end int
	text       string
}

// Document is one XML part (normally word/document.xml) plus pending edits.
type Document struct {
	data  []byte
	root  *Element
	edits map[[2]int]edit
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// Parse builds the element tree of an XML part.
func Parse(data []byte) (*Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	root := &Element{Name: "#document", End: len(data), InnerEnd: len(data)}
	stack := []*Element{root}

	for {
		pos := int(dec.InputOffset())
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing xml at offset %d: %w", pos, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			parent := stack[len(stack)-1]
			el := &Element{
				Name:       qualified(t.Name),
				Start:      pos,
				InnerStart: int(dec.InputOffset()),
				Attrs:      t.Copy().Attr,
				Parent:     parent,
			}
			parent.Children = append(parent.Children, el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) < 2 {
				return nil, fmt.Errorf("unbalanced end element %s at offset %d", qualified(t.Name), pos)
			}
			el := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			end := int(dec.InputOffset())
			if end == pos {
				el.SelfClosing = true
				el.InnerEnd = el.InnerStart
			} else {
				el.InnerEnd = pos
			}
			el.End = end
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("unterminated element %s", stack[len(stack)-1].Name)
	}
	return &Document{data: data, root: root, edits: make(map[[2]int]edit)}, nil
}

func (d *Document) Root() *Element {
	return d.root
}

// Raw returns the original bytes of an element.
func (d *Document) Raw(e *Element) string {
	return string(d.data[e.Start:e.End])
}

// Text returns the unescaped character data inside an element, ignoring markup.
func (d *Document) Text(e *Element) string {
	if e.SelfClosing {
		return ""
	}
	var sb strings.Builder
	dec := xml.NewDecoder(bytes.NewReader(d.data[e.InnerStart:e.InnerEnd]))
	for {
		tok, err := dec.RawToken()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			sb.Write(cd)
		}
	}
	return sb.String()
}

// replace schedules the span [start, end) to become text. A second edit of
// the same span supersedes the first.
func (d *Document) replace(start, end int, text string) {
	d.edits[[2]int{start, end}] = edit{start: start, end: end, text: text}
}

func (d *Document) insert(at int, text string) {
	d.replace(at, at, text)
}

// Fresh returns a Document sharing the parsed tree with no pending edits.
func (d *Document) Fresh() *Document {
	return &Document{data: d.data, root: d.root, edits: make(map[[2]int]edit)}
}

// Bytes applies the pending edits. Overlapping edits are a programming
// error in the caller and are reported rather than guessed at.
func (d *Document) Bytes() ([]byte, error) {
	edits := make([]edit, 0, len(d.edits))
	for _, e := range d.edits {
		edits = append(edits, e)
	}
	sort.Slice(edits, func(i, j int) bool {
		if edits[i].start != edits[j].start {
			return edits[i].start < edits[j].start
		}
		return edits[i].end < edits[j].end
	})

	var out bytes.Buffer
	out.Grow(len(d.data))
	pos := 0
	for _, e := range edits {
		if e.start < pos {
			return nil, fmt.Errorf("overlapping edits at offset %d", e.start)
		}
		out.Write(d.data[pos:e.start])
		out.WriteString(e.text)
		pos = e.end
	}
	out.Write(d.data[pos:])
	return out.Bytes(), nil
}

func escape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
