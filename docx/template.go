// Package docx fills Word templates in place. The main document part is
// edited by splicing bytes at element offsets; every other archive entry
// is carried over untouched.
package docx

import (
	"fmt"

	"github.com/JA50N14/course_reports/assemble"
	"github.com/JA50N14/course_reports/internal/fault"
)

const MainPart = "word/document.xml"

// Template is a parsed .docx ready to be filled any number of times.
type Template struct {
	Name    string
	archive []byte
	doc     *Document
}

func Open(name string, archive []byte) (*Template, error) {
	part, err := assemble.ReadEntry(archive, MainPart)
	if err != nil {
		return nil, fault.New(fault.TemplateMismatch, name, err)
	}
	doc, err := Parse(part)
	if err != nil {
		return nil, fault.New(fault.TemplateMismatch, name, err)
	}
	return &Template{Name: name, archive: archive, doc: doc}, nil
}

// Document returns a fresh editable copy of the main part.
func (t *Template) Document() *Document {
	return t.doc.Fresh()
}

// Render writes doc back into the template archive.
func (t *Template) Render(doc *Document) ([]byte, error) {
	part, err := doc.Bytes()
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", t.Name, err)
	}
	return assemble.Rewrite(t.archive, map[string][]byte{MainPart: part})
}

// Fill is Document, Schema.Fill and Render in one step. It returns the
// number of rows that did not fit.
func (t *Template) Fill(s *Schema, v Values) ([]byte, int, error) {
	doc := t.Document()
	dropped, err := s.Fill(doc, v)
	if err != nil {
		return nil, 0, err
	}
	out, err := t.Render(doc)
	if err != nil {
		return nil, 0, err
	}
	return out, dropped, nil
}
