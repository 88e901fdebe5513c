package docx

import (
	"fmt"
	"strconv"
	"strings"
)

// Table is a w:tbl addressed the way Word lays it out: rows by index,
// columns by grid position, so a cell spanning two grid columns answers to
// both of them.
type Table struct {
	doc  *Document
	el   *Element
	rows []*Element
}

// Tables returns the top-level tables of the document body in order.
func (d *Document) Tables() []*Table {
	var out []*Table
	for _, tbl := range d.root.Find("w:tbl") {
		out = append(out, &Table{doc: d, el: tbl, rows: tbl.ChildrenNamed("w:tr")})
	}
	return out
}

func (t *Table) RowCount() int {
	return len(t.rows)
}

func span(tc *Element) int {
	if pr := tc.Child("w:tcPr"); pr != nil {
		if gs := pr.Child("w:gridSpan"); gs != nil {
			if n, err := strconv.Atoi(gs.Attr("val")); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}

func gridBefore(tr *Element) int {
	if pr := tr.Child("w:trPr"); pr != nil {
		if gb := pr.Child("w:gridBefore"); gb != nil {
			if n, err := strconv.Atoi(gb.Attr("val")); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// ColCount returns the number of grid columns covered by a row.
func (t *Table) ColCount(row int) int {
	if row < 0 || row >= len(t.rows) {
		return 0
	}
	n := gridBefore(t.rows[row])
	for _, tc := range t.rows[row].ChildrenNamed("w:tc") {
		n += span(tc)
	}
	return n
}

// Cell returns the cell covering grid column col of row.
func (t *Table) Cell(row, col int) (*Element, error) {
	if row < 0 || row >= len(t.rows) {
		return nil, fmt.Errorf("row %d out of range (table has %d rows)", row, len(t.rows))
	}
	pos := gridBefore(t.rows[row])
	for _, tc := range t.rows[row].ChildrenNamed("w:tc") {
		next := pos + span(tc)
		if col >= pos && col < next {
			return tc, nil
		}
		pos = next
	}
	return nil, fmt.Errorf("column %d out of range in row %d (row has %d grid columns)", col, row, pos)
}

func (t *Table) CellText(row, col int) (string, error) {
	tc, err := t.Cell(row, col)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, p := range tc.ChildrenNamed("w:p") {
		parts = append(parts, t.doc.Text(p))
	}
	return strings.Join(parts, "\n"), nil
}

// SetCell writes text into a cell, keeping the formatting of its first run
// or, for an empty cell, of its first paragraph mark.
func (t *Table) SetCell(row, col int, text string) error {
	tc, err := t.Cell(row, col)
	if err != nil {
		return err
	}
	t.doc.setCell(tc, text)
	return nil
}

var trackedChange = map[string]bool{
	"w:ins": true, "w:del": true, "w:moveFrom": true, "w:moveTo": true, "w:rPrChange": true,
}

// markProps turns the paragraph mark properties of p into run properties.
func (d *Document) markProps(p *Element) string {
	pPr := p.Child("w:pPr")
	if pPr == nil {
		return ""
	}
	rPr := pPr.Child("w:rPr")
	if rPr == nil || rPr.SelfClosing {
		return ""
	}
	var b strings.Builder
	for _, c := range rPr.Children {
		if !trackedChange[c.Name] {
			b.WriteString(d.Raw(c))
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "<w:rPr>" + b.String() + "</w:rPr>"
}

func (d *Document) setCell(tc *Element, text string) {
	if tc.SelfClosing {
		d.replace(tc.Start, tc.End, d.openTag(tc)+"<w:p><w:r>"+textContent(text)+"</w:r></w:p></w:tc>")
		return
	}
	paras := tc.ChildrenNamed("w:p")
	if len(paras) == 0 {
		d.insert(tc.InnerEnd, "<w:p><w:r>"+textContent(text)+"</w:r></w:p>")
		return
	}

	if texts := tc.FindAll("w:t"); len(texts) > 0 {
		d.replace(texts[0].Start, texts[0].End, textContent(text))
		for _, extra := range texts[1:] {
			d.replace(extra.Start, extra.End, "")
		}
		return
	}

	p := paras[0]
	props := d.markProps(p)
	if runs := p.Find("w:r"); len(runs) > 0 {
		if rPr := runs[0].Child("w:rPr"); rPr != nil {
			props = d.Raw(rPr)
		}
	}
	run := "<w:r>" + props + textContent(text) + "</w:r>"
	if p.SelfClosing {
		d.replace(p.Start, p.End, d.openTag(p)+run+"</w:p>")
		return
	}
	d.insert(p.InnerEnd, run)
}
