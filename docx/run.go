package docx

import (
	"fmt"
	"strings"
)

// rPr children that must come after w:sz/w:szCs in CT_RPr order.
var afterSize = map[string]bool{
	"w:highlight": true, "w:u": true, "w:effect": true, "w:bdr": true,
	"w:shd": true, "w:fitText": true, "w:vertAlign": true, "w:rtl": true,
	"w:cs": true, "w:em": true, "w:lang": true, "w:eastAsianLayout": true,
	"w:specVanish": true, "w:oMath": true,
}

// runProps returns the markup of rPr, with the font size forced to
// halfPoints when it is positive.
func (d *Document) runProps(rPr *Element, halfPoints int) string {
	if halfPoints <= 0 {
		if rPr == nil {
			return ""
		}
		return d.Raw(rPr)
	}
	size := fmt.Sprintf(`<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, halfPoints, halfPoints)
	if rPr == nil {
		return "<w:rPr>" + size + "</w:rPr>"
	}

	var b strings.Builder
	b.WriteString("<w:rPr>")
	placed := false
	for _, c := range rPr.Children {
		if c.Name == "w:sz" || c.Name == "w:szCs" {
			if !placed {
				b.WriteString(size)
				placed = true
			}
			continue
		}
		if !placed && afterSize[c.Name] {
			b.WriteString(size)
			placed = true
		}
		b.WriteString(d.Raw(c))
	}
	if !placed {
		b.WriteString(size)
	}
	b.WriteString("</w:rPr>")
	return b.String()
}

// textContent renders text as run content, one w:t per line joined by breaks.
func textContent(text string) string {
	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		b.WriteString(escape(line))
		b.WriteString("</w:t>")
	}
	return b.String()
}

func (d *Document) run(rPr *Element, text string, halfPoints int) string {
	return "<w:r>" + d.runProps(rPr, halfPoints) + textContent(text) + "</w:r>"
}

// openTag returns the start tag of e, expanding a self-closing tag.
func (d *Document) openTag(e *Element) string {
	if !e.SelfClosing {
		return string(d.data[e.Start:e.InnerStart])
	}
	raw := strings.TrimSuffix(d.Raw(e), "/>")
	return strings.TrimRight(raw, " \t\r\n") + ">"
}
