package docx

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type FieldKind int

const (
	FieldOther FieldKind = iota
	FieldText
	FieldCheckbox
	FieldDropdown
)

func (k FieldKind) String() string {
	switch k {
	case FieldText:
		return "text"
	case FieldCheckbox:
		return "checkbox"
	case FieldDropdown:
		return "dropdown"
	default:
		return "other"
	}
}

// Field is a complex field delimited by fldChar begin/separate/end runs.
// Only top-level fields are collected; fields nested in another field's
// instruction or result belong to their parent.
type Field struct {
	Index int
	Name  string
	Kind  FieldKind
	Instr string

	begin    *Element
	separate *Element
	end      *Element
	result   []*Element
	ffData   *Element
}

func fldCharType(r *Element) string {
	if fc := r.Child("w:fldChar"); fc != nil {
		return fc.Attr("fldCharType")
	}
	return ""
}

// Fields scans the body for complex fields in document order.
func (d *Document) Fields() []*Field {
	var (
		out   []*Field
		cur   *Field
		depth int
	)
	for _, r := range d.root.FindAll("w:r") {
		switch fldCharType(r) {
		case "begin":
			depth++
			if depth == 1 {
				cur = &Field{Index: len(out), begin: r}
				if ff := r.Child("w:fldChar").Child("w:ffData"); ff != nil {
					cur.ffData = ff
					if n := ff.Child("w:name"); n != nil {
						cur.Name = n.Attr("val")
					}
				}
			}
			continue
		case "separate":
			if depth == 1 && cur != nil {
				cur.separate = r
			}
			continue
		case "end":
			if depth == 1 && cur != nil {
				cur.end = r
				cur.Kind = classify(cur)
				out = append(out, cur)
				cur = nil
			}
			if depth > 0 {
				depth--
			}
			continue
		}

		if depth != 1 || cur == nil {
			continue
		}
		if cur.separate == nil {
			for _, it := range r.ChildrenNamed("w:instrText") {
				cur.Instr += d.Text(it)
			}
		} else {
			cur.result = append(cur.result, r)
		}
	}
	return out
}

func classify(f *Field) FieldKind {
	instr := strings.ToUpper(strings.TrimSpace(f.Instr))
	switch {
	case strings.HasPrefix(instr, "FORMCHECKBOX"):
		return FieldCheckbox
	case strings.HasPrefix(instr, "FORMDROPDOWN"):
		return FieldDropdown
	case strings.HasPrefix(instr, "FORMTEXT"):
		return FieldText
	}
	if f.ffData != nil {
		switch {
		case f.ffData.Child("w:checkBox") != nil:
			return FieldCheckbox
		case f.ffData.Child("w:ddList") != nil:
			return FieldDropdown
		case f.ffData.Child("w:textInput") != nil:
			return FieldText
		}
	}
	return FieldOther
}

// Result returns the text currently shown by the field.
func (d *Document) Result(f *Field) string {
	var sb strings.Builder
	for _, r := range f.result {
		for _, t := range r.ChildrenNamed("w:t") {
			sb.WriteString(d.Text(t))
		}
	}
	return sb.String()
}

// Checked reports the state of a checkbox field.
func (d *Document) Checked(f *Field) bool {
	cb := f.checkBox()
	if cb == nil {
		return false
	}
	el := cb.Child("w:checked")
	if el == nil {
		el = cb.Child("w:default")
		if el == nil {
			return false
		}
	} else if el.Attr("val") == "" {
		return true
	}
	return truthy(el.Attr("val"))
}

func (f *Field) checkBox() *Element {
	if f.ffData == nil {
		return nil
	}
	return f.ffData.Child("w:checkBox")
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "x", "si", "sí", "yes":
		return true
	}
	return false
}

// LongText shrinks the font of values longer than Threshold characters.
type LongText struct {
	Threshold  int `yaml:"threshold"`
	HalfPoints int `yaml:"half_points"`
}

func (l LongText) size(value string) int {
	if l.Threshold <= 0 || l.HalfPoints <= 0 {
		return 0
	}
	if utf8.RuneCountInString(value) > l.Threshold {
		return l.HalfPoints
	}
	return 0
}

// SetField writes value into a field. Text fields get their result runs
// replaced by one run carrying the formatting of the first result run;
// checkboxes take a truthy or falsy value.
func (d *Document) SetField(f *Field, value string, long LongText) error {
	if f.end == nil {
		return fmt.Errorf("field %d has no end marker", f.Index)
	}
	if f.Kind == FieldCheckbox {
		return d.setCheckbox(f, truthy(value))
	}

	size := long.size(value)
	if len(f.result) > 0 {
		first := f.result[0]
		d.replace(first.Start, first.End, d.run(first.Child("w:rPr"), value, size))
		for _, r := range f.result[1:] {
			d.replace(r.Start, r.End, "")
		}
		return nil
	}

	run := d.run(f.begin.Child("w:rPr"), value, size)
	if f.separate == nil {
		run = "<w:r>" + d.runProps(f.begin.Child("w:rPr"), 0) + `<w:fldChar w:fldCharType="separate"/></w:r>` + run
	}
	d.insert(f.end.Start, run)
	return nil
}

func (d *Document) setCheckbox(f *Field, on bool) error {
	cb := f.checkBox()
	if cb == nil {
		return fmt.Errorf("field %d is a checkbox without checkBox properties", f.Index)
	}
	if d.Checked(f) == on {
		return nil
	}
	val := "0"
	if on {
		val = "1"
	}
	checked := `<w:checked w:val="` + val + `"/>`
	switch {
	case cb.Child("w:checked") != nil:
		el := cb.Child("w:checked")
		d.replace(el.Start, el.End, checked)
	case cb.SelfClosing:
		d.replace(cb.Start, cb.End, d.openTag(cb)+checked+"</w:checkBox>")
	default:
		d.insert(cb.InnerEnd, checked)
	}
	return nil
}
