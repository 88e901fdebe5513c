// Package testdocs builds small Office documents in memory for tests.
package testdocs

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	DocHead = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
		`xmlns:w14="http://schemas.microsoft.com/office/word/2010/wordml"><w:body>`
	DocTail = `<w:sectPr><w:pgSz w:w="16838" w:h="11906" w:orient="landscape"/></w:sectPr></w:body></w:document>`

	contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
		`</Types>`
	rels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
		`</Relationships>`
	Styles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="Arial" w:hAnsi="Arial"/><w:sz w:val="20"/></w:rPr></w:rPrDefault></w:docDefaults>` +
		`</w:styles>`
)

// Docx wraps body markup into a minimal but valid .docx archive.
func Docx(body string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []struct{ name, data string }{
		{"[Content_Types].xml", contentTypes},
		{"_rels/.rels", rels},
		{"word/document.xml", DocHead + body + DocTail},
		{"word/styles.xml", Styles},
	} {
		w, err := zw.Create(e.name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(e.data)); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Table renders a rows x cols table. Cells where text returns "" are left
// as an empty paragraph with mark formatting.
func Table(rows, cols int, text func(r, c int) string) string {
	var b strings.Builder
	b.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/></w:tblPr><w:tblGrid>`)
	for c := 0; c < cols; c++ {
		b.WriteString(`<w:gridCol w:w="1000"/>`)
	}
	b.WriteString(`</w:tblGrid>`)
	for r := 0; r < rows; r++ {
		b.WriteString(`<w:tr>`)
		for c := 0; c < cols; c++ {
			b.WriteString(`<w:tc><w:tcPr><w:tcW w:w="1000" w:type="dxa"/></w:tcPr>`)
			if s := text(r, c); s != "" {
				fmt.Fprintf(&b, `<w:p><w:r><w:rPr><w:b/><w:sz w:val="18"/></w:rPr><w:t>%s</w:t></w:r></w:p>`, s)
			} else {
				b.WriteString(`<w:p w14:paraId="1A2B3C4D"><w:pPr><w:jc w:val="center"/><w:rPr><w:sz w:val="16"/></w:rPr></w:pPr></w:p>`)
			}
			b.WriteString(`</w:tc>`)
		}
		b.WriteString(`</w:tr>`)
	}
	b.WriteString(`</w:tbl>`)
	return b.String()
}

// RowPlaceholder is the text every student row of MonthlyReport carries in
// its name column before filling.
const RowPlaceholder = "-"

// MonthlyReport is a 26 x 11 table laid out like the monthly attendance
// report: header cells on rows 0-3, student rows 6-25.
func MonthlyReport() []byte {
	return Docx(`<w:p><w:r><w:t>INFORME MENSUAL</w:t></w:r></w:p>` + Table(26, 11, func(r, c int) string {
		switch {
		case r == 0 && c == 0:
			return "CÓDIGO"
		case r == 3 && c == 0:
			return "MES"
		case r >= 6 && c == 1:
			return RowPlaceholder
		}
		return ""
	}))
}

// TextField renders a FORMTEXT field. An empty result omits the separate
// marker, the way Word stores a field that was never typed into.
func TextField(name, result string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<w:r><w:rPr><w:sz w:val="22"/></w:rPr><w:fldChar w:fldCharType="begin"><w:ffData><w:name w:val="%s"/>`+
		`<w:enabled/><w:calcOnExit w:val="0"/><w:textInput/></w:ffData></w:fldChar></w:r>`, name)
	b.WriteString(`<w:r><w:instrText xml:space="preserve"> FORMTEXT </w:instrText></w:r>`)
	if result != "" {
		b.WriteString(`<w:r><w:fldChar w:fldCharType="separate"/></w:r>`)
		fmt.Fprintf(&b, `<w:r><w:rPr><w:noProof/><w:sz w:val="22"/><w:lang w:val="es-ES"/></w:rPr><w:t xml:space="preserve">%s</w:t></w:r>`, result)
	}
	b.WriteString(`<w:r><w:fldChar w:fldCharType="end"/></w:r>`)
	return b.String()
}

// Checkbox renders a FORMCHECKBOX field.
func Checkbox(name string, checked bool) string {
	state := ""
	if checked {
		state = `<w:checked/>`
	}
	return fmt.Sprintf(`<w:r><w:fldChar w:fldCharType="begin"><w:ffData><w:name w:val="%s"/><w:enabled/>`+
		`<w:calcOnExit w:val="0"/><w:checkBox><w:sizeAuto/><w:default w:val="0"/>%s</w:checkBox></w:ffData></w:fldChar></w:r>`+
		`<w:r><w:instrText xml:space="preserve"> FORMCHECKBOX </w:instrText></w:r>`+
		`<w:r><w:fldChar w:fldCharType="end"/></w:r>`, name, state)
}

// Certificate has ten text fields, alternating typed and never-typed ones.
func Certificate() []byte {
	var b strings.Builder
	b.WriteString(`<w:p><w:r><w:t>CERTIFICADO DE EVALUACIÓN</w:t></w:r></w:p>`)
	for i := 0; i < 10; i++ {
		result := ""
		if i%2 == 0 {
			result = "     "
		}
		fmt.Fprintf(&b, `<w:p><w:r><w:t xml:space="preserve">Campo %d: </w:t></w:r>%s</w:p>`, i, TextField(fmt.Sprintf("Texto%d", i+1), result))
	}
	return Docx(b.String())
}

// Workbook builds an xlsx with one sheet per entry of sheets, in order.
func Workbook(names []string, sheets map[string][][]any) []byte {
	f := excelize.NewFile()
	defer f.Close()
	for i, name := range names {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				panic(err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			panic(err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				panic(err)
			}
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				panic(err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}
