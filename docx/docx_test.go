package docx

import (
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JA50N14/course_reports/assemble"
	"github.com/JA50N14/course_reports/internal/fault"
	"github.com/JA50N14/course_reports/internal/testdocs"
)

func mainPart(t *testing.T, archive []byte) (*Document, string) {
	t.Helper()
	part, err := assemble.ReadEntry(archive, MainPart)
	require.NoError(t, err)
	doc, err := Parse(part)
	require.NoError(t, err)
	return doc, string(part)
}

func TestParseOffsets(t *testing.T) {
	data := `<?xml version="1.0"?><a x="1"><b/><c>hi &amp; bye</c></a>`
	doc, err := Parse([]byte(data))
	require.NoError(t, err)

	a := doc.Root().Child("a")
	require.NotNil(t, a)
	assert.Equal(t, "1", a.Attr("x"))
	assert.Equal(t, len(data), a.End)

	b := a.Child("b")
	require.NotNil(t, b)
	assert.True(t, b.SelfClosing)
	assert.Equal(t, "<b/>", doc.Raw(b))
	assert.Equal(t, b.End, b.InnerStart)

	c := a.Child("c")
	assert.Equal(t, "<c>hi &amp; bye</c>", doc.Raw(c))
	assert.Equal(t, "hi & bye", doc.Text(c))
	assert.True(t, c.Within("a"))
}

func TestParseRejectsBrokenXML(t *testing.T) {
	_, err := Parse([]byte(`<a><b></a>`))
	assert.Error(t, err)

	_, err = Parse([]byte(`<a><b/>`))
	assert.Error(t, err)
}

func TestOverlappingEdits(t *testing.T) {
	doc, err := Parse([]byte(`<a>0123456789abcdef</a>`))
	require.NoError(t, err)
	doc.replace(3, 8, "x")
	doc.replace(5, 10, "y")
	_, err = doc.Bytes()
	assert.Error(t, err)
}

func TestSameSpanEditSupersedes(t *testing.T) {
	doc, err := Parse([]byte(`<a>old</a>`))
	require.NoError(t, err)
	doc.replace(3, 6, "first")
	doc.replace(3, 6, "second")
	out, err := doc.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "<a>second</a>", string(out))
}

func TestTableShape(t *testing.T) {
	doc, _ := mainPart(t, testdocs.MonthlyReport())
	tables := doc.Tables()
	require.Len(t, tables, 1)
	assert.Equal(t, 26, tables[0].RowCount())
	assert.Equal(t, 11, tables[0].ColCount(0))

	text, err := tables[0].CellText(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "CÓDIGO", text)

	_, err = tables[0].Cell(26, 0)
	assert.Error(t, err)
	_, err = tables[0].Cell(0, 11)
	assert.Error(t, err)
}

func TestGridSpanAddressing(t *testing.T) {
	body := `<w:tbl><w:tr>` +
		`<w:tc><w:tcPr><w:gridSpan w:val="2"/></w:tcPr><w:p><w:r><w:t>wide</w:t></w:r></w:p></w:tc>` +
		`<w:tc><w:p><w:r><w:t>narrow</w:t></w:r></w:p></w:tc>` +
		`</w:tr><w:tr><w:trPr><w:gridBefore w:val="1"/></w:trPr>` +
		`<w:tc><w:p><w:r><w:t>shifted</w:t></w:r></w:p></w:tc>` +
		`</w:tr></w:tbl>`
	doc, _ := mainPart(t, testdocs.Docx(body))
	tbl := doc.Tables()[0]

	assert.Equal(t, 3, tbl.ColCount(0))
	for col, want := range []string{"wide", "wide", "narrow"} {
		got, err := tbl.CellText(0, col)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := tbl.CellText(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "shifted", got)
	_, err = tbl.Cell(1, 0)
	assert.Error(t, err)
}

func TestNestedTablesAreNotTopLevel(t *testing.T) {
	inner := testdocs.Table(1, 1, func(int, int) string { return "inner" })
	body := `<w:tbl><w:tr><w:tc>` + inner + `<w:p/></w:tc></w:tr></w:tbl>`
	doc, _ := mainPart(t, testdocs.Docx(body))
	assert.Len(t, doc.Tables(), 1)
}

func TestSetCellPreservesEverythingElse(t *testing.T) {
	tpl, err := Open("monthly.docx", testdocs.MonthlyReport())
	require.NoError(t, err)
	_, orig := mainPart(t, testdocs.MonthlyReport())

	doc := tpl.Document()
	tbl := doc.Tables()[0]
	require.NoError(t, tbl.SetCell(0, 10, "IFCT0109"))
	require.NoError(t, tbl.SetCell(3, 1, "MARZO"))
	require.NoError(t, tbl.SetCell(6, 1, "ANA LÓPEZ & CÍA <S.L.>"))
	require.NoError(t, tbl.SetCell(6, 6, "Transporte: 19\n1 falta justificada"))

	out, err := tpl.Render(doc)
	require.NoError(t, err)
	got, part := mainPart(t, out)

	start := strings.Index(orig, "<w:tbl>")
	end := strings.LastIndex(orig, "</w:tbl>")
	assert.True(t, strings.HasPrefix(part, orig[:start]))
	assert.True(t, strings.HasSuffix(part, orig[end:]))

	gt := got.Tables()[0]
	cases := []struct {
		row, col int
		want     string
	}{
		{0, 0, "CÓDIGO"},
		{0, 10, "IFCT0109"},
		{3, 1, "MARZO"},
		{6, 1, "ANA LÓPEZ & CÍA <S.L.>"},
		{6, 6, "Transporte: 191 falta justificada"},
		{7, 1, testdocs.RowPlaceholder},
		{7, 6, ""},
	}
	for _, c := range cases {
		text, err := gt.CellText(c.row, c.col)
		require.NoError(t, err)
		assert.Equal(t, c.want, text, "row %d col %d", c.row, c.col)
	}

	// the inserted run inherits the paragraph mark size
	assert.Contains(t, part, `<w:r><w:rPr><w:sz w:val="16"/></w:rPr><w:t xml:space="preserve">IFCT0109</w:t></w:r>`)
	assert.Contains(t, part, `<w:t xml:space="preserve">Transporte: 19</w:t><w:br/><w:t xml:space="preserve">1 falta justificada</w:t>`)

	// the template itself is reusable
	again, err := tpl.Render(tpl.Document())
	require.NoError(t, err)
	_, untouched := mainPart(t, again)
	assert.Equal(t, orig, untouched)
}

func TestSetCellClearsExtraText(t *testing.T) {
	body := testdocs.Table(1, 1, func(int, int) string { return "" })
	body = strings.Replace(body, `<w:p w14:paraId="1A2B3C4D"><w:pPr><w:jc w:val="center"/><w:rPr><w:sz w:val="16"/></w:rPr></w:pPr></w:p>`,
		`<w:p><w:r><w:t>one</w:t></w:r><w:r><w:t>two</w:t></w:r></w:p><w:p><w:r><w:t>three</w:t></w:r></w:p>`, 1)
	tpl, err := Open("t.docx", testdocs.Docx(body))
	require.NoError(t, err)

	doc := tpl.Document()
	require.NoError(t, doc.Tables()[0].SetCell(0, 0, "new"))
	out, err := tpl.Render(doc)
	require.NoError(t, err)

	got, _ := mainPart(t, out)
	text, err := got.Tables()[0].CellText(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "new\n", text)
}

func TestFieldsScan(t *testing.T) {
	doc, _ := mainPart(t, testdocs.Certificate())
	fields := doc.Fields()
	require.Len(t, fields, 10)
	for i, f := range fields {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, fmt.Sprintf("Texto%d", i+1), f.Name)
		assert.Equal(t, FieldText, f.Kind)
		assert.Equal(t, i%2 == 0, f.separate != nil, "field %d", i)
	}
	assert.Equal(t, "     ", doc.Result(fields[0]))
	assert.Equal(t, "", doc.Result(fields[1]))
}

func TestSetFieldReplacesAndInserts(t *testing.T) {
	tpl, err := Open("cert.docx", testdocs.Certificate())
	require.NoError(t, err)
	doc := tpl.Document()
	fields := doc.Fields()

	require.NoError(t, doc.SetField(fields[0], "ANA PÉREZ", LongText{}))
	require.NoError(t, doc.SetField(fields[1], "12345678Z", LongText{}))

	out, err := tpl.Render(doc)
	require.NoError(t, err)
	got, part := mainPart(t, out)

	gf := got.Fields()
	require.Len(t, gf, 10)
	assert.Equal(t, "ANA PÉREZ", got.Result(gf[0]))
	assert.Equal(t, "12345678Z", got.Result(gf[1]))
	assert.NotNil(t, gf[1].separate)
	assert.Equal(t, "     ", got.Result(gf[2]))
	assert.Contains(t, part, `<w:r><w:rPr><w:noProof/><w:sz w:val="22"/><w:lang w:val="es-ES"/></w:rPr><w:t xml:space="preserve">ANA PÉREZ</w:t></w:r>`)
}

func TestSetFieldLongTextShrinks(t *testing.T) {
	tpl, err := Open("cert.docx", testdocs.Certificate())
	require.NoError(t, err)
	doc := tpl.Document()
	fields := doc.Fields()
	long := LongText{Threshold: 10, HalfPoints: 16}

	require.NoError(t, doc.SetField(fields[0], "UN NOMBRE MUY LARGO", long))
	require.NoError(t, doc.SetField(fields[2], "CORTO", long))
	require.NoError(t, doc.SetField(fields[3], "OTRO NOMBRE LARGO", long))

	out, err := tpl.Render(doc)
	require.NoError(t, err)
	_, part := mainPart(t, out)

	assert.Contains(t, part, `<w:rPr><w:noProof/><w:sz w:val="16"/><w:szCs w:val="16"/><w:lang w:val="es-ES"/></w:rPr><w:t xml:space="preserve">UN NOMBRE MUY LARGO</w:t>`)
	assert.Contains(t, part, `<w:rPr><w:noProof/><w:sz w:val="22"/><w:lang w:val="es-ES"/></w:rPr><w:t xml:space="preserve">CORTO</w:t>`)
	assert.Contains(t, part, `<w:r><w:rPr><w:sz w:val="16"/><w:szCs w:val="16"/></w:rPr><w:t xml:space="preserve">OTRO NOMBRE LARGO</w:t></w:r>`)
}

func TestCheckboxFields(t *testing.T) {
	body := `<w:p>` + testdocs.Checkbox("Casilla1", false) + testdocs.Checkbox("Casilla2", true) + `</w:p>`
	tpl, err := Open("cb.docx", testdocs.Docx(body))
	require.NoError(t, err)
	doc := tpl.Document()
	fields := doc.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, FieldCheckbox, fields[0].Kind)
	assert.False(t, doc.Checked(fields[0]))
	assert.True(t, doc.Checked(fields[1]))

	require.NoError(t, doc.SetField(fields[0], "X", LongText{}))
	require.NoError(t, doc.SetField(fields[1], "no", LongText{}))
	out, err := tpl.Render(doc)
	require.NoError(t, err)

	got, _ := mainPart(t, out)
	gf := got.Fields()
	assert.True(t, got.Checked(gf[0]))
	assert.False(t, got.Checked(gf[1]))

	// A box already in the requested state is left byte for byte.
	doc = tpl.Document()
	require.NoError(t, doc.SetField(doc.Fields()[1], "sí", LongText{}))
	out, err = tpl.Render(doc)
	require.NoError(t, err)
	_, want := mainPart(t, testdocs.Docx(body))
	_, part := mainPart(t, out)
	assert.Equal(t, want, part)
}

func TestNestedFieldCountsOnce(t *testing.T) {
	body := `<w:p><w:r><w:fldChar w:fldCharType="begin"/></w:r><w:r><w:instrText> IF </w:instrText></w:r>` +
		`<w:r><w:fldChar w:fldCharType="begin"/></w:r><w:r><w:instrText> PAGE </w:instrText></w:r>` +
		`<w:r><w:fldChar w:fldCharType="separate"/></w:r><w:r><w:t>1</w:t></w:r><w:r><w:fldChar w:fldCharType="end"/></w:r>` +
		`<w:r><w:instrText xml:space="preserve"> = 1 "a" "b" </w:instrText></w:r>` +
		`<w:r><w:fldChar w:fldCharType="separate"/></w:r><w:r><w:t>a</w:t></w:r><w:r><w:fldChar w:fldCharType="end"/></w:r></w:p>`
	doc, _ := mainPart(t, testdocs.Docx(body))
	fields := doc.Fields()
	require.Len(t, fields, 1)
	assert.Equal(t, FieldOther, fields[0].Kind)
	assert.Equal(t, ` IF  = 1 "a" "b" `, fields[0].Instr)
	assert.Equal(t, "a", doc.Result(fields[0]))
}

func TestBuiltinSchemas(t *testing.T) {
	monthly, err := LoadSchema("monthly_report")
	require.NoError(t, err)
	assert.Equal(t, KindTable, monthly.Kind)
	assert.Equal(t, CellRef{Row: 0, Col: 10}, monthly.Cells["course_code"])
	assert.Equal(t, CellRef{Row: 3, Col: 1}, monthly.Cells["month"])
	require.NotNil(t, monthly.Rows)
	assert.Equal(t, 6, monthly.Rows.First)
	assert.Equal(t, 20, monthly.Rows.Capacity)

	cert, err := LoadSchema("certificate.yaml")
	require.NoError(t, err)
	assert.Equal(t, KindFields, cert.Kind)
	assert.Equal(t, 10, cert.ExpectFields)

	_, err = LoadSchema("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "schemas/nope.yaml")
}

func TestParseSchemaRejects(t *testing.T) {
	for name, src := range map[string]string{
		"kind":       "name: x\nkind: chart\n",
		"empty":      "name: x\nkind: table\n",
		"both refs":  "name: x\nkind: fields\nfields:\n  a: {field: 0, name: T}\n",
		"no columns": "name: x\nkind: table\nrows: {first: 1, capacity: 2}\n",
	} {
		_, err := ParseSchema(strings.NewReader(src))
		assert.Error(t, err, name)
	}
}

func TestSchemaValidateMismatch(t *testing.T) {
	monthly, err := LoadSchema("monthly_report")
	require.NoError(t, err)

	for name, archive := range map[string][]byte{
		"no table":    testdocs.Docx(`<w:p/>`),
		"short table": testdocs.Docx(testdocs.Table(10, 11, func(int, int) string { return "" })),
		"narrow":      testdocs.Docx(testdocs.Table(26, 5, func(int, int) string { return "" })),
	} {
		doc, _ := mainPart(t, archive)
		err := monthly.Validate(doc)
		assert.True(t, fault.Is(err, fault.TemplateMismatch), name)
	}

	cert, err := LoadSchema("certificate")
	require.NoError(t, err)
	body := ""
	for i := 0; i < 9; i++ {
		body += `<w:p>` + testdocs.TextField(fmt.Sprintf("T%d", i), "") + `</w:p>`
	}
	doc, _ := mainPart(t, testdocs.Docx(body))
	assert.True(t, fault.Is(cert.Validate(doc), fault.TemplateMismatch))
}

func TestSchemaFieldByName(t *testing.T) {
	s, err := ParseSchema(strings.NewReader("name: x\nkind: fields\nfields:\n  who: {name: Texto3}\n  missing: {name: Nope}\n"))
	require.NoError(t, err)
	doc, _ := mainPart(t, testdocs.Certificate())
	assert.True(t, fault.Is(s.Validate(doc), fault.TemplateMismatch))

	s, err = ParseSchema(strings.NewReader("name: x\nkind: fields\nfields:\n  who: {name: Texto3}\n"))
	require.NoError(t, err)
	tpl, err := Open("cert.docx", testdocs.Certificate())
	require.NoError(t, err)
	out, _, err := tpl.Fill(s, Values{Slots: map[string]string{"who": "JUAN"}})
	require.NoError(t, err)
	got, _ := mainPart(t, out)
	assert.Equal(t, "JUAN", got.Result(got.Fields()[2]))
}

func TestFillRowBlockCapacity(t *testing.T) {
	monthly, err := LoadSchema("monthly_report")
	require.NoError(t, err)
	tpl, err := Open("monthly.docx", testdocs.MonthlyReport())
	require.NoError(t, err)

	var rows []map[string]string
	for i := 0; i < 22; i++ {
		rows = append(rows, map[string]string{"number": fmt.Sprint(i + 1), "name": fmt.Sprintf("ALUMNO %02d", i)})
	}
	out, dropped, err := tpl.Fill(monthly, Values{
		Slots: map[string]string{"course_code": "IFCT0109", "month": "MARZO"},
		Rows:  rows,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	got, _ := mainPart(t, out)
	tbl := got.Tables()[0]
	first, _ := tbl.CellText(6, 1)
	last, _ := tbl.CellText(25, 1)
	assert.Equal(t, "ALUMNO 00", first)
	assert.Equal(t, "ALUMNO 19", last)

	_, _, err = tpl.Fill(monthly, Values{Slots: map[string]string{"nope": "x"}})
	assert.Error(t, err)
	assert.False(t, fault.Is(err, fault.TemplateMismatch))
}

func TestFillCertificate(t *testing.T) {
	cert, err := LoadSchema("certificate")
	require.NoError(t, err)
	tpl, err := Open("cert.docx", testdocs.Certificate())
	require.NoError(t, err)

	out, _, err := tpl.Fill(cert, Values{Slots: map[string]string{
		"student_name": "NURIA BRAÑA MANCHADO",
		"nif":          "12345678Z",
		"final_status": "APTO",
	}})
	require.NoError(t, err)
	got, _ := mainPart(t, out)
	fields := got.Fields()
	assert.Equal(t, "NURIA BRAÑA MANCHADO", got.Result(fields[0]))
	assert.Equal(t, "12345678Z", got.Result(fields[1]))
	assert.Equal(t, "APTO", got.Result(fields[8]))
	assert.Equal(t, "", got.Result(fields[3]))
}

func TestOpenRejectsNonDocx(t *testing.T) {
	_, err := Open("x.docx", []byte("plain"))
	assert.True(t, fault.Is(err, fault.TemplateMismatch))
}
