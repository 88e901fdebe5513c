package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JA50N14/course_reports/assemble"
	"github.com/JA50N14/course_reports/config"
	"github.com/JA50N14/course_reports/docx"
	"github.com/JA50N14/course_reports/graph"
	"github.com/JA50N14/course_reports/internal/fault"
	"github.com/JA50N14/course_reports/internal/testdocs"
	"github.com/JA50N14/course_reports/model"
	"github.com/JA50N14/course_reports/narrative"
	"github.com/JA50N14/course_reports/reader"
)

type mapStore map[string][]byte

func (m mapStore) Template(_ context.Context, name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return data, nil
}

type archived struct {
	name   string
	size   int
	fields map[string]any
}

type fakeArchive struct {
	calls []archived
	err   error
}

func (f *fakeArchive) Archive(_ context.Context, name string, data []byte, fields map[string]any) (graph.Item, error) {
	f.calls = append(f.calls, archived{name: name, size: len(data), fields: fields})
	return graph.Item{ID: "01ABC", Name: name}, f.err
}

func testConfig() *config.ApiConfig {
	return &config.ApiConfig{
		MinYear:          2015,
		FallbackAbsences: 2,
		LLMModel:         "gpt-4o-mini",
		LLMTimeout:       time.Second,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newPipeline(t *testing.T, store TemplateStore, opts ...Option) *Pipeline {
	t.Helper()
	cfg := testConfig()
	opts = append([]Option{
		WithWriter(narrative.NewWithClient(nil, cfg.LLMModel, cfg.LLMTimeout, cfg.Logger)),
		WithClock(func() time.Time { return time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC) }),
	}, opts...)
	p, err := New(cfg, store, opts...)
	require.NoError(t, err)
	return p
}

// roster lists three students out of alphabetical order.
func roster() reader.File {
	data := testdocs.Workbook([]string{"Alumnos"}, map[string][][]any{
		"Alumnos": {
			{"RELACIÓN DE ALUMNOS"},
			{},
			{"Nº", "APELLIDOS Y NOMBRE", "DNI"},
			{1, "PÉREZ RUIZ, LUIS", "12345678Z"},
			{2, "BRAÑA MANCHADO, NURIA", "23456789D"},
			{3, "GARCÍA LÓPEZ, ANA", "34567890V"},
		},
	})
	return reader.File{Name: "alumnos.xlsx", Data: data}
}

func grades() reader.File {
	data := testdocs.Workbook([]string{"Notas"}, map[string][][]any{
		"Notas": {
			{"APELLIDOS Y NOMBRE", "DNI", "MF0486_3", "MF0487_3"},
			{"GARCÍA LÓPEZ, ANA", "34567890V", "7,5", "EXENTO"},
			{"PÉREZ RUIZ, LUIS", "12345678Z", "4", "6"},
			{"BRAÑA MANCHADO, NURIA", "23456789D", "9", "10"},
			{"SÁNCHEZ GIL, EVA", "87654321X", "5", "5"},
		},
	})
	return reader.File{Name: "notas.xlsx", Data: data}
}

func mainTable(t *testing.T, archive []byte) *docx.Table {
	t.Helper()
	part, err := assemble.ReadEntry(archive, docx.MainPart)
	require.NoError(t, err)
	doc, err := docx.Parse(part)
	require.NoError(t, err)
	tables := doc.Tables()
	require.Len(t, tables, 1)
	return tables[0]
}

func cellText(t *testing.T, tbl *docx.Table, row, col int) string {
	t.Helper()
	s, err := tbl.CellText(row, col)
	require.NoError(t, err)
	return s
}

func TestMonthlyReportEndToEnd(t *testing.T) {
	template := testdocs.MonthlyReport()
	archive := &fakeArchive{}
	p := newPipeline(t, mapStore{MonthlyReportTemplate: template}, WithArchive(archive))

	run := NewRun(context.Background(), testConfig(), 2024, 3)
	a, err := p.MonthlyReport(run, Inputs{Roster: []reader.File{roster()}})
	require.NoError(t, err)
	assert.Equal(t, "Informe_MARZO_2024.docx", a.Name)
	assert.Equal(t, ContentTypeDOCX, a.ContentType)
	assert.Empty(t, run.Warnings)

	tbl := mainTable(t, a.Data)
	assert.Equal(t, "ANA GARCÍA LÓPEZ", cellText(t, tbl, 6, 1))
	assert.Equal(t, "LUIS PÉREZ RUIZ", cellText(t, tbl, 7, 1))
	assert.Equal(t, "NURIA BRAÑA MANCHADO", cellText(t, tbl, 8, 1))
	assert.Equal(t, "1", cellText(t, tbl, 6, 0))
	assert.Equal(t, "34567890V", cellText(t, tbl, 6, 2))
	assert.Equal(t, "12345678Z", cellText(t, tbl, 7, 2))
	for row := 9; row <= 25; row++ {
		assert.Equal(t, testdocs.RowPlaceholder, cellText(t, tbl, row, 1), "row %d", row)
		assert.Equal(t, "", cellText(t, tbl, row, 0), "row %d", row)
	}
	assert.Equal(t, "MARZO", cellText(t, tbl, 3, 1))
	assert.Equal(t, "2024", cellText(t, tbl, 3, 5))
	assert.Equal(t, "CÓDIGO", cellText(t, tbl, 0, 0))

	// Every entry but the main part is carried over untouched.
	in, err := zip.NewReader(bytes.NewReader(template), int64(len(template)))
	require.NoError(t, err)
	out, err := zip.NewReader(bytes.NewReader(a.Data), int64(len(a.Data)))
	require.NoError(t, err)
	require.Len(t, out.File, len(in.File))
	for i, f := range in.File {
		assert.Equal(t, f.Name, out.File[i].Name)
		if f.Name == docx.MainPart {
			continue
		}
		want, err := assemble.ReadEntry(template, f.Name)
		require.NoError(t, err)
		got, err := assemble.ReadEntry(a.Data, f.Name)
		require.NoError(t, err)
		assert.Equal(t, want, got, f.Name)
	}

	require.Len(t, archive.calls, 1)
	assert.Equal(t, "Informe_MARZO_2024.docx", archive.calls[0].name)
	assert.Equal(t, "2024-03", archive.calls[0].fields["Period"])
	assert.Equal(t, run.ID, archive.calls[0].fields["RunId"])
}

func TestMonthlyReportOverflowWarns(t *testing.T) {
	rows := [][]any{{"APELLIDOS Y NOMBRE", "DNI"}}
	for i := 0; i < 22; i++ {
		rows = append(rows, []any{fmt.Sprintf("ALUMNO%02d APELLIDO, NOMBRE", i), ""})
	}
	file := reader.File{Name: "muchos.xlsx", Data: testdocs.Workbook([]string{"Hoja"}, map[string][][]any{"Hoja": rows})}
	p := newPipeline(t, mapStore{MonthlyReportTemplate: testdocs.MonthlyReport()})

	run := NewRun(context.Background(), testConfig(), 2024, 3)
	a, err := p.MonthlyReport(run, Inputs{Roster: []reader.File{file}})
	require.NoError(t, err)
	require.Len(t, run.Warnings, 1)
	assert.Equal(t, fault.TemplateMismatch.String(), run.Warnings[0].Kind)
	assert.Contains(t, run.Warnings[0].Message, "2 students")

	tbl := mainTable(t, a.Data)
	assert.Equal(t, "20", cellText(t, tbl, 25, 0))
}

func TestMonthlyReportFailures(t *testing.T) {
	p := newPipeline(t, mapStore{})

	run := NewRun(context.Background(), testConfig(), 2024, 3)
	_, err := p.MonthlyReport(run, Inputs{Roster: []reader.File{roster()}})
	assert.True(t, fault.Is(err, fault.TemplateMismatch))

	run = NewRun(context.Background(), testConfig(), 2024, 3)
	_, err = p.MonthlyReport(run, Inputs{Roster: []reader.File{{Name: "roto.xlsx", Data: []byte("not a workbook")}}})
	assert.True(t, fault.Is(err, fault.Miss))
	require.NotEmpty(t, run.Warnings)
	assert.Equal(t, fault.Unreadable.String(), run.Warnings[0].Kind)
	assert.Equal(t, "roto.xlsx", run.Warnings[0].Source)

	// A template without the declared table shape is refused before writing.
	p = newPipeline(t, mapStore{MonthlyReportTemplate: testdocs.Docx(testdocs.Table(3, 3, func(int, int) string { return "" }))})
	run = NewRun(context.Background(), testConfig(), 2024, 3)
	_, err = p.MonthlyReport(run, Inputs{Roster: []reader.File{roster()}})
	assert.True(t, fault.Is(err, fault.TemplateMismatch))
}

func TestCertificates(t *testing.T) {
	p := newPipeline(t, mapStore{CertificateTemplate: testdocs.Certificate()})

	run := NewRun(context.Background(), testConfig(), 2024, 3)
	a, err := p.Certificates(run, Inputs{Roster: []reader.File{roster()}, Grades: []reader.File{grades()}})
	require.NoError(t, err)
	assert.Equal(t, ContentTypeZIP, a.ContentType)

	// The grade row for a student missing from the roster is an orphan.
	require.Len(t, run.Warnings, 1)
	assert.Contains(t, run.Warnings[0].Message, "SÁNCHEZ GIL, EVA")

	zr, err := zip.NewReader(bytes.NewReader(a.Data), int64(len(a.Data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"Certificado_ANA_GARCIA_LOPEZ.docx",
		"Certificado_LUIS_PEREZ_RUIZ.docx",
		"Certificado_NURIA_BRANA_MANCHADO.docx",
	}, names)

	cert, err := assemble.ReadEntry(a.Data, names[0])
	require.NoError(t, err)
	part, err := assemble.ReadEntry(cert, docx.MainPart)
	require.NoError(t, err)
	doc, err := docx.Parse(part)
	require.NoError(t, err)
	fields := doc.Fields()
	require.Len(t, fields, 10)
	assert.Equal(t, "ANA GARCÍA LÓPEZ", doc.Result(fields[0]))
	assert.Equal(t, "34567890V", doc.Result(fields[1]))
	assert.Equal(t, "MF0486_3: 7,5 APTO; MF0487_3: EXENTO", doc.Result(fields[7]))
	assert.Equal(t, "APTO", doc.Result(fields[8]))
	assert.Equal(t, "02/04/2024", doc.Result(fields[9]))
}

func TestTranscriptWithoutTemplate(t *testing.T) {
	p := newPipeline(t, mapStore{})

	run := NewRun(context.Background(), testConfig(), 2024, 3)
	a, err := p.Transcript(run, Inputs{Roster: []reader.File{roster()}, Grades: []reader.File{grades()}})
	require.NoError(t, err)
	assert.Equal(t, ContentTypeXLSX, a.ContentType)

	f, err := excelize.OpenReader(bytes.NewReader(a.Data))
	require.NoError(t, err)
	defer f.Close()

	get := func(cell string) string {
		v, err := f.GetCellValue("ACTA", cell)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "MARZO 2024", get("B5"))
	assert.Equal(t, "MF0486_3", get("D7"))
	assert.Equal(t, "MF0487_3", get("E7"))
	assert.Equal(t, "GARCÍA LÓPEZ, ANA", get("B8"))
	assert.Equal(t, "7.5", get("D8"))
	assert.Equal(t, "EXENTO", get("E8"))
	assert.Equal(t, "APTO", get("F8"))
	assert.Equal(t, "PÉREZ RUIZ, LUIS", get("B9"))
	assert.Equal(t, "NO APTO", get("F9"))
}

func TestGradeSheetStandsInForRoster(t *testing.T) {
	p := newPipeline(t, mapStore{})
	run := NewRun(context.Background(), testConfig(), 2024, 3)

	r, err := p.Extract(run, Inputs{Grades: []reader.File{grades()}})
	require.NoError(t, err)
	require.Len(t, r.Students, 4)
	assert.Equal(t, "ANA GARCÍA LÓPEZ", r.Students[0].DisplayName())
	assert.Equal(t, "EVA SÁNCHEZ GIL", r.Students[1].DisplayName())
	assert.Empty(t, r.Orphans)
	assert.Equal(t, run.ID, r.RunID)
}

func TestExtractReport(t *testing.T) {
	p := newPipeline(t, mapStore{})
	run := NewRun(context.Background(), testConfig(), 2024, 3)

	r, err := p.Extract(run, Inputs{Roster: []reader.File{roster()}, Grades: []reader.File{grades()}})
	require.NoError(t, err)
	require.Len(t, r.Students, 3)
	assert.Equal(t, 4, r.Stats.TotalProcessed)
	assert.Equal(t, 3, r.Stats.ExactNIF)
	assert.Equal(t, 1, r.Stats.Orphans)
	require.Len(t, r.Orphans, 1)
	assert.Equal(t, "SÁNCHEZ GIL, EVA", r.Orphans[0].Student.Name)
	assert.Len(t, r.Warnings, 1)
	assert.Equal(t, 21, r.Course.TeachingDays)
	assert.Equal(t, []string{"MF0486_3", "MF0487_3"}, r.Course.Modules)
}

func TestGatherWarnsOnWrongNIFLetter(t *testing.T) {
	file := reader.File{Name: "alumnos.xlsx", Data: testdocs.Workbook([]string{"Hoja"}, map[string][][]any{
		"Hoja": {
			{"APELLIDOS Y NOMBRE", "DNI"},
			{"GARCÍA LÓPEZ, ANA", "34567890A"},
			{"PÉREZ RUIZ, LUIS", "12345678Z"},
		},
	})}
	p := newPipeline(t, mapStore{})
	run := NewRun(context.Background(), testConfig(), 2024, 3)

	g, err := p.Gather(run, Inputs{Roster: []reader.File{file}})
	require.NoError(t, err)
	require.Len(t, g.Students, 2)
	require.Len(t, run.Warnings, 1)
	assert.Equal(t, fault.Miss.String(), run.Warnings[0].Kind)
	assert.Equal(t, "alumnos.xlsx", run.Warnings[0].Source)
	assert.Contains(t, run.Warnings[0].Message, "34567890A")
}

func TestGatherKeepsAttendanceWithUnattributedWeeks(t *testing.T) {
	sheet := reader.File{Name: "firmas.txt", Data: []byte(`HOJA DE FIRMAS
SEMANA DEL 04/03 AL 08/03/2024
LUNES 09:00 14:00
ALUMNO: GARCÍA LÓPEZ, ANA 34567890V
SEMANA DEL 11/03 AL 15/03/2024
LUNES 09:00 14:00
ALUMNO: PÉREZ RUIZ, LUIS 12345678Z
SEMANA DEL 18/03 AL 22/03/2024
ENTRADA 08:00 SALIDA 15:00
`)}
	p := newPipeline(t, mapStore{})
	run := NewRun(context.Background(), testConfig(), 2024, 3)

	g, err := p.Gather(run, Inputs{Roster: []reader.File{roster()}, Attendance: []reader.File{sheet}})
	require.NoError(t, err)
	require.Len(t, run.Warnings, 1)
	assert.Equal(t, fault.Miss.String(), run.Warnings[0].Kind)
	assert.Equal(t, "firmas.txt", run.Warnings[0].Source)

	assert.Equal(t, 2, g.Stats.ExactNIF)
	require.Len(t, g.Students, 3)
	assert.Equal(t, "GARCÍA LÓPEZ, ANA", g.Students[0].Name)
	assert.Equal(t, 5, g.Students[0].Attendance.Total())
	assert.Equal(t, "PÉREZ RUIZ, LUIS", g.Students[1].Name)
	assert.Equal(t, 5, g.Students[1].Attendance.Total())
}

func TestNarrativeFallsBack(t *testing.T) {
	p := newPipeline(t, mapStore{})
	run := NewRun(context.Background(), testConfig(), 2024, 3)

	n, err := p.Narrative(run, Inputs{Roster: []reader.File{roster()}})
	require.NoError(t, err)
	assert.False(t, n.Generated)
	assert.Contains(t, n.Text, "marzo de 2024")
	assert.Contains(t, n.Text, "contó con 3 alumnos")
	require.Len(t, run.Warnings, 1)
	assert.Equal(t, fault.External.String(), run.Warnings[0].Kind)
}

func TestSortStudents(t *testing.T) {
	students := []model.Student{
		{Name: "ÑÚÑEZ, ÓSCAR"},
		{Name: "NAVARRO, OLGA"},
		{Name: "ÁLVAREZ, ÁLVARO"},
		{Name: "ZAMORA, ANA"},
	}
	SortStudents(students)
	var got []string
	for _, s := range students {
		got = append(got, s.DisplayName())
	}
	assert.Equal(t, []string{"ÁLVARO ÁLVAREZ", "ANA ZAMORA", "OLGA NAVARRO", "ÓSCAR ÑÚÑEZ"}, got)
}

func TestGradeSummary(t *testing.T) {
	assert.Equal(t, "", GradeSummary(nil))
	assert.Equal(t, "MF0486_3: 10 APTO; MP0001: NO APTO", GradeSummary([]model.Grade{
		{Module: "MF0486_3", Score: 10, Scored: true, Status: model.StatusPass},
		{Module: "MP0001", Status: model.StatusFail},
	}))
}

func TestDirStore(t *testing.T) {
	dir := t.TempDir()
	store := NewTemplateStore(dir, nil, "")

	_, err := store.Template(context.Background(), MonthlyReportTemplate)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = store.Template(context.Background(), "../secret.docx")
	assert.Error(t, err)
}
