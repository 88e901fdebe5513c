package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/JA50N14/course_reports/assemble"
	"github.com/JA50N14/course_reports/docx"
	"github.com/JA50N14/course_reports/internal/fault"
	"github.com/JA50N14/course_reports/model"
	"github.com/JA50N14/course_reports/narrative"
	"github.com/JA50N14/course_reports/observation"
	"github.com/JA50N14/course_reports/reconcile"
	"github.com/JA50N14/course_reports/workbook"
)

const dateLayout = "02/01/2006"

// MonthlyReport fills the monthly attendance report: course header cells
// and one row per student, ordered by name.
func (p *Pipeline) MonthlyReport(run *Run, in Inputs) (*Artifact, error) {
	g, err := p.Gather(run, in)
	if err != nil {
		return nil, err
	}
	observation.Apply(g.Students)

	tpl, err := p.openTemplate(run, MonthlyReportTemplate)
	if err != nil {
		return nil, err
	}

	values := docx.Values{Slots: courseSlots(g.Course)}
	for i, s := range g.Students {
		values.Rows = append(values.Rows, monthlyRow(i+1, s))
	}

	out, dropped, err := tpl.Fill(p.monthly, values)
	if err != nil {
		run.Logger.Error("monthly report template could not be filled", "template", tpl.Name, "err", err)
		return nil, err
	}
	if dropped > 0 {
		run.Warn(fault.Newf(fault.TemplateMismatch, tpl.Name,
			"%d students did not fit the report table (capacity %d)", dropped, p.monthly.Rows.Capacity))
	}

	name := fmt.Sprintf("Informe_%s_%s_%d.docx", g.Course.Code, g.Course.MonthName(), g.Course.Year)
	a := &Artifact{Name: assemble.SanitizeName(name), ContentType: ContentTypeDOCX, Data: out}
	p.store(run, a, g.Course)
	return a, nil
}

func courseSlots(c model.Course) map[string]string {
	slots := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			slots[k] = v
		}
	}
	set("course_code", c.Code)
	set("course_name", c.Name)
	set("center", c.Center)
	set("month", c.MonthName())
	if c.Year > 0 {
		set("year", strconv.Itoa(c.Year))
	}
	return slots
}

func monthlyRow(n int, s model.Student) map[string]string {
	row := map[string]string{
		"number": strconv.Itoa(n),
		"name":   s.DisplayName(),
	}
	if s.NIF != "" {
		row["nif"] = s.NIF
	}
	if days := s.Attendance.Total(); days > 0 {
		row["days"] = strconv.Itoa(days)
	}
	if s.Absences != nil {
		row["absences"] = strconv.Itoa(*s.Absences)
	}
	if s.Justified > 0 {
		row["justified"] = strconv.Itoa(s.Justified)
	}
	if s.Observation != "" {
		row["observation"] = s.Observation
	}
	return row
}

// Certificates fills one evaluation certificate per student and bundles
// them in a zip.
func (p *Pipeline) Certificates(run *Run, in Inputs) (*Artifact, error) {
	g, err := p.Gather(run, in)
	if err != nil {
		return nil, err
	}
	tpl, err := p.openTemplate(run, CertificateTemplate)
	if err != nil {
		return nil, err
	}

	issued := p.now().Format(dateLayout)
	files := make([]assemble.File, 0, len(g.Students))
	for _, s := range g.Students {
		out, _, err := tpl.Fill(p.certificate, docx.Values{Slots: certificateSlots(g.Course, s, issued)})
		if err != nil {
			run.Logger.Error("certificate template could not be filled", "template", tpl.Name, "student", s.Name, "err", err)
			return nil, err
		}
		files = append(files, assemble.File{Name: "Certificado_" + s.DisplayName() + ".docx", Data: out})
	}

	bundle, names, err := assemble.Bundle(files)
	if err != nil {
		return nil, fmt.Errorf("bundling certificates: %w", err)
	}
	run.Logger.Info("certificates generated", "count", len(names))

	name := fmt.Sprintf("Certificados_%s.zip", g.Course.Code)
	a := &Artifact{Name: assemble.SanitizeName(name), ContentType: ContentTypeZIP, Data: bundle}
	p.store(run, a, g.Course)
	return a, nil
}

func certificateSlots(c model.Course, s model.Student, issued string) map[string]string {
	slots := map[string]string{
		"student_name": s.DisplayName(),
		"issued":       issued,
	}
	set := func(k, v string) {
		if v != "" {
			slots[k] = v
		}
	}
	set("nif", s.NIF)
	set("course_code", c.Code)
	set("course_name", c.Name)
	set("center", c.Center)
	if !c.Start.IsZero() {
		set("start_date", c.Start.Format(dateLayout))
	}
	if !c.End.IsZero() {
		set("end_date", c.End.Format(dateLayout))
	}
	set("modules", GradeSummary(s.Grades))
	set("final_status", string(s.FinalStatus()))
	return slots
}

// GradeSummary renders grades as "MF0486_3: 7,5 APTO; MF0487_3: EXENTO".
func GradeSummary(grades []model.Grade) string {
	parts := make([]string, 0, len(grades))
	for _, g := range grades {
		v := string(g.Status)
		if g.Scored {
			score := strings.Replace(strconv.FormatFloat(g.Score, 'f', -1, 64), ".", ",", 1)
			v = score + " " + v
		}
		parts = append(parts, g.Module+": "+v)
	}
	return strings.Join(parts, "; ")
}

// Transcript fills the grade transcript workbook. Without a transcript
// template a plain workbook is produced.
func (p *Pipeline) Transcript(run *Run, in Inputs) (*Artifact, error) {
	g, err := p.Gather(run, in)
	if err != nil {
		return nil, err
	}
	if len(g.Modules) == 0 {
		run.Warn(fault.Newf(fault.Miss, "grades", "no module columns found; the transcript has no grades"))
	}

	template, err := p.templates.Template(run.Ctx, TranscriptTemplate)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		run.Logger.Info("no transcript template, using a blank workbook", "template", TranscriptTemplate)
		template = nil
	case err != nil:
		return nil, err
	}

	slots := courseSlots(g.Course)
	delete(slots, "month")
	delete(slots, "year")
	if period := coursePeriod(g.Course); period != "" {
		slots["period"] = period
	}
	out, err := p.transcript.Fill(template, workbook.Transcript{Slots: slots, Modules: g.Modules, Students: g.Students})
	if err != nil {
		run.Logger.Error("transcript could not be filled", "template", TranscriptTemplate, "err", err)
		return nil, err
	}

	name := fmt.Sprintf("Acta_%s.xlsx", g.Course.Code)
	a := &Artifact{Name: assemble.SanitizeName(name), ContentType: ContentTypeXLSX, Data: out}
	p.store(run, a, g.Course)
	return a, nil
}

func coursePeriod(c model.Course) string {
	switch {
	case !c.Start.IsZero() && !c.End.IsZero():
		return c.Start.Format(dateLayout) + " - " + c.End.Format(dateLayout)
	case c.MonthName() != "" && c.Year > 0:
		return fmt.Sprintf("%s %d", c.MonthName(), c.Year)
	}
	return ""
}

// Report is the diagnostic view of a run: the merged records and how each
// secondary record was matched.
type Report struct {
	RunID    string             `json:"run_id"`
	Course   model.Course       `json:"course"`
	Students []model.Student    `json:"students"`
	Matches  []reconcile.Match  `json:"matches"`
	Orphans  []reconcile.Orphan `json:"orphans"`
	Stats    reconcile.Stats    `json:"stats"`
	Warnings []fault.Warning    `json:"warnings"`
}

func (p *Pipeline) Extract(run *Run, in Inputs) (*Report, error) {
	g, err := p.Gather(run, in)
	if err != nil {
		return nil, err
	}
	observation.Apply(g.Students)
	return &Report{
		RunID:    run.ID,
		Course:   g.Course,
		Students: g.Students,
		Matches:  g.Matches,
		Orphans:  g.Orphans,
		Stats:    g.Stats,
		Warnings: run.Warnings,
	}, nil
}

// Narrative is the monthly summary text. Generated is false when the
// language model failed and Text is the template-built draft.
type Narrative struct {
	Text      string `json:"text"`
	Generated bool   `json:"generated"`
}

func (p *Pipeline) Narrative(run *Run, in Inputs) (*Narrative, error) {
	g, err := p.Gather(run, in)
	if err != nil {
		return nil, err
	}
	observation.Apply(g.Students)

	text, err := p.writer.Summary(run.Ctx, g.Course, g.Students)
	if err != nil {
		run.Warn(err)
		return &Narrative{Text: narrative.Fallback(g.Course, g.Students)}, nil
	}
	return &Narrative{Text: text, Generated: true}, nil
}

func (p *Pipeline) openTemplate(run *Run, name string) (*docx.Template, error) {
	data, err := p.templates.Template(run.Ctx, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fault.New(fault.TemplateMismatch, name, err)
		}
		return nil, err
	}
	return docx.Open(name, data)
}

// store archives a copy of the artifact when an archive is configured. A
// failed upload only costs a warning.
func (p *Pipeline) store(run *Run, a *Artifact, c model.Course) {
	if p.archive == nil {
		return
	}
	fields := map[string]any{"RunId": run.ID}
	if c.Code != "" {
		fields["CourseCode"] = c.Code
	}
	if run.Year > 0 && run.Month > 0 {
		fields["Period"] = time.Date(run.Year, time.Month(run.Month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
	}
	if _, err := p.archive.Archive(run.Ctx, a.Name, a.Data, fields); err != nil {
		run.Warn(fault.New(fault.External, a.Name, err))
	}
}
