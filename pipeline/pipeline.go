// Package pipeline wires the reader, the extractors, the reconciler and
// the template fillers into the flows behind each generated document.
package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/JA50N14/course_reports/config"
	"github.com/JA50N14/course_reports/docx"
	"github.com/JA50N14/course_reports/extract"
	"github.com/JA50N14/course_reports/internal/fault"
	"github.com/JA50N14/course_reports/model"
	"github.com/JA50N14/course_reports/narrative"
	"github.com/JA50N14/course_reports/reader"
	"github.com/JA50N14/course_reports/reconcile"
	"github.com/JA50N14/course_reports/workbook"
)

type Pipeline struct {
	cfg       *config.ApiConfig
	logger    *slog.Logger
	reader    *reader.Reader
	extractor *extract.Extractor
	templates TemplateStore
	archive   Archiver
	writer    *narrative.Writer

	monthly     *docx.Schema
	certificate *docx.Schema
	transcript  *workbook.Layout

	now func() time.Time
}

type Option func(*Pipeline)

// WithReader replaces the default reader, which shells out to the OCR
// tools named in the config.
func WithReader(r *reader.Reader) Option {
	return func(p *Pipeline) { p.reader = r }
}

// WithArchive uploads every generated artifact.
func WithArchive(a Archiver) Option {
	return func(p *Pipeline) { p.archive = a }
}

func WithWriter(w *narrative.Writer) Option {
	return func(p *Pipeline) { p.writer = w }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New loads the extraction rules and template schemas. Schemas come from
// cfg.SchemaDir when set, else from the built-in set.
func New(cfg *config.ApiConfig, templates TemplateStore, opts ...Option) (*Pipeline, error) {
	rules, err := extract.LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading extraction rules: %w", err)
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
		extractor: extract.New(rules, extract.Options{
			MinYear:          cfg.MinYear,
			FallbackAbsences: cfg.FallbackAbsences,
		}),
		templates: templates,
		now:       time.Now,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	if p.monthly, err = docx.LoadSchema(schemaPath(cfg.SchemaDir, "monthly_report.yaml")); err != nil {
		return nil, fmt.Errorf("loading monthly report schema: %w", err)
	}
	if p.certificate, err = docx.LoadSchema(schemaPath(cfg.SchemaDir, "certificate.yaml")); err != nil {
		return nil, fmt.Errorf("loading certificate schema: %w", err)
	}
	layoutPath := ""
	if cfg.SchemaDir != "" {
		layoutPath = filepath.Join(cfg.SchemaDir, "transcript.yaml")
	}
	if p.transcript, err = workbook.LoadLayout(layoutPath); err != nil {
		return nil, fmt.Errorf("loading transcript layout: %w", err)
	}

	for _, opt := range opts {
		opt(p)
	}
	if p.reader == nil {
		p.reader = reader.New(reader.Config{
			Pdftotext: cfg.Pdftotext,
			Pdftoppm:  cfg.Pdftoppm,
			Tesseract: cfg.Tesseract,
			Lang:      cfg.OCRLang,
			DPI:       cfg.OCRDPI,
		}, p.logger)
	}
	if p.writer == nil {
		p.writer = narrative.New(cfg)
	}
	return p, nil
}

func schemaPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// Gathered is what every flow starts from: the course header and the
// roster with every other source merged in.
type Gathered struct {
	Course  model.Course
	Modules []string
	reconcile.Result
}

// Gather reads and extracts every input, then merges all secondary
// sources into the roster. Only an empty roster is fatal; anything else
// that goes wrong becomes a warning on the run.
func (p *Pipeline) Gather(run *Run, in Inputs) (*Gathered, error) {
	g := &Gathered{Course: model.Course{Year: run.Year, Month: run.Month}}

	courseFound := false
	for _, doc := range p.read(run, in.Course) {
		c, err := p.extractor.Course(doc.Name, doc.Text, run.Year, run.Month)
		if err != nil {
			run.Warn(err)
			continue
		}
		g.Course, courseFound = c, true
		break
	}
	if !courseFound {
		g.Course.TeachingDays = extract.MonthTeachingDays(g.Course)
	}
	if run.Year == 0 {
		run.Year = g.Course.Year
	}
	if run.Month == 0 {
		run.Month = g.Course.Month
	}

	var roster []model.Student
	for _, doc := range p.read(run, in.Roster) {
		var (
			students []model.Student
			err      error
		)
		if grid := doc.Grid(); grid != nil {
			students, err = p.extractor.Roster(doc.Name, grid)
		} else {
			students, err = p.extractor.RosterText(doc.Name, doc.Text)
		}
		if err != nil {
			run.Warn(err)
			continue
		}
		roster = append(roster, students...)
	}

	var others [][]model.Student
	collect := func(files []reader.File, fn func(reader.Document) ([]model.Student, error)) {
		for _, doc := range p.read(run, files) {
			students, err := fn(doc)
			if err != nil {
				run.Warn(err)
			}
			if len(students) > 0 {
				others = append(others, students)
			}
		}
	}
	collect(in.Subsidies, func(d reader.Document) ([]model.Student, error) {
		return p.extractor.Subsidies(d.Name, d.Text)
	})
	collect(in.Attendance, func(d reader.Document) ([]model.Student, error) {
		return p.extractor.Attendance(d.Name, d.Text, run.Year, run.Month, g.Course.TeachingDays)
	})
	collect(in.Justifications, func(d reader.Document) ([]model.Student, error) {
		return p.extractor.Justifications(d.Name, d.Text, run.Year, run.Month)
	})

	var graded []model.Student
	for _, doc := range p.read(run, in.Grades) {
		students, modules, err := p.extractor.Grades(doc.Name, doc.Grid())
		if err != nil {
			run.Warn(err)
			continue
		}
		g.Modules = appendNew(g.Modules, modules...)
		graded = append(graded, students...)
	}
	// A grade sheet doubles as the roster when none was uploaded.
	switch {
	case len(roster) == 0:
		roster = graded
	case len(graded) > 0:
		others = append(others, graded)
	}
	if len(roster) == 0 {
		return nil, fault.Newf(fault.Miss, "roster", "no students found in the uploaded roster")
	}

	g.Result = reconcile.Merge(roster, others...)
	for _, o := range g.Orphans {
		run.Warn(fault.Newf(fault.Miss, firstSource(o.Student), "%s matched no student in the roster", o.Student.Name))
	}
	for _, s := range g.Students {
		if s.NIF != "" && !extract.ValidNIF(s.NIF) {
			run.Warn(fault.Newf(fault.Miss, firstSource(s), "%s has NIF %s with a wrong control letter", s.Name, s.NIF))
		}
	}
	SortStudents(g.Students)
	g.Course.Modules = g.Modules

	run.Logger.Info("sources reconciled",
		"students", len(g.Students),
		"processed", g.Stats.TotalProcessed,
		"by_nif", g.Stats.ExactNIF,
		"by_name", g.Stats.ExactName,
		"by_surname", g.Stats.Surname,
		"orphans", g.Stats.Orphans,
	)
	return g, nil
}

func (p *Pipeline) read(run *Run, files []reader.File) []reader.Document {
	if len(files) == 0 {
		return nil
	}
	docs, warnings := p.reader.ReadAll(run.Ctx, files)
	run.addWarnings(warnings)
	return docs
}

// SortStudents orders students by their "GIVEN SURNAME" form using Spanish
// collation, so accented and plain letters sort together.
func SortStudents(students []model.Student) {
	c := collate.New(language.Spanish, collate.IgnoreCase)
	sort.SliceStable(students, func(i, j int) bool {
		return c.CompareString(students[i].DisplayName(), students[j].DisplayName()) < 0
	})
}

func appendNew(list []string, items ...string) []string {
	for _, it := range items {
		seen := false
		for _, l := range list {
			if l == it {
				seen = true
				break
			}
		}
		if !seen {
			list = append(list, it)
		}
	}
	return list
}

func firstSource(s model.Student) string {
	if len(s.Sources) == 0 {
		return ""
	}
	return s.Sources[0]
}
