package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JA50N14/course_reports/model"
)

var (
	scoreRe  = regexp.MustCompile(`^\s*(10|\d)(?:[.,](\d{1,2}))?\s*$`)
	exemptRe = regexp.MustCompile(`(?i)^\s*(?:ex(?:ento)?|conv(?:alidado)?)\s*$`)
	passRe   = regexp.MustCompile(`(?i)^\s*(?:apto|superado)\s*$`)
	failRe   = regexp.MustCompile(`(?i)^\s*(?:no\s+apto|n\.?\s*a\.?|no\s+superado)\s*$`)
)

// ParseGrade reads one grade cell: a 0-10 score with comma or dot decimals,
// or a status word. Scores of 5 or more pass.
func ParseGrade(module, raw string) (model.Grade, bool) {
	g := model.Grade{Module: module}
	switch {
	case exemptRe.MatchString(raw):
		g.Status = model.StatusExempt
	case failRe.MatchString(raw):
		g.Status = model.StatusFail
	case passRe.MatchString(raw):
		g.Status = model.StatusPass
	default:
		m := scoreRe.FindStringSubmatch(raw)
		if m == nil {
			return model.Grade{}, false
		}
		v, err := strconv.ParseFloat(m[1]+"."+orZero(m[2]), 64)
		if err != nil || v > 10 {
			return model.Grade{}, false
		}
		g.Score = v
		g.Scored = true
		g.Status = model.StatusFail
		if v >= 5 {
			g.Status = model.StatusPass
		}
	}
	return g, true
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// Grades reads a grade sheet: the roster header plus one column per module
// (MF0000_0, MP0000 or "MÓDULO n"). Rows without any readable grade are kept
// with no grades so the roster still reaches the transcript.
func (e *Extractor) Grades(source string, rows [][]string) ([]model.Student, []string, error) {
	for h, row := range rows {
		cols, ok := detectRosterHeader(row)
		if !ok {
			continue
		}
		var (
			moduleCols []moduleColumn
			modules    []string
		)
		for i, c := range row {
			if m, ok := e.rules.First("module_header", c); ok {
				mod := strings.ToUpper(m)
				moduleCols = append(moduleCols, moduleColumn{col: i, module: mod})
				modules = append(modules, mod)
			}
		}
		if len(modules) == 0 {
			continue
		}

		var students []model.Student
		for _, data := range rows[h+1:] {
			name := cols.name(data)
			if name == "" {
				if len(students) > 0 {
					break
				}
				continue
			}
			s := model.Student{Name: name, NIF: NormalizeNIF(cell(data, cols.nif)), Sources: []string{source}}
			for _, mc := range moduleCols {
				if g, ok := ParseGrade(mc.module, cell(data, mc.col)); ok {
					s.Grades = append(s.Grades, g)
				}
			}
			students = append(students, s)
		}
		if len(students) > 0 {
			return students, modules, nil
		}
	}
	return nil, nil, missing(CategoryGrades, source)
}

type moduleColumn struct {
	col    int
	module string
}
