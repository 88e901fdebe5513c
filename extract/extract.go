// Package extract pulls student and course facts out of the text and cell
// grids produced by the reader package.
//
// Every category function returns the students it could identify in document
// order. A category that finds nothing returns a fault.Miss error, which
// callers record as a warning.
package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/JA50N14/course_reports/internal/fault"
	"github.com/JA50N14/course_reports/model"
)

// Category names the kind of source document.
type Category string

const (
	CategoryRoster        Category = "roster"
	CategorySubsidy       Category = "subsidy"
	CategoryAttendance    Category = "attendance"
	CategoryJustification Category = "justification"
	CategoryGrades        Category = "grades"
	CategoryCourse        Category = "course"
)

type Options struct {
	MinYear int
	MaxYear int
	// FallbackAbsences is charged to a student whose attendance sheet has no
	// countable week.
	FallbackAbsences int
}

type Extractor struct {
	rules            *Rules
	minYear          int
	maxYear          int
	fallbackAbsences int
}

func New(rules *Rules, opts Options) *Extractor {
	if opts.MinYear == 0 {
		opts.MinYear = 2015
	}
	if opts.MaxYear == 0 {
		opts.MaxYear = time.Now().Year() + 1
	}
	return &Extractor{
		rules:            rules,
		minYear:          opts.MinYear,
		maxYear:          opts.MaxYear,
		fallbackAbsences: opts.FallbackAbsences,
	}
}

var subsidyFlags = []string{"transport", "childcare", "disability", "scholarship"}

var (
	// \b is ASCII-only, so a label must be followed by a separator: "D " is a
	// title but the D of DÍAZ is not.
	labelRe      = regexp.MustCompile(`^(?:(?:ALUMNO(?:\s+A)?|ALUMNA|ALUMNOS|NOMBRE|APELLIDOS|DNI|NIF|NIE|DON|DOÑA|DÑA|D|Y)(?:[\s:]+|$))+`)
	trailLabelRe = regexp.MustCompile(`(?:\s+(?:DNI|NIF|NIE|D N I|N I F|DOCUMENTO))+$`)
	commaSpaceRe = regexp.MustCompile(`\s*,\s*`)
)

// nameNear looks for a person name on the same line as a NIF, first before
// the ID and then after it.
func (e *Extractor) nameNear(line string, hit nifHit) string {
	for _, cand := range []string{line[:hit.start], line[hit.end:]} {
		if n := e.cleanName(cand); n != "" {
			return n
		}
	}
	return ""
}

func (e *Extractor) cleanName(s string) string {
	s = strings.ToUpper(s)
	s = strings.TrimLeftFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })

	cut := len(s)
	if i := strings.IndexFunc(s, unicode.IsDigit); i >= 0 {
		cut = i
	}
	for _, flag := range subsidyFlags {
		if i := e.rules.Index(flag, s); i >= 0 && i < cut {
			cut = i
		}
	}
	s = s[:cut]

	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || r == ' ' || r == ',' || r == '\'' || r == '-' {
			return r
		}
		return ' '
	}, s)
	s = model.NormalizeName(s)
	s = labelRe.ReplaceAllString(s, "")
	s = trailLabelRe.ReplaceAllString(s, "")
	s = strings.Trim(s, " ,-'")
	s = commaSpaceRe.ReplaceAllString(s, ", ")

	if len(strings.Fields(strings.ReplaceAll(s, ",", " "))) < 2 {
		return ""
	}
	return s
}

// segment is the slice of text attributed to one student: from the line that
// names them up to the line before the next student.
type segment struct {
	student model.Student
	body    string
}

// segmentByNIF splits text into per-student segments keyed by the NIF lines.
// Text before the first NIF is returned as the preamble.
func (e *Extractor) segmentByNIF(text, source string) (string, []segment) {
	var (
		preamble strings.Builder
		segs     []segment
	)
	for _, line := range lines(text) {
		hits := findNIFs(line)
		if len(hits) == 0 {
			if len(segs) == 0 {
				preamble.WriteString(line)
				preamble.WriteByte('\n')
			} else {
				segs[len(segs)-1].body += line + "\n"
			}
			continue
		}
		hit := primaryNIF(hits)
		segs = append(segs, segment{
			student: model.Student{
				Name:    e.nameNear(line, hit),
				NIF:     hit.nif,
				Sources: []string{source},
			},
			body: line + "\n",
		})
	}
	return preamble.String(), segs
}

func missing(category Category, source string) error {
	return fault.Newf(fault.Miss, source, "no %s entries recognised", category)
}
