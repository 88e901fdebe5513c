package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/JA50N14/course_reports/model"
)

// Justifications reads the list of excused absences. An explicit count
// ("2 faltas justificadas") wins; otherwise every distinct date inside the
// month within the student's block counts as one justified absence.
// Lists without IDs are read line by line as "SURNAME, GIVEN dd/mm/yyyy ...".
func (e *Extractor) Justifications(source, text string, year, month int) ([]model.Student, error) {
	var students []model.Student

	_, segs := e.segmentByNIF(text, source)
	for _, seg := range segs {
		n := e.justifiedCount(seg.body, year, month)
		if n == 0 {
			continue
		}
		s := seg.student
		s.Justified = n
		students = append(students, s)
	}

	if len(segs) == 0 {
		for _, line := range lines(text) {
			name := e.cleanName(line)
			if !strings.Contains(name, ",") {
				continue
			}
			n := e.justifiedCount(line, year, month)
			if n == 0 {
				continue
			}
			students = append(students, model.Student{Name: name, Justified: n, Sources: []string{source}})
		}
	}

	if len(students) == 0 {
		return nil, missing(CategoryJustification, source)
	}
	return students, nil
}

func (e *Extractor) justifiedCount(text string, year, month int) int {
	if raw, ok := e.rules.First("justified_count", text); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	seen := make(map[time.Time]bool)
	for _, d := range e.dates(text) {
		if month != 0 && (int(d.Month()) != month || d.Year() != year) {
			continue
		}
		seen[d] = true
	}
	return len(seen)
}
