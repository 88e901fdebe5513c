// Package observation writes the short remark printed next to each student in
// the monthly report.
package observation

import (
	"fmt"
	"strings"

	"github.com/JA50N14/course_reports/model"
)

const (
	labelTransport   = "Transporte"
	labelChildcare   = "Conciliación"
	labelDisability  = "Discapacidad"
	labelScholarship = "Beca"
)

type Input struct {
	Subsidies model.Subsidies
	Days      int
	Justified int
}

func FromStudent(s model.Student) Input {
	return Input{Subsidies: s.Subsidies, Days: s.Attendance.Total(), Justified: s.Justified}
}

// Build composes the remark:
//
//	"Transporte + Conciliación: 19"   aids followed by the attended days
//	"Discapacidad+19"                 disability as the only aid
//	"2 faltas justificadas"           justified absences
//
// Fragments are joined by a space. A fragment whose count is zero is omitted.
func Build(in Input) string {
	var fragments []string

	if in.Days > 0 && in.Subsidies.Any() {
		fragments = append(fragments, subsidyFragment(in.Subsidies, in.Days))
	}
	if in.Justified > 0 {
		fragments = append(fragments, justifiedFragment(in.Justified))
	}
	return strings.Join(fragments, " ")
}

func subsidyFragment(s model.Subsidies, days int) string {
	if s == (model.Subsidies{Disability: true}) {
		return fmt.Sprintf("%s+%d", labelDisability, days)
	}

	var names []string
	if s.Transport {
		names = append(names, labelTransport)
	}
	if s.Childcare {
		names = append(names, labelChildcare)
	}
	if s.Disability {
		names = append(names, labelDisability)
	}
	if s.Scholarship {
		names = append(names, labelScholarship)
	}
	return fmt.Sprintf("%s: %d", strings.Join(names, " + "), days)
}

func justifiedFragment(n int) string {
	if n == 1 {
		return "1 falta justificada"
	}
	return fmt.Sprintf("%d faltas justificadas", n)
}

// Apply fills Observation for every student that does not already have one.
func Apply(students []model.Student) {
	for i := range students {
		if students[i].Observation == "" {
			students[i].Observation = Build(FromStudent(students[i]))
		}
	}
}
