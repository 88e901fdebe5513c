package extract

import (
	"regexp"

	"github.com/JA50N14/course_reports/model"
)

var sectionHeadingRe = regexp.MustCompile(`(?i)\bayudas?\b|beneficiari|relaci[óo]n\s+de`)

func (e *Extractor) subsidyFlags(text string) model.Subsidies {
	return model.Subsidies{
		Transport:   e.rules.Match("transport", text),
		Childcare:   e.rules.Match("childcare", text),
		Disability:  e.rules.Match("disability", text),
		Scholarship: e.rules.Match("scholarship", text),
	}
}

// Subsidies reads an aid award list. A student's flags come from the aid
// names on their own line; when the line names none, the flags of the
// enclosing section heading (e.g. "AYUDAS DE TRANSPORTE") apply.
// A student listed under several sections gets the union of flags.
func (e *Extractor) Subsidies(source, text string) ([]model.Student, error) {
	var (
		section  model.Subsidies
		students []model.Student
		byNIF    = make(map[string]int)
	)

	for _, line := range lines(text) {
		hits := findNIFs(line)
		if len(hits) == 0 {
			if flags := e.subsidyFlags(line); flags.Any() && sectionHeadingRe.MatchString(line) {
				section = flags
			}
			continue
		}

		hit := primaryNIF(hits)
		flags := e.subsidyFlags(line)
		if !flags.Any() {
			flags = section
		}
		if i, ok := byNIF[hit.nif]; ok {
			students[i].Subsidies = students[i].Subsidies.Or(flags)
			continue
		}
		byNIF[hit.nif] = len(students)
		students = append(students, model.Student{
			Name:      e.nameNear(line, hit),
			NIF:       hit.nif,
			Subsidies: flags,
			Sources:   []string{source},
		})
	}

	if len(students) == 0 {
		return nil, missing(CategorySubsidy, source)
	}
	return students, nil
}
