package extract

import (
	"regexp"
	"strings"

	"github.com/JA50N14/course_reports/model"
)

var (
	hdrNIF      = regexp.MustCompile(`(?i)^\s*(?:d\.?n\.?i\.?|n\.?i\.?f\.?|n\.?i\.?e\.?|documento)(?:[\s.:/]|$)`)
	hdrFull     = regexp.MustCompile(`(?i)apellidos\s*(?:y|,)\s*nombre|^\s*alumn[oa]s?(?:/a)?\s*$|^\s*participante`)
	hdrFullRev  = regexp.MustCompile(`(?i)nombre\s*(?:y|,)\s*apellidos`)
	hdrSurname1 = regexp.MustCompile(`(?i)^\s*(?:primer\s+)?apellido\s*1?\s*$`)
	hdrSurname2 = regexp.MustCompile(`(?i)^\s*segundo\s+apellido|^\s*apellido\s*2\s*$`)
	hdrSurnames = regexp.MustCompile(`(?i)^\s*apellidos\s*$`)
	hdrGiven    = regexp.MustCompile(`(?i)^\s*nombre\s*$`)
)

// rosterColumns holds the column indexes of a detected header row; -1 means absent.
type rosterColumns struct {
	nif, full, fullRev, surname1, surname2, surnames, given int
}

func detectRosterHeader(row []string) (rosterColumns, bool) {
	cols := rosterColumns{-1, -1, -1, -1, -1, -1, -1}
	for i, cell := range row {
		switch {
		case hdrNIF.MatchString(cell) && cols.nif == -1:
			cols.nif = i
		case hdrFull.MatchString(cell) && cols.full == -1:
			cols.full = i
		case hdrFullRev.MatchString(cell) && cols.fullRev == -1:
			cols.fullRev = i
		case hdrSurname2.MatchString(cell) && cols.surname2 == -1:
			cols.surname2 = i
		case hdrSurname1.MatchString(cell) && cols.surname1 == -1:
			cols.surname1 = i
		case hdrSurnames.MatchString(cell) && cols.surnames == -1:
			cols.surnames = i
		case hdrGiven.MatchString(cell) && cols.given == -1:
			cols.given = i
		}
	}
	hasName := cols.full >= 0 || cols.fullRev >= 0 || cols.surnames >= 0 || cols.surname1 >= 0
	return cols, hasName && (cols.nif >= 0 || cols.given >= 0)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c rosterColumns) name(row []string) string {
	switch {
	case c.full >= 0:
		return model.NormalizeName(cell(row, c.full))
	case c.fullRev >= 0:
		return model.NormalizeName(cell(row, c.fullRev))
	}

	var surname string
	if c.surnames >= 0 {
		surname = cell(row, c.surnames)
	} else {
		surname = strings.TrimSpace(cell(row, c.surname1) + " " + cell(row, c.surname2))
	}
	given := cell(row, c.given)
	switch {
	case surname == "":
		return model.NormalizeName(given)
	case given == "":
		return model.NormalizeName(surname)
	}
	return model.NormalizeName(surname + ", " + given)
}

// Roster reads a student list from one spreadsheet. The header row is located
// by its column titles; data rows follow until the first blank row.
// Without a recognisable header every row holding a NIF is taken, with the
// remaining text cells joined as the name.
func (e *Extractor) Roster(source string, rows [][]string) ([]model.Student, error) {
	for h, row := range rows {
		cols, ok := detectRosterHeader(row)
		if !ok {
			continue
		}
		var students []model.Student
		for _, data := range rows[h+1:] {
			name := cols.name(data)
			rawNIF := cell(data, cols.nif)
			if name == "" && rawNIF == "" {
				if len(students) > 0 {
					break
				}
				continue
			}
			if name == "" {
				continue
			}
			students = append(students, model.Student{
				Name:    name,
				NIF:     NormalizeNIF(rawNIF),
				Sources: []string{source},
			})
		}
		if len(students) > 0 {
			return students, nil
		}
	}

	var students []model.Student
	for _, row := range rows {
		nif := ""
		var parts []string
		for _, c := range row {
			if n := NormalizeNIF(c); n != "" && nif == "" {
				nif = n
				continue
			}
			if n := e.cleanName(c); n != "" {
				parts = append(parts, n)
			}
		}
		if nif == "" || len(parts) == 0 {
			continue
		}
		students = append(students, model.Student{
			Name:    strings.Join(parts, " "),
			NIF:     nif,
			Sources: []string{source},
		})
	}
	if len(students) == 0 {
		return nil, missing(CategoryRoster, source)
	}
	return students, nil
}

// RosterText reads a student list from running text (Word or PDF rosters):
// every line holding a NIF yields one student.
func (e *Extractor) RosterText(source, text string) ([]model.Student, error) {
	_, segs := e.segmentByNIF(text, source)
	var students []model.Student
	for _, s := range segs {
		if s.student.Name == "" {
			continue
		}
		students = append(students, s.student)
	}
	if len(students) == 0 {
		return nil, missing(CategoryRoster, source)
	}
	return students, nil
}
