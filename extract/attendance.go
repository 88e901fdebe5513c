package extract

import (
	"strconv"
	"time"

	"github.com/JA50N14/course_reports/internal/fault"
	"github.com/JA50N14/course_reports/model"
)

// Lines after a week header searched for signature clock times.
const weekWindowLines = 15

type venue int

const (
	venueClassroom venue = iota
	venueWorkplace
)

// WeekRange parses a "SEMANA DEL dd/mm AL dd/mm/yyyy" header. A start date
// without a year takes the end year, or the previous one when the week
// crosses New Year.
func (e *Extractor) WeekRange(header string) (time.Time, time.Time, bool) {
	m := e.rules.Submatch("week_header", header)
	if m == nil || len(m) < 7 {
		return time.Time{}, time.Time{}, false
	}
	d1, _ := strconv.Atoi(m[1])
	m1, _ := strconv.Atoi(m[2])
	d2, _ := strconv.Atoi(m[4])
	m2, _ := strconv.Atoi(m[5])
	y2, _ := strconv.Atoi(m[6])

	y1 := y2
	switch {
	case len(m[3]) == 4:
		y1, _ = strconv.Atoi(m[3])
	case len(m[3]) == 2:
		yy, _ := strconv.Atoi(m[3])
		y1 = 2000 + yy
	case m1 > m2:
		y1 = y2 - 1
	}

	from, err := e.makeDate(d1, m1, y1)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to, err := e.makeDate(d2, m2, y2)
	if err != nil || to.Before(from) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// clockTokens counts time-of-day tokens such as 09:00 or 14.30, ignoring
// dotted dates like 03.02.2025.
func (e *Extractor) clockTokens(text string) int {
	n := 0
	for _, re := range e.rules.patterns("clock") {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			end := loc[1]
			if end+1 < len(text) && (text[end] == '.' || text[end] == '/') && text[end+1] >= '0' && text[end+1] <= '9' {
				continue
			}
			if loc[0] > 0 && (text[loc[0]-1] == '/' || text[loc[0]-1] == '.') {
				continue
			}
			n++
		}
		if n > 0 {
			return n
		}
	}
	return n
}

// WeekDays returns the weekday count of a week header when the text that
// follows it carries at least two clock times (the signed entry and exit).
// A non-zero month clips the range to that month.
func (e *Extractor) WeekDays(header, window string, year, month int) (int, bool) {
	from, to, ok := e.WeekRange(header)
	if !ok {
		return 0, false
	}
	if e.clockTokens(window) < 2 {
		return 0, false
	}
	return CountWeekdaysInMonth(from, to, year, month), true
}

type attendanceEntry struct {
	student model.Student
	weeks   int
}

// Attendance reads signature sheets. Students are identified by NIF lines
// or "ALUMNO/A:" lines; each countable week adds its weekdays to the current
// student under the current venue (classroom unless the sheet says
// work placement). teachingDays, when known, turns attended days into
// absences; a student with no countable week is charged the fallback.
//
// A fault.Miss error returned together with students reports weeks that
// could not be attributed; the students are still valid.
func (e *Extractor) Attendance(source, text string, year, month, teachingDays int) ([]model.Student, error) {
	var (
		entries []*attendanceEntry
		byKey   = make(map[string]*attendanceEntry)
		cur     *attendanceEntry
		where   = venueClassroom
	)

	enter := func(key string, s model.Student) {
		if ent, ok := byKey[key]; ok {
			if ent.student.Name == "" {
				ent.student.Name = s.Name
			}
			cur = ent
			return
		}
		if cur != nil && cur.student.NIF == "" && s.NIF != "" && model.NormalizeName(cur.student.Name) == model.NormalizeName(s.Name) {
			cur.student.NIF = s.NIF
			byKey[key] = cur
			return
		}
		cur = &attendanceEntry{student: s}
		entries = append(entries, cur)
		byKey[key] = cur
	}

	ls := lines(text)
	for i, line := range ls {
		if hits := findNIFs(line); len(hits) > 0 {
			hit := primaryNIF(hits)
			name := e.nameNear(line, hit)
			enter(hit.nif, model.Student{Name: name, NIF: hit.nif, Sources: []string{source}})
		} else if raw, ok := e.rules.First("student_name", line); ok {
			if name := e.cleanName(raw); name != "" {
				enter(model.NormalizeName(name), model.Student{Name: name, Sources: []string{source}})
			}
		}

		switch {
		case e.rules.Match("workplace", line):
			where = venueWorkplace
		case e.rules.Match("classroom", line):
			where = venueClassroom
		}

		if e.rules.Index("week_header", line) < 0 {
			continue
		}
		window := line[e.rules.Index("week_header", line):]
		for j := i + 1; j < len(ls) && j <= i+weekWindowLines; j++ {
			if e.rules.Index("week_header", ls[j]) >= 0 {
				break
			}
			window += "\n" + ls[j]
		}
		days, ok := e.WeekDays(line, dropHeader(e, window), year, month)
		if !ok {
			continue
		}
		if cur == nil {
			enter("", model.Student{Sources: []string{source}})
		}
		if where == venueWorkplace {
			cur.student.Attendance.Workplace += days
		} else {
			cur.student.Attendance.Classroom += days
		}
		cur.weeks++
	}

	// An anonymous sheet belongs to the only student it names. With more
	// than one, the unattributed weeks are reported and not counted.
	var unattributed error
	if anon, ok := byKey[""]; ok {
		switch {
		case len(entries) == 2:
			for _, ent := range entries {
				if ent != anon {
					ent.student.Attendance.Classroom += anon.student.Attendance.Classroom
					ent.student.Attendance.Workplace += anon.student.Attendance.Workplace
					ent.weeks += anon.weeks
				}
			}
		case len(entries) > 2 && anon.weeks > 0:
			unattributed = fault.Newf(fault.Miss, source,
				"%d signed weeks precede the first named student and were not counted", anon.weeks)
		}
	}

	var students []model.Student
	for _, ent := range entries {
		if ent.student.Name == "" && ent.student.NIF == "" {
			continue
		}
		s := ent.student
		switch {
		case ent.weeks == 0:
			v := e.fallbackAbsences
			s.Absences = &v
		case teachingDays > 0:
			v := max(teachingDays-s.Attendance.Total(), 0)
			s.Absences = &v
		}
		students = append(students, s)
	}

	if len(students) == 0 {
		return nil, missing(CategoryAttendance, source)
	}
	return students, unattributed
}

// dropHeader removes the header's own dates so they are not read as clock times.
func dropHeader(e *Extractor, window string) string {
	m := e.rules.Submatch("week_header", window)
	if m == nil {
		return window
	}
	return window[len(m[0]):]
}
