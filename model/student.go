package model

import "time"

type Subsidies struct {
	Transport   bool `json:"transport"`
	Childcare   bool `json:"childcare"`
	Disability  bool `json:"disability"`
	Scholarship bool `json:"scholarship"`
}

func (s Subsidies) Any() bool {
	return s.Transport || s.Childcare || s.Disability || s.Scholarship
}

func (s Subsidies) Or(o Subsidies) Subsidies {
	return Subsidies{
		Transport:   s.Transport || o.Transport,
		Childcare:   s.Childcare || o.Childcare,
		Disability:  s.Disability || o.Disability,
		Scholarship: s.Scholarship || o.Scholarship,
	}
}

type Attendance struct {
	Classroom int `json:"classroom"`
	Workplace int `json:"workplace"`
}

func (a Attendance) Total() int {
	return a.Classroom + a.Workplace
}

type GradeStatus string

const (
	StatusPass   GradeStatus = "APTO"
	StatusFail   GradeStatus = "NO APTO"
	StatusExempt GradeStatus = "EXENTO"
)

type Grade struct {
	Module string      `json:"module"`
	Score  float64     `json:"score"`
	Scored bool        `json:"scored"`
	Status GradeStatus `json:"status"`
}

// Student is built fresh for every run from one or more source documents.
// Name is kept in "SURNAME, GIVEN" form.
type Student struct {
	Name        string     `json:"name"`
	NIF         string     `json:"nif,omitempty"`
	Absences    *int       `json:"absences,omitempty"`
	Justified   int        `json:"justified"`
	Attendance  Attendance `json:"attendance"`
	Subsidies   Subsidies  `json:"subsidies"`
	Grades      []Grade    `json:"grades,omitempty"`
	Observation string     `json:"observation,omitempty"`
	Sources     []string   `json:"sources,omitempty"`
}

// DisplayName returns the name as "GIVEN SURNAME".
func (s Student) DisplayName() string {
	return FormatName(s.Name)
}

// MergeFrom copies into s every fact that o has and s lacks. Flags are OR-ed,
// counts are taken from o only when s has none.
func (s *Student) MergeFrom(o Student) {
	if s.Name == "" {
		s.Name = o.Name
	}
	if s.NIF == "" {
		s.NIF = o.NIF
	}
	if s.Absences == nil && o.Absences != nil {
		v := *o.Absences
		s.Absences = &v
	}
	if s.Justified == 0 {
		s.Justified = o.Justified
	}
	if s.Attendance.Total() == 0 {
		s.Attendance = o.Attendance
	}
	s.Subsidies = s.Subsidies.Or(o.Subsidies)
	for _, g := range o.Grades {
		if _, ok := s.Grade(g.Module); !ok {
			s.Grades = append(s.Grades, g)
		}
	}
	if s.Observation == "" {
		s.Observation = o.Observation
	}
	s.Sources = append(s.Sources, o.Sources...)
}

func (s Student) Grade(module string) (Grade, bool) {
	for _, g := range s.Grades {
		if g.Module == module {
			return g, true
		}
	}
	return Grade{}, false
}

// FinalStatus is APTO only when every module is passed or exempt.
func (s Student) FinalStatus() GradeStatus {
	if len(s.Grades) == 0 {
		return ""
	}
	for _, g := range s.Grades {
		if g.Status == StatusFail {
			return StatusFail
		}
	}
	return StatusPass
}

type Course struct {
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Center       string    `json:"center"`
	CenterCode   string    `json:"center_code"`
	Month        int       `json:"month"`
	Year         int       `json:"year"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	TeachingDays int       `json:"teaching_days"`
	Modules      []string  `json:"modules,omitempty"`
}

var monthNames = [...]string{"ENERO", "FEBRERO", "MARZO", "ABRIL", "MAYO", "JUNIO", "JULIO", "AGOSTO", "SEPTIEMBRE", "OCTUBRE", "NOVIEMBRE", "DICIEMBRE"}

// MonthName returns the Spanish month name in upper case, or "" when Month is unset.
func (c Course) MonthName() string {
	if c.Month < 1 || c.Month > 12 {
		return ""
	}
	return monthNames[c.Month-1]
}

func MonthNumber(name string) int {
	for i, m := range monthNames {
		if m == name {
			return i + 1
		}
	}
	return 0
}
