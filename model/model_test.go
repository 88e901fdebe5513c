package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"BRAÑA MANCHADO, NURIA", "NURIA BRAÑA MANCHADO"},
		{"  garcia   lopez ,  ana ", "ANA GARCIA LOPEZ"},
		{"PEREZ RUIZ", "PEREZ RUIZ"},
		{"PEREZ RUIZ,", "PEREZ RUIZ"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatName(tt.in), tt.in)
	}
}

func TestSurnameAndFold(t *testing.T) {
	assert.Equal(t, "BRAÑA MANCHADO", Surname("Braña Manchado, Nuria"))
	assert.Equal(t, "BRANA MANCHADO", Fold("BRAÑA MANCHADO"))
	assert.Equal(t, "Jose Maria", Fold("José María"))
}

func TestMergeFromKeepsExistingCounts(t *testing.T) {
	three, five := 3, 5
	s := Student{Name: "GARCIA LOPEZ, ANA", NIF: "12345678Z", Absences: &three, Subsidies: Subsidies{Transport: true}}
	s.MergeFrom(Student{
		Absences:   &five,
		Justified:  2,
		Attendance: Attendance{Classroom: 19},
		Subsidies:  Subsidies{Childcare: true},
		Grades:     []Grade{{Module: "MF0001_2", Score: 7, Scored: true, Status: StatusPass}},
		Sources:    []string{"ayudas.pdf"},
	})

	assert.Equal(t, 3, *s.Absences)
	assert.Equal(t, 2, s.Justified)
	assert.Equal(t, 19, s.Attendance.Total())
	assert.Equal(t, Subsidies{Transport: true, Childcare: true}, s.Subsidies)
	assert.Len(t, s.Grades, 1)
	assert.Equal(t, []string{"ayudas.pdf"}, s.Sources)
}

func TestFinalStatus(t *testing.T) {
	s := Student{Grades: []Grade{{Module: "A", Status: StatusPass}, {Module: "B", Status: StatusExempt}}}
	assert.Equal(t, StatusPass, s.FinalStatus())
	s.Grades = append(s.Grades, Grade{Module: "C", Status: StatusFail})
	assert.Equal(t, StatusFail, s.FinalStatus())
	assert.Equal(t, GradeStatus(""), Student{}.FinalStatus())
}

func TestMonthName(t *testing.T) {
	assert.Equal(t, "FEBRERO", Course{Month: 2}.MonthName())
	assert.Equal(t, "", Course{}.MonthName())
	assert.Equal(t, 12, MonthNumber("DICIEMBRE"))
}
