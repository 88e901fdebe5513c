package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JA50N14/course_reports/model"
)

func roster() []model.Student {
	return []model.Student{
		{Name: "GARCIA LOPEZ, ANA", NIF: "12345678A", Sources: []string{"alumnos.xlsx"}},
		{Name: "BRAÑA MANCHADO, NURIA", NIF: "X1234567L", Sources: []string{"alumnos.xlsx"}},
		{Name: "PEREZ RUIZ, LUIS", Sources: []string{"alumnos.xlsx"}},
	}
}

func TestMergeByNIF(t *testing.T) {
	subsidies := []model.Student{
		{Name: "GARCIA LOPEZ ANA", NIF: "12345678A", Subsidies: model.Subsidies{Transport: true}, Sources: []string{"ayudas.pdf"}},
	}

	res := Merge(roster(), subsidies)
	require.Len(t, res.Students, 3)
	assert.True(t, res.Students[0].Subsidies.Transport)
	assert.Equal(t, "GARCIA LOPEZ, ANA", res.Students[0].Name)
	assert.Equal(t, []string{"alumnos.xlsx", "ayudas.pdf"}, res.Students[0].Sources)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, MatchNIF, res.Matches[0].MatchType)
	assert.Equal(t, 1, res.Stats.ExactNIF)
}

func TestMergeByExactName(t *testing.T) {
	justified := []model.Student{{Name: "  perez   ruiz, luis ", Justified: 2}}

	res := Merge(roster(), justified)
	assert.Equal(t, 2, res.Students[2].Justified)
	assert.Equal(t, MatchName, res.Matches[0].MatchType)
}

func TestMergeIgnoresAccents(t *testing.T) {
	justified := []model.Student{
		{Name: "BRANA MANCHADO, NURIA", Justified: 2, Sources: []string{"ocr.pdf"}},
		{Name: "PÉREZ RUIZ, LUIS", Justified: 1, Sources: []string{"ocr.pdf"}},
	}

	res := Merge(roster(), justified)
	assert.Empty(t, res.Orphans)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, MatchName, res.Matches[0].MatchType)
	assert.Equal(t, "BRAÑA MANCHADO, NURIA", res.Matches[0].Base)
	assert.Equal(t, MatchName, res.Matches[1].MatchType)
	assert.Equal(t, 2, res.Students[1].Justified)
	assert.Equal(t, 1, res.Students[2].Justified)
	assert.Equal(t, "BRAÑA MANCHADO, NURIA", res.Students[1].Name, "roster spelling is kept")
}

// The surname fallback joins records on a shared surname without further
// disambiguation. These tests pin that behaviour.
func TestMergeBySurnameSubstring(t *testing.T) {
	subsidies := []model.Student{
		{Name: "BRAÑA MANCHADO, N.", NIF: "99999999R", Subsidies: model.Subsidies{Childcare: true}},
	}

	res := Merge(roster(), subsidies)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, MatchSurname, res.Matches[0].MatchType)
	assert.True(t, res.Students[1].Subsidies.Childcare)
	assert.Equal(t, "X1234567L", res.Students[1].NIF, "base NIF is kept")
}

func TestMergeSurnameCanJoinDifferentStudents(t *testing.T) {
	base := []model.Student{
		{Name: "GARCIA LOPEZ, ANA"},
		{Name: "GARCIA LOPEZ, PEDRO"},
	}
	others := []model.Student{{Name: "GARCIA LOPEZ, MARTA", Justified: 1}}

	res := Merge(base, others)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "GARCIA LOPEZ, ANA", res.Matches[0].Base, "first sorted key wins")
	assert.Equal(t, 1, res.Students[0].Justified)
	assert.Zero(t, res.Students[1].Justified)
}

func TestMergeOrphans(t *testing.T) {
	others := []model.Student{{Name: "SANZ GIL, EVA", NIF: "11111111H"}}

	res := Merge(roster(), others)
	assert.Len(t, res.Students, 3)
	require.Len(t, res.Orphans, 1)
	assert.Equal(t, []string{"nif:11111111H", "name:SANZ GIL, EVA"}, res.Orphans[0].AttemptedMatches)
	assert.Equal(t, Stats{TotalProcessed: 1, Orphans: 1}, res.Stats)
}

func TestMergeLearnsNIFFromMatches(t *testing.T) {
	first := []model.Student{{Name: "PEREZ RUIZ, LUIS", NIF: "87654321X"}}
	second := []model.Student{{Name: "OTRO NOMBRE", NIF: "87654321X", Justified: 3}}

	res := Merge(roster(), first, second)
	assert.Equal(t, "87654321X", res.Students[2].NIF)
	assert.Equal(t, 3, res.Students[2].Justified)
	assert.Equal(t, MatchNIF, res.Matches[1].MatchType)
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := roster()
	Merge(base, []model.Student{{NIF: "12345678A", Justified: 4}})
	assert.Zero(t, base[0].Justified)
}
