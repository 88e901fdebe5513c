// Package reconcile merges the partial student records produced from
// different source documents into one record per student.
package reconcile

import (
	"sort"
	"strings"

	"github.com/JA50N14/course_reports/model"
)

type MatchType string

const (
	MatchNIF     MatchType = "nif"
	MatchName    MatchType = "exact_name"
	MatchSurname MatchType = "surname_substring"
)

type Match struct {
	Base      string    `json:"base"`
	Other     string    `json:"other"`
	Source    string    `json:"source"`
	MatchType MatchType `json:"match_type"`
}

// Orphan is a record from a secondary document that matched no base student.
type Orphan struct {
	Student          model.Student `json:"student"`
	AttemptedMatches []string      `json:"attempted_matches"`
}

type Stats struct {
	TotalProcessed int `json:"total_processed"`
	ExactNIF       int `json:"exact_nif"`
	ExactName      int `json:"exact_name"`
	Surname        int `json:"surname"`
	Orphans        int `json:"orphans"`
}

type Result struct {
	Students []model.Student `json:"students"`
	Matches  []Match         `json:"matches"`
	Orphans  []Orphan        `json:"orphans"`
	Stats    Stats           `json:"stats"`
}

type index struct {
	byNIF  map[string]int
	byName map[string]int
	// names sorted so the surname fallback is deterministic.
	names []string
}

// nameKey is the form names are compared in: "Braña  Manchado" and
// "BRANA MANCHADO" share a key.
func nameKey(name string) string {
	return model.Fold(model.NormalizeName(name))
}

func buildIndex(students []model.Student) *index {
	idx := &index{byNIF: make(map[string]int), byName: make(map[string]int)}
	for i, s := range students {
		if s.NIF != "" {
			idx.byNIF[s.NIF] = i
		}
		key := nameKey(s.Name)
		if key == "" {
			continue
		}
		if _, dup := idx.byName[key]; !dup {
			idx.byName[key] = i
			idx.names = append(idx.names, key)
		}
	}
	sort.Strings(idx.names)
	return idx
}

// Merge folds every record of others into the base roster. Each record is
// matched by:
//  1. exact normalised NIF
//  2. exact normalised name (upper case, collapsed whitespace, accents folded)
//  3. surname substring: the first base name, in sorted order, that contains
//     the record's surname or whose surname the record's name contains
//
// Step 3 is permissive and may join two students who share a surname; the
// match type is reported so callers can audit it. Records matching nothing
// are returned as orphans and never added to the roster.
func Merge(base []model.Student, others ...[]model.Student) Result {
	students := make([]model.Student, len(base))
	for i, s := range base {
		s.Sources = append([]string(nil), s.Sources...)
		s.Grades = append([]model.Grade(nil), s.Grades...)
		students[i] = s
	}
	idx := buildIndex(students)

	var result Result
	for _, group := range others {
		for _, o := range group {
			result.Stats.TotalProcessed++
			i, mt, attempted := idx.lookup(students, o)
			if mt == "" {
				result.Orphans = append(result.Orphans, Orphan{Student: o, AttemptedMatches: attempted})
				result.Stats.Orphans++
				continue
			}

			switch mt {
			case MatchNIF:
				result.Stats.ExactNIF++
			case MatchName:
				result.Stats.ExactName++
			case MatchSurname:
				result.Stats.Surname++
			}
			result.Matches = append(result.Matches, Match{
				Base:      students[i].Name,
				Other:     o.Name,
				Source:    strings.Join(o.Sources, ","),
				MatchType: mt,
			})

			hadNIF := students[i].NIF != ""
			students[i].MergeFrom(o)
			if !hadNIF && students[i].NIF != "" {
				idx.byNIF[students[i].NIF] = i
			}
		}
	}

	result.Students = students
	return result
}

func (idx *index) lookup(students []model.Student, o model.Student) (int, MatchType, []string) {
	var attempted []string

	if o.NIF != "" {
		attempted = append(attempted, "nif:"+o.NIF)
		if i, ok := idx.byNIF[o.NIF]; ok {
			return i, MatchNIF, attempted
		}
	}

	name := nameKey(o.Name)
	if name == "" {
		return -1, "", attempted
	}
	attempted = append(attempted, "name:"+name)
	if i, ok := idx.byName[name]; ok {
		return i, MatchName, attempted
	}

	if i, ok := idx.surnameMatch(name); ok {
		attempted = append(attempted, "surname:"+model.Surname(name))
		return i, MatchSurname, attempted
	}
	return -1, "", attempted
}

func (idx *index) surnameMatch(name string) (int, bool) {
	surname := model.Surname(name)
	if surname == "" {
		return -1, false
	}
	for _, key := range idx.names {
		if strings.Contains(key, surname) {
			return idx.byName[key], true
		}
		if ks := model.Surname(key); ks != "" && strings.Contains(name, ks) {
			return idx.byName[key], true
		}
	}
	return -1, false
}
