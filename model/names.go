package model

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var spaceRe = regexp.MustCompile(`\s+`)

// NormalizeName upper-cases and collapses whitespace. Accents are kept.
func NormalizeName(name string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(strings.ToUpper(name), " "))
}

// FormatName turns "BRAÑA MANCHADO, NURIA" into "NURIA BRAÑA MANCHADO".
// Names without a comma are returned normalised but otherwise untouched.
func FormatName(name string) string {
	n := NormalizeName(name)
	surname, given, ok := strings.Cut(n, ",")
	if !ok {
		return n
	}
	surname = strings.TrimSpace(surname)
	given = strings.TrimSpace(given)
	if given == "" {
		return surname
	}
	if surname == "" {
		return given
	}
	return given + " " + surname
}

// Surname returns the part before the comma of a "SURNAME, GIVEN" name.
func Surname(name string) string {
	n := NormalizeName(name)
	surname, _, _ := strings.Cut(n, ",")
	return strings.TrimSpace(surname)
}

// Fold strips diacritics: "BRAÑA" -> "BRANA".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
