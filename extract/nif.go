package extract

import (
	"regexp"
	"strconv"
	"strings"
)

const nifLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

// DNI (8 digits + letter) or NIE (X/Y/Z + 7 digits + letter). Dots, spaces
// and hyphens inside the number are tolerated because OCR and clerks add them.
var nifRe = regexp.MustCompile(`(?i)\b([XYZ][- ]?\d{7}|\d{2}\.?\d{3}\.?\d{3})[- ]?([A-Z])\b`)

var nifStrip = strings.NewReplacer(" ", "", "-", "", ".", "")

// NormalizeNIF returns the ID upper-cased without separators, or "" when s
// does not look like a DNI/NIE.
func NormalizeNIF(s string) string {
	m := nifRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ""
	}
	return strings.ToUpper(nifStrip.Replace(m[1]) + m[2])
}

// ValidNIF checks the control letter of a normalised DNI/NIE.
func ValidNIF(nif string) bool {
	if len(nif) != 9 {
		return false
	}
	digits := nif[:8]
	switch digits[0] {
	case 'X':
		digits = "0" + digits[1:]
	case 'Y':
		digits = "1" + digits[1:]
	case 'Z':
		digits = "2" + digits[1:]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return false
	}
	return nifLetters[n%23] == nif[8]
}

type nifHit struct {
	nif        string
	start, end int
}

func findNIFs(text string) []nifHit {
	var hits []nifHit
	for _, loc := range nifRe.FindAllStringSubmatchIndex(text, -1) {
		raw := text[loc[2]:loc[3]] + text[loc[4]:loc[5]]
		hits = append(hits, nifHit{
			nif:   strings.ToUpper(nifStrip.Replace(raw)),
			start: loc[0],
			end:   loc[1],
		})
	}
	return hits
}

// primaryNIF picks the first hit with a valid control letter, else the
// first hit.
func primaryNIF(hits []nifHit) nifHit {
	for _, h := range hits {
		if ValidNIF(h.nif) {
			return h
		}
	}
	return hits[0]
}
