package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var dateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)

// ParseDate parses DD/MM/YYYY and rejects impossible dates and years outside
// [minYear, maxYear].
func (e *Extractor) ParseDate(s string) (time.Time, error) {
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("no DD/MM/YYYY date in %q", s)
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	return e.makeDate(day, month, year)
}

func (e *Extractor) makeDate(day, month, year int) (time.Time, error) {
	if year < e.minYear || year > e.maxYear {
		return time.Time{}, fmt.Errorf("year %d outside %d-%d", year, e.minYear, e.maxYear)
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("invalid date %02d/%02d/%d", day, month, year)
	}
	return t, nil
}

// dates returns every valid date found in text, in order of appearance.
func (e *Extractor) dates(text string) []time.Time {
	var out []time.Time
	for _, m := range dateRe.FindAllStringSubmatch(text, -1) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if t, err := e.makeDate(day, month, year); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// CountWeekdays counts Monday to Friday days in [from, to], both inclusive.
func CountWeekdays(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	n := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
	}
	return n
}

// CountWeekdaysInMonth is CountWeekdays clipped to one calendar month.
// A zero month means no clipping.
func CountWeekdaysInMonth(from, to time.Time, year, month int) int {
	if month == 0 {
		return CountWeekdays(from, to)
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	if from.Before(first) {
		from = first
	}
	if to.After(last) {
		to = last
	}
	return CountWeekdays(from, to)
}
