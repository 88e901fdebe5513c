package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/JA50N14/course_reports/model"
)

// Course reads the course header document. year and month, when non-zero,
// override whatever month the text names. Teaching days not stated in the
// text are the weekdays of the month inside the course dates.
func (e *Extractor) Course(source, text string, year, month int) (model.Course, error) {
	text = cleanText(text)
	var c model.Course
	found := 0

	str := func(rule string, dst *string) {
		if v, ok := e.rules.First(rule, text); ok {
			*dst = strings.Trim(v, " .:;")
			found++
		}
	}
	str("course_code", &c.Code)
	str("course_name", &c.Name)
	str("center", &c.Center)
	str("center_code", &c.CenterCode)

	date := func(rule string, dst *time.Time) {
		if v, ok := e.rules.First(rule, text); ok {
			if t, err := e.ParseDate(v); err == nil {
				*dst = t
				found++
			}
		}
	}
	date("start_date", &c.Start)
	date("end_date", &c.End)

	if v, ok := e.rules.First("teaching_days", text); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 31 {
			c.TeachingDays = n
			found++
		}
	}

	c.Year, c.Month = year, month
	if c.Month == 0 {
		if v, ok := e.rules.First("month", text); ok {
			c.Month = model.MonthNumber(strings.ToUpper(v))
		} else if !c.Start.IsZero() {
			c.Month = int(c.Start.Month())
		}
	}
	if c.Year == 0 && !c.Start.IsZero() {
		c.Year = c.Start.Year()
	}
	if c.TeachingDays == 0 {
		c.TeachingDays = MonthTeachingDays(c)
	}

	if found == 0 {
		return c, missing(CategoryCourse, source)
	}
	return c, nil
}

// MonthTeachingDays counts the weekdays of the course month that fall inside
// the course dates (either bound may be unknown).
func MonthTeachingDays(c model.Course) int {
	if c.Year == 0 || c.Month == 0 {
		return 0
	}
	from := time.Date(c.Year, time.Month(c.Month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	if !c.Start.IsZero() && c.Start.After(from) {
		from = c.Start
	}
	if !c.End.IsZero() && c.End.Before(to) {
		to = c.End
	}
	return CountWeekdays(from, to)
}
