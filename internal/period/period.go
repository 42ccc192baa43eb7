// Package period computes the "week ending" anchor that buckets update records.
package period

import "time"

// DateLayout is the layout used for anchor dates in store properties and titles.
const DateLayout = "2006-01-02"

// WeekEnding maps now to the Friday that closes the period now belongs to.
//
// Tuesday through Thursday belong to the upcoming Friday of the same week.
// Friday through Monday belong to the most recent Friday, so late entries
// written over the weekend or on Monday still land in the period that just
// closed. The result keeps now's location and has its clock zeroed.
func WeekEnding(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var offset int
	switch day.Weekday() {
	case time.Tuesday, time.Wednesday, time.Thursday:
		offset = int(time.Friday - day.Weekday())
	case time.Friday:
		offset = 0
	case time.Saturday:
		offset = -1
	case time.Sunday:
		offset = -2
	case time.Monday:
		offset = -3
	}
	return day.AddDate(0, 0, offset)
}

// Format renders an anchor date as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(DateLayout)
}

// Parse reads a YYYY-MM-DD anchor date in loc.
func Parse(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// InRollupWindow reports whether now falls between Friday and Monday
// inclusive, the only days the periodic rollup is allowed to run.
func InRollupWindow(now time.Time) bool {
	switch now.Weekday() {
	case time.Friday, time.Saturday, time.Sunday, time.Monday:
		return true
	}
	return false
}
