// Package recurrence computes the next occurrence of a recurring task.
package recurrence

import (
	"time"

	"groupware/internal/models"
)

// Next computes the start/end pair of the occurrence following start/end
// according to rec. ok is false when no further occurrence exists (past the
// until date). The occurrence counter is not consulted here; callers decide
// whether any occurrences remain.
func Next(start, end time.Time, rec models.Recurrence) (time.Time, time.Time, bool) {
	if rec.Type == models.RecurrenceNone {
		return time.Time{}, time.Time{}, false
	}
	interval := rec.Interval
	if interval <= 0 {
		interval = 1
	}

	var next time.Time
	switch rec.Type {
	case models.RecurrenceDaily:
		next = start.AddDate(0, 0, interval)
	case models.RecurrenceWeekly:
		next = nextWeekly(start, rec.Days, interval)
	case models.RecurrenceMonthly:
		next = nextMonthly(start, rec.DayInMonth, interval)
	case models.RecurrenceYearly:
		next = nextYearly(start, rec.Month, rec.DayInMonth, interval)
	default:
		return time.Time{}, time.Time{}, false
	}

	if rec.Until != nil && next.After(*rec.Until) {
		return time.Time{}, time.Time{}, false
	}
	return next, next.Add(end.Sub(start)), true
}

// nextWeekly walks forward day by day until it hits a weekday in the mask
// that falls in a week aligned to the interval. An empty mask repeats on the
// start's weekday.
func nextWeekly(start time.Time, days models.Weekdays, interval int) time.Time {
	if days.Empty() {
		return start.AddDate(0, 0, 7*interval)
	}
	for d := 1; d <= 7*interval+7; d++ {
		cand := start.AddDate(0, 0, d)
		if !days.Has(cand.Weekday()) {
			continue
		}
		if weeksBetween(start, cand)%interval == 0 {
			return cand
		}
	}
	return start.AddDate(0, 0, 7*interval)
}

// weeksBetween counts Sunday-started week boundaries between a and b.
func weeksBetween(a, b time.Time) int {
	a = a.AddDate(0, 0, -int(a.Weekday()))
	b = b.AddDate(0, 0, -int(b.Weekday()))
	return int(b.Sub(a).Hours() / (24 * 7))
}

func nextMonthly(start time.Time, dayInMonth, interval int) time.Time {
	if dayInMonth <= 0 {
		return start.AddDate(0, interval, 0)
	}
	y, m, _ := start.Date()
	m += time.Month(interval)
	day := dayInMonth
	if max := daysIn(y, m); day > max {
		day = max
	}
	return time.Date(y, m, day, start.Hour(), start.Minute(), start.Second(), 0, start.Location())
}

func nextYearly(start time.Time, month time.Month, dayInMonth, interval int) time.Time {
	y, m, d := start.Date()
	y += interval
	if month != 0 {
		m = month
	}
	if dayInMonth > 0 {
		d = dayInMonth
	}
	if max := daysIn(y, m); d > max {
		d = max
	}
	return time.Date(y, m, d, start.Hour(), start.Minute(), start.Second(), 0, start.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
