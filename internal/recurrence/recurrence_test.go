package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupware/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func TestNextDaily(t *testing.T) {
	start := day(2026, 3, 2)
	end := start.Add(time.Hour)

	next, nextEnd, ok := Next(start, end, models.Recurrence{Type: models.RecurrenceDaily, Interval: 3})
	require.True(t, ok)
	assert.Equal(t, day(2026, 3, 5), next)
	assert.Equal(t, time.Hour, nextEnd.Sub(next)) // duration preserved
}

func TestNextWeeklyMask(t *testing.T) {
	// 2026-01-07 is a Wednesday; the mask selects Mondays only
	start := day(2026, 1, 7)
	end := start.Add(2 * time.Hour)
	monday := models.Weekdays(1 << uint(time.Monday))

	next, _, ok := Next(start, end, models.Recurrence{
		Type: models.RecurrenceWeekly, Interval: 1, Days: monday,
	})
	require.True(t, ok)
	assert.Equal(t, day(2026, 1, 12), next)
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestNextWeeklyIntervalSkipsWeeks(t *testing.T) {
	// start on a Monday, every second week
	start := day(2026, 1, 5)
	end := start.Add(time.Hour)
	monday := models.Weekdays(1 << uint(time.Monday))

	next, _, ok := Next(start, end, models.Recurrence{
		Type: models.RecurrenceWeekly, Interval: 2, Days: monday,
	})
	require.True(t, ok)
	assert.Equal(t, day(2026, 1, 19), next)
}

func TestNextMonthlyClampsDay(t *testing.T) {
	start := day(2026, 1, 31)
	end := start.Add(time.Hour)

	next, _, ok := Next(start, end, models.Recurrence{
		Type: models.RecurrenceMonthly, Interval: 1, DayInMonth: 31,
	})
	require.True(t, ok)
	// February 2026 has 28 days
	assert.Equal(t, day(2026, 2, 28), next)
}

func TestNextYearly(t *testing.T) {
	start := day(2026, 6, 15)
	end := start.Add(time.Hour)

	next, _, ok := Next(start, end, models.Recurrence{
		Type: models.RecurrenceYearly, Interval: 1, Month: time.June, DayInMonth: 15,
	})
	require.True(t, ok)
	assert.Equal(t, day(2027, 6, 15), next)
}

func TestNextStopsAtUntil(t *testing.T) {
	start := day(2026, 3, 2)
	end := start.Add(time.Hour)
	until := day(2026, 3, 3)

	_, _, ok := Next(start, end, models.Recurrence{
		Type: models.RecurrenceDaily, Interval: 7, Until: &until,
	})
	assert.False(t, ok)
}

func TestNextNoneNeverRecurs(t *testing.T) {
	start := day(2026, 3, 2)
	_, _, ok := Next(start, start.Add(time.Hour), models.Recurrence{})
	assert.False(t, ok)
}
