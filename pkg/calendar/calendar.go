// Package calendar implements the campaign clock: date rollover with
// configurable month lengths, time-of-day labels, seasons, weekdays and
// schedule crossing checks.
package calendar

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
)

const (
	MinutesPerDay  = 1440
	defaultMonthLn = 30
	defaultMonths  = 12
)

// MonthDays returns the length of a 1-based month. Calendars without
// months behave as twelve 30-day months.
func MonthDays(cal campaign.Calendar, month int) int {
	if len(cal.Months) == 0 {
		return defaultMonthLn
	}
	if month < 1 || month > len(cal.Months) {
		return defaultMonthLn
	}
	if d := cal.Months[month-1].Days; d > 0 {
		return d
	}
	return defaultMonthLn
}

func monthCount(cal campaign.Calendar) int {
	if len(cal.Months) == 0 {
		return defaultMonths
	}
	return len(cal.Months)
}

// MonthName returns the configured name of a 1-based month.
func MonthName(cal campaign.Calendar, month int) string {
	if month < 1 || month > len(cal.Months) {
		return fmt.Sprintf("Month %d", month)
	}
	return cal.Months[month-1].Name
}

// Advance moves t forward by minutes, rolling day, month and year over
// using the configured month lengths.
func Advance(t campaign.GameTime, cal campaign.Calendar, minutes int) campaign.GameTime {
	if minutes <= 0 {
		return t
	}
	total := t.MinuteOfDay() + minutes
	for total >= MinutesPerDay {
		total -= MinutesPerDay
		t = NextDay(t, cal)
	}
	t.Hour = total / 60
	t.Minute = total % 60
	return t
}

// NextDay returns t moved to the following calendar day, keeping the clock.
func NextDay(t campaign.GameTime, cal campaign.Calendar) campaign.GameTime {
	t.Day++
	if t.Day > MonthDays(cal, t.Month) {
		t.Day = 1
		t.Month++
		if t.Month > monthCount(cal) {
			t.Month = 1
			t.Year++
		}
	}
	return t
}

func yearDays(cal campaign.Calendar) int {
	n := 0
	for m := 1; m <= monthCount(cal); m++ {
		n += MonthDays(cal, m)
	}
	return n
}

// DayOrdinal counts days since year 1, month 1, day 1 (which is 0).
func DayOrdinal(t campaign.GameTime, cal campaign.Calendar) int {
	days := (t.Year - 1) * yearDays(cal)
	for m := 1; m < t.Month; m++ {
		days += MonthDays(cal, m)
	}
	return days + t.Day - 1
}

// AbsoluteMinutes returns minutes since the start of the calendar.
func AbsoluteMinutes(t campaign.GameTime, cal campaign.Calendar) int {
	return DayOrdinal(t, cal)*MinutesPerDay + t.MinuteOfDay()
}

// MinutesBetween returns b - a in game minutes.
func MinutesBetween(a, b campaign.GameTime, cal campaign.Calendar) int {
	return AbsoluteMinutes(b, cal) - AbsoluteMinutes(a, cal)
}

// Weekday names the day of the week; the first day of the calendar is the
// first configured weekday. Empty when no weekdays are configured.
func Weekday(t campaign.GameTime, cal campaign.Calendar) string {
	if len(cal.Weekdays) == 0 {
		return ""
	}
	n := DayOrdinal(t, cal) % len(cal.Weekdays)
	if n < 0 {
		n += len(cal.Weekdays)
	}
	return cal.Weekdays[n]
}

// TimeOfDay resolves the threshold label for a minute of the day: the
// latest start at or before the minute wins, later entries win ties, and
// before the earliest start the latest threshold of the previous day
// applies.
func TimeOfDay(thresholds []campaign.TimeOfDayThreshold, minuteOfDay int) string {
	label := ""
	best := -1
	wrapLabel := ""
	wrapBest := -1
	for _, th := range thresholds {
		start := th.StartMinute()
		if start <= minuteOfDay && start >= best {
			best = start
			label = th.Label
		}
		if start >= wrapBest {
			wrapBest = start
			wrapLabel = th.Label
		}
	}
	if best >= 0 {
		return label
	}
	return wrapLabel
}

// Season maps a month onto the fixed quarterly seasons.
func Season(month int) string {
	switch month {
	case 3, 4, 5:
		return "spring"
	case 6, 7, 8:
		return "summer"
	case 9, 10, 11:
		return "autumn"
	default:
		return "winter"
	}
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

// InWindow reports whether minute falls in [from, to]; from > to wraps
// past midnight.
func InWindow(minute, from, to int) bool {
	if from <= to {
		return minute >= from && minute <= to
	}
	return minute >= from || minute <= to
}
