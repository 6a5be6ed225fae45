package calendar

import "github.com/jwebster45206/campaign-engine/pkg/campaign"

// Schedule is a point in the year (Month and Day set) or a time of day
// repeated daily (neither set).
type Schedule struct {
	Month  *int
	Day    *int
	Hour   int
	Minute int
}

// ScheduleFrom reads the on_schedule fields of a trigger config.
func ScheduleFrom(tc campaign.TriggerConfig) Schedule {
	s := Schedule{Month: tc.Month, Day: tc.Day}
	if tc.Hour != nil {
		s.Hour = *tc.Hour
	}
	if tc.Minute != nil {
		s.Minute = *tc.Minute
	}
	return s
}

// Valid reports whether the schedule is yearly or daily.
func (s Schedule) Valid() bool {
	return (s.Month == nil) == (s.Day == nil)
}

// linear orders points within one year by month, day, hour and minute.
func linear(month, day, hour, minute int) int {
	return ((month*32+day)*24+hour)*60 + minute
}

// Crossed reports whether the scheduled moment lies in the half-open
// interval (pre, post], so a schedule fires once per crossing however far
// the clock jumped.
func Crossed(s Schedule, pre, post campaign.GameTime, cal campaign.Calendar) bool {
	if !s.Valid() {
		return false
	}
	elapsed := MinutesBetween(pre, post, cal)
	if elapsed <= 0 {
		return false
	}

	if s.Month == nil {
		if elapsed >= MinutesPerDay {
			return true
		}
		x := s.Hour*60 + s.Minute
		a, b := pre.MinuteOfDay(), post.MinuteOfDay()
		if b > a {
			return x > a && x <= b
		}
		return x > a || x <= b
	}

	x := linear(*s.Month, *s.Day, s.Hour, s.Minute)
	a := linear(pre.Month, pre.Day, pre.Hour, pre.Minute)
	b := linear(post.Month, post.Day, post.Hour, post.Minute)
	switch years := post.Year - pre.Year; {
	case years == 0:
		return x > a && x <= b
	case years == 1:
		return x > a || x <= b
	default:
		return true
	}
}
