package models

import "time"

var dayNames = [...]string{"", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// TimeSlot is a recurring weekly period template scoped to a term. DayOfWeek
// is a grid attribute; a lesson's day always comes from its date.
type TimeSlot struct {
	ID               string  `db:"id" json:"id"`
	TermID           string  `db:"term_id" json:"term_id"`
	DayOfWeek        int     `db:"day_of_week" json:"day_of_week"`
	StartTime        string  `db:"start_time" json:"start_time"`
	EndTime          string  `db:"end_time" json:"end_time"`
	PeriodNumber     int     `db:"period_number" json:"period_number"`
	SlotName         *string `db:"slot_name" json:"slot_name,omitempty"`
	IsTeachingPeriod bool    `db:"is_teaching_period" json:"is_teaching_period"`
}

// ISOWeekday returns Monday=1 through Sunday=7.
func ISOWeekday(date time.Time) int {
	wd := int(date.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// DayName returns the lowercase English name for an ISO weekday.
func DayName(isoDay int) string {
	if isoDay < 1 || isoDay > 7 {
		return ""
	}
	return dayNames[isoDay]
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
