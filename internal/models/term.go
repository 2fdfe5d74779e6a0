package models

import (
	"math"
	"time"
)

// Term models an academic term within an academic year.
type Term struct {
	ID                    string    `db:"id" json:"id"`
	AcademicYearID        string    `db:"academic_year_id" json:"academic_year_id"`
	SchoolID              string    `db:"school_id" json:"school_id"`
	Name                  string    `db:"name" json:"name"`
	StartDate             time.Time `db:"start_date" json:"start_date"`
	EndDate               time.Time `db:"end_date" json:"end_date"`
	PeriodDurationMinutes int       `db:"period_duration_minutes" json:"period_duration_minutes"`
}

// Valid reports whether the term's date span is usable.
func (t Term) Valid() bool {
	return t.EndDate.After(t.StartDate)
}

// WeeksPerTerm counts the calendar weeks touched by the inclusive date span,
// returning fallback when the span is unusable.
func (t Term) WeeksPerTerm(fallback int) int {
	if !t.Valid() {
		return fallback
	}
	days := t.EndDate.Sub(t.StartDate).Hours()/24 + 1
	return int(math.Ceil(days / 7))
}

// PeriodMinutes returns the period length, or fallback when unset.
func (t Term) PeriodMinutes(fallback int) int {
	if t.PeriodDurationMinutes > 0 {
		return t.PeriodDurationMinutes
	}
	return fallback
}

// Contains reports whether date falls within the term.
func (t Term) Contains(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(t.StartDate)) && !d.After(DateOnly(t.EndDate))
}
