package models

import "time"

// ClassOffering is a course taught to a class section within a term.
type ClassOffering struct {
	ID                   string   `db:"id" json:"id"`
	TermID               string   `db:"term_id" json:"term_id"`
	CourseID             string   `db:"course_id" json:"course_id"`
	ClassSectionID       string   `db:"class_section_id" json:"class_section_id"`
	PeriodsPerWeek       int      `db:"periods_per_week" json:"periods_per_week"`
	RequiredHoursPerTerm *float64 `db:"required_hours_per_term" json:"required_hours_per_term,omitempty"`
}

// ClassOfferingDetail joins an offering with the names and term parameters
// used by the consistency report.
type ClassOfferingDetail struct {
	ClassOffering
	SchoolID              string    `db:"school_id" json:"school_id"`
	CourseName            string    `db:"course_name" json:"course_name"`
	ClassSectionName      string    `db:"class_section_name" json:"class_section_name"`
	TermName              string    `db:"term_name" json:"term_name"`
	TermStartDate         time.Time `db:"term_start_date" json:"term_start_date"`
	TermEndDate           time.Time `db:"term_end_date" json:"term_end_date"`
	PeriodDurationMinutes int       `db:"period_duration_minutes" json:"period_duration_minutes"`
}

// Term rebuilds the owning term from the joined columns.
func (d ClassOfferingDetail) Term() Term {
	return Term{
		ID:                    d.TermID,
		SchoolID:              d.SchoolID,
		Name:                  d.TermName,
		StartDate:             d.TermStartDate,
		EndDate:               d.TermEndDate,
		PeriodDurationMinutes: d.PeriodDurationMinutes,
	}
}
