package models

import "time"

// AssignmentType records how a teaching assignment was created.
type AssignmentType string

const (
	AssignmentTypeManual      AssignmentType = "manual"
	AssignmentTypeAI          AssignmentType = "ai"
	AssignmentTypeAISuggested AssignmentType = "ai_suggested"
)

// TeachingAssignment binds a teacher to a class offering.
type TeachingAssignment struct {
	ID              string         `db:"id" json:"id"`
	TeacherID       string         `db:"teacher_id" json:"teacher_id"`
	ClassOfferingID string         `db:"class_offering_id" json:"class_offering_id"`
	AssignmentType  AssignmentType `db:"assignment_type" json:"assignment_type"`
	Active          bool           `db:"active" json:"active"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// TeacherLoad is one active assignment contributing to a teacher's weekly load.
type TeacherLoad struct {
	AssignmentID    string `db:"assignment_id" json:"assignment_id"`
	ClassOfferingID string `db:"class_offering_id" json:"class_offering_id"`
	CourseID        string `db:"course_id" json:"course_id"`
	PeriodsPerWeek  int    `db:"periods_per_week" json:"periods_per_week"`
}

// AssignmentRef resolves a teaching assignment to its teacher, term and the
// caps that bound how many of its lessons a timetable may hold.
type AssignmentRef struct {
	ID                string `db:"id"`
	TeacherID         string `db:"teacher_id"`
	TermID            string `db:"term_id"`
	SchoolID          string `db:"school_id"`
	ClassOfferingID   string `db:"class_offering_id"`
	PeriodsPerWeek    int    `db:"periods_per_week"`
	MaxPeriodsPerWeek *int   `db:"max_periods_per_week"`
	MaxPeriodsPerDay  *int   `db:"max_periods_per_day"`
	Active            bool   `db:"active"`
}

// PeriodCap returns the teacher's weekly period cap, or fallback when unset.
func (r AssignmentRef) PeriodCap(fallback int) int {
	if r.MaxPeriodsPerWeek != nil && *r.MaxPeriodsPerWeek > 0 {
		return *r.MaxPeriodsPerWeek
	}
	return fallback
}
