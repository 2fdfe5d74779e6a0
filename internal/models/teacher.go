package models

// Teacher is an active staff member eligible for scheduling.
type Teacher struct {
	ID                string   `db:"id" json:"id"`
	SchoolID          string   `db:"school_id" json:"school_id"`
	DepartmentID      *string  `db:"department_id" json:"department_id,omitempty"`
	DepartmentName    *string  `db:"department_name" json:"department_name,omitempty"`
	FullName          string   `db:"full_name" json:"full_name"`
	Email             string   `db:"email" json:"email"`
	Active            bool     `db:"active" json:"active"`
	MaxPeriodsPerDay  *int     `db:"max_periods_per_day" json:"max_periods_per_day,omitempty"`
	MaxPeriodsPerWeek *int     `db:"max_periods_per_week" json:"max_periods_per_week,omitempty"`
	MaxHoursPerWeek   *float64 `db:"max_hours_per_week" json:"max_hours_per_week,omitempty"`
	MaxCourses        *int     `db:"max_courses" json:"max_courses,omitempty"`
}

// PeriodCap returns the weekly period cap, or fallback when unset.
func (t Teacher) PeriodCap(fallback int) int {
	if t.MaxPeriodsPerWeek != nil && *t.MaxPeriodsPerWeek > 0 {
		return *t.MaxPeriodsPerWeek
	}
	return fallback
}

// TeacherQualification links a teacher to a course they may teach.
type TeacherQualification struct {
	TeacherID string `db:"teacher_id"`
	CourseID  string `db:"course_id"`
}

// TeacherUnavailability marks a time slot a teacher cannot take.
type TeacherUnavailability struct {
	TeacherID  string `db:"teacher_id"`
	TimeSlotID string `db:"timeslot_id"`
}

// SchoolAdministrator receives escalations for a school.
type SchoolAdministrator struct {
	SchoolID string `db:"school_id" json:"school_id"`
	UserID   string `db:"user_id" json:"user_id"`
	Email    string `db:"email" json:"email"`
}
