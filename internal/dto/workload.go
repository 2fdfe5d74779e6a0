package dto

import "github.com/noah-isme/sma-timetable-engine/internal/models"

// Workload statuses.
const (
	WorkloadAvailable  = "available"
	WorkloadModerate   = "moderate"
	WorkloadHigh       = "high"
	WorkloadOverloaded = "overloaded"
)

// WorkloadQuery selects the term and a hypothetical extra load.
type WorkloadQuery struct {
	TermID            string `form:"term_id" validate:"required"`
	AdditionalPeriods int    `form:"additional_periods" validate:"omitempty,min=0,max=60"`
}

// TeacherWorkloadResponse is the derived load view of one teacher in a term.
type TeacherWorkloadResponse struct {
	TeacherID                    string  `json:"teacher_id"`
	TeacherName                  string  `json:"teacher_name"`
	DepartmentName               string  `json:"department_name,omitempty"`
	TermID                       string  `json:"term_id"`
	CurrentPeriodsPerWeek        int     `json:"current_periods_per_week"`
	AdditionalPeriodsPerWeek     int     `json:"additional_periods_per_week"`
	TotalPeriodsPerWeek          int     `json:"total_periods_per_week"`
	MaxPeriodsPerWeek            int     `json:"max_periods_per_week"`
	AvailablePeriodsPerWeek      int     `json:"available_periods_per_week"`
	CurrentHoursPerWeek          float64 `json:"current_hours_per_week"`
	MaxHoursPerWeek              float64 `json:"max_hours_per_week"`
	CurrentCoursesCount          int     `json:"current_courses_count"`
	MaxCoursesCount              int     `json:"max_courses_count"`
	UtilizationPercentage        float64 `json:"utilization_percentage"`
	WorkloadStatus               string  `json:"workload_status"`
	RecommendedForNewAssignments bool    `json:"recommended_for_new_assignments"`

	Violation *models.ConstraintViolation `json:"violation,omitempty"`
}
