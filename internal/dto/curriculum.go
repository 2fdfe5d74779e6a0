package dto

import "time"

// Consistency statuses.
const (
	ConsistencyStatusConsistent   = "CONSISTENT"
	ConsistencyStatusInconsistent = "INCONSISTENT"
	ConsistencyStatusUnspecified  = "UNSPECIFIED"
)

// ValidateCurriculumRequest checks one periods/hours pair. When TermID is set
// the term's length and period duration replace the explicit values.
type ValidateCurriculumRequest struct {
	PeriodsPerWeek        int      `json:"periods_per_week" validate:"required,min=1"`
	RequiredHoursPerTerm  float64  `json:"required_hours_per_term" validate:"gte=0"`
	PeriodDurationMinutes int      `json:"period_duration_minutes" validate:"omitempty,min=1,max=240"`
	WeeksPerTerm          int      `json:"weeks_per_term" validate:"omitempty,min=1,max=60"`
	TermID                string   `json:"term_id" validate:"omitempty"`
	ToleranceHours        *float64 `json:"tolerance_hours" validate:"omitempty,gte=0"`
}

// ConsistencyReportQuery scopes the report to one school when set.
type ConsistencyReportQuery struct {
	SchoolID string `form:"school_id"`
	Format   string `form:"format" validate:"omitempty,oneof=csv pdf xlsx excel"`
}

// CurriculumConsistencyRow is the report line for one class offering.
type CurriculumConsistencyRow struct {
	ClassOfferingID      string   `json:"class_offering_id"`
	TermID               string   `json:"term_id"`
	TermName             string   `json:"term_name"`
	ClassName            string   `json:"class_name"`
	CourseName           string   `json:"course_name"`
	PeriodsPerWeek       int      `json:"periods_per_week"`
	RequiredHoursPerTerm *float64 `json:"required_hours_per_term,omitempty"`
	ExpectedHours        float64  `json:"expected_hours"`
	VarianceHours        float64  `json:"variance_hours"`
	Status               string   `json:"status"`
	Recommendation       string   `json:"recommendation"`
}

// CurriculumConsistencySummary aggregates the report rows.
type CurriculumConsistencySummary struct {
	Total                int     `json:"total"`
	Consistent           int     `json:"consistent"`
	Inconsistent         int     `json:"inconsistent"`
	Unspecified          int     `json:"unspecified"`
	AverageVarianceHours float64 `json:"average_variance_hours"`
}

// CurriculumConsistencyReport is the audit view over every class offering.
type CurriculumConsistencyReport struct {
	SchoolID    string                       `json:"school_id,omitempty"`
	GeneratedAt time.Time                    `json:"generated_at"`
	Summary     CurriculumConsistencySummary `json:"summary"`
	Rows        []CurriculumConsistencyRow   `json:"rows"`
}

// ExportedFile is a rendered report ready for download.
type ExportedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
