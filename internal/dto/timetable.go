package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
	"github.com/noah-isme/sma-timetable-engine/internal/solver"
)

// GenerateTimetableRequest triggers a solver run for a term. Empty constraint
// and goal lists fall back to the configured presets.
type GenerateTimetableRequest struct {
	AcademicYearID    string              `json:"academic_year_id" validate:"omitempty"`
	TermID            string              `json:"term_id" validate:"required"`
	Constraints       []solver.Constraint `json:"constraints" validate:"omitempty,dive"`
	OptimizationGoals []string            `json:"optimization_goals" validate:"omitempty,dive,required"`
}

// GenerationJobResponse is the caller-facing state of a generation job.
type GenerationJobResponse struct {
	JobID          string                   `json:"job_id"`
	TermID         string                   `json:"term_id"`
	Status         models.JobStatus         `json:"status"`
	Progress       int                      `json:"progress"`
	Message        string                   `json:"message"`
	GeneratedBy    string                   `json:"generated_by,omitempty"`
	GeneratedAt    time.Time                `json:"generated_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
	LeaseExpiresAt *time.Time               `json:"lease_expires_at,omitempty"`
	Result         *models.GenerationResult `json:"result,omitempty"`
	Error          *string                  `json:"error,omitempty"`
	LessonCount    int                      `json:"lesson_count"`
	MaterializedAt *time.Time               `json:"materialized_at,omitempty"`
}

// NewGenerationJobResponse projects a job row through its tagged outcome so
// result and error are only present for the matching state.
func NewGenerationJobResponse(job models.GenerationJob) GenerationJobResponse {
	resp := GenerationJobResponse{
		JobID:          job.ID,
		TermID:         job.TermID,
		Status:         job.Status,
		Progress:       job.Progress,
		Message:        job.Message,
		GeneratedBy:    job.GeneratedBy,
		GeneratedAt:    job.GeneratedAt,
		UpdatedAt:      job.UpdatedAt,
		LessonCount:    job.LessonCount,
		MaterializedAt: job.MaterializedAt,
	}
	if !job.Status.Terminal() && !job.LeaseExpiresAt.IsZero() {
		lease := job.LeaseExpiresAt
		resp.LeaseExpiresAt = &lease
	}
	switch outcome := job.Outcome().(type) {
	case models.OutcomeProcessing:
		resp.Progress = outcome.Progress
	case models.OutcomeCompleted:
		result := outcome.Result
		resp.Result = &result
		resp.Progress = 100
	case models.OutcomeFailed:
		msg := outcome.Error
		resp.Error = &msg
	}
	return resp
}

// GenerationStatusQuery selects the job to poll.
type GenerationStatusQuery struct {
	JobID string `form:"job_id" validate:"required"`
}

// GenerationJobListQuery lists the jobs of a term.
type GenerationJobListQuery struct {
	TermID string `form:"term_id" validate:"required"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=100"`
}

// ViolationListResponse returns a job's violations with their digest.
type ViolationListResponse struct {
	JobID      string                       `json:"job_id"`
	Violations []models.ConstraintViolation `json:"violations"`
	Summary    string                       `json:"summary"`
	Highest    models.Severity              `json:"highest_severity,omitempty"`
}
