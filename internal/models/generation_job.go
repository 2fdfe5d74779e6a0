package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the persisted lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	// JobStatusGenerating is the persisted in-flight state; the solver calls it "processing".
	JobStatusGenerating JobStatus = "generating"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// GenerationJob is the persisted record of one solver run for a term. Rows
// are never deleted.
type GenerationJob struct {
	ID             string            `db:"id" json:"id"`
	TermID         string            `db:"term_id" json:"term_id"`
	SolverJobID    string            `db:"solver_job_id" json:"solver_job_id"`
	Status         JobStatus         `db:"status" json:"status"`
	Progress       int               `db:"progress" json:"progress"`
	Message        string            `db:"message" json:"message"`
	Result         *GenerationResult `db:"result" json:"result,omitempty"`
	ErrorMessage   *string           `db:"error_message" json:"error,omitempty"`
	GeneratedBy    string            `db:"generated_by" json:"generated_by"`
	GeneratedAt    time.Time         `db:"generated_at" json:"generated_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
	LeaseExpiresAt time.Time         `db:"lease_expires_at" json:"lease_expires_at"`
	MaterializedAt *time.Time        `db:"materialized_at" json:"materialized_at,omitempty"`
	LessonCount    int               `db:"lesson_count" json:"lesson_count"`
}

// LeaseExpired reports whether a non-terminal job has outlived its lease.
func (j GenerationJob) LeaseExpired(now time.Time) bool {
	return !j.Status.Terminal() && !j.LeaseExpiresAt.IsZero() && now.After(j.LeaseExpiresAt)
}

// JobOutcome is the closed set of job states exposed to callers:
// OutcomePending, OutcomeProcessing, OutcomeCompleted or OutcomeFailed.
type JobOutcome interface {
	jobOutcome()
}

type OutcomePending struct{}

type OutcomeProcessing struct {
	Progress int
}

type OutcomeCompleted struct {
	Result GenerationResult
}

type OutcomeFailed struct {
	Error string
}

func (OutcomePending) jobOutcome()    {}
func (OutcomeProcessing) jobOutcome() {}
func (OutcomeCompleted) jobOutcome()  {}
func (OutcomeFailed) jobOutcome()     {}

// Outcome projects the persisted columns onto the tagged outcome.
func (j GenerationJob) Outcome() JobOutcome {
	switch j.Status {
	case JobStatusGenerating:
		return OutcomeProcessing{Progress: j.Progress}
	case JobStatusCompleted:
		if j.Result == nil {
			return OutcomeCompleted{}
		}
		return OutcomeCompleted{Result: *j.Result}
	case JobStatusFailed:
		msg := j.Message
		if j.ErrorMessage != nil {
			msg = *j.ErrorMessage
		}
		return OutcomeFailed{Error: msg}
	default:
		return OutcomePending{}
	}
}

// GeneratedLesson is one validated lesson entry produced by the solver.
type GeneratedLesson struct {
	TeachingAssignmentID string  `json:"teaching_assignment_id"`
	Date                 string  `json:"date"`
	TimeSlotID           string  `json:"timeslot_id"`
	RoomID               *string `json:"room_id,omitempty"`
}

// GenerationResult is the solver output kept on a completed job.
type GenerationResult struct {
	SchemaVersion string             `json:"schema_version"`
	Lessons       []GeneratedLesson  `json:"lessons"`
	Statistics    map[string]float64 `json:"statistics,omitempty"`
	GeneratedAt   *time.Time         `json:"generated_at,omitempty"`
}

// Value marshals the result to JSON for persistence.
func (r GenerationResult) Value() (driver.Value, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal generation result: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column into the result.
func (r *GenerationResult) Scan(value interface{}) error {
	if value == nil {
		*r = GenerationResult{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for GenerationResult", value)
	}
	if len(data) == 0 {
		*r = GenerationResult{}
		return nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("unmarshal generation result: %w", err)
	}
	return nil
}
