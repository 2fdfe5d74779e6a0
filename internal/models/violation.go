package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Severity grades a constraint violation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from least to most severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Blocking reports whether the severity stops the current operation.
func (s Severity) Blocking() bool {
	return s.Rank() >= SeverityError.Rank()
}

// Violation codes.
const (
	CodeTeacherUnavailable         = "TEACHER_UNAVAILABLE"
	CodeRoomOccupied               = "ROOM_OCCUPIED"
	CodeTeacherDoubleBooked        = "TEACHER_DOUBLE_BOOKED"
	CodeMaxConsecutiveLessons      = "MAX_CONSECUTIVE_LESSONS"
	CodeMaxLessonsExceeded         = "MAX_LESSONS_EXCEEDED"
	CodeBreakRequired              = "BREAK_REQUIRED"
	CodeTeacherWorkloadExceeded    = "TEACHER_WORKLOAD_EXCEEDED"
	CodeCurriculumHoursVariance    = "CURRICULUM_HOURS_VARIANCE"
	CodeMinLessonsNotMet           = "MIN_LESSONS_NOT_MET"
	CodeSubjectPreferenceViolation = "SUBJECT_PREFERENCE_VIOLATION"
	CodeLargeScheduleGap           = "LARGE_SCHEDULE_GAP"
	CodeTooManySubjects            = "TOO_MANY_SUBJECTS"
	CodeJobLeaseExpired            = "JOB_LEASE_EXPIRED"
	CodeJobCancelled               = "JOB_CANCELLED"
	CodeUnknownTimeSlot            = "UNKNOWN_TIME_SLOT"
	CodeUnknownTeachingAssignment  = "UNKNOWN_TEACHING_ASSIGNMENT"
	CodeLessonOutsideTerm          = "LESSON_OUTSIDE_TERM"
	CodeSolverContractViolation    = "SOLVER_CONTRACT_VIOLATION"
	CodeSolverJobFailed            = "SOLVER_JOB_FAILED"
)

var defaultSeverities = map[string]Severity{
	CodeTeacherUnavailable:         SeverityError,
	CodeRoomOccupied:               SeverityError,
	CodeTeacherDoubleBooked:        SeverityError,
	CodeMaxConsecutiveLessons:      SeverityError,
	CodeMaxLessonsExceeded:         SeverityError,
	CodeBreakRequired:              SeverityError,
	CodeTeacherWorkloadExceeded:    SeverityError,
	CodeCurriculumHoursVariance:    SeverityWarning,
	CodeMinLessonsNotMet:           SeverityWarning,
	CodeSubjectPreferenceViolation: SeverityWarning,
	CodeLargeScheduleGap:           SeverityWarning,
	CodeTooManySubjects:            SeverityWarning,
	CodeJobLeaseExpired:            SeverityWarning,
	CodeJobCancelled:               SeverityInfo,
	CodeUnknownTimeSlot:            SeverityError,
	CodeUnknownTeachingAssignment:  SeverityError,
	CodeLessonOutsideTerm:          SeverityError,
	CodeSolverContractViolation:    SeverityCritical,
	CodeSolverJobFailed:            SeverityError,
}

// DefaultSeverity returns the catalogued severity for code; unknown codes are errors.
func DefaultSeverity(code string) Severity {
	if s, ok := defaultSeverities[code]; ok {
		return s
	}
	return SeverityError
}

// ViolationContext carries the identifiers and values behind a violation.
type ViolationContext map[string]interface{}

// Value marshals the context to JSON for persistence.
func (c ViolationContext) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(map[string]interface{}(c))
	if err != nil {
		return nil, fmt.Errorf("marshal violation context: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column into the context.
func (c *ViolationContext) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*c = ViolationContext{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ViolationContext", value)
	}
	out := map[string]interface{}{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("unmarshal violation context: %w", err)
		}
	}
	*c = out
	return nil
}

// ConstraintViolation is an immutable record raised by a validator or the job
// lifecycle.
type ConstraintViolation struct {
	ID        string           `db:"id" json:"id"`
	SchoolID  *string          `db:"school_id" json:"school_id,omitempty"`
	TermID    *string          `db:"term_id" json:"term_id,omitempty"`
	JobID     *string          `db:"job_id" json:"job_id,omitempty"`
	Code      string           `db:"error_code" json:"code"`
	Message   string           `db:"message" json:"message"`
	Severity  Severity         `db:"severity" json:"severity"`
	Context   ViolationContext `db:"context" json:"context,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// NewViolation builds a violation with the catalogued severity for code.
func NewViolation(code, message string, ctx ViolationContext) ConstraintViolation {
	return ConstraintViolation{Code: code, Message: message, Severity: DefaultSeverity(code), Context: ctx}
}
