package solver

import (
	"encoding/json"
	"time"
)

// Solver-reported job states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Request is the document posted to the solver's generate endpoint.
type Request struct {
	SchemaVersion     string       `json:"schema_version"`
	SchoolConfig      SchoolConfig `json:"school_config"`
	Teachers          []Teacher    `json:"teachers"`
	Classes           []Class      `json:"classes"`
	Rooms             []Room       `json:"rooms"`
	TimeSlots         []TimeSlot   `json:"time_slots"`
	Constraints       []Constraint `json:"constraints"`
	OptimizationGoals []string     `json:"optimization_goals"`
	TermStart         string       `json:"term_start"`
	TermEnd           string       `json:"term_end"`
	Holidays          []string     `json:"holidays,omitempty"`
}

// SchoolConfig carries the working-day and session settings.
type SchoolConfig struct {
	SchoolID              string   `json:"school_id"`
	TermID                string   `json:"term_id"`
	Name                  string   `json:"name"`
	WorkingDays           []string `json:"working_days"`
	StartTime             string   `json:"start_time"`
	EndTime               string   `json:"end_time"`
	LessonDurationMinutes int      `json:"lesson_duration_minutes"`
	BreakDurationMinutes  int      `json:"break_duration_minutes"`
}

// Teacher is a teacher with normalised caps. Availability maps a day name to
// the teaching slot ids the teacher may take on that day.
type Teacher struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Email             string              `json:"email"`
	DepartmentID      *string             `json:"department_id,omitempty"`
	Department        string              `json:"department,omitempty"`
	MaxPeriodsPerDay  int                 `json:"max_periods_per_day"`
	MaxPeriodsPerWeek int                 `json:"max_periods_per_week"`
	MaxHoursPerWeek   float64             `json:"max_hours_per_week,omitempty"`
	Availability      map[string][]string `json:"availability"`
	Qualifications    []string            `json:"qualifications"`
}

// Class is a class section with its per-course targets.
type Class struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	GradeLevel   int       `json:"grade_level"`
	StudentCount int       `json:"student_count"`
	Subjects     []Subject `json:"subjects"`
}

// Subject is one class offering and the assignments that may teach it.
type Subject struct {
	ClassOfferingID  string              `json:"class_offering_id"`
	CourseID         string              `json:"course_id"`
	CourseName       string              `json:"course_name"`
	PeriodsPerWeek   int                 `json:"periods_per_week"`
	HoursPerWeek     float64             `json:"hours_per_week"`
	HoursPerTerm     *float64            `json:"required_hours_per_term,omitempty"`
	RequiredRoomType *string             `json:"required_room_type,omitempty"`
	Assignments      []SubjectAssignment `json:"assignments"`
}

// SubjectAssignment is a teaching assignment the solver may reference in lessons.
type SubjectAssignment struct {
	TeachingAssignmentID string `json:"teaching_assignment_id"`
	TeacherID            string `json:"teacher_id"`
}

// Room is a bookable room.
type Room struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Capacity  int      `json:"capacity"`
	RoomType  string   `json:"room_type"`
	Equipment []string `json:"equipment"`
}

// TimeSlot is one cell of the weekly grid.
type TimeSlot struct {
	ID           string `json:"id"`
	Day          string `json:"day"`
	DayOfWeek    int    `json:"day_of_week"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	PeriodNumber int    `json:"period_number"`
	SlotType     string `json:"slot_type"`
}

// Constraint is passed to the solver verbatim.
type Constraint struct {
	Type        string                 `json:"type" yaml:"type" validate:"required"`
	Description string                 `json:"description" yaml:"description"`
	Parameters  map[string]interface{} `json:"parameters" yaml:"parameters"`
	Weight      float64                `json:"weight" yaml:"weight" validate:"gte=0,lte=1"`
	IsHard      bool                   `json:"is_hard" yaml:"is_hard"`
}

// SubmitResponse acknowledges a submission.
type SubmitResponse struct {
	JobID   string `json:"job_id" validate:"required"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusResponse is the polled job state. Result is only decoded for
// completed jobs. Status values other than completed and failed are treated
// as in flight.
type StatusResponse struct {
	JobID     string          `json:"job_id" validate:"required"`
	Status    string          `json:"status" validate:"required"`
	Progress  int             `json:"progress" validate:"gte=0,lte=100"`
	Message   string          `json:"message"`
	CreatedAt string          `json:"created_at"`
	RawResult json.RawMessage `json:"result,omitempty"`
	Error     *string         `json:"error,omitempty"`

	Result *Result `json:"-"`
}

// Result is the versioned lesson payload of a completed job.
type Result struct {
	SchemaVersion string             `json:"schema_version" validate:"required"`
	Lessons       []Lesson           `json:"lessons" validate:"required,dive"`
	Statistics    map[string]float64 `json:"statistics,omitempty"`
	GeneratedAt   *time.Time         `json:"generated_at,omitempty"`
}

// Lesson is one produced occurrence.
type Lesson struct {
	TeachingAssignmentID string  `json:"teaching_assignment_id" validate:"required"`
	Date                 string  `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlotID           string  `json:"timeslot_id" validate:"required"`
	RoomID               *string `json:"room_id,omitempty" validate:"omitempty,min=1"`
}
