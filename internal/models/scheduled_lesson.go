package models

import "time"

// DateLayout is the wire format for lesson dates.
const DateLayout = "2006-01-02"

// ScheduledLesson is one dated occurrence of a teaching assignment in a time
// slot. TeacherID is denormalised from the assignment so uniqueness can be
// enforced by the database.
type ScheduledLesson struct {
	ID                   string    `db:"id" json:"id"`
	TeachingAssignmentID string    `db:"teaching_assignment_id" json:"teaching_assignment_id"`
	TeacherID            string    `db:"teacher_id" json:"teacher_id"`
	RoomID               *string   `db:"room_id" json:"room_id,omitempty"`
	TimeSlotID           string    `db:"timeslot_id" json:"timeslot_id"`
	Date                 time.Time `db:"lesson_date" json:"date"`
	GenerationID         *string   `db:"generation_id" json:"generation_id,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// Weekday is the lesson's effective ISO weekday, derived from its date.
func (l ScheduledLesson) Weekday() int {
	return ISOWeekday(l.Date)
}

// LessonCandidate is a prospective booking checked before persistence. At
// least one of TeacherID or RoomID must be set.
type LessonCandidate struct {
	TeacherID  string
	RoomID     string
	TimeSlotID string
	Date       time.Time
	// Ref identifies the candidate in reports, e.g. its index in a solver batch.
	Ref string
}

// Weekday is the candidate's ISO weekday, derived from its date.
func (c LessonCandidate) Weekday() int {
	return ISOWeekday(c.Date)
}
