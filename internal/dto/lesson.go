package dto

import "github.com/noah-isme/sma-timetable-engine/internal/models"

// LessonConflictRequest is a prospective booking. At least one of teacher or
// room must be given.
type LessonConflictRequest struct {
	TeacherID  string `json:"teacher_id" validate:"required_without=RoomID"`
	RoomID     string `json:"room_id" validate:"required_without=TeacherID"`
	TimeSlotID string `json:"timeslot_id" validate:"required"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
}

// LessonConflictResponse lists the colliding lessons; empty means free.
type LessonConflictResponse struct {
	Conflict         bool     `json:"conflict"`
	ConflictingIDs   []string `json:"conflicting_lesson_ids"`
	EffectiveWeekday int      `json:"effective_weekday"`
}

// ScheduleLessonRequest books one lesson manually.
type ScheduleLessonRequest struct {
	TeachingAssignmentID string  `json:"teaching_assignment_id" validate:"required"`
	TimeSlotID           string  `json:"timeslot_id" validate:"required"`
	RoomID               *string `json:"room_id" validate:"omitempty,min=1"`
	Date                 string  `json:"date" validate:"required,datetime=2006-01-02"`
}

// ScheduleLessonResponse returns the stored lesson and any warnings raised.
type ScheduleLessonResponse struct {
	Lesson   models.ScheduledLesson       `json:"lesson"`
	Warnings []models.ConstraintViolation `json:"warnings,omitempty"`
}
