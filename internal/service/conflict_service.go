package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

type timeSlotResolver interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error)
	FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (map[string]models.TimeSlot, error)
}

type lessonCollisionReader interface {
	FindCollisions(ctx context.Context, exec sqlx.ExtContext, candidate models.LessonCandidate) ([]models.ScheduledLesson, error)
	ListBySlotsAndDates(ctx context.Context, exec sqlx.ExtContext, slotIDs []string, dates []time.Time) ([]models.ScheduledLesson, error)
}

// Collision kinds reported by LessonsCollide.
const (
	CollisionNone    = ""
	CollisionTeacher = "teacher"
	CollisionRoom    = "room"
)

// LessonsCollide reports whether two lessons double-book a teacher or a room.
// Lessons collide when they share a time slot and a date, and therefore the
// weekday derived from it, and share the teacher or the room. A teacher clash
// takes precedence over a room clash.
func LessonsCollide(a, b models.ScheduledLesson) string {
	if a.TimeSlotID != b.TimeSlotID || !models.DateOnly(a.Date).Equal(models.DateOnly(b.Date)) {
		return CollisionNone
	}
	if a.TeacherID != "" && a.TeacherID == b.TeacherID {
		return CollisionTeacher
	}
	if a.RoomID != nil && b.RoomID != nil && *a.RoomID != "" && *a.RoomID == *b.RoomID {
		return CollisionRoom
	}
	return CollisionNone
}

// DetectCollisions checks a batch of candidate lessons against itself and
// against already persisted lessons. Each colliding pair yields one
// TEACHER_DOUBLE_BOOKED or ROOM_OCCUPIED violation naming the batch indexes
// or the persisted lesson id involved.
func DetectCollisions(candidates, existing []models.ScheduledLesson) []models.ConstraintViolation {
	violations := make([]models.ConstraintViolation, 0)

	type cell struct {
		slot string
		date string
	}
	bySlot := make(map[cell][]int, len(candidates))
	for i, c := range candidates {
		key := cell{slot: c.TimeSlotID, date: models.DateOnly(c.Date).Format(models.DateLayout)}
		for _, j := range bySlot[key] {
			if kind := LessonsCollide(candidates[j], c); kind != CollisionNone {
				violations = append(violations, collisionViolation(kind, c, models.ViolationContext{
					"lesson_index":       i,
					"other_lesson_index": j,
				}))
			}
		}
		bySlot[key] = append(bySlot[key], i)
	}

	for _, e := range existing {
		key := cell{slot: e.TimeSlotID, date: models.DateOnly(e.Date).Format(models.DateLayout)}
		for _, i := range bySlot[key] {
			if kind := LessonsCollide(candidates[i], e); kind != CollisionNone {
				violations = append(violations, collisionViolation(kind, candidates[i], models.ViolationContext{
					"lesson_index":          i,
					"conflicting_lesson_id": e.ID,
				}))
			}
		}
	}
	return violations
}

func collisionViolation(kind string, l models.ScheduledLesson, ctx models.ViolationContext) models.ConstraintViolation {
	date := l.Date.Format(models.DateLayout)
	ctx["timeslot_id"] = l.TimeSlotID
	ctx["date"] = date
	ctx["weekday"] = l.Weekday()
	ctx["teaching_assignment_id"] = l.TeachingAssignmentID
	if kind == CollisionTeacher {
		ctx["teacher_id"] = l.TeacherID
		return models.NewViolation(models.CodeTeacherDoubleBooked,
			fmt.Sprintf("teacher %s is double-booked in slot %s on %s", l.TeacherID, l.TimeSlotID, date), ctx)
	}
	room := ""
	if l.RoomID != nil {
		room = *l.RoomID
	}
	ctx["room_id"] = room
	return models.NewViolation(models.CodeRoomOccupied,
		fmt.Sprintf("room %s is occupied in slot %s on %s", room, l.TimeSlotID, date), ctx)
}

// ConflictService is the double-booking gate run before any lesson is persisted.
type ConflictService struct {
	slots   timeSlotResolver
	lessons lessonCollisionReader
	logger  *zap.Logger
}

// NewConflictService constructs the service.
func NewConflictService(slots timeSlotResolver, lessons lessonCollisionReader, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{slots: slots, lessons: lessons, logger: logger}
}

// HasConflict returns the ids of persisted lessons that collide with the
// candidate; an empty slice means the booking is free. exec may be a
// transaction so the check and the insert see the same state.
func (s *ConflictService) HasConflict(ctx context.Context, exec sqlx.ExtContext, candidate models.LessonCandidate) ([]string, error) {
	if candidate.TeacherID == "" && candidate.RoomID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher_id or room_id is required")
	}
	if candidate.Date.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date is required")
	}

	if _, err := s.ResolveSlot(ctx, exec, candidate.TimeSlotID); err != nil {
		return nil, err
	}

	lessons, err := s.lessons.FindCollisions(ctx, exec, candidate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lesson conflicts")
	}
	ids := make([]string, 0, len(lessons))
	for _, l := range lessons {
		ids = append(ids, l.ID)
	}
	if len(ids) > 0 {
		s.logger.Debug("lesson conflict detected",
			zap.String("timeslot_id", candidate.TimeSlotID),
			zap.String("date", candidate.Date.Format(models.DateLayout)),
			zap.Strings("conflicting_ids", ids))
	}
	return ids, nil
}

// ResolveSlot loads one time slot; a missing slot is an UNKNOWN_TIME_SLOT error.
func (s *ConflictService) ResolveSlot(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error) {
	slot, err := s.slots.FindByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, unknownSlotError(id, fmt.Sprintf("time slot %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve time slot")
	}
	return slot, nil
}

func unknownSlotError(id, message string) error {
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrUnknownTimeSlot, message),
		map[string]interface{}{"timeslot_id": id},
	)
}

// ResolveSlots loads the referenced time slots and reports an
// UNKNOWN_TIME_SLOT violation for every lesson whose slot does not exist.
func (s *ConflictService) ResolveSlots(ctx context.Context, exec sqlx.ExtContext, lessons []models.ScheduledLesson) (map[string]models.TimeSlot, []models.ConstraintViolation, error) {
	ids := make([]string, 0, len(lessons))
	seen := make(map[string]struct{}, len(lessons))
	for _, l := range lessons {
		if _, ok := seen[l.TimeSlotID]; !ok {
			seen[l.TimeSlotID] = struct{}{}
			ids = append(ids, l.TimeSlotID)
		}
	}
	sort.Strings(ids)

	slots, err := s.slots.FindByIDs(ctx, exec, ids)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve time slots")
	}
	violations := make([]models.ConstraintViolation, 0)
	for i, l := range lessons {
		if _, ok := slots[l.TimeSlotID]; ok {
			continue
		}
		violations = append(violations, models.NewViolation(models.CodeUnknownTimeSlot,
			fmt.Sprintf("time slot %s not found", l.TimeSlotID),
			models.ViolationContext{"lesson_index": i, "timeslot_id": l.TimeSlotID}))
	}
	return slots, violations, nil
}

// DetectBatch checks a batch against itself and against persisted lessons
// sharing its slots and dates, reading through exec.
func (s *ConflictService) DetectBatch(ctx context.Context, exec sqlx.ExtContext, lessons []models.ScheduledLesson) ([]models.ConstraintViolation, error) {
	slotSet := make(map[string]struct{})
	dateSet := make(map[string]time.Time)
	for _, l := range lessons {
		slotSet[l.TimeSlotID] = struct{}{}
		d := models.DateOnly(l.Date)
		dateSet[d.Format(models.DateLayout)] = d
	}
	slotIDs := make([]string, 0, len(slotSet))
	for id := range slotSet {
		slotIDs = append(slotIDs, id)
	}
	sort.Strings(slotIDs)
	dates := make([]time.Time, 0, len(dateSet))
	for _, d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	existing, err := s.lessons.ListBySlotsAndDates(ctx, exec, slotIDs, dates)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduled lessons")
	}
	return DetectCollisions(lessons, existing), nil
}
