package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

const lessonColumns = `id, teaching_assignment_id, teacher_id, room_id, timeslot_id, lesson_date, generation_id, created_at`

// ScheduledLessonRepository persists dated lesson occurrences.
type ScheduledLessonRepository struct {
	db *sqlx.DB
}

// NewScheduledLessonRepository constructs the repository.
func NewScheduledLessonRepository(db *sqlx.DB) *ScheduledLessonRepository {
	return &ScheduledLessonRepository{db: db}
}

func (r *ScheduledLessonRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindCollisions returns lessons booked in the same slot on the same date that
// share the candidate's teacher or room.
func (r *ScheduledLessonRepository) FindCollisions(ctx context.Context, exec sqlx.ExtContext, c models.LessonCandidate) ([]models.ScheduledLesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM scheduled_lessons
WHERE timeslot_id = $1 AND lesson_date = $2
AND (($3 <> '' AND teacher_id = $3) OR ($4 <> '' AND room_id = $4))
ORDER BY id`
	var lessons []models.ScheduledLesson
	if err := sqlx.SelectContext(ctx, r.exec(exec), &lessons, query, c.TimeSlotID, models.DateOnly(c.Date), c.TeacherID, c.RoomID); err != nil {
		return nil, fmt.Errorf("find lesson collisions: %w", err)
	}
	return lessons, nil
}

// ListBySlotsAndDates returns every lesson in any of the slots on any of the dates.
func (r *ScheduledLessonRepository) ListBySlotsAndDates(ctx context.Context, exec sqlx.ExtContext, slotIDs []string, dates []time.Time) ([]models.ScheduledLesson, error) {
	if len(slotIDs) == 0 || len(dates) == 0 {
		return nil, nil
	}
	raw := make([]string, len(dates))
	for i, d := range dates {
		raw[i] = d.Format(models.DateLayout)
	}
	query := `SELECT ` + lessonColumns + ` FROM scheduled_lessons
WHERE timeslot_id = ANY($1) AND lesson_date = ANY($2::date[]) ORDER BY lesson_date, timeslot_id`
	var lessons []models.ScheduledLesson
	if err := sqlx.SelectContext(ctx, r.exec(exec), &lessons, query, pq.Array(slotIDs), pq.Array(raw)); err != nil {
		return nil, fmt.Errorf("list lessons by slot and date: %w", err)
	}
	return lessons, nil
}

// LockTerm takes a transaction-scoped advisory lock serialising lesson writes for a term.
func (r *ScheduledLessonRepository) LockTerm(ctx context.Context, exec sqlx.ExtContext, termID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, termID); err != nil {
		return fmt.Errorf("lock term lessons: %w", err)
	}
	return nil
}

// BulkCreate inserts lessons in one statement, assigning ids and timestamps.
func (r *ScheduledLessonRepository) BulkCreate(ctx context.Context, exec sqlx.ExtContext, lessons []models.ScheduledLesson) error {
	if len(lessons) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range lessons {
		if lessons[i].ID == "" {
			lessons[i].ID = uuid.NewString()
		}
		if lessons[i].CreatedAt.IsZero() {
			lessons[i].CreatedAt = now
		}
		lessons[i].Date = models.DateOnly(lessons[i].Date)
	}
	const query = `INSERT INTO scheduled_lessons (id, teaching_assignment_id, teacher_id, room_id, timeslot_id, lesson_date, generation_id, created_at)
VALUES (:id, :teaching_assignment_id, :teacher_id, :room_id, :timeslot_id, :lesson_date, :generation_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, lessons); err != nil {
		return fmt.Errorf("insert scheduled lessons: %w", err)
	}
	return nil
}

// Unique indexes guarding scheduled_lessons against double booking.
const (
	LessonTeacherUniqueIndex = "uq_scheduled_lessons_teacher"
	LessonRoomUniqueIndex    = "uq_scheduled_lessons_room"
)

// IsUniqueViolation reports whether err came from a unique index, i.e. a
// booking that raced past the conflict check.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// UniqueViolationConstraint returns the index named by a unique violation, or
// an empty string when err is not one or the driver omitted the name.
func UniqueViolationConstraint(err error) string {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return ""
	}
	return pqErr.Constraint
}
