package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

var lessonRowColumns = []string{"id", "teaching_assignment_id", "teacher_id", "room_id", "timeslot_id", "lesson_date", "generation_id", "created_at"}

func TestScheduledLessonRepositoryFindCollisions(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduledLessonRepository(db)

	date := time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows(lessonRowColumns).
		AddRow("lesson-1", "ta-1", "teacher-1", "room-9", "slot-1", time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM scheduled_lessons\nWHERE timeslot_id = $1 AND lesson_date = $2")).
		WithArgs("slot-1", time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), "teacher-1", "").
		WillReturnRows(rows)

	lessons, err := repo.FindCollisions(context.Background(), nil, models.LessonCandidate{TeacherID: "teacher-1", TimeSlotID: "slot-1", Date: date})
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, "lesson-1", lessons[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledLessonRepositoryBulkCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduledLessonRepository(db)

	room := "room-1"
	gen := "job-1"
	lessons := []models.ScheduledLesson{
		{TeachingAssignmentID: "ta-1", TeacherID: "teacher-1", RoomID: &room, TimeSlotID: "slot-1", Date: time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), GenerationID: &gen},
		{TeachingAssignmentID: "ta-2", TeacherID: "teacher-2", TimeSlotID: "slot-1", Date: time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), GenerationID: &gen},
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scheduled_lessons")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.BulkCreate(context.Background(), nil, lessons))
	for _, l := range lessons {
		assert.NotEmpty(t, l.ID)
		assert.False(t, l.CreatedAt.IsZero())
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledLessonRepositoryLockTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduledLessonRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("term-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LockTerm(context.Background(), nil, "term-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestUniqueViolationConstraint(t *testing.T) {
	wrapped := fmt.Errorf("insert scheduled lessons: %w", &pq.Error{Code: "23505", Constraint: LessonRoomUniqueIndex})
	assert.Equal(t, LessonRoomUniqueIndex, UniqueViolationConstraint(wrapped))
	assert.Equal(t, "", UniqueViolationConstraint(&pq.Error{Code: "23503", Constraint: "fk_lessons_room"}))
	assert.Equal(t, "", UniqueViolationConstraint(errors.New("boom")))
}
