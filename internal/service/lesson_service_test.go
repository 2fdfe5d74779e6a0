package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

func newLessonFixture(t *testing.T, existing ...models.ScheduledLesson) (*LessonService, *lessonWriterStub, *auditLoggerStub, func() error) {
	tx, mock := newTxProviderMock(t)
	writer := &lessonWriterStub{}
	audit := &auditLoggerStub{}
	slots := timeSlotStub{slots: map[string]models.TimeSlot{
		"slot-1":     {ID: "slot-1", TermID: "term-1", DayOfWeek: 1, IsTeachingPeriod: true},
		"break-1":    {ID: "break-1", TermID: "term-1", DayOfWeek: 1, IsTeachingPeriod: false},
		"slot-other": {ID: "slot-other", TermID: "term-2", DayOfWeek: 1, IsTeachingPeriod: true},
	}}
	refs := assignmentRefStub{refs: map[string]models.AssignmentRef{
		"ta-1":   {ID: "ta-1", TeacherID: "t-1", TermID: "term-1", SchoolID: "school-1", Active: true},
		"ta-old": {ID: "ta-old", TeacherID: "t-1", TermID: "term-1", SchoolID: "school-1", Active: false},
	}}
	terms := &termCalendarStub{
		terms:    map[string]models.Term{"term-1": fixtureTerm},
		holidays: []models.Holiday{{Date: time.Date(2024, 8, 19, 0, 0, 0, 0, time.UTC), Name: "Collective leave"}},
	}
	svc := NewLessonService(
		LessonRepositories{Assignments: refs, Lessons: writer, Terms: terms, Audit: audit},
		NewConflictService(slots, &lessonStoreStub{lessons: existing}, nil),
		tx, nil, nil, nil,
	)
	mock.ExpectBegin()
	return svc, writer, audit, func() error {
		return mock.ExpectationsWereMet()
	}
}

func TestLessonServiceCheckConflict(t *testing.T) {
	svc, _, _, _ := newLessonFixture(t, lesson("persisted-1", "t-1", "r-1", "slot-1", monday))

	resp, err := svc.CheckConflict(context.Background(), dto.LessonConflictRequest{TeacherID: "t-1", RoomID: "r-5", TimeSlotID: "slot-1", Date: "2024-07-22"})
	require.NoError(t, err)
	assert.True(t, resp.Conflict)
	assert.Equal(t, []string{"persisted-1"}, resp.ConflictingIDs)
	assert.Equal(t, 1, resp.EffectiveWeekday)

	resp, err = svc.CheckConflict(context.Background(), dto.LessonConflictRequest{TeacherID: "t-2", RoomID: "r-2", TimeSlotID: "slot-1", Date: "2024-07-22"})
	require.NoError(t, err)
	assert.False(t, resp.Conflict)
}

func TestLessonServiceCheckConflictRequiresTeacherOrRoom(t *testing.T) {
	svc, _, _, _ := newLessonFixture(t)
	_, err := svc.CheckConflict(context.Background(), dto.LessonConflictRequest{TimeSlotID: "slot-1", Date: "2024-07-22"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceSchedule(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	writer := &lessonWriterStub{}
	audit := &auditLoggerStub{}
	svc := NewLessonService(
		LessonRepositories{
			Assignments: assignmentRefStub{refs: map[string]models.AssignmentRef{"ta-1": {ID: "ta-1", TeacherID: "t-1", TermID: "term-1", SchoolID: "school-1", Active: true}}},
			Lessons:     writer,
			Terms:       &termCalendarStub{terms: map[string]models.Term{"term-1": fixtureTerm}},
			Audit:       audit,
		},
		NewConflictService(timeSlotStub{slots: map[string]models.TimeSlot{"slot-1": {ID: "slot-1", TermID: "term-1", IsTeachingPeriod: true}}}, &lessonStoreStub{}, nil),
		tx, nil, nil, nil,
	)
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Schedule(context.Background(), &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, SchoolID: "school-1"}, dto.ScheduleLessonRequest{
		TeachingAssignmentID: "ta-1",
		TimeSlotID:           "slot-1",
		RoomID:               strPtr("r-1"),
		Date:                 "2024-07-22",
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", resp.Lesson.TeacherID)
	assert.Equal(t, []string{"term-1"}, writer.locked)
	require.Len(t, writer.created, 1)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLessonSchedule, audit.logs[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonServiceScheduleRejectsConflict(t *testing.T) {
	svc, writer, audit, _ := newLessonFixture(t, lesson("persisted-1", "t-1", "r-9", "slot-1", monday))

	_, err := svc.Schedule(context.Background(), nil, dto.ScheduleLessonRequest{TeachingAssignmentID: "ta-1", TimeSlotID: "slot-1", Date: "2024-07-22"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConstraintViolation.Code, appErr.Code)
	assert.Equal(t, []string{"persisted-1"}, appErr.Details["conflicting_lesson_ids"])
	assert.Empty(t, writer.created)
	assert.Empty(t, audit.logs)
}

func TestLessonServiceScheduleRejectsHoliday(t *testing.T) {
	svc, writer, _, _ := newLessonFixture(t)

	_, err := svc.Schedule(context.Background(), nil, dto.ScheduleLessonRequest{TeachingAssignmentID: "ta-1", TimeSlotID: "slot-1", Date: "2024-08-19"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConstraintViolation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, writer.created)
}

func TestLessonServiceScheduleRejectsOutsideTerm(t *testing.T) {
	svc, _, _, _ := newLessonFixture(t)

	_, err := svc.Schedule(context.Background(), nil, dto.ScheduleLessonRequest{TeachingAssignmentID: "ta-1", TimeSlotID: "slot-1", Date: "2025-02-03"})
	require.Error(t, err)
	assert.Equal(t, models.CodeLessonOutsideTerm, appErrors.FromError(err).Details["code"])
}

func TestLessonServiceScheduleInactiveAssignment(t *testing.T) {
	svc, _, _, _ := newLessonFixture(t)

	_, err := svc.Schedule(context.Background(), nil, dto.ScheduleLessonRequest{TeachingAssignmentID: "ta-old", TimeSlotID: "slot-1", Date: "2024-07-22"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceScheduleRejectsBreakSlot(t *testing.T) {
	svc, writer, _, _ := newLessonFixture(t)

	_, err := svc.Schedule(context.Background(), nil, dto.ScheduleLessonRequest{TeachingAssignmentID: "ta-1", TimeSlotID: "break-1", Date: "2024-07-22"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnknownTimeSlot.Code, appErr.Code)
	assert.Equal(t, "break-1", appErr.Details["timeslot_id"])
	assert.Contains(t, appErr.Message, "not a teaching period")
	assert.Empty(t, writer.created)
	assert.Empty(t, writer.locked)
}

func TestLessonServiceScheduleRejectsSlotOfAnotherTerm(t *testing.T) {
	svc, writer, _, _ := newLessonFixture(t)

	_, err := svc.Schedule(context.Background(), nil, dto.ScheduleLessonRequest{TeachingAssignmentID: "ta-1", TimeSlotID: "slot-other", Date: "2024-07-22"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnknownTimeSlot.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "another term")
	assert.Empty(t, writer.created)
}

func TestLessonServiceScheduleHidesOtherSchoolAssignment(t *testing.T) {
	svc, writer, audit, _ := newLessonFixture(t)
	actor := &models.JWTClaims{UserID: "admin-2", Role: models.RoleAdmin, SchoolID: "school-2"}

	_, err := svc.Schedule(context.Background(), actor, dto.ScheduleLessonRequest{TeachingAssignmentID: "ta-1", TimeSlotID: "slot-1", Date: "2024-07-22"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, writer.created)
	assert.Empty(t, audit.logs)

	superadmin := &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin, SchoolID: "school-2"}
	svc, _, _, _ = newLessonFixture(t, lesson("persisted-1", "t-1", "r-9", "slot-1", monday))
	_, err = svc.Schedule(context.Background(), superadmin, dto.ScheduleLessonRequest{TeachingAssignmentID: "ta-1", TimeSlotID: "slot-1", Date: "2024-07-22"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConstraintViolation.Code, appErrors.FromError(err).Code)
}
