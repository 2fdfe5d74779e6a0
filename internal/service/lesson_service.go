package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	"github.com/noah-isme/sma-timetable-engine/internal/repository"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

type lessonConflictChecker interface {
	ResolveSlot(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error)
	HasConflict(ctx context.Context, exec sqlx.ExtContext, candidate models.LessonCandidate) ([]string, error)
}

// LessonRepositories groups the stores used for manual scheduling.
type LessonRepositories struct {
	Assignments assignmentRefResolver
	Lessons     lessonWriter
	Terms       termCalendarReader
	Audit       auditLogger
}

// LessonService books individual lessons outside of generation runs. Every
// booking passes the same conflict gate as generated batches.
type LessonService struct {
	repos     LessonRepositories
	conflicts lessonConflictChecker
	tx        txProvider
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewLessonService constructs the service.
func NewLessonService(repos LessonRepositories, conflicts lessonConflictChecker, tx txProvider, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{repos: repos, conflicts: conflicts, tx: tx, validator: validate, metrics: metrics, logger: logger}
}

// CheckConflict reports persisted lessons colliding with a prospective booking.
func (s *LessonService) CheckConflict(ctx context.Context, req dto.LessonConflictRequest) (*dto.LessonConflictResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	date, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
	}
	candidate := models.LessonCandidate{
		TeacherID:  req.TeacherID,
		RoomID:     req.RoomID,
		TimeSlotID: req.TimeSlotID,
		Date:       date,
	}
	ids, err := s.conflicts.HasConflict(ctx, nil, candidate)
	if err != nil {
		return nil, err
	}
	return &dto.LessonConflictResponse{
		Conflict:         len(ids) > 0,
		ConflictingIDs:   ids,
		EffectiveWeekday: candidate.Weekday(),
	}, nil
}

// Schedule books a single lesson into a teaching period of the assignment's
// term. The term's lesson writes are serialised so the conflict check and the
// insert observe the same bookings. Assignments of other schools read as
// missing.
func (s *LessonService) Schedule(ctx context.Context, actor *models.JWTClaims, req dto.ScheduleLessonRequest) (*dto.ScheduleLessonResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	date, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	refs, err := s.repos.Assignments.FindRefs(ctx, tx, []string{req.TeachingAssignmentID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teaching assignment")
	}
	ref, ok := refs[req.TeachingAssignmentID]
	if !ok || !ref.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teaching assignment not found")
	}
	if school := restrictedSchool(actor); school != "" && ref.SchoolID != school {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teaching assignment not found")
	}
	slot, err := s.conflicts.ResolveSlot(ctx, tx, req.TimeSlotID)
	if err != nil {
		return nil, err
	}
	switch {
	case slot.TermID != ref.TermID:
		return nil, unknownSlotError(slot.ID, fmt.Sprintf("time slot %s belongs to another term", slot.ID))
	case !slot.IsTeachingPeriod:
		return nil, unknownSlotError(slot.ID, fmt.Sprintf("time slot %s is not a teaching period", slot.ID))
	}

	if err := s.repos.Lessons.LockTerm(ctx, tx, ref.TermID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock term lessons")
	}
	if err := s.checkCalendar(ctx, ref.TermID, date); err != nil {
		return nil, err
	}

	candidate := models.LessonCandidate{TeacherID: ref.TeacherID, TimeSlotID: req.TimeSlotID, Date: date}
	if req.RoomID != nil {
		candidate.RoomID = *req.RoomID
	}
	ids, err := s.conflicts.HasConflict(ctx, tx, candidate)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.metrics.RecordViolation(models.CodeTeacherDoubleBooked, models.SeverityError)
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrConstraintViolation, "lesson collides with an existing booking"),
			map[string]interface{}{"conflicting_lesson_ids": ids, "weekday": candidate.Weekday()},
		)
	}

	lesson := models.ScheduledLesson{
		ID:                   uuid.NewString(),
		TeachingAssignmentID: ref.ID,
		TeacherID:            ref.TeacherID,
		RoomID:               req.RoomID,
		TimeSlotID:           req.TimeSlotID,
		Date:                 date,
	}
	if err := s.repos.Lessons.BulkCreate(ctx, tx, []models.ScheduledLesson{lesson}); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "slot was booked concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store lesson")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	tx = nil
	lesson.Date = models.DateOnly(lesson.Date)

	s.metrics.AddLessons(1)
	s.audit(ctx, actor, lesson)
	return &dto.ScheduleLessonResponse{Lesson: lesson}, nil
}

func (s *LessonService) checkCalendar(ctx context.Context, termID string, date time.Time) error {
	term, err := s.repos.Terms.FindByID(ctx, termID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if !term.Contains(date) {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrConstraintViolation, "lesson date falls outside the term"),
			map[string]interface{}{"code": models.CodeLessonOutsideTerm, "date": date.Format(models.DateLayout)},
		)
	}
	holidays, err := s.repos.Terms.ListHolidays(ctx, termID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load holidays")
	}
	day := date.Format(models.DateLayout)
	for _, h := range holidays {
		if h.Date.Format(models.DateLayout) == day {
			return appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrConstraintViolation, fmt.Sprintf("lesson date falls on holiday %s", h.Name)),
				map[string]interface{}{"code": models.CodeLessonOutsideTerm, "date": day},
			)
		}
	}
	return nil
}

func (s *LessonService) audit(ctx context.Context, actor *models.JWTClaims, lesson models.ScheduledLesson) {
	if s.repos.Audit == nil {
		return
	}
	body, _ := json.Marshal(lesson)
	id := lesson.ID
	if err := s.repos.Audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actorID(actor),
		Action:     models.AuditActionLessonSchedule,
		Resource:   "scheduled_lesson",
		ResourceID: &id,
		NewValues:  body,
		IPAddress:  "system",
		UserAgent:  "lesson-service",
	}); err != nil {
		s.logger.Warn("failed to record lesson audit", zap.String("lesson_id", lesson.ID), zap.Error(err))
	}
}
