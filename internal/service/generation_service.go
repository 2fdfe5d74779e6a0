package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	"github.com/noah-isme/sma-timetable-engine/internal/repository"
	"github.com/noah-isme/sma-timetable-engine/internal/solver"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
	"github.com/noah-isme/sma-timetable-engine/pkg/logger"
)

var nonTerminalStatuses = []models.JobStatus{models.JobStatusPending, models.JobStatusGenerating}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type solverGateway interface {
	Submit(ctx context.Context, req solver.Request) (*solver.SubmitResponse, error)
	Status(ctx context.Context, solverJobID string) (*solver.StatusResponse, error)
	Cancel(ctx context.Context, solverJobID string) error
}

type snapshotLoader interface {
	Load(ctx context.Context, req SnapshotRequest) (*Snapshot, error)
}

type requestComposer interface {
	Build(snap *Snapshot, constraints []solver.Constraint, goals []string) (solver.Request, error)
}

type generationJobStore interface {
	Create(ctx context.Context, job *models.GenerationJob) error
	GetByID(ctx context.Context, id string) (*models.GenerationJob, error)
	FindActiveByTerm(ctx context.Context, termID string) (*models.GenerationJob, error)
	ListByTerm(ctx context.Context, termID string, limit int) ([]models.GenerationJob, error)
	ListLeaseExpired(ctx context.Context, now time.Time, limit int) ([]models.GenerationJob, error)
	Update(ctx context.Context, exec sqlx.ExtContext, id string, fromStatuses []models.JobStatus, params repository.UpdateGenerationJobParams) (bool, error)
}

type termLocker interface {
	Acquire(ctx context.Context, termID string, ttl time.Duration) (func(), bool, error)
}

type assignmentRefResolver interface {
	FindRefs(ctx context.Context, exec sqlx.ExtContext, ids []string) (map[string]models.AssignmentRef, error)
}

type lessonWriter interface {
	LockTerm(ctx context.Context, exec sqlx.ExtContext, termID string) error
	BulkCreate(ctx context.Context, exec sqlx.ExtContext, lessons []models.ScheduledLesson) error
}

type batchConflictChecker interface {
	ResolveSlots(ctx context.Context, exec sqlx.ExtContext, lessons []models.ScheduledLesson) (map[string]models.TimeSlot, []models.ConstraintViolation, error)
	DetectBatch(ctx context.Context, exec sqlx.ExtContext, lessons []models.ScheduledLesson) ([]models.ConstraintViolation, error)
}

type unavailabilityReader interface {
	ListUnavailability(ctx context.Context, termID string) ([]models.TeacherUnavailability, error)
}

type violationRecorder interface {
	Record(ctx context.Context, exec sqlx.ExtContext, violations []models.ConstraintViolation) error
	Escalate(ctx context.Context, violations []models.ConstraintViolation)
	ListByJob(ctx context.Context, jobID string) ([]models.ConstraintViolation, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Reconcile merges a solver-reported status into the local status. Terminal
// local states never change; otherwise completed and failed carry over and
// every other solver state means the job is still generating.
func Reconcile(local models.JobStatus, remote string) models.JobStatus {
	if local.Terminal() {
		return local
	}
	switch remote {
	case solver.StatusCompleted:
		return models.JobStatusCompleted
	case solver.StatusFailed:
		return models.JobStatusFailed
	default:
		return models.JobStatusGenerating
	}
}

// GenerationRepositories groups the stores used by the lifecycle manager.
type GenerationRepositories struct {
	Jobs           generationJobStore
	Locks          termLocker
	Assignments    assignmentRefResolver
	Lessons        lessonWriter
	Terms          termCalendarReader
	Unavailability unavailabilityReader
	Audit          auditLogger
}

// GenerationServiceConfig tunes the job lifecycle. DefaultMaxPeriods and
// Thresholds bound the weekly load a materialized batch may give a teacher
// without a configured cap.
type GenerationServiceConfig struct {
	LeaseTTL          time.Duration
	LockTTL           time.Duration
	ExpireBatchSize   int
	Presets           *solver.Presets
	DefaultMaxPeriods int
	Thresholds        WorkloadThresholds
}

// GenerationService submits generation jobs to the solver, reconciles their
// state and materialises completed results into scheduled lessons.
type GenerationService struct {
	repos      GenerationRepositories
	snapshots  snapshotLoader
	builder    requestComposer
	solver     solverGateway
	conflicts  batchConflictChecker
	violations violationRecorder
	tx         txProvider
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        GenerationServiceConfig
	now        func() time.Time
}

// NewGenerationService wires the lifecycle manager.
func NewGenerationService(
	repos GenerationRepositories,
	snapshots snapshotLoader,
	builder requestComposer,
	solverClient solverGateway,
	conflicts batchConflictChecker,
	violations violationRecorder,
	tx txProvider,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg GenerationServiceConfig,
) *GenerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.ExpireBatchSize <= 0 {
		cfg.ExpireBatchSize = 50
	}
	if cfg.Presets == nil {
		cfg.Presets = &solver.Presets{}
	}
	if cfg.DefaultMaxPeriods <= 0 {
		cfg.DefaultMaxPeriods = 20
	}
	if cfg.Thresholds == (WorkloadThresholds{}) {
		cfg.Thresholds = DefaultWorkloadThresholds
	}
	return &GenerationService{
		repos:      repos,
		snapshots:  snapshots,
		builder:    builder,
		solver:     solverClient,
		conflicts:  conflicts,
		violations: violations,
		tx:         tx,
		validator:  validate,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Trigger validates the request, builds the solver request from a fresh
// snapshot and submits it. At most one non-terminal job exists per term. No
// job is persisted when the solver cannot be reached.
func (s *GenerationService) Trigger(ctx context.Context, actor *models.JWTClaims, req dto.GenerateTimetableRequest) (*dto.GenerationJobResponse, error) {
	log := logger.FromContext(ctx, s.logger)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	constraints, goals, err := s.resolveObjectives(req)
	if err != nil {
		return nil, err
	}

	release, ok, err := s.repos.Locks.Acquire(ctx, req.TermID, s.cfg.LockTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock term")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a generation job is already being submitted for this term")
	}
	defer release()

	if err := s.ensureNoActiveJob(ctx, req.TermID); err != nil {
		return nil, err
	}

	snapReq := SnapshotRequest{TermID: req.TermID, AcademicYearID: req.AcademicYearID, SchoolID: restrictedSchool(actor)}
	snap, err := s.snapshots.Load(ctx, snapReq)
	if err != nil {
		return nil, err
	}
	request, err := s.builder.Build(snap, constraints, goals)
	if err != nil {
		return nil, err
	}

	submitted, err := s.solver.Submit(ctx, request)
	if err != nil {
		log.Warn("solver submission failed", zap.String("term_id", req.TermID), zap.Error(err))
		return nil, err
	}

	now := s.now()
	job := &models.GenerationJob{
		ID:             uuid.NewString(),
		TermID:         req.TermID,
		SolverJobID:    submitted.JobID,
		Status:         models.JobStatusPending,
		Message:        submitted.Message,
		GeneratedAt:    now,
		LeaseExpiresAt: now.Add(s.cfg.LeaseTTL),
	}
	if submitted.Status == solver.StatusProcessing {
		job.Status = models.JobStatusGenerating
	}
	if actor != nil {
		job.GeneratedBy = actor.UserID
	}
	if err := s.repos.Jobs.Create(ctx, job); err != nil {
		s.abandonSolverJob(ctx, submitted.JobID)
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an active generation job already exists for this term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist generation job")
	}
	s.metrics.RecordJobTransition(job.Status)

	s.emitAudit(ctx, actor, models.AuditActionGenerationTrigger, job.ID, map[string]interface{}{
		"term_id":            job.TermID,
		"solver_job_id":      job.SolverJobID,
		"constraints":        len(constraints),
		"optimization_goals": goals,
	})
	log.Info("timetable generation submitted",
		zap.String("job_id", job.ID),
		zap.String("solver_job_id", job.SolverJobID),
		zap.String("term_id", job.TermID))

	if submitted.Status == solver.StatusFailed {
		if _, err := s.failJob(ctx, job, models.NewViolation(models.CodeSolverJobFailed, "solver rejected the job", models.ViolationContext{
			"solver_job_id": job.SolverJobID,
			"message":       submitted.Message,
		}), submitted.Message); err != nil {
			return nil, err
		}
		return s.load(ctx, job.ID)
	}

	resp := dto.NewGenerationJobResponse(*job)
	return &resp, nil
}

func (s *GenerationService) resolveObjectives(req dto.GenerateTimetableRequest) ([]solver.Constraint, []string, error) {
	for i, c := range req.Constraints {
		if !solver.KnownConstraintType(c.Type) {
			return nil, nil, appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported constraint type %q", c.Type)),
				map[string]interface{}{"index": i},
			)
		}
	}
	for _, g := range req.OptimizationGoals {
		if !solver.KnownGoal(g) {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported optimization goal %q", g))
		}
	}

	constraints := req.Constraints
	if len(constraints) == 0 {
		constraints = append([]solver.Constraint{}, s.cfg.Presets.Constraints...)
	}
	goals := req.OptimizationGoals
	if len(goals) == 0 {
		goals = append([]string{}, s.cfg.Presets.OptimizationGoals...)
	}
	return constraints, goals, nil
}

func (s *GenerationService) ensureNoActiveJob(ctx context.Context, termID string) error {
	active, err := s.repos.Jobs.FindActiveByTerm(ctx, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active generation jobs")
	}
	if active.LeaseExpired(s.now()) {
		if _, err := s.expireJob(ctx, active); err != nil {
			return err
		}
		return nil
	}
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrConflict, "an active generation job already exists for this term"),
		map[string]interface{}{"job_id": active.ID, "status": active.Status},
	)
}

// Poll reconciles a job with the solver and returns its state. Polling a
// terminal job only reads it.
func (s *GenerationService) Poll(ctx context.Context, actor *models.JWTClaims, jobID string) (*dto.GenerationJobResponse, error) {
	job, err := s.scopedJob(ctx, actor, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		resp := dto.NewGenerationJobResponse(*job)
		return &resp, nil
	}
	if job.LeaseExpired(s.now()) {
		if _, err := s.expireJob(ctx, job); err != nil {
			return nil, err
		}
		return s.load(ctx, job.ID)
	}

	status, err := s.solver.Status(ctx, job.SolverJobID)
	if err != nil {
		if errors.Is(err, solver.ErrContractViolation) {
			if _, ferr := s.failJob(ctx, job, models.NewViolation(models.CodeSolverContractViolation,
				"solver reply does not match the expected schema", models.ViolationContext{
					"solver_job_id":  job.SolverJobID,
					"schema_version": reportedSchemaVersion(status),
					"detail":         err.Error(),
				}), "solver returned an invalid result"); ferr != nil {
				return nil, ferr
			}
			return s.load(ctx, job.ID)
		}
		return nil, err
	}

	if err := s.apply(ctx, job, status); err != nil {
		return nil, err
	}
	return s.load(ctx, job.ID)
}

func reportedSchemaVersion(status *solver.StatusResponse) string {
	if status == nil || len(status.RawResult) == 0 {
		return ""
	}
	var head struct {
		SchemaVersion string `json:"schema_version"`
	}
	_ = json.Unmarshal(status.RawResult, &head)
	return head.SchemaVersion
}

func (s *GenerationService) apply(ctx context.Context, job *models.GenerationJob, status *solver.StatusResponse) error {
	next := Reconcile(job.Status, status.Status)
	switch next {
	case models.JobStatusCompleted:
		return s.materialize(ctx, job, status)
	case models.JobStatusFailed:
		reason := status.Message
		if status.Error != nil && *status.Error != "" {
			reason = *status.Error
		}
		if reason == "" {
			reason = "solver reported failure"
		}
		_, err := s.failJob(ctx, job, models.NewViolation(models.CodeSolverJobFailed, reason, models.ViolationContext{
			"solver_job_id": job.SolverJobID,
			"progress":      status.Progress,
		}), reason)
		return err
	default:
		progress := status.Progress
		message := status.Message
		changed, err := s.repos.Jobs.Update(ctx, nil, job.ID, nonTerminalStatuses, repository.UpdateGenerationJobParams{
			Status:   &next,
			Progress: &progress,
			Message:  &message,
		})
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update generation job")
		}
		if changed && job.Status != next {
			s.metrics.RecordJobTransition(next)
			s.logger.Info("generation job reconciled", zap.String("job_id", job.ID), zap.String("status", string(next)), zap.Int("progress", progress))
		}
		return nil
	}
}

// materialize commits a completed result as scheduled lessons. The batch is
// rejected as a whole when any entry references unknown data, falls outside
// the term, collides with itself or with persisted lessons, or pushes a
// teacher past the weekly cap; the job then fails with the violations
// explaining which entries were at fault. Warnings such as curriculum
// variance are recorded against the completed job.
func (s *GenerationService) materialize(ctx context.Context, job *models.GenerationJob, status *solver.StatusResponse) error {
	result := toGenerationResult(status.Result)
	term, err := s.repos.Terms.FindByID(ctx, job.TermID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	holidays, err := s.repos.Terms.ListHolidays(ctx, job.TermID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load holidays")
	}
	unavailable, err := s.repos.Unavailability.ListUnavailability(ctx, job.TermID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher availability")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	if err := s.repos.Lessons.LockTerm(ctx, tx, job.TermID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock term lessons")
	}
	claimed, err := s.repos.Jobs.Update(ctx, tx, job.ID, nonTerminalStatuses, repository.UpdateGenerationJobParams{Result: &result})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim generation job")
	}
	if !claimed {
		return nil
	}

	lessons, violations, err := s.prepareLessons(ctx, tx, job, term, holidays, unavailable, result.Lessons)
	if err != nil {
		return err
	}

	if blocking := filterBlocking(violations); len(blocking) > 0 {
		digest := AggregateErrors(blocking)
		scoped := s.scopeViolations(violations, term, job.ID)
		if err := s.violations.Record(ctx, tx, scoped); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record violations")
		}
		failed := models.JobStatusFailed
		message := fmt.Sprintf("materialization rejected: %d blocking violation(s)", len(blocking))
		if _, err := s.repos.Jobs.Update(ctx, tx, job.ID, nonTerminalStatuses, repository.UpdateGenerationJobParams{
			Status:       &failed,
			Message:      &message,
			ErrorMessage: &digest.Text,
		}); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update generation job")
		}
		if err := tx.Commit(); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
		}
		tx = nil
		s.metrics.RecordJobTransition(failed)
		s.violations.Escalate(ctx, scoped)
		s.logger.Info("generation result rejected", zap.String("job_id", job.ID), zap.String("digest", digest.Text))
		return nil
	}

	if err := s.repos.Lessons.BulkCreate(ctx, tx, lessons); err != nil {
		if repository.IsUniqueViolation(err) {
			_ = tx.Rollback()
			tx = nil
			_, ferr := s.failJob(ctx, job, concurrentBookingViolation(err), "materialization rejected: concurrent booking")
			return ferr
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store scheduled lessons")
	}

	completed := models.JobStatusCompleted
	progress := 100
	message := status.Message
	if message == "" {
		message = "timetable generated"
	}
	materializedAt := s.now()
	count := len(lessons)
	if _, err := s.repos.Jobs.Update(ctx, tx, job.ID, nonTerminalStatuses, repository.UpdateGenerationJobParams{
		Status:         &completed,
		Progress:       &progress,
		Message:        &message,
		MaterializedAt: &materializedAt,
		LessonCount:    &count,
	}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update generation job")
	}
	warnings := s.scopeViolations(violations, term, job.ID)
	if err := s.violations.Record(ctx, tx, warnings); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record violations")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	tx = nil

	s.metrics.RecordJobTransition(completed)
	s.metrics.AddLessons(count)
	s.logger.Info("generation result materialized", zap.String("job_id", job.ID), zap.Int("lessons", count))
	return nil
}

// concurrentBookingViolation maps a unique index hit during materialization
// to the booking rule it guards.
func concurrentBookingViolation(err error) models.ConstraintViolation {
	constraint := repository.UniqueViolationConstraint(err)
	ctx := models.ViolationContext{"detail": err.Error()}
	if constraint != "" {
		ctx["constraint"] = constraint
	}
	if constraint == repository.LessonRoomUniqueIndex {
		return models.NewViolation(models.CodeRoomOccupied,
			"a concurrent booking took a room claimed by the generated timetable", ctx)
	}
	return models.NewViolation(models.CodeTeacherDoubleBooked,
		"a concurrent booking took a slot claimed by the generated timetable", ctx)
}

func (s *GenerationService) prepareLessons(
	ctx context.Context,
	tx sqlx.ExtContext,
	job *models.GenerationJob,
	term *models.Term,
	holidays []models.Holiday,
	unavailable []models.TeacherUnavailability,
	generated []models.GeneratedLesson,
) ([]models.ScheduledLesson, []models.ConstraintViolation, error) {
	ids := make([]string, 0, len(generated))
	for _, g := range generated {
		ids = append(ids, g.TeachingAssignmentID)
	}
	refs, err := s.repos.Assignments.FindRefs(ctx, tx, ids)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teaching assignments")
	}

	holidaySet := make(map[string]string, len(holidays))
	for _, h := range holidays {
		holidaySet[h.Date.Format(models.DateLayout)] = h.Name
	}
	blocked := make(map[string]map[string]struct{})
	for _, u := range unavailable {
		if blocked[u.TeacherID] == nil {
			blocked[u.TeacherID] = make(map[string]struct{})
		}
		blocked[u.TeacherID][u.TimeSlotID] = struct{}{}
	}

	violations := make([]models.ConstraintViolation, 0)
	lessons := make([]models.ScheduledLesson, 0, len(generated))
	generationID := job.ID
	for i, g := range generated {
		date, err := time.Parse(models.DateLayout, g.Date)
		if err != nil {
			violations = append(violations, models.NewViolation(models.CodeSolverContractViolation,
				fmt.Sprintf("lesson %d has an invalid date %q", i, g.Date),
				models.ViolationContext{"lesson_index": i}))
			continue
		}
		lesson := models.ScheduledLesson{
			ID:                   uuid.NewString(),
			TeachingAssignmentID: g.TeachingAssignmentID,
			RoomID:               g.RoomID,
			TimeSlotID:           g.TimeSlotID,
			Date:                 date,
			GenerationID:         &generationID,
		}

		ref, ok := refs[g.TeachingAssignmentID]
		switch {
		case !ok || !ref.Active:
			violations = append(violations, models.NewViolation(models.CodeUnknownTeachingAssignment,
				fmt.Sprintf("teaching assignment %s not found", g.TeachingAssignmentID),
				models.ViolationContext{"lesson_index": i, "teaching_assignment_id": g.TeachingAssignmentID}))
		case ref.TermID != job.TermID:
			violations = append(violations, models.NewViolation(models.CodeUnknownTeachingAssignment,
				fmt.Sprintf("teaching assignment %s belongs to another term", g.TeachingAssignmentID),
				models.ViolationContext{"lesson_index": i, "teaching_assignment_id": g.TeachingAssignmentID, "term_id": ref.TermID}))
		default:
			lesson.TeacherID = ref.TeacherID
		}

		if !term.Contains(date) {
			violations = append(violations, models.NewViolation(models.CodeLessonOutsideTerm,
				fmt.Sprintf("lesson %d on %s falls outside the term", i, g.Date),
				models.ViolationContext{"lesson_index": i, "date": g.Date}))
		} else if name, holiday := holidaySet[g.Date]; holiday {
			violations = append(violations, models.NewViolation(models.CodeLessonOutsideTerm,
				fmt.Sprintf("lesson %d on %s falls on holiday %s", i, g.Date, name),
				models.ViolationContext{"lesson_index": i, "date": g.Date, "holiday": name}))
		}

		if lesson.TeacherID != "" {
			if _, no := blocked[lesson.TeacherID][g.TimeSlotID]; no {
				violations = append(violations, models.NewViolation(models.CodeTeacherUnavailable,
					fmt.Sprintf("teacher %s is unavailable in slot %s", lesson.TeacherID, g.TimeSlotID),
					models.ViolationContext{"lesson_index": i, "teacher_id": lesson.TeacherID, "timeslot_id": g.TimeSlotID}))
			}
		}
		lessons = append(lessons, lesson)
	}

	slots, slotViolations, err := s.conflicts.ResolveSlots(ctx, tx, lessons)
	if err != nil {
		return nil, nil, err
	}
	violations = append(violations, slotViolations...)
	for i, l := range lessons {
		slot, ok := slots[l.TimeSlotID]
		if !ok {
			continue
		}
		if slot.TermID != job.TermID {
			violations = append(violations, models.NewViolation(models.CodeUnknownTimeSlot,
				fmt.Sprintf("time slot %s belongs to another term", l.TimeSlotID),
				models.ViolationContext{"lesson_index": i, "timeslot_id": l.TimeSlotID}))
		} else if !slot.IsTeachingPeriod {
			violations = append(violations, models.NewViolation(models.CodeUnknownTimeSlot,
				fmt.Sprintf("time slot %s is not a teaching period", l.TimeSlotID),
				models.ViolationContext{"lesson_index": i, "timeslot_id": l.TimeSlotID}))
		}
	}

	collisions, err := s.conflicts.DetectBatch(ctx, tx, lessons)
	if err != nil {
		return nil, nil, err
	}
	violations = append(violations, collisions...)
	violations = append(violations, BatchLoadViolations(lessons, refs, s.cfg.DefaultMaxPeriods, s.cfg.Thresholds)...)
	return lessons, violations, nil
}

// Cancel stops a non-terminal job. The solver is asked to cancel on a
// best-effort basis; the local job fails regardless.
func (s *GenerationService) Cancel(ctx context.Context, actor *models.JWTClaims, jobID string) (*dto.GenerationJobResponse, error) {
	job, err := s.scopedJob(ctx, actor, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrConflict, "generation job already finished"),
			map[string]interface{}{"job_id": job.ID, "status": job.Status},
		)
	}

	s.abandonSolverJob(ctx, job.SolverJobID)
	by := ""
	if actor != nil {
		by = actor.UserID
	}
	changed, err := s.failJob(ctx, job, models.NewViolation(models.CodeJobCancelled, "generation job cancelled", models.ViolationContext{
		"cancelled_by":  by,
		"solver_job_id": job.SolverJobID,
	}), "cancelled")
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "generation job already finished")
	}
	s.emitAudit(ctx, actor, models.AuditActionGenerationCancel, job.ID, map[string]interface{}{"term_id": job.TermID})
	return s.load(ctx, job.ID)
}

// ExpireLeases fails every non-terminal job whose lease has ended and
// returns how many were expired.
func (s *GenerationService) ExpireLeases(ctx context.Context) (int, error) {
	jobs, err := s.repos.Jobs.ListLeaseExpired(ctx, s.now(), s.cfg.ExpireBatchSize)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expired generation jobs")
	}
	expired := 0
	for i := range jobs {
		changed, err := s.expireJob(ctx, &jobs[i])
		if err != nil {
			return expired, err
		}
		if changed {
			s.abandonSolverJob(ctx, jobs[i].SolverJobID)
			expired++
		}
	}
	return expired, nil
}

// List returns the jobs of a term, newest first.
func (s *GenerationService) List(ctx context.Context, actor *models.JWTClaims, query dto.GenerationJobListQuery) ([]dto.GenerationJobResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if err := authorizeTerm(ctx, s.repos.Terms, actor, query.TermID, "term not found"); err != nil {
		return nil, err
	}
	jobs, err := s.repos.Jobs.ListByTerm(ctx, query.TermID, query.Limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list generation jobs")
	}
	out := make([]dto.GenerationJobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, dto.NewGenerationJobResponse(job))
	}
	return out, nil
}

// Violations returns the violations recorded for a job with their digest.
func (s *GenerationService) Violations(ctx context.Context, actor *models.JWTClaims, jobID string) (*dto.ViolationListResponse, error) {
	if _, err := s.scopedJob(ctx, actor, jobID); err != nil {
		return nil, err
	}
	violations, err := s.violations.ListByJob(ctx, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list violations")
	}
	digest := AggregateErrors(violations)
	return &dto.ViolationListResponse{
		JobID:      jobID,
		Violations: violations,
		Summary:    digest.Text,
		Highest:    digest.Highest,
	}, nil
}

func (s *GenerationService) expireJob(ctx context.Context, job *models.GenerationJob) (bool, error) {
	return s.failJob(ctx, job, models.NewViolation(models.CodeJobLeaseExpired, "generation job lease expired", models.ViolationContext{
		"lease_expires_at": job.LeaseExpiresAt.Format(time.RFC3339),
		"solver_job_id":    job.SolverJobID,
	}), "lease expired before the solver finished")
}

// failJob moves a non-terminal job to failed and records the violation in the
// same transaction. It reports false, recording nothing, when the job was
// already terminal.
func (s *GenerationService) failJob(ctx context.Context, job *models.GenerationJob, violation models.ConstraintViolation, reason string) (bool, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	failed := models.JobStatusFailed
	changed, err := s.repos.Jobs.Update(ctx, tx, job.ID, nonTerminalStatuses, repository.UpdateGenerationJobParams{
		Status:       &failed,
		Message:      &reason,
		ErrorMessage: &violation.Message,
	})
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update generation job")
	}
	if !changed {
		return false, nil
	}

	scoped := s.scopeViolations([]models.ConstraintViolation{violation}, s.termScope(ctx, job.TermID), job.ID)
	if err := s.violations.Record(ctx, tx, scoped); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record violation")
	}
	if err := tx.Commit(); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	tx = nil

	s.metrics.RecordJobTransition(failed)
	s.violations.Escalate(ctx, scoped)
	s.logger.Info("generation job failed",
		zap.String("job_id", job.ID),
		zap.String("code", violation.Code),
		zap.String("reason", reason))
	return true, nil
}

func (s *GenerationService) scopeViolations(violations []models.ConstraintViolation, term *models.Term, jobID string) []models.ConstraintViolation {
	out := make([]models.ConstraintViolation, len(violations))
	for i, v := range violations {
		jid := jobID
		v.JobID = &jid
		if term != nil {
			tid, sid := term.ID, term.SchoolID
			v.TermID = &tid
			if sid != "" {
				v.SchoolID = &sid
			}
		}
		out[i] = v
	}
	return out
}

// termScope resolves the term for violation scoping, falling back to the bare
// id when the term cannot be read.
func (s *GenerationService) termScope(ctx context.Context, termID string) *models.Term {
	term, err := s.repos.Terms.FindByID(ctx, termID)
	if err != nil || term == nil {
		return &models.Term{ID: termID}
	}
	return term
}

func (s *GenerationService) abandonSolverJob(ctx context.Context, solverJobID string) {
	if solverJobID == "" {
		return
	}
	if err := s.solver.Cancel(ctx, solverJobID); err != nil {
		s.logger.Warn("solver cancel failed", zap.String("solver_job_id", solverJobID), zap.Error(err))
	}
}

func (s *GenerationService) getJob(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	job, err := s.repos.Jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	return job, nil
}

// scopedJob loads a job owned by the actor's school. Jobs of other schools
// read as missing.
func (s *GenerationService) scopedJob(ctx context.Context, actor *models.JWTClaims, jobID string) (*models.GenerationJob, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTerm(ctx, s.repos.Terms, actor, job.TermID, "generation job not found"); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *GenerationService) load(ctx context.Context, jobID string) (*dto.GenerationJobResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	resp := dto.NewGenerationJobResponse(*job)
	return &resp, nil
}

func (s *GenerationService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, jobID string, payload map[string]interface{}) {
	if s.repos.Audit == nil {
		return
	}
	body, _ := json.Marshal(payload)
	id := jobID
	entry := &models.AuditLog{
		UserID:     actorID(actor),
		Action:     action,
		Resource:   "timetable_generation",
		ResourceID: &id,
		NewValues:  body,
		IPAddress:  "system",
		UserAgent:  "generation-service",
	}
	if err := s.repos.Audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record generation audit", zap.String("action", action), zap.Error(err))
	}
}

func filterBlocking(violations []models.ConstraintViolation) []models.ConstraintViolation {
	out := make([]models.ConstraintViolation, 0, len(violations))
	for _, v := range violations {
		if v.Severity.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

func toGenerationResult(r *solver.Result) models.GenerationResult {
	if r == nil {
		return models.GenerationResult{Lessons: []models.GeneratedLesson{}}
	}
	lessons := make([]models.GeneratedLesson, 0, len(r.Lessons))
	for _, l := range r.Lessons {
		lessons = append(lessons, models.GeneratedLesson{
			TeachingAssignmentID: l.TeachingAssignmentID,
			Date:                 l.Date,
			TimeSlotID:           l.TimeSlotID,
			RoomID:               l.RoomID,
		})
	}
	return models.GenerationResult{
		SchemaVersion: r.SchemaVersion,
		Lessons:       lessons,
		Statistics:    r.Statistics,
		GeneratedAt:   r.GeneratedAt,
	}
}

func actorID(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}
