package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

const generationColumns = `id, term_id, solver_job_id, status, progress, message, result, error_message, generated_by,
generated_at, updated_at, lease_expires_at, materialized_at, lesson_count`

// GenerationJobRepository persists timetable generation jobs. Rows are
// updated in place and never deleted.
type GenerationJobRepository struct {
	db *sqlx.DB
}

// NewGenerationJobRepository constructs the repository.
func NewGenerationJobRepository(db *sqlx.DB) *GenerationJobRepository {
	return &GenerationJobRepository{db: db}
}

func (r *GenerationJobRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new job row with generated defaults.
func (r *GenerationJobRepository) Create(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	now := time.Now().UTC()
	if job.GeneratedAt.IsZero() {
		job.GeneratedAt = now
	}
	job.UpdatedAt = job.GeneratedAt
	const query = `INSERT INTO timetable_generations (id, term_id, solver_job_id, status, progress, message, generated_by, generated_at, updated_at, lease_expires_at)
VALUES (:id, :term_id, :solver_job_id, :status, :progress, :message, :generated_by, :generated_at, :updated_at, :lease_expires_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create generation job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *GenerationJobRepository) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	query := `SELECT ` + generationColumns + ` FROM timetable_generations WHERE id = $1`
	var job models.GenerationJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get generation job: %w", err)
	}
	return &job, nil
}

// FindActiveByTerm returns the non-terminal job for a term, if any.
func (r *GenerationJobRepository) FindActiveByTerm(ctx context.Context, termID string) (*models.GenerationJob, error) {
	query := `SELECT ` + generationColumns + ` FROM timetable_generations
WHERE term_id = $1 AND status IN ('pending', 'generating') ORDER BY generated_at DESC LIMIT 1`
	var job models.GenerationJob
	if err := r.db.GetContext(ctx, &job, query, termID); err != nil {
		return nil, fmt.Errorf("find active generation job: %w", err)
	}
	return &job, nil
}

// ListByTerm returns a term's jobs, newest first.
func (r *GenerationJobRepository) ListByTerm(ctx context.Context, termID string, limit int) ([]models.GenerationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + generationColumns + ` FROM timetable_generations WHERE term_id = $1 ORDER BY generated_at DESC LIMIT $2`
	var jobs []models.GenerationJob
	if err := r.db.SelectContext(ctx, &jobs, query, termID, limit); err != nil {
		return nil, fmt.Errorf("list generation jobs: %w", err)
	}
	return jobs, nil
}

// ListLeaseExpired returns non-terminal jobs whose lease ended before now.
func (r *GenerationJobRepository) ListLeaseExpired(ctx context.Context, now time.Time, limit int) ([]models.GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + generationColumns + ` FROM timetable_generations
WHERE status IN ('pending', 'generating') AND lease_expires_at < $1 ORDER BY lease_expires_at ASC LIMIT $2`
	var jobs []models.GenerationJob
	if err := r.db.SelectContext(ctx, &jobs, query, now, limit); err != nil {
		return nil, fmt.Errorf("list expired generation jobs: %w", err)
	}
	return jobs, nil
}

// UpdateGenerationJobParams defines the mutable fields.
type UpdateGenerationJobParams struct {
	Status         *models.JobStatus
	Progress       *int
	Message        *string
	Result         *models.GenerationResult
	ErrorMessage   *string
	MaterializedAt *time.Time
	LessonCount    *int
}

// Update applies params only while the row is still in one of fromStatuses,
// making concurrent reconciliations of the same transition a no-op. It
// reports whether a row changed.
func (r *GenerationJobRepository) Update(ctx context.Context, exec sqlx.ExtContext, id string, fromStatuses []models.JobStatus, params UpdateGenerationJobParams) (bool, error) {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 10)
	argPos := 1

	add := func(column string, value interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.Message != nil {
		add("message", *params.Message)
	}
	if params.Result != nil {
		add("result", *params.Result)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.MaterializedAt != nil {
		add("materialized_at", *params.MaterializedAt)
	}
	if params.LessonCount != nil {
		add("lesson_count", *params.LessonCount)
	}

	if len(set) == 0 {
		return false, nil
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf("UPDATE timetable_generations SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)
	if len(fromStatuses) > 0 {
		statuses := make([]string, len(fromStatuses))
		for i, s := range fromStatuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argPos+1)
		args = append(args, pq.Array(statuses))
	}

	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update generation job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("generation job rows affected: %w", err)
	}
	return affected > 0, nil
}
