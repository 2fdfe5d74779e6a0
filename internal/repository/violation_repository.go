package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

// ViolationRepository appends constraint violations to the audit table.
type ViolationRepository struct {
	db *sqlx.DB
}

// NewViolationRepository constructs the repository.
func NewViolationRepository(db *sqlx.DB) *ViolationRepository {
	return &ViolationRepository{db: db}
}

func (r *ViolationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateBatch inserts violations, filling ids and timestamps in place.
func (r *ViolationRepository) CreateBatch(ctx context.Context, exec sqlx.ExtContext, violations []models.ConstraintViolation) error {
	if len(violations) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range violations {
		if violations[i].ID == "" {
			violations[i].ID = uuid.NewString()
		}
		if violations[i].CreatedAt.IsZero() {
			violations[i].CreatedAt = now
		}
		if violations[i].Context == nil {
			violations[i].Context = models.ViolationContext{}
		}
	}
	const query = `INSERT INTO constraint_violations (id, school_id, term_id, job_id, error_code, message, severity, context, created_at)
VALUES (:id, :school_id, :term_id, :job_id, :error_code, :message, :severity, :context, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, violations); err != nil {
		return fmt.Errorf("insert constraint violations: %w", err)
	}
	return nil
}

// ListByJob returns the violations recorded against a job in creation order.
func (r *ViolationRepository) ListByJob(ctx context.Context, jobID string) ([]models.ConstraintViolation, error) {
	const query = `SELECT id, school_id, term_id, job_id, error_code, message, severity, context, created_at
FROM constraint_violations WHERE job_id = $1 ORDER BY created_at, id`
	var rows []models.ConstraintViolation
	if err := r.db.SelectContext(ctx, &rows, query, jobID); err != nil {
		return nil, fmt.Errorf("list constraint violations: %w", err)
	}
	return rows, nil
}
