package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

// SchoolRepository reads school session settings and administrators.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs the repository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// FindByID returns a school by id.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	const query = `SELECT id, name, working_days, day_start_time, day_end_time, break_duration_minutes, created_at
FROM schools WHERE id = $1`
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		return nil, fmt.Errorf("get school: %w", err)
	}
	return &school, nil
}

// ListAdministrators returns the escalation recipients for a school.
func (r *SchoolRepository) ListAdministrators(ctx context.Context, schoolID string) ([]models.SchoolAdministrator, error) {
	const query = `SELECT school_id, user_id, email FROM school_administrators WHERE school_id = $1 ORDER BY email`
	var admins []models.SchoolAdministrator
	if err := r.db.SelectContext(ctx, &admins, query, schoolID); err != nil {
		return nil, fmt.Errorf("list school administrators: %w", err)
	}
	return admins, nil
}
