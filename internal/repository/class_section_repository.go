package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

// ClassSectionRepository reads class sections.
type ClassSectionRepository struct {
	db *sqlx.DB
}

// NewClassSectionRepository constructs the repository.
func NewClassSectionRepository(db *sqlx.DB) *ClassSectionRepository {
	return &ClassSectionRepository{db: db}
}

// ListBySchool returns class sections ordered by grade then name.
func (r *ClassSectionRepository) ListBySchool(ctx context.Context, schoolID string) ([]models.ClassSection, error) {
	const query = `SELECT id, school_id, name, grade_level, student_count FROM class_sections
WHERE school_id = $1 ORDER BY grade_level, name`
	var sections []models.ClassSection
	if err := r.db.SelectContext(ctx, &sections, query, schoolID); err != nil {
		return nil, fmt.Errorf("list class sections: %w", err)
	}
	return sections, nil
}
