package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

// ClassOfferingRepository reads course offerings per term.
type ClassOfferingRepository struct {
	db *sqlx.DB
}

// NewClassOfferingRepository constructs the repository.
func NewClassOfferingRepository(db *sqlx.DB) *ClassOfferingRepository {
	return &ClassOfferingRepository{db: db}
}

// ListByTerm returns every offering of a term.
func (r *ClassOfferingRepository) ListByTerm(ctx context.Context, termID string) ([]models.ClassOffering, error) {
	const query = `SELECT id, term_id, course_id, class_section_id, periods_per_week, required_hours_per_term
FROM class_offerings WHERE term_id = $1 ORDER BY class_section_id, course_id`
	var offerings []models.ClassOffering
	if err := r.db.SelectContext(ctx, &offerings, query, termID); err != nil {
		return nil, fmt.Errorf("list class offerings: %w", err)
	}
	return offerings, nil
}

// ListDetails returns offerings joined with names and term parameters. An
// empty schoolID lists every school.
func (r *ClassOfferingRepository) ListDetails(ctx context.Context, schoolID string) ([]models.ClassOfferingDetail, error) {
	query := `SELECT co.id, co.term_id, co.course_id, co.class_section_id, co.periods_per_week, co.required_hours_per_term,
ay.school_id, c.name AS course_name, cs.name AS class_section_name, t.name AS term_name,
t.start_date AS term_start_date, t.end_date AS term_end_date, t.period_duration_minutes
FROM class_offerings co
JOIN courses c ON c.id = co.course_id
JOIN class_sections cs ON cs.id = co.class_section_id
JOIN terms t ON t.id = co.term_id
JOIN academic_years ay ON ay.id = t.academic_year_id`
	args := []interface{}{}
	if schoolID != "" {
		query += ` WHERE ay.school_id = $1`
		args = append(args, schoolID)
	}
	query += ` ORDER BY t.start_date DESC, cs.name, c.name`

	var rows []models.ClassOfferingDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list class offering details: %w", err)
	}
	return rows, nil
}
