package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

// TermRepository reads terms and their calendar exceptions.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository constructs the repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// FindByID loads a term with its owning school.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.Term, error) {
	const query = `SELECT t.id, t.academic_year_id, ay.school_id, t.name, t.start_date, t.end_date, t.period_duration_minutes
FROM terms t JOIN academic_years ay ON ay.id = t.academic_year_id WHERE t.id = $1`
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, fmt.Errorf("get term: %w", err)
	}
	return &term, nil
}

// ListHolidays returns the non-teaching dates of a term ordered by date.
func (r *TermRepository) ListHolidays(ctx context.Context, termID string) ([]models.Holiday, error) {
	const query = `SELECT id, term_id, date, name FROM holidays WHERE term_id = $1 ORDER BY date`
	var holidays []models.Holiday
	if err := r.db.SelectContext(ctx, &holidays, query, termID); err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	return holidays, nil
}
