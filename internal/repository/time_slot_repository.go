package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

const timeSlotColumns = `id, term_id, day_of_week, start_time, end_time, period_number, slot_name, is_teaching_period`

// TimeSlotRepository reads the weekly time grid of a term.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository constructs the repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

func (r *TimeSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByTerm returns the grid ordered by (day_of_week, start_time).
func (r *TimeSlotRepository) ListByTerm(ctx context.Context, termID string) ([]models.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots WHERE term_id = $1 ORDER BY day_of_week, start_time, period_number`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, termID); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// FindByID loads one slot.
func (r *TimeSlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots WHERE id = $1`
	var slot models.TimeSlot
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, id); err != nil {
		return nil, fmt.Errorf("get time slot: %w", err)
	}
	return &slot, nil
}

// FindByIDs loads slots keyed by id. Unknown ids are omitted.
func (r *TimeSlotRepository) FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (map[string]models.TimeSlot, error) {
	out := make(map[string]models.TimeSlot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots WHERE id = ANY($1)`
	var slots []models.TimeSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find time slots: %w", err)
	}
	for _, slot := range slots {
		out[slot.ID] = slot
	}
	return out, nil
}
