package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

// TeachingAssignmentRepository reads teacher-to-offering bindings.
type TeachingAssignmentRepository struct {
	db *sqlx.DB
}

// NewTeachingAssignmentRepository constructs the repository.
func NewTeachingAssignmentRepository(db *sqlx.DB) *TeachingAssignmentRepository {
	return &TeachingAssignmentRepository{db: db}
}

func (r *TeachingAssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListActiveLoad returns the teacher's active assignments whose offering belongs to termID.
func (r *TeachingAssignmentRepository) ListActiveLoad(ctx context.Context, teacherID, termID string) ([]models.TeacherLoad, error) {
	const query = `SELECT ta.id AS assignment_id, co.id AS class_offering_id, co.course_id, co.periods_per_week
FROM teaching_assignments ta
JOIN class_offerings co ON co.id = ta.class_offering_id
WHERE ta.teacher_id = $1 AND co.term_id = $2 AND ta.active = TRUE
ORDER BY ta.created_at`
	var rows []models.TeacherLoad
	if err := r.db.SelectContext(ctx, &rows, query, teacherID, termID); err != nil {
		return nil, fmt.Errorf("list teacher load: %w", err)
	}
	return rows, nil
}

// ListActiveByTerm returns every active assignment whose offering belongs to termID.
func (r *TeachingAssignmentRepository) ListActiveByTerm(ctx context.Context, termID string) ([]models.TeachingAssignment, error) {
	const query = `SELECT ta.id, ta.teacher_id, ta.class_offering_id, ta.assignment_type, ta.active, ta.created_at
FROM teaching_assignments ta
JOIN class_offerings co ON co.id = ta.class_offering_id
WHERE co.term_id = $1 AND ta.active = TRUE
ORDER BY ta.class_offering_id, ta.created_at`
	var rows []models.TeachingAssignment
	if err := r.db.SelectContext(ctx, &rows, query, termID); err != nil {
		return nil, fmt.Errorf("list teaching assignments: %w", err)
	}
	return rows, nil
}

// FindRefs resolves assignment ids to their teacher, term and load caps.
// Unknown ids are omitted.
func (r *TeachingAssignmentRepository) FindRefs(ctx context.Context, exec sqlx.ExtContext, ids []string) (map[string]models.AssignmentRef, error) {
	out := make(map[string]models.AssignmentRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	const query = `SELECT ta.id, ta.teacher_id, co.term_id, t.school_id, co.id AS class_offering_id,
co.periods_per_week, t.max_periods_per_week, t.max_periods_per_day, ta.active
FROM teaching_assignments ta
JOIN class_offerings co ON co.id = ta.class_offering_id
JOIN teachers t ON t.id = ta.teacher_id
WHERE ta.id = ANY($1)`
	var rows []models.AssignmentRef
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find teaching assignments: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}
