package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

const teacherColumns = `t.id, t.school_id, t.department_id, d.name AS department_name, t.full_name, t.email, t.active,
t.max_periods_per_day, t.max_periods_per_week, t.max_hours_per_week, t.max_courses`

// TeacherRepository reads teacher records with their scheduling limits.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// FindByID loads a single teacher.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	query := `SELECT ` + teacherColumns + `
FROM teachers t LEFT JOIN departments d ON d.id = t.department_id WHERE t.id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	return &teacher, nil
}

// ListActiveBySchool returns active teachers ordered by name.
func (r *TeacherRepository) ListActiveBySchool(ctx context.Context, schoolID string) ([]models.Teacher, error) {
	query := `SELECT ` + teacherColumns + `
FROM teachers t LEFT JOIN departments d ON d.id = t.department_id
WHERE t.school_id = $1 AND t.active = TRUE ORDER BY t.full_name`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, schoolID); err != nil {
		return nil, fmt.Errorf("list active teachers: %w", err)
	}
	return teachers, nil
}

// ListQualifications returns every teacher-course qualification in a school.
func (r *TeacherRepository) ListQualifications(ctx context.Context, schoolID string) ([]models.TeacherQualification, error) {
	const query = `SELECT q.teacher_id, q.course_id FROM teacher_qualifications q
JOIN teachers t ON t.id = q.teacher_id WHERE t.school_id = $1 ORDER BY q.teacher_id, q.course_id`
	var rows []models.TeacherQualification
	if err := r.db.SelectContext(ctx, &rows, query, schoolID); err != nil {
		return nil, fmt.Errorf("list teacher qualifications: %w", err)
	}
	return rows, nil
}

// ListUnavailability returns blocked slots for every teacher in a term.
func (r *TeacherRepository) ListUnavailability(ctx context.Context, termID string) ([]models.TeacherUnavailability, error) {
	const query = `SELECT u.teacher_id, u.timeslot_id FROM teacher_unavailable_slots u
JOIN time_slots ts ON ts.id = u.timeslot_id WHERE ts.term_id = $1 ORDER BY u.teacher_id`
	var rows []models.TeacherUnavailability
	if err := r.db.SelectContext(ctx, &rows, query, termID); err != nil {
		return nil, fmt.Errorf("list teacher unavailability: %w", err)
	}
	return rows, nil
}
