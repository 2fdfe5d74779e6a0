package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

type teacherLookupStub struct {
	teachers map[string]models.Teacher
}

func (s teacherLookupStub) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, ok := s.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &teacher, nil
}

type teacherLoadStub struct {
	loads []models.TeacherLoad
}

func (s teacherLoadStub) ListActiveLoad(ctx context.Context, teacherID, termID string) ([]models.TeacherLoad, error) {
	return s.loads, nil
}

func newWorkloadFixture(loads []models.TeacherLoad) *WorkloadService {
	teachers := teacherLookupStub{teachers: map[string]models.Teacher{
		"t-1": {ID: "t-1", SchoolID: "school-1", FullName: "Sari Dewi", MaxPeriodsPerWeek: intPtr(20)},
		"t-9": {ID: "t-9", SchoolID: "school-2", FullName: "Budi", MaxPeriodsPerWeek: intPtr(20)},
	}}
	terms := &termCalendarStub{terms: map[string]models.Term{
		"term-1": {ID: "term-1", SchoolID: "school-1", PeriodDurationMinutes: 45},
		"term-9": {ID: "term-9", SchoolID: "school-2", PeriodDurationMinutes: 45},
	}}
	return NewWorkloadService(teachers, terms, teacherLoadStub{loads: loads}, nil, WorkloadServiceConfig{}, nil)
}

func TestWorkloadThresholdsClassify(t *testing.T) {
	cases := map[float64]string{
		0:     dto.WorkloadAvailable,
		69.99: dto.WorkloadAvailable,
		70:    dto.WorkloadModerate,
		89.9:  dto.WorkloadModerate,
		90:    dto.WorkloadHigh,
		100:   dto.WorkloadHigh,
		100.1: dto.WorkloadOverloaded,
	}
	for utilization, expected := range cases {
		assert.Equal(t, expected, DefaultWorkloadThresholds.Classify(utilization), "utilization %.2f", utilization)
	}
}

func TestWorkloadForHighUtilization(t *testing.T) {
	svc := newWorkloadFixture([]models.TeacherLoad{
		{AssignmentID: "a-1", CourseID: "math", PeriodsPerWeek: 8},
		{AssignmentID: "a-2", CourseID: "math", PeriodsPerWeek: 6},
		{AssignmentID: "a-3", CourseID: "physics", PeriodsPerWeek: 4},
	})

	resp, err := svc.WorkloadFor(context.Background(), nil, "t-1", dto.WorkloadQuery{TermID: "term-1"})
	require.NoError(t, err)
	assert.Equal(t, 18, resp.CurrentPeriodsPerWeek)
	assert.Equal(t, 90.0, resp.UtilizationPercentage)
	assert.Equal(t, dto.WorkloadHigh, resp.WorkloadStatus)
	assert.False(t, resp.RecommendedForNewAssignments)
	assert.Equal(t, 2, resp.CurrentCoursesCount)
	assert.Equal(t, 5, resp.MaxCoursesCount)
	assert.Equal(t, 2, resp.AvailablePeriodsPerWeek)
	assert.Equal(t, 13.5, resp.CurrentHoursPerWeek)
	assert.Equal(t, 15.0, resp.MaxHoursPerWeek)
	assert.Equal(t, "term-1", resp.TermID)
	assert.Nil(t, resp.Violation)
}

func TestWorkloadForAdditionalPeriodsOverload(t *testing.T) {
	svc := newWorkloadFixture([]models.TeacherLoad{{AssignmentID: "a-1", CourseID: "math", PeriodsPerWeek: 18}})

	resp, err := svc.WorkloadFor(context.Background(), nil, "t-1", dto.WorkloadQuery{TermID: "term-1", AdditionalPeriods: 4})
	require.NoError(t, err)
	assert.Equal(t, 22, resp.TotalPeriodsPerWeek)
	assert.Equal(t, 110.0, resp.UtilizationPercentage)
	assert.Equal(t, dto.WorkloadOverloaded, resp.WorkloadStatus)
	assert.Equal(t, 0, resp.AvailablePeriodsPerWeek)

	require.NotNil(t, resp.Violation)
	assert.Equal(t, models.CodeTeacherWorkloadExceeded, resp.Violation.Code)
	assert.Equal(t, models.SeverityError, resp.Violation.Severity)
	assert.Equal(t, 22, resp.Violation.Context["periods"])
	assert.Equal(t, 20, resp.Violation.Context["max_periods"])
	assert.Equal(t, "term-1", *resp.Violation.TermID)
	assert.Equal(t, "school-1", *resp.Violation.SchoolID)
}

func TestWorkloadForNoAssignments(t *testing.T) {
	svc := newWorkloadFixture(nil)

	resp, err := svc.WorkloadFor(context.Background(), nil, "t-1", dto.WorkloadQuery{TermID: "term-1"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.UtilizationPercentage)
	assert.Equal(t, dto.WorkloadAvailable, resp.WorkloadStatus)
	assert.True(t, resp.RecommendedForNewAssignments)
}

func TestWorkloadForUnknownTeacher(t *testing.T) {
	svc := newWorkloadFixture(nil)
	_, err := svc.WorkloadFor(context.Background(), nil, "ghost", dto.WorkloadQuery{TermID: "term-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestWorkloadForRequiresTerm(t *testing.T) {
	svc := newWorkloadFixture(nil)
	_, err := svc.WorkloadFor(context.Background(), nil, "t-1", dto.WorkloadQuery{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWorkloadForScopesToActorSchool(t *testing.T) {
	svc := newWorkloadFixture(nil)
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, SchoolID: "school-1"}

	_, err := svc.WorkloadFor(context.Background(), admin, "t-1", dto.WorkloadQuery{TermID: "term-1"})
	require.NoError(t, err)

	_, err = svc.WorkloadFor(context.Background(), admin, "t-9", dto.WorkloadQuery{TermID: "term-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.WorkloadFor(context.Background(), admin, "t-1", dto.WorkloadQuery{TermID: "term-9"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	superadmin := &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin}
	resp, err := svc.WorkloadFor(context.Background(), superadmin, "t-9", dto.WorkloadQuery{TermID: "term-9"})
	require.NoError(t, err)
	assert.Equal(t, "t-9", resp.TeacherID)
}

func TestBatchLoadViolations(t *testing.T) {
	refs := map[string]models.AssignmentRef{
		"ta-1": {ID: "ta-1", TeacherID: "t-1", TermID: "term-1", ClassOfferingID: "co-1", PeriodsPerWeek: 4, MaxPeriodsPerWeek: intPtr(10), Active: true},
		"ta-2": {ID: "ta-2", TeacherID: "t-2", TermID: "term-1", ClassOfferingID: "co-2", PeriodsPerWeek: 2, MaxPeriodsPerDay: intPtr(1), Active: true},
	}
	week := []time.Time{
		time.Date(2024, 7, 22, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 23, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 24, 0, 0, 0, 0, time.UTC),
	}
	var batch []models.ScheduledLesson
	for i := 0; i < 14; i++ {
		batch = append(batch, models.ScheduledLesson{TeachingAssignmentID: "ta-1", TeacherID: "t-1", Date: week[i%len(week)]})
	}
	batch = append(batch,
		models.ScheduledLesson{TeachingAssignmentID: "ta-2", TeacherID: "t-2", Date: week[0]},
		models.ScheduledLesson{TeachingAssignmentID: "ta-2", TeacherID: "t-2", Date: week[0]},
		models.ScheduledLesson{TeachingAssignmentID: "ta-404", Date: week[1]},
	)

	violations := BatchLoadViolations(batch, refs, 20, DefaultWorkloadThresholds)
	require.Len(t, violations, 3)

	assert.Equal(t, models.CodeTeacherWorkloadExceeded, violations[0].Code)
	assert.True(t, violations[0].Severity.Blocking())
	assert.Equal(t, "t-1", violations[0].Context["teacher_id"])
	assert.Equal(t, 14, violations[0].Context["periods"])
	assert.Equal(t, 10, violations[0].Context["max_periods"])
	assert.Equal(t, 30, violations[0].Context["iso_week"])

	assert.Equal(t, models.CodeMaxLessonsExceeded, violations[1].Code)
	assert.Equal(t, "2024-07-22", violations[1].Context["date"])

	assert.Equal(t, models.CodeCurriculumHoursVariance, violations[2].Code)
	assert.False(t, violations[2].Severity.Blocking())
	assert.Equal(t, "ta-1", violations[2].Context["teaching_assignment_id"])
	assert.Equal(t, 10, violations[2].Context["variance_periods"])
}

func TestBatchLoadViolationsWithinCaps(t *testing.T) {
	refs := map[string]models.AssignmentRef{
		"ta-1": {ID: "ta-1", TeacherID: "t-1", TermID: "term-1", PeriodsPerWeek: 2, Active: true},
	}
	batch := []models.ScheduledLesson{
		{TeachingAssignmentID: "ta-1", TeacherID: "t-1", Date: time.Date(2024, 7, 22, 0, 0, 0, 0, time.UTC)},
		{TeachingAssignmentID: "ta-1", TeacherID: "t-1", Date: time.Date(2024, 7, 26, 0, 0, 0, 0, time.UTC)},
		{TeachingAssignmentID: "ta-1", TeacherID: "t-1", Date: time.Date(2024, 7, 29, 0, 0, 0, 0, time.UTC)},
	}
	assert.Empty(t, BatchLoadViolations(batch, refs, 20, DefaultWorkloadThresholds))
}
